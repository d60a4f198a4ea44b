// internal/message/message.go
package message

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/sable-sec/appregctl/version"
)

var (
	quiet     bool
	noColor   bool
	silent    bool
	mutex     sync.RWMutex
	outWriter io.Writer = os.Stdout

	// Color definitions
	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	sectionColor = color.New(color.FgHiBlue, color.Bold)
)

// SetQuiet enables/disables user messages
func SetQuiet(q bool) {
	mutex.Lock()
	defer mutex.Unlock()
	quiet = q
}

// SetNoColor enables/disables colored output
func SetNoColor(nc bool) {
	mutex.Lock()
	defer mutex.Unlock()
	noColor = nc
	color.NoColor = nc // This affects the color package globally
}

// SetSilent enables/disables all messages
func SetSilent(s bool) {
	mutex.Lock()
	defer mutex.Unlock()
	silent = s
}

// SetOutput changes the output writer (useful for testing)
func SetOutput(w io.Writer) {
	mutex.Lock()
	defer mutex.Unlock()
	outWriter = w
}

func printf(c *color.Color, prefix, format string, args ...interface{}) {
	mutex.RLock()
	defer mutex.RUnlock()

	msg := fmt.Sprintf(format, args...)
	if noColor {
		fmt.Fprintf(outWriter, "%s%s\n", prefix, msg)
	} else {
		c.Fprintf(outWriter, "%s%s\n", prefix, msg)
	}
}

// Info prints an informational message unless quiet/silent mode is enabled
func Info(format string, args ...interface{}) {
	if quiet || silent {
		return
	}
	printf(infoColor, "[*] ", format, args...)
}

// Success prints a success message unless quiet/silent mode is enabled
func Success(format string, args ...interface{}) {
	if quiet || silent {
		return
	}
	printf(successColor, "[+] ", format, args...)
}

// Warning prints a warning message unless silent mode is enabled
func Warning(format string, args ...interface{}) {
	if silent {
		return
	}
	printf(warningColor, "[!] ", format, args...)
}

// Error prints an error message unless silent mode is enabled
func Error(format string, args ...interface{}) {
	if silent {
		return
	}
	printf(errorColor, "[-] ", format, args...)
}

// Emphasize returns a string with bold formatting
func Emphasize(s string) string {
	if noColor {
		return s
	}
	return color.New(color.Bold).Sprint(s)
}

// Section prints a section header
func Section(format string, args ...interface{}) {
	if quiet || silent {
		return
	}

	mutex.RLock()
	defer mutex.RUnlock()

	msg := fmt.Sprintf(format, args...)
	if noColor {
		fmt.Fprintf(outWriter, "\n-=[%s]=-\n\n", msg)
	} else {
		sectionColor.Fprintf(outWriter, "\n-=[%s]=-\n\n", msg)
	}
}

// Banner prints the startup banner
func Banner() {
	if quiet || silent {
		return
	}

	mutex.RLock()
	defer mutex.RUnlock()

	fmt.Fprintf(outWriter, "appregctl %s\n", version.AbbreviatedVersion())
}
