package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sable-sec/appregctl/internal/logs"
	"github.com/sable-sec/appregctl/internal/message"
	"github.com/sable-sec/appregctl/pkg/catalog"
)

var (
	cfgFile   string
	configDir string
	quiet     bool
	noColor   bool
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "appregctl",
	Short: "appregctl manages app registrations, their credentials, and API permission grants.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		message.SetQuiet(quiet)
		message.SetNoColor(noColor)
		logs.ConsoleLogger()
		if verbose {
			logs.SetVerbose()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.appregctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "catalog directory (default is the per-user config root)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress informational messages")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".appregctl" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".appregctl")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// catalogEnv bundles the catalog collaborators each command needs.
type catalogEnv struct {
	dir   string
	store *catalog.DirStore
	cache *catalog.Cache
	prefs *catalog.PreferenceResolver
}

func newCatalogEnv(createIfMissing bool) (*catalogEnv, error) {
	resolver := catalog.NewPathResolver()

	var dir string
	var err error
	if configDir != "" {
		dir, err = resolver.Custom(configDir, createIfMissing)
	} else {
		dir, err = resolver.Active(createIfMissing)
	}
	if err != nil {
		return nil, err
	}

	store := catalog.NewDirStore(dir)
	return &catalogEnv{
		dir:   dir,
		store: store,
		cache: catalog.NewCache(store),
		prefs: catalog.NewPreferenceResolver(store, dir),
	}, nil
}
