package main

import (
	"github.com/sable-sec/appregctl/cmd"
)

func main() {
	cmd.Execute()
}
