package main

import (
	"os"

	"gotus/cmd/gotusctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
