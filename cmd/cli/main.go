package main

import (
	"os"

	"github.com/me/jobd/internal/cli"
)

func main() {
	// cobra already printed the error.
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
