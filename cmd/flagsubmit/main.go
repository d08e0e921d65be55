package main

import (
	"os"

	"github.com/goliatone/go-flagsubmit/cmd/flagsubmit/cli"
)

var version = "dev"

func main() {
	cli.Version = version
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
