package main

import (
	"os"

	"github.com/omni/ethy-witness/cmd/ethy-witness/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
