package main

import (
	"os"

	"github.com/rustyeddy/exchange/cmd/exchange/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
