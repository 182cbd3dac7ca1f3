package main

import (
	"os"

	"github.com/sigweihq/wcbroker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
