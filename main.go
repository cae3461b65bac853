package main

import (
	"os"

	"github.com/tidyarr/tidyarr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
