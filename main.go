package main

import (
	"os"

	"github.com/olivoil/projectboard/internal/cli"
)

func main() {
	if code := cli.Execute(); code != 0 {
		os.Exit(code)
	}
}
