package main

import (
	"os"

	"github.com/jefeworks/jefe/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
