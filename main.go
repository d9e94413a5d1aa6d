package main

import (
	"os"

	"github.com/kravishan/neuroclimabot-docker-sub000/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
