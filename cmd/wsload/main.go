package main

import (
	"os"

	"github.com/LLIEPJIOK/wsload/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
