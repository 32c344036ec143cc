package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
