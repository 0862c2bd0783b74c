package main

import (
	"os"

	"github.com/rustyeddy/allocator/cmd/allocator/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
