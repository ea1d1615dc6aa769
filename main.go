package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/resourceburglar/localqa/cmd"
)

func main() {
	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
