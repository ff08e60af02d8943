package main

import (
	"github.com/joho/godotenv"

	"docrag/internal/cli"
)

func main() {
	// OPENAI_API_KEY and friends may live in a local .env file.
	_ = godotenv.Load()

	cli.Execute()
}
