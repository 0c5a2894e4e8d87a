package main

import (
	"os"

	"github.com/wonny/cryptopredict/cmd/cryptopredict/commands"
)

// main is the entry point for the CryptoPredict CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/cryptopredict [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
