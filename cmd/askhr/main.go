// Command askhr is the entry point for the AskHR assistant backend.
// It provides a CLI interface (via Cobra) and an HTTP server exposing the
// retrieval, ingestion, and conversational endpoints.
package main

import (
	"fmt"
	"os"

	"github.com/zorbit-ai/askhr-go/cmd/askhr/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
