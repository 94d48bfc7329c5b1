// Command mlectl runs Thread MLE attach scenarios and analyzes the protocol
// capture files they produce.
//
// Usage:
//
//	mlectl <command> [flags]
//
// Commands:
//
//	simulate   Run scenario files and check their expectations
//	shell      Step through a scenario interactively
//	log view   View a capture file in human-readable format
//	log stats  Show statistics about a capture file
//
// Examples:
//
//	# Run one scenario and capture the exchange
//	mlectl simulate -f best-parent.yaml --protocol-log attach.mlog
//
//	# Run every scenario in a directory
//	mlectl simulate --dir scenarios
//
//	# View only state changes
//	mlectl log view --category state attach.mlog
//
//	# Show statistics
//	mlectl log stats attach.mlog
package main

import (
	"os"

	"github.com/mash-protocol/mle-go/cmd/mlectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
