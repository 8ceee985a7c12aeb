// Command ledger applies ledger files to an in-memory account store with a
// pool of concurrent workers.
//
//	ledger <workers> <file> <sleep>
//	ledger serve
//	ledger send <file> --addr tcp://host:port
package main

import (
	"fmt"
	"os"
)

// Version information
const (
	Version = "0.1.0"
	Name    = "HieraLedger-Engine"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ledger: %v\n", err)
		os.Exit(1)
	}
}
