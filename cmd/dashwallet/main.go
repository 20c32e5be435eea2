// Package main provides the dashwallet command: HD key derivation, watch-only
// address issuance and coin sweeping against a Dash Core node.
package main

import (
	"os"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
