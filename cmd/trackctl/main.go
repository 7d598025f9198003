// Command trackctl drives the collection agent outside a browser: it replays
// recorded interactions against an ingestion endpoint and manages the
// persisted session.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
