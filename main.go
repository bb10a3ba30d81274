// termscp transfers files between the local filesystem and a remote
// endpoint (Amazon S3, Azure Blob Storage or an in-memory store) from
// the terminal.
package main

import (
	"os"

	"github.com/flashlab/termscp/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
