// Package main is the entry point for the bulkvm CLI.
//
// bulkvm seeds the inventory catalog and provisions CSV batches against it
// without going through the HTTP server. It reads the same environment
// configuration as the server.
package main

import (
	"fmt"
	"os"

	"github.com/bcnelson/bulk-vm-provisioner/cmd/bulkvm/commands"
)

func main() {
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
