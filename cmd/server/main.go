// Package main is the entry point for the Darim auth server. The serve
// command loads configuration, connects to MariaDB and Redis, wires the auth
// plugin and starts the HTTP server; migrate applies the schema.
package main

import (
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
