// Package cmd implements the yakdb command-line interface. It provides a
// hierarchical command structure for running the server and for talking to a
// running server as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starting and configuring the YakDB server
//   - kv: Client commands (read, put, scan, open, compact, perf, ...)
//   - discover: Finding servers through their UDP beacon
//   - util: Shared utilities for flag handling and configuration (internal use)
//
// Every flag can also be set through an environment variable YAKDB_<FLAG>, .env
// and .env.local files are loaded on start. See yakdb -help for a list of all
// commands.
package cmd
