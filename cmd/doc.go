// Package cmd implements the command-line interface of ahnlich-go. It provides
// a hierarchical command structure for talking to an ahnlich DB server and for
// running a local in-memory server.
//
// The package is organized into several subpackages:
//
//   - db: Commands for DB operations (ping, info, stores, entries, perf)
//   - serve: Command for starting the local in-memory server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See ahnlich -help for a list of all commands.
package cmd
