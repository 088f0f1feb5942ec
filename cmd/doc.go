// Package cmd implements the command-line interface of dCB. It provides a
// hierarchical command structure with operations for running the server and
// interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for bucket operations (get, set, rm, incr, observe, endure, ...)
//     and a benchmark of the client
//   - serve: Commands for starting and configuring the dCB server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through an environment variable with the DCB_
// prefix (e.g. DCB_TRANSPORT_ENDPOINTS), .env and .env.local are loaded first.
//
// See dcb -help for a list of all commands.
package cmd
