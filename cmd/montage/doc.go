// Command montage is the command-line client for the montaged daemon.
//
// Every subcommand talks to the daemon over its HTTP API using the address
// and token from the config file (or --api). Output is rendered as tables
// and status lines, or as JSON with --json.
package main
