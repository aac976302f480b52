// Package daemon coordinates the long-running montaged process.
//
// It wires the job store, the composition scheduler, the preview registry and
// the HTTP API into a single lifecycle with flock-based locking to prevent
// multiple instances. Background maintenance expires unresolved previews and
// reclaims stale staging directories on a fixed interval.
//
// Keep orchestration logic here: composition steps live in the pipeline
// package and request handling in the api package, while the daemon focuses
// on startup, shutdown and high level coordination.
package daemon
