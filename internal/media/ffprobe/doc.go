// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Track registration uses AudioDuration to learn how long an audio file
// plays; the render pipeline uses Result.Verify to check a finished
// composition before it is published.
package ffprobe
