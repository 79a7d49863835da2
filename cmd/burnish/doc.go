// Command burnish is the batch image-upscaling service: an admin HTTP API,
// detached per-job worker processes, and store management subcommands.
package main
