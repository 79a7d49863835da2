// Package server exposes the job submission and control HTTP API. Submission
// creates a queued record and spawns a detached worker process; every other
// endpoint is a thin layer over the shared job store.
package server
