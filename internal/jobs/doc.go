// Package jobs persists upscale jobs in a single JSON document and exposes
// helpers for driving their lifecycle.
//
// The Store owns the document (newest-first array of job records), guards
// every read-modify-write with an advisory file lock so the API process and
// detached worker processes can share it, and enforces the status state
// machine: queued -> running -> done|error, with queued or running jobs
// cancelable from outside. Terminal records are immutable; writes against
// them fail with ErrTerminal. A corrupt document is preserved next to the
// store and treated as empty rather than aborting.
//
// Treat this package as the single source of truth for job semantics; when
// you add statuses or record fields, update the transition table here.
package jobs
