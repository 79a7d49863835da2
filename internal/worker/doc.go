// Package worker executes one upscale job end to end inside a detached
// process. It receives only a job id and re-reads everything else from the
// store, so a worker is restart-independent: re-running resets the counters
// and overwrites the same destination paths (at-least-once,
// overwrite-idempotent).
package worker
