package testsupport

import (
	"context"
	"testing"

	"burnish/internal/config"
	"burnish/internal/jobs"
	"burnish/internal/logging"
)

// MustOpenStore opens a jobs.Store for tests.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	return store
}

// NewJob creates a queued job for tests using the provided store.
func NewJob(t testing.TB, store *jobs.Store, payload jobs.Payload) *jobs.Job {
	t.Helper()

	normalized, err := jobs.NormalizePayload(payload)
	if err != nil {
		t.Fatalf("jobs.NormalizePayload: %v", err)
	}
	job, err := store.Create(context.Background(), normalized)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}

// SamplePayload returns a valid upscale payload rooted in per-test temp dirs.
func SamplePayload(t testing.TB) jobs.Payload {
	t.Helper()

	base := t.TempDir()
	return jobs.Payload{
		InputDir:  base + "/in",
		OutputDir: base + "/out",
		Scale:     2,
		Format:    jobs.FormatWebP,
		Quality:   92,
		UseAI:     true,
	}
}
