package jobs_test

import (
	"errors"
	"testing"

	"burnish/internal/jobs"
	"burnish/internal/services"
)

func TestTerminalStatuses(t *testing.T) {
	terminal := map[jobs.Status]bool{
		jobs.StatusQueued:   false,
		jobs.StatusRunning:  false,
		jobs.StatusDone:     true,
		jobs.StatusError:    true,
		jobs.StatusCanceled: true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Fatalf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to jobs.Status }{
		{jobs.StatusQueued, jobs.StatusRunning},
		{jobs.StatusQueued, jobs.StatusCanceled},
		{jobs.StatusRunning, jobs.StatusDone},
		{jobs.StatusRunning, jobs.StatusError},
		{jobs.StatusRunning, jobs.StatusCanceled},
	}
	for _, tc := range allowed {
		if !jobs.CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be permitted", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to jobs.Status }{
		{jobs.StatusDone, jobs.StatusRunning},
		{jobs.StatusError, jobs.StatusQueued},
		{jobs.StatusCanceled, jobs.StatusRunning},
		{jobs.StatusQueued, jobs.StatusDone},
		{jobs.StatusQueued, jobs.StatusError},
	}
	for _, tc := range denied {
		if jobs.CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := jobs.ParseStatus("  Running "); !ok || status != jobs.StatusRunning {
		t.Fatalf("ParseStatus failed: %v %v", status, ok)
	}
	if _, ok := jobs.ParseStatus("paused"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
	if _, ok := jobs.ParseStatus(""); ok {
		t.Fatal("expected empty status to be rejected")
	}
}

func TestNormalizePayload(t *testing.T) {
	payload, err := jobs.NormalizePayload(jobs.Payload{
		InputDir:  " /in ",
		OutputDir: "/out",
		Scale:     7,
		Format:    "JPEG",
		Quality:   250,
		UseAI:     true,
	})
	if err != nil {
		t.Fatalf("NormalizePayload failed: %v", err)
	}
	if payload.InputDir != "/in" {
		t.Fatalf("inputDir not trimmed: %q", payload.InputDir)
	}
	if payload.Scale != 4 {
		t.Fatalf("scale not collapsed: %d", payload.Scale)
	}
	if payload.Format != jobs.FormatJPG {
		t.Fatalf("jpeg not folded into jpg: %q", payload.Format)
	}
	if payload.Quality != 100 {
		t.Fatalf("quality not clamped: %d", payload.Quality)
	}
}

func TestNormalizePayloadKeepsScaleThree(t *testing.T) {
	payload, err := jobs.NormalizePayload(jobs.Payload{InputDir: "/in", OutputDir: "/out", Scale: 3, Format: "png", Quality: 90})
	if err != nil {
		t.Fatalf("NormalizePayload failed: %v", err)
	}
	if payload.Scale != 3 {
		t.Fatalf("requested scale 3 should persist, got %d", payload.Scale)
	}
}

func TestNormalizePayloadRejections(t *testing.T) {
	cases := []struct {
		name    string
		payload jobs.Payload
	}{
		{"missing input", jobs.Payload{OutputDir: "/out", Format: "webp", Quality: 90}},
		{"missing output", jobs.Payload{InputDir: "/in", Format: "webp", Quality: 90}},
		{"bad format", jobs.Payload{InputDir: "/in", OutputDir: "/out", Format: "gif", Quality: 90}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := jobs.NormalizePayload(tc.payload)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	job := &jobs.Job{ID: "a", Failures: []string{"x"}}
	cp := job.Clone()
	cp.Failures[0] = "y"
	cp.ID = "b"
	if job.Failures[0] != "x" || job.ID != "a" {
		t.Fatalf("clone mutated original: %+v", job)
	}
}
