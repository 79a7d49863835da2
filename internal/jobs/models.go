package jobs

import (
	"strings"
	"time"

	"burnish/internal/services"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusError    Status = "error"
	StatusCanceled Status = "canceled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusDone,
	StatusError,
	StatusCanceled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// transitions lists the permitted status edges. Cancellation is handled
// separately because it applies to every non-terminal state.
var transitions = map[Status][]Status{
	StatusQueued:  {StatusRunning, StatusCanceled},
	StatusRunning: {StatusDone, StatusError, StatusCanceled},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusError, StatusCanceled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the edge from -> to exists in the state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Type tags the kind of work a job performs. Only upscale jobs exist today;
// the field is kept open so the store stays usable for future batch tools.
type Type string

// TypeUpscale is the batch image-upscaling job kind.
const TypeUpscale Type = "upscale"

// Target output formats accepted at submission.
const (
	FormatWebP = "webp"
	FormatJPG  = "jpg"
	FormatPNG  = "png"
)

var validFormats = map[string]struct{}{
	FormatWebP: {},
	FormatJPG:  {},
	FormatPNG:  {},
}

// Payload holds the immutable creation parameters of an upscale job.
type Payload struct {
	InputDir  string `json:"inputDir"`
	OutputDir string `json:"outputDir"`
	Scale     int    `json:"scale"`
	Format    string `json:"format"`
	Quality   int    `json:"quality"`
	UseAI     bool   `json:"useAI"`
}

// Progress carries the per-file counters a polling UI renders.
type Progress struct {
	Total int `json:"total"`
	OK    int `json:"ok"`
	Fail  int `json:"fail"`
}

// MaxFailureDetails bounds the per-file failure messages retained on a record.
const MaxFailureDetails = 20

// Job is the persisted unit of work.
type Job struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Payload   Payload   `json:"payload"`
	Progress  Progress  `json:"progress"`
	Error     string    `json:"error,omitempty"`
	Failures  []string  `json:"failures,omitempty"`
}

// Terminal reports whether the job reached a final status.
func (j *Job) Terminal() bool {
	return j != nil && j.Status.Terminal()
}

// Clone returns a deep copy so callers cannot mutate stored records.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if len(j.Failures) > 0 {
		cp.Failures = append([]string(nil), j.Failures...)
	}
	return &cp
}

// NormalizePayload coerces and validates a submission payload. String fields
// are trimmed, format is lowercased with "jpeg" folding into "jpg", scale is
// coerced into {2,3,4}, and quality is clamped to 1..100. Invalid directories
// or formats are rejected so they never reach a worker.
func NormalizePayload(p Payload) (Payload, error) {
	p.InputDir = strings.TrimSpace(p.InputDir)
	p.OutputDir = strings.TrimSpace(p.OutputDir)
	if p.InputDir == "" {
		return p, services.Wrap(services.ErrValidation, "jobs", "normalize payload", "inputDir is required", nil)
	}
	if p.OutputDir == "" {
		return p, services.Wrap(services.ErrValidation, "jobs", "normalize payload", "outputDir is required", nil)
	}

	p.Format = strings.ToLower(strings.TrimSpace(p.Format))
	if p.Format == "jpeg" {
		p.Format = FormatJPG
	}
	if p.Format == "" {
		p.Format = FormatWebP
	}
	if _, ok := validFormats[p.Format]; !ok {
		return p, services.Wrap(services.ErrValidation, "jobs", "normalize payload", "format must be webp, jpg, or png", nil)
	}

	switch {
	case p.Scale >= 4:
		p.Scale = 4
	case p.Scale == 3:
		p.Scale = 3
	default:
		p.Scale = 2
	}

	if p.Quality < 1 {
		p.Quality = 1
	}
	if p.Quality > 100 {
		p.Quality = 100
	}

	return p, nil
}
