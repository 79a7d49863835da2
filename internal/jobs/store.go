package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"burnish/internal/config"
	"burnish/internal/logging"
)

// ErrTerminal is returned when a write would mutate a job that already
// reached done, error, or canceled.
var ErrTerminal = errors.New("job is in a terminal status")

// ErrTransition is returned when a status change has no edge in the state machine.
var ErrTransition = errors.New("status transition not permitted")

const lockRetryDelay = 25 * time.Millisecond

// Store manages job persistence backed by a single JSON document shared
// between the API process and detached worker processes.
type Store struct {
	path         string
	lock         *flock.Flock
	logger       *slog.Logger
	defaultLimit int
	maxLimit     int
}

type document struct {
	Jobs []*Job `json:"jobs"`
}

// Open prepares the store rooted at the configured data directory. The
// backing document is created lazily on first write.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	path := cfg.StorePath()
	return &Store{
		path:         path,
		lock:         flock.New(path + ".lock"),
		logger:       logging.NewComponentLogger(logger, "jobstore"),
		defaultLimit: cfg.Jobs.DefaultLimit,
		maxLimit:     cfg.Jobs.MaxLimit,
	}, nil
}

// Path returns the location of the persisted document.
func (s *Store) Path() string {
	return s.path
}

// ListOptions filter the job listing.
type ListOptions struct {
	Type   Type
	Status Status
	Query  string
	Limit  int
}

// Create allocates a new queued job for the given payload, prepends it to the
// collection, and persists the document. The payload must already be
// normalized.
func (s *Store) Create(ctx context.Context, payload Payload) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Type:      TypeUpscale,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Payload:   payload,
		Progress:  Progress{},
	}

	err := s.withDocument(ctx, func(doc *document) (bool, error) {
		for _, existing := range doc.Jobs {
			if existing.ID == job.ID {
				// uuid collisions do not happen in practice; regenerate
				// rather than corrupt the uniqueness invariant.
				job.ID = uuid.NewString()
			}
		}
		doc.Jobs = append([]*Job{job}, doc.Jobs...)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// List returns the newest-first slice of jobs matching the options. Limit
// falls back to the configured default and is capped at the configured max.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	var out []*Job
	err := s.withDocument(ctx, func(doc *document) (bool, error) {
		query := strings.ToLower(strings.TrimSpace(opts.Query))
		for _, job := range doc.Jobs {
			if opts.Type != "" && job.Type != opts.Type {
				continue
			}
			if opts.Status != "" && job.Status != opts.Status {
				continue
			}
			if query != "" && !strings.Contains(strings.ToLower(job.ID), query) {
				continue
			}
			out = append(out, job.Clone())
			if len(out) == limit {
				break
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one job by id. A missing id yields (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	var found *Job
	err := s.withDocument(ctx, func(doc *document) (bool, error) {
		if _, job := findJob(doc, id); job != nil {
			found = job.Clone()
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Patch describes a shallow merge against an existing record. Nil fields are
// left untouched; UpdatedAt always refreshes.
type Patch struct {
	Status   *Status
	Progress *Progress
	Error    *string
	Failures []string
}

// Update applies a patch to an existing job. It returns (nil, nil) when the
// id is unknown, ErrTerminal when the record already reached a final status,
// and ErrTransition when a status change has no edge in the state machine.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (*Job, error) {
	var updated *Job
	err := s.withDocument(ctx, func(doc *document) (bool, error) {
		_, job := findJob(doc, id)
		if job == nil {
			return false, nil
		}
		if job.Status.Terminal() {
			return false, fmt.Errorf("update job %s: %w", id, ErrTerminal)
		}
		if patch.Status != nil && *patch.Status != job.Status {
			if !CanTransition(job.Status, *patch.Status) {
				return false, fmt.Errorf("update job %s: %s -> %s: %w", id, job.Status, *patch.Status, ErrTransition)
			}
			job.Status = *patch.Status
		}
		if patch.Progress != nil {
			if err := checkProgress(job.Progress, *patch.Progress); err != nil {
				return false, fmt.Errorf("update job %s: %w", id, err)
			}
			job.Progress = *patch.Progress
		}
		if patch.Error != nil {
			job.Error = strings.TrimSpace(*patch.Error)
		}
		if patch.Failures != nil {
			job.Failures = boundFailures(patch.Failures)
		}
		job.UpdatedAt = time.Now().UTC()
		updated = job.Clone()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkRunning moves a queued job to running, clearing any previous error and
// resetting progress for the new run.
func (s *Store) MarkRunning(ctx context.Context, id string) (*Job, error) {
	status := StatusRunning
	empty := ""
	return s.Update(ctx, id, Patch{
		Status:   &status,
		Progress: &Progress{},
		Error:    &empty,
		Failures: []string{},
	})
}

// SetProgress persists updated per-file counters for a running job.
func (s *Store) SetProgress(ctx context.Context, id string, progress Progress, failures []string) (*Job, error) {
	patch := Patch{Progress: &progress}
	if failures != nil {
		patch.Failures = failures
	}
	return s.Update(ctx, id, patch)
}

// MarkDone finalizes a successful run.
func (s *Store) MarkDone(ctx context.Context, id string, progress Progress) (*Job, error) {
	status := StatusDone
	empty := ""
	return s.Update(ctx, id, Patch{Status: &status, Progress: &progress, Error: &empty})
}

// MarkFailed finalizes a run that had failures or aborted fatally.
func (s *Store) MarkFailed(ctx context.Context, id string, message string) (*Job, error) {
	status := StatusError
	return s.Update(ctx, id, Patch{Status: &status, Error: &message})
}

// Cancel flips a non-terminal job to canceled. Canceling an already-terminal
// job is a no-op that returns the record unchanged; a missing id yields
// (nil, nil).
func (s *Store) Cancel(ctx context.Context, id string) (*Job, error) {
	var result *Job
	err := s.withDocument(ctx, func(doc *document) (bool, error) {
		_, job := findJob(doc, id)
		if job == nil {
			return false, nil
		}
		if job.Status.Terminal() {
			result = job.Clone()
			return false, nil
		}
		job.Status = StatusCanceled
		job.UpdatedAt = time.Now().UTC()
		result = job.Clone()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a job record and reports whether one was removed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	removed := false
	err := s.withDocument(ctx, func(doc *document) (bool, error) {
		idx, job := findJob(doc, id)
		if job == nil {
			return false, nil
		}
		doc.Jobs = append(doc.Jobs[:idx], doc.Jobs[idx+1:]...)
		removed = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Summary describes aggregated job counts per lifecycle state.
type Summary struct {
	Total    int `json:"total"`
	Queued   int `json:"queued"`
	Running  int `json:"running"`
	Done     int `json:"done"`
	Error    int `json:"error"`
	Canceled int `json:"canceled"`
}

// Summarize returns job counts for the status endpoint.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var summary Summary
	err := s.withDocument(ctx, func(doc *document) (bool, error) {
		summary.Total = len(doc.Jobs)
		for _, job := range doc.Jobs {
			switch job.Status {
			case StatusQueued:
				summary.Queued++
			case StatusRunning:
				summary.Running++
			case StatusDone:
				summary.Done++
			case StatusError:
				summary.Error++
			case StatusCanceled:
				summary.Canceled++
			}
		}
		return false, nil
	})
	return summary, err
}

// withDocument serializes a read-modify-write cycle under the advisory lock.
// The callback returns whether the document changed and must be rewritten.
func (s *Store) withDocument(ctx context.Context, fn func(doc *document) (bool, error)) error {
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire store lock: %w", err)
	}
	if !locked {
		return errors.New("acquire store lock: not acquired")
	}
	defer func() {
		if unlockErr := s.lock.Unlock(); unlockErr != nil {
			s.logger.Warn("failed to release store lock", logging.Error(unlockErr))
		}
	}()

	doc, err := s.read()
	if err != nil {
		return err
	}

	changed, err := fn(doc)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.write(doc)
}

// read loads the document, failing open to an empty collection when the file
// is missing or unparseable. An unparseable document is preserved as a
// .corrupt sibling so the data is recoverable.
func (s *Store) read() (*document, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &document{}, nil
		}
		return nil, fmt.Errorf("read job store: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		corruptPath := s.path + ".corrupt"
		if copyErr := os.WriteFile(corruptPath, raw, 0o644); copyErr != nil {
			s.logger.Warn("failed to preserve corrupt job store", logging.Error(copyErr))
		}
		s.logger.Warn("job store document is corrupt, starting empty",
			logging.Error(err),
			logging.String("preserved", corruptPath))
		return &document{}, nil
	}
	return &doc, nil
}

func (s *Store) write(doc *document) error {
	if doc.Jobs == nil {
		doc.Jobs = []*Job{}
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".jobs-*.json")
	if err != nil {
		return fmt.Errorf("stage job store: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write job store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close job store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace job store: %w", err)
	}
	return nil
}

func findJob(doc *document, id string) (int, *Job) {
	for idx, job := range doc.Jobs {
		if job.ID == id {
			return idx, job
		}
	}
	return -1, nil
}

// checkProgress enforces counter monotonicity within a run: totals do not
// shrink, ok/fail never decrease, and their sum stays within the total once
// it is known. A zero progress value is always accepted because each worker
// run starts by resetting the counters.
func checkProgress(current, next Progress) error {
	if next == (Progress{}) {
		return nil
	}
	if next.Total < 0 || next.OK < 0 || next.Fail < 0 {
		return errors.New("progress counters must be non-negative")
	}
	if next.Total > 0 && next.OK+next.Fail > next.Total {
		return errors.New("progress ok+fail exceeds total")
	}
	if current.Total > 0 && next.Total != current.Total {
		return errors.New("progress total is fixed once discovered")
	}
	if next.OK < current.OK || next.Fail < current.Fail {
		return errors.New("progress counters must not decrease")
	}
	return nil
}

func boundFailures(failures []string) []string {
	cleaned := make([]string, 0, len(failures))
	for _, failure := range failures {
		failure = strings.TrimSpace(failure)
		if failure == "" {
			continue
		}
		cleaned = append(cleaned, failure)
	}
	if len(cleaned) > MaxFailureDetails {
		cleaned = cleaned[len(cleaned)-MaxFailureDetails:]
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}
