package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"burnish/internal/imaging"
	"burnish/internal/jobs"
	"burnish/internal/logging"
	"burnish/internal/services"
	"burnish/internal/upscaler"
)

// Runner drives a single job's file loop.
type Runner struct {
	store  *jobs.Store
	client *upscaler.Client
	logger *slog.Logger
}

// New constructs a job runner.
func New(store *jobs.Store, client *upscaler.Client, logger *slog.Logger) (*Runner, error) {
	if store == nil || client == nil {
		return nil, errors.New("worker requires store and upscaler client")
	}
	return &Runner{
		store:  store,
		client: client,
		logger: logging.NewComponentLogger(logger, "worker"),
	}, nil
}

// Run executes the job with the given id. A non-nil error means the job
// failed (per-file failures or a fatal abort) and the process should exit
// non-zero; observing a cancellation is a clean stop, not an error.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	log := r.logger.With(logging.String("job_id", jobID))

	job, err := r.store.Get(ctx, jobID)
	if err != nil {
		return r.fatal(ctx, log, jobID, fmt.Errorf("load job: %w", err))
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "worker", "load job", "No job with id "+jobID, nil)
	}
	if job.Status == jobs.StatusCanceled {
		log.Info("job canceled before start, nothing to do")
		return nil
	}
	if job.Terminal() {
		return services.Wrap(services.ErrValidation, "worker", "load job",
			fmt.Sprintf("Job already finalized as %s", job.Status), nil)
	}

	if _, err := r.store.MarkRunning(ctx, jobID); err != nil {
		if errors.Is(err, jobs.ErrTerminal) {
			log.Info("job canceled before start, nothing to do")
			return nil
		}
		return r.fatal(ctx, log, jobID, fmt.Errorf("mark running: %w", err))
	}

	payload := job.Payload
	files, err := enumerateImages(payload.InputDir)
	if err != nil {
		return r.fatal(ctx, log, jobID, err)
	}
	total := len(files)
	log.Info("starting upscale run",
		logging.Int("total", total),
		logging.String("input_dir", payload.InputDir),
		logging.String("output_dir", payload.OutputDir),
		logging.Int("scale", payload.Scale),
		logging.String("format", payload.Format),
		logging.Bool("use_ai", payload.UseAI))

	if err := os.MkdirAll(payload.OutputDir, 0o755); err != nil {
		return r.fatal(ctx, log, jobID, fmt.Errorf("create output directory: %w", err))
	}

	progress := jobs.Progress{Total: total}
	var failures []string

	for index, src := range files {
		canceled, err := r.jobCanceled(ctx, jobID)
		if err != nil {
			return r.fatal(ctx, log, jobID, err)
		}
		if canceled {
			log.Info("cancellation observed, stopping",
				logging.Int("ok", progress.OK),
				logging.Int("fail", progress.Fail))
			return nil
		}

		rel, err := filepath.Rel(payload.InputDir, src)
		if err != nil {
			rel = filepath.Base(src)
		}
		fileLog := log.With(logging.String("file", rel), logging.Int("index", index+1))

		if err := r.processFile(ctx, payload, src, rel); err != nil {
			progress.Fail++
			failures = append(failures, fmt.Sprintf("%s: %v", rel, err))
			fileLog.Warn("file failed", logging.Error(err))
		} else {
			progress.OK++
			fileLog.Info("file done")
		}

		if _, err := r.store.SetProgress(ctx, jobID, progress, failures); err != nil {
			if errors.Is(err, jobs.ErrTerminal) {
				log.Info("job finalized externally, stopping")
				return nil
			}
			return r.fatal(ctx, log, jobID, fmt.Errorf("persist progress: %w", err))
		}
	}

	if progress.Fail > 0 {
		message := fmt.Sprintf("%d of %d files failed", progress.Fail, progress.Total)
		if _, err := r.store.MarkFailed(ctx, jobID, message); err != nil && !errors.Is(err, jobs.ErrTerminal) {
			return r.fatal(ctx, log, jobID, fmt.Errorf("finalize job: %w", err))
		}
		log.Warn("run finished with failures",
			logging.Int("ok", progress.OK),
			logging.Int("fail", progress.Fail))
		return services.Wrap(services.ErrExternalTool, "worker", "finish run", message, nil)
	}

	if _, err := r.store.MarkDone(ctx, jobID, progress); err != nil && !errors.Is(err, jobs.ErrTerminal) {
		return r.fatal(ctx, log, jobID, fmt.Errorf("finalize job: %w", err))
	}
	log.Info("run finished", logging.Int("ok", progress.OK), logging.Int("total", progress.Total))
	return nil
}

// processFile upscales one input into its mirrored destination path. The
// tool always emits PNG; Finalize handles the requested delivery format.
func (r *Runner) processFile(ctx context.Context, payload jobs.Payload, src, rel string) error {
	dst := filepath.Join(payload.OutputDir, imaging.WithExt(rel, payload.Format))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "worker", "create output subdirectory", "", err)
	}

	tmpPNG := imaging.WithExt(dst, "png")
	if payload.UseAI {
		if err := r.client.Upscale(ctx, src, tmpPNG, payload.Scale); err != nil {
			return err
		}
	} else {
		if err := imaging.Resample(src, tmpPNG, upscaler.EffectiveScale(payload.Scale)); err != nil {
			return err
		}
	}

	return imaging.Finalize(tmpPNG, dst, payload.Format, payload.Quality)
}

func (r *Runner) jobCanceled(ctx context.Context, jobID string) (bool, error) {
	job, err := r.store.Get(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("re-read job: %w", err)
	}
	if job == nil {
		return false, services.Wrap(services.ErrNotFound, "worker", "re-read job", "Job disappeared mid-run", nil)
	}
	return job.Status == jobs.StatusCanceled, nil
}

// fatal marks the job as errored with the fatal cause before propagating it.
// Best effort: a job that was finalized or removed meanwhile is left alone.
func (r *Runner) fatal(ctx context.Context, log *slog.Logger, jobID string, cause error) error {
	log.Error("fatal worker error", logging.Error(cause))
	if _, err := r.store.MarkFailed(ctx, jobID, cause.Error()); err != nil && !errors.Is(err, jobs.ErrTerminal) {
		log.Warn("failed to record fatal error on job", logging.Error(err))
	}
	return cause
}

// enumerateImages walks the input tree collecting supported image files in
// lexical order; this order defines the progress sequence.
func enumerateImages(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if imaging.IsImage(entry.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "worker", "enumerate input",
			"Input directory could not be read", err)
	}
	return files, nil
}
