package upscaler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"burnish/internal/config"
	"burnish/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStderr func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client drives realesrgan-ncnn-vulkan invocations.
type Client struct {
	binary      string
	modelsDir   string
	model       string
	fileTimeout time.Duration
	exec        Executor
}

// New constructs an upscaler client from configuration.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	binary := strings.TrimSpace(cfg.Upscaler.Binary)
	if binary == "" {
		return nil, errors.New("upscaler binary required")
	}
	client := &Client{
		binary:      binary,
		modelsDir:   strings.TrimSpace(cfg.Upscaler.ModelsDir),
		model:       strings.TrimSpace(cfg.Upscaler.Model),
		fileTimeout: time.Duration(cfg.Upscaler.FileTimeoutSeconds) * time.Second,
		exec:        commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// EffectiveScale collapses a requested scale to a tier the model supports:
// anything at 4 or above runs the x4 pass, everything else runs x2.
func EffectiveScale(scale int) int {
	if scale >= 4 {
		return 4
	}
	return 2
}

// Upscale runs the tool for one input file, writing a PNG at outputPath. The
// per-file timeout is enforced here; a timed-out or failed run is reported as
// an error for this file only, with the tool's stderr tail included.
func (c *Client) Upscale(ctx context.Context, inputPath, outputPath string, scale int) error {
	runCtx := ctx
	if c.fileTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.fileTimeout)
		defer cancel()
	}

	args := []string{
		"-i", inputPath,
		"-o", outputPath,
		"-n", c.model,
		"-s", strconv.Itoa(EffectiveScale(scale)),
		"-m", c.modelsDir,
		"-f", "png",
	}

	var stderrTail []string
	err := c.exec.Run(runCtx, c.binary, args, func(line string) {
		stderrTail = append(stderrTail, line)
		if len(stderrTail) > 5 {
			stderrTail = stderrTail[1:]
		}
	})
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "upscale", "run tool",
				fmt.Sprintf("Tool exceeded the per-file timeout of %s", c.fileTimeout), err)
		}
		detail := strings.Join(stderrTail, "; ")
		if detail == "" {
			detail = "Tool exited abnormally"
		}
		return services.Wrap(services.ErrExternalTool, "upscale", "run tool", detail, err)
	}

	if _, statErr := os.Stat(outputPath); statErr != nil {
		return services.Wrap(services.ErrExternalTool, "upscale", "verify output",
			"Tool reported success but produced no output", statErr)
	}
	return nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStderr func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = io.Discard

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", binary, err)
	}

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if onStderr != nil {
			onStderr(line)
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("run %s: %w", binary, err)
	}
	return nil
}
