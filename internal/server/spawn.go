package server

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"burnish/internal/config"
)

// Spawner launches the detached worker process for a freshly created job.
type Spawner interface {
	Spawn(jobID string) error
}

// processSpawner re-executes the current binary as `worker --job <id>` in its
// own session so the job survives the API process. Worker output lands in a
// per-job log file; the child is released immediately, never waited on.
type processSpawner struct {
	cfg        *config.Config
	configPath string
}

// NewProcessSpawner builds the default detached-process spawner. The CLI
// submit path shares it with the API server.
func NewProcessSpawner(cfg *config.Config, configPath string) Spawner {
	return &processSpawner{cfg: cfg, configPath: configPath}
}

func (p *processSpawner) Spawn(jobID string) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	args := []string{"worker", "--job", jobID}
	if p.configPath != "" {
		args = append(args, "--config", p.configPath)
	}

	logFile, err := os.OpenFile(p.cfg.WorkerLogPath(jobID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open worker log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(executable, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	return cmd.Process.Release()
}
