// Package testsupport provides shared helpers for package tests: temp-dir
// configs, store openers, stub upscaler binaries, and sample images.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"burnish/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Upscaler.ModelsDir = filepath.Join(base, "models")
	cfgVal.Upscaler.Binary = filepath.Join(base, "bin", "realesrgan-ncnn-vulkan")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithFileTimeout overrides the per-file subprocess timeout in seconds.
func WithFileTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upscaler.FileTimeoutSeconds = seconds
	}
}

// WithStubUpscaler writes a fake upscaler executable whose behavior is the
// provided shell script body, points the config at it, and creates the models
// directory. The script receives the real tool's flag contract
// (-i input -o output -n model -s scale -m models -f png).
func WithStubUpscaler(script string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		if err := os.MkdirAll(b.cfg.Upscaler.ModelsDir, 0o755); err != nil {
			b.t.Fatalf("mkdir models dir: %v", err)
		}
		target := filepath.Join(binDir, "realesrgan-ncnn-vulkan")
		if err := os.WriteFile(target, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
			b.t.Fatalf("write stub upscaler: %v", err)
		}
		b.cfg.Upscaler.Binary = target
	}
}

// CopyStubScript is a stub upscaler body that copies the input file to the
// declared output path, mimicking a successful tool run.
const CopyStubScript = `in=""
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -i) in="$2"; shift 2 ;;
    -o) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
cp "$in" "$out"`

// FailStubScript is a stub upscaler body that exits non-zero without
// producing output.
const FailStubScript = `exit 1`
