package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Upscaler contains configuration for the external upscaling tool and the
// submission defaults surfaced by the defaults endpoint.
type Upscaler struct {
	Binary             string `toml:"binary"`
	ModelsDir          string `toml:"models_dir"`
	Model              string `toml:"model"`
	FileTimeoutSeconds int    `toml:"file_timeout"`
	DefaultInputDir    string `toml:"default_input_dir"`
	DefaultOutputDir   string `toml:"default_output_dir"`
	DefaultScale       int    `toml:"default_scale"`
	DefaultFormat      string `toml:"default_format"`
	DefaultQuality     int    `toml:"default_quality"`
}

// Jobs contains listing limits for the control surface.
type Jobs struct {
	DefaultLimit int `toml:"default_limit"`
	MaxLimit     int `toml:"max_limit"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for burnish.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Upscaler Upscaler `toml:"upscaler"`
	Jobs     Jobs     `toml:"jobs"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/burnish/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file was actually found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("burnish.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(valueOr(c.Paths.DataDir, defaultDataDir)); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(valueOr(c.Paths.LogDir, defaultLogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}

	if c.Upscaler.Binary, err = expandPath(valueOr(c.Upscaler.Binary, defaultUpscalerBinary)); err != nil {
		return fmt.Errorf("upscaler.binary: %w", err)
	}
	if c.Upscaler.ModelsDir, err = expandPath(valueOr(c.Upscaler.ModelsDir, defaultModelsDir)); err != nil {
		return fmt.Errorf("upscaler.models_dir: %w", err)
	}
	c.Upscaler.Model = strings.TrimSpace(c.Upscaler.Model)
	if c.Upscaler.Model == "" {
		c.Upscaler.Model = defaultModel
	}
	if c.Upscaler.FileTimeoutSeconds <= 0 {
		c.Upscaler.FileTimeoutSeconds = defaultFileTimeoutSeconds
	}
	if strings.TrimSpace(c.Upscaler.DefaultInputDir) != "" {
		if c.Upscaler.DefaultInputDir, err = expandPath(c.Upscaler.DefaultInputDir); err != nil {
			return fmt.Errorf("upscaler.default_input_dir: %w", err)
		}
	}
	if strings.TrimSpace(c.Upscaler.DefaultOutputDir) != "" {
		if c.Upscaler.DefaultOutputDir, err = expandPath(c.Upscaler.DefaultOutputDir); err != nil {
			return fmt.Errorf("upscaler.default_output_dir: %w", err)
		}
	}
	if c.Upscaler.DefaultScale == 0 {
		c.Upscaler.DefaultScale = defaultScale
	}
	c.Upscaler.DefaultFormat = strings.ToLower(strings.TrimSpace(c.Upscaler.DefaultFormat))
	if c.Upscaler.DefaultFormat == "" {
		c.Upscaler.DefaultFormat = defaultFormat
	}
	if c.Upscaler.DefaultQuality == 0 {
		c.Upscaler.DefaultQuality = defaultQuality
	}

	if c.Jobs.DefaultLimit <= 0 {
		c.Jobs.DefaultLimit = defaultJobListLimit
	}
	if c.Jobs.MaxLimit <= 0 {
		c.Jobs.MaxLimit = defaultJobListMaxLimit
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}

// EnsureDirectories creates the directories burnish needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StorePath returns the path of the persisted job document.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.DataDir, "jobs.json")
}

// WorkerLogPath returns the log file path for a spawned worker process.
func (c *Config) WorkerLogPath(jobID string) string {
	return filepath.Join(c.Paths.LogDir, "worker-"+jobID+".log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
