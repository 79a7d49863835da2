package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var validLogFormats = map[string]struct{}{
	"console": {},
	"json":    {},
}

var validLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

var validFormats = map[string]struct{}{
	"webp": {},
	"jpg":  {},
	"png":  {},
}

var validScales = map[int]struct{}{
	2: {},
	3: {},
	4: {},
}

// Validate checks configuration invariants after normalization.
func (c *Config) Validate() error {
	var problems []string

	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		problems = append(problems, fmt.Sprintf("paths.api_bind: %q is not a host:port address", c.Paths.APIBind))
	}
	if _, ok := validLogFormats[c.Logging.Format]; !ok {
		problems = append(problems, fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format))
	}
	if _, ok := validLogLevels[c.Logging.Level]; !ok {
		problems = append(problems, fmt.Sprintf("logging.level: unsupported value %q", c.Logging.Level))
	}
	if _, ok := validFormats[c.Upscaler.DefaultFormat]; !ok {
		problems = append(problems, fmt.Sprintf("upscaler.default_format: unsupported value %q", c.Upscaler.DefaultFormat))
	}
	if _, ok := validScales[c.Upscaler.DefaultScale]; !ok {
		problems = append(problems, fmt.Sprintf("upscaler.default_scale: %d is not one of 2, 3, 4", c.Upscaler.DefaultScale))
	}
	if c.Upscaler.DefaultQuality < 1 || c.Upscaler.DefaultQuality > 100 {
		problems = append(problems, fmt.Sprintf("upscaler.default_quality: %d is outside 1..100", c.Upscaler.DefaultQuality))
	}
	if c.Jobs.DefaultLimit > c.Jobs.MaxLimit {
		problems = append(problems, fmt.Sprintf("jobs.default_limit: %d exceeds jobs.max_limit %d", c.Jobs.DefaultLimit, c.Jobs.MaxLimit))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}
