// Package config loads, normalizes, and validates burnish configuration.
//
// Configuration lives in a TOML file (default ~/.config/burnish/config.toml)
// and is split into sections: [paths] for directories and the API bind
// address, [upscaler] for the external tool and submission defaults, [jobs]
// for listing limits, and [logging] for output format and level. Load always
// starts from Default() so a missing file yields a fully usable config.
package config
