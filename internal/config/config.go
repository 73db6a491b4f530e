// Package config holds the runtime settings of the airharp server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by Load.
const (
	EnvAddr       = "AIRHARP_ADDR"
	EnvSampleRate = "AIRHARP_SAMPLE_RATE"
	EnvBufferMs   = "AIRHARP_BUFFER_MS"
	EnvStrings    = "AIRHARP_STRINGS"
	EnvPresetDir  = "AIRHARP_PRESET_DIR"
	EnvOrigins    = "AIRHARP_ORIGINS"
	EnvDebug      = "AIRHARP_DEBUG"
)

// Config is the server configuration.
type Config struct {
	Addr       string
	SampleRate int
	Buffer     time.Duration
	Strings    int
	PresetDir  string
	Origins    []string
	Debug      bool
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:       "127.0.0.1:8787",
		SampleRate: 48000,
		Buffer:     20 * time.Millisecond,
		Strings:    12,
		Origins:    []string{"*"},
	}
}

// Load overlays the environment on the defaults. Unparsable or out of range
// values are ignored.
func Load() Config {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with a custom lookup.
func LoadFrom(getenv func(string) string) Config {
	cfg := Default()

	if v := getenv(EnvAddr); v != "" {
		cfg.Addr = v
	}
	if v := getenv(EnvSampleRate); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SampleRate = n
		}
	}
	if v := getenv(EnvBufferMs); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Buffer = time.Duration(n) * time.Millisecond
		}
	}
	if v := getenv(EnvStrings); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Strings = n
		}
	}
	if v := getenv(EnvPresetDir); v != "" {
		cfg.PresetDir = v
	}
	if v := getenv(EnvOrigins); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.Origins = origins
		}
	}
	if v := getenv(EnvDebug); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	return cfg
}

// Validate checks values that flags may have overridden.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("sample rate must be in [8000,192000]")
	}
	if c.Buffer <= 0 {
		return fmt.Errorf("buffer must be > 0")
	}
	if c.Strings < 1 {
		return fmt.Errorf("strings must be >= 1")
	}
	return nil
}
