package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := LoadFrom(func(string) string { return "" })
	def := Default()
	if cfg.Addr != def.Addr || cfg.SampleRate != def.SampleRate || cfg.Buffer != def.Buffer || cfg.Strings != 12 {
		t.Fatalf("cfg = %+v, want defaults %+v", cfg, def)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv(EnvAddr, ":9000")
	t.Setenv(EnvSampleRate, "44100")
	t.Setenv(EnvBufferMs, "35")
	t.Setenv(EnvStrings, "8")
	t.Setenv(EnvPresetDir, "/tmp/presets")
	t.Setenv(EnvOrigins, "http://a.test, http://b.test,")
	t.Setenv(EnvDebug, "1")

	cfg := Load()
	if cfg.Addr != ":9000" || cfg.SampleRate != 44100 || cfg.Strings != 8 || cfg.PresetDir != "/tmp/presets" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Buffer != 35*time.Millisecond {
		t.Fatalf("buffer = %v", cfg.Buffer)
	}
	if len(cfg.Origins) != 2 || cfg.Origins[1] != "http://b.test" {
		t.Fatalf("origins = %v", cfg.Origins)
	}
	if !cfg.Debug {
		t.Fatalf("debug not set")
	}
}

func TestLoadIgnoresBadValues(t *testing.T) {
	env := map[string]string{
		EnvSampleRate: "fast",
		EnvBufferMs:   "-5",
		EnvStrings:    "0",
		EnvDebug:      "maybe",
		EnvOrigins:    " , ",
	}
	cfg := LoadFrom(func(k string) string { return env[k] })
	def := Default()
	if cfg.SampleRate != def.SampleRate || cfg.Buffer != def.Buffer || cfg.Strings != def.Strings || cfg.Debug {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.Origins) != 1 || cfg.Origins[0] != "*" {
		t.Fatalf("origins = %v", cfg.Origins)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }},
		{"low rate", func(c *Config) { c.SampleRate = 4000 }},
		{"zero buffer", func(c *Config) { c.Buffer = 0 }},
		{"no strings", func(c *Config) { c.Strings = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mod(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
