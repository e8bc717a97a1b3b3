package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := DefaultConfig()
	def.Normalize()
	if cfg.Detection.Sensitivity != def.Detection.Sensitivity {
		t.Errorf("sensitivity = %d, want default %d", cfg.Detection.Sensitivity, def.Detection.Sensitivity)
	}
	if cfg.Output.Directory != "recordings" {
		t.Errorf("output directory = %q", cfg.Output.Directory)
	}
}

func TestLoadOverlaysOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.json")
	partial := `{"detection": {"sensitivity": 5, "linger_seconds": 15}}`
	if err := os.WriteFile(path, []byte(partial), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Detection.Sensitivity != 5 {
		t.Errorf("sensitivity = %d, want 5", cfg.Detection.Sensitivity)
	}
	if cfg.Detection.LingerSeconds != 15 {
		t.Errorf("linger = %d, want 15", cfg.Detection.LingerSeconds)
	}
	// Absent keys keep their defaults.
	if cfg.Capture.FPS != 10 {
		t.Errorf("fps = %d, want default 10", cfg.Capture.FPS)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.json")

	cfg := DefaultConfig()
	cfg.Detection.Sensitivity = 3
	cfg.Capture.Resolution = "1080p"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Detection.Sensitivity != 3 {
		t.Errorf("sensitivity = %d, want 3", loaded.Detection.Sensitivity)
	}
	if loaded.Capture.Resolution != "1080p" {
		t.Errorf("resolution = %q, want 1080p", loaded.Capture.Resolution)
	}
}

func TestNormalizeClamps(t *testing.T) {
	tests := []struct {
		name  string
		tweak func(*Config)
		check func(*testing.T, *Config)
	}{
		{
			"sensitivity above range",
			func(c *Config) { c.Detection.Sensitivity = 99 },
			func(t *testing.T, c *Config) {
				if c.Detection.Sensitivity != 25 {
					t.Errorf("sensitivity = %d, want 25", c.Detection.Sensitivity)
				}
			},
		},
		{
			"linger below range",
			func(c *Config) { c.Detection.LingerSeconds = 1 },
			func(t *testing.T, c *Config) {
				if c.Detection.LingerSeconds != 5 {
					t.Errorf("linger = %d, want 5", c.Detection.LingerSeconds)
				}
			},
		},
		{
			"unknown mode falls back",
			func(c *Config) { c.Detection.Mode = "psychic" },
			func(t *testing.T, c *Config) {
				if c.Detection.Mode != "fast_difference" {
					t.Errorf("mode = %q, want fast_difference", c.Detection.Mode)
				}
			},
		},
		{
			"unknown resolution falls back",
			func(c *Config) { c.Capture.Resolution = "8k" },
			func(t *testing.T, c *Config) {
				if c.Capture.Resolution != "480p" {
					t.Errorf("resolution = %q, want 480p", c.Capture.Resolution)
				}
			},
		},
		{
			"unknown audio backend falls back",
			func(c *Config) { c.Audio.Backend = "oss" },
			func(t *testing.T, c *Config) {
				if c.Audio.Backend != "portaudio" {
					t.Errorf("backend = %q, want portaudio", c.Audio.Backend)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.tweak(cfg)
			cfg.Normalize()
			tt.check(t, cfg)
		})
	}
}

func TestValidateEnabledIntegrations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.Catalog.Enabled = true // no DSN
	cfg.Archive.Enabled = true // no endpoint/bucket/keys
	cfg.Notify.Enabled = true  // no oauth client
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"catalog.dsn", "archive.endpoint", "notify.gmail.client_id"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestStoreUpdateRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.json")
	cfg := DefaultConfig()
	cfg.Normalize()
	store := NewStore(path, cfg)

	_, err := store.Update(func(c *Config) {
		c.Catalog.Enabled = true
		c.Catalog.DSN = ""
	})
	if err == nil {
		t.Fatal("expected update to be rejected")
	}
	if store.Get().Catalog.Enabled {
		t.Error("rejected update leaked into the store")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("rejected update was persisted")
	}
}

func TestStoreUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.json")
	cfg := DefaultConfig()
	cfg.Normalize()
	store := NewStore(path, cfg)

	updated, err := store.Update(func(c *Config) {
		c.Detection.Sensitivity = 9
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Detection.Sensitivity != 9 {
		t.Errorf("returned sensitivity = %d, want 9", updated.Detection.Sensitivity)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after update: %v", err)
	}
	if reloaded.Detection.Sensitivity != 9 {
		t.Errorf("persisted sensitivity = %d, want 9", reloaded.Detection.Sensitivity)
	}
}
