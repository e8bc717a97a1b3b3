// Package config holds the daemon configuration: JSON-persisted, normalized
// with documented fallbacks, validated before use.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mikeyg42/sentinel/internal/capture"
	"github.com/mikeyg42/sentinel/internal/detect"
)

// Config is the full daemon configuration tree.
type Config struct {
	Service   ServiceConfig   `json:"service"`
	Capture   CaptureConfig   `json:"capture"`
	Audio     AudioConfig     `json:"audio"`
	Detection DetectionConfig `json:"detection"`
	Output    OutputConfig    `json:"output"`
	Catalog   CatalogConfig   `json:"catalog"`
	Archive   ArchiveConfig   `json:"archive"`
	Notify    NotifyConfig    `json:"notify"`
	API       APIConfig       `json:"api"`
}

// ServiceConfig covers process-level settings.
type ServiceConfig struct {
	Name      string `json:"name"`
	LogLevel  string `json:"log_level"`  // debug, info, warn, error
	LogFormat string `json:"log_format"` // console or json
}

// CaptureConfig selects and shapes the video device.
type CaptureConfig struct {
	CameraIndex int    `json:"camera_index"`
	Resolution  string `json:"resolution"` // 480p, 720p, 1080p
	FPS         int    `json:"fps"`
	// PreRollFrames is how many idle frames are retained and written at the
	// start of a new recording. Zero disables pre-roll.
	PreRollFrames int `json:"pre_roll_frames"`
	// ProbeLimit bounds the camera index probe at startup.
	ProbeLimit int `json:"probe_limit"`
}

// AudioConfig selects and shapes the audio input device.
type AudioConfig struct {
	// Backend is "portaudio", "malgo", or "none".
	Backend string `json:"backend"`
	// DeviceIndex selects the input device; -1 means the system default.
	DeviceIndex int `json:"device_index"`
	SampleRate  int `json:"sample_rate"`
	// ChunkMillis is the duration of one PCM chunk.
	ChunkMillis int `json:"chunk_millis"`
}

// DetectionConfig carries the detector and controller tunables.
type DetectionConfig struct {
	Sensitivity    int    `json:"sensitivity"` // 1..25, higher triggers more
	Mode           string `json:"mode"`        // fast_difference or background_model
	VoiceEnabled   bool   `json:"voice_enabled"`
	VoiceThreshold int    `json:"voice_threshold"`
	LingerSeconds  int    `json:"linger_seconds"` // 5..30
	TickMillis     int    `json:"tick_millis"`
	// VoiceCheckMillis throttles how often the voice detector runs.
	VoiceCheckMillis int  `json:"voice_check_millis"`
	MonitorOnStart   bool `json:"monitor_on_start"`
}

// OutputConfig shapes the artifacts written per event.
type OutputConfig struct {
	Directory   string `json:"directory"`
	VideoPrefix string `json:"video_prefix"`
	AudioPrefix string `json:"audio_prefix"`
	// WriterFPS is the frame rate stamped into video containers. It is
	// independent of capture.fps; files captured at a lower rate play back
	// faster than real time.
	WriterFPS int `json:"writer_fps"`
	// MinFreeBytes refuses new recordings when the output volume has less
	// free space than this. Zero disables the check.
	MinFreeBytes uint64 `json:"min_free_bytes"`
	// MaxListed caps the recordings listing.
	MaxListed int `json:"max_listed"`
}

// CatalogConfig enables the Postgres event catalog.
type CatalogConfig struct {
	Enabled      bool   `json:"enabled"`
	DSN          string `json:"dsn"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// ArchiveConfig enables object-storage upload of finalized artifacts.
type ArchiveConfig struct {
	Enabled   bool   `json:"enabled"`
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	UseSSL    bool   `json:"use_ssl"`
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
}

// NotifyConfig enables email alerts on session start.
type NotifyConfig struct {
	Enabled         bool        `json:"enabled"`
	CooldownSeconds int         `json:"cooldown_seconds"`
	Gmail           GmailConfig `json:"gmail"`
}

// GmailConfig carries the OAuth client and addressing for Gmail alerts.
type GmailConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenFile    string `json:"token_file"`
	// TokenKey is the hex-encoded AES-256 key sealing the token file.
	// Generated and printed on first run when empty.
	TokenKey string   `json:"token_key"`
	From     string   `json:"from"`
	To       []string `json:"to"`
}

// APIConfig shapes the HTTP control surface.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// DefaultConfig returns the configuration used when no file exists yet.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "sentinel",
			LogLevel:  "info",
			LogFormat: "console",
		},
		Capture: CaptureConfig{
			CameraIndex:   0,
			Resolution:    string(capture.Res480p),
			FPS:           10,
			PreRollFrames: 0,
			ProbeLimit:    5,
		},
		Audio: AudioConfig{
			Backend:     "portaudio",
			DeviceIndex: -1,
			SampleRate:  16000,
			ChunkMillis: 64,
		},
		Detection: DetectionConfig{
			Sensitivity:      20,
			Mode:             detect.ModeFastDifference.String(),
			VoiceEnabled:     true,
			VoiceThreshold:   detect.DefaultVoiceThreshold,
			LingerSeconds:    10,
			TickMillis:       100,
			VoiceCheckMillis: 300,
			MonitorOnStart:   true,
		},
		Output: OutputConfig{
			Directory:    "recordings",
			VideoPrefix:  "motion",
			AudioPrefix:  "audio",
			WriterFPS:    20,
			MinFreeBytes: 1 << 30, // 1 GB
			MaxListed:    20,
		},
		Catalog: CatalogConfig{
			Enabled:      false,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			UseSSL:  true,
			Prefix:  "sentinel",
		},
		Notify: NotifyConfig{
			Enabled:         false,
			CooldownSeconds: 300,
			Gmail: GmailConfig{
				TokenFile: "gmail_token.enc",
			},
		},
		API: APIConfig{
			Enabled: true,
			Addr:    ":8080",
		},
	}
}

// Load reads the configuration file at path. A missing file yields the
// defaults; a present file is overlaid on the defaults so absent keys keep
// their default values. The result is normalized and validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.Normalize()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON. The write goes to a
// temporary file first and is renamed into place.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Normalize clamps out-of-range values and replaces unknown enum values with
// their documented defaults. It never fails.
func (c *Config) Normalize() {
	if c.Service.Name == "" {
		c.Service.Name = "sentinel"
	}
	switch c.Service.LogFormat {
	case "console", "json":
	default:
		c.Service.LogFormat = "console"
	}

	c.Capture.Resolution = string(capture.ParseResolution(c.Capture.Resolution))
	c.Capture.FPS = clampInt(c.Capture.FPS, 1, 60, 10)
	c.Capture.PreRollFrames = clampInt(c.Capture.PreRollFrames, 0, 100, 0)
	c.Capture.ProbeLimit = clampInt(c.Capture.ProbeLimit, 1, 16, 5)
	if c.Capture.CameraIndex < 0 {
		c.Capture.CameraIndex = 0
	}

	switch c.Audio.Backend {
	case "portaudio", "malgo", "none":
	default:
		c.Audio.Backend = "portaudio"
	}
	if c.Audio.DeviceIndex < -1 {
		c.Audio.DeviceIndex = -1
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 16000
	}
	c.Audio.ChunkMillis = clampInt(c.Audio.ChunkMillis, 10, 500, 64)

	c.Detection.Sensitivity = clampInt(c.Detection.Sensitivity, 1, 25, 20)
	c.Detection.Mode = detect.ParseMode(c.Detection.Mode).String()
	if c.Detection.VoiceThreshold <= 0 {
		c.Detection.VoiceThreshold = detect.DefaultVoiceThreshold
	}
	c.Detection.LingerSeconds = clampInt(c.Detection.LingerSeconds, 5, 30, 10)
	c.Detection.TickMillis = clampInt(c.Detection.TickMillis, 20, 1000, 100)
	c.Detection.VoiceCheckMillis = clampInt(c.Detection.VoiceCheckMillis, c.Detection.TickMillis, 5000, 300)

	if c.Output.Directory == "" {
		c.Output.Directory = "recordings"
	}
	if c.Output.VideoPrefix == "" {
		c.Output.VideoPrefix = "motion"
	}
	if c.Output.AudioPrefix == "" {
		c.Output.AudioPrefix = "audio"
	}
	c.Output.WriterFPS = clampInt(c.Output.WriterFPS, 1, 120, 20)
	c.Output.MaxListed = clampInt(c.Output.MaxListed, 1, 500, 20)

	c.Catalog.MaxOpenConns = clampInt(c.Catalog.MaxOpenConns, 1, 100, 10)
	c.Catalog.MaxIdleConns = clampInt(c.Catalog.MaxIdleConns, 1, c.Catalog.MaxOpenConns, 5)

	if c.Notify.CooldownSeconds < 0 {
		c.Notify.CooldownSeconds = 300
	}
	if c.Notify.Gmail.TokenFile == "" {
		c.Notify.Gmail.TokenFile = "gmail_token.enc"
	}

	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
}

func clampInt(v, min, max, def int) int {
	if v == 0 {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Store wraps a Config behind a single-writer lock and persists accepted
// updates. Readers receive copies; the per-tick settings snapshot is built
// from Get.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  Config
}

// NewStore creates a store around an already loaded configuration.
func NewStore(path string, cfg *Config) *Store {
	return &Store{path: path, cfg: *cfg}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Get returns a copy of the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update applies mutate to a copy of the configuration, normalizes and
// validates it, then commits and persists it. On any failure the previous
// configuration stays in effect.
func (s *Store) Update(mutate func(*Config)) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	mutate(&next)
	next.Normalize()
	if err := next.Validate(); err != nil {
		return s.cfg, err
	}

	s.cfg = next
	if s.path != "" {
		if err := next.Save(s.path); err != nil {
			return s.cfg, fmt.Errorf("persist config: %w", err)
		}
	}
	return s.cfg, nil
}
