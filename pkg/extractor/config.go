package extractor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/dateprobe/internal/browser"
	"github.com/PentesterFlow/dateprobe/internal/replay"
	"github.com/PentesterFlow/dateprobe/internal/vision"
)

// Config holds the full extractor configuration.
type Config struct {
	Browser browser.Config      `json:"browser" yaml:"browser"`
	Replay  replay.ClientConfig `json:"replay" yaml:"replay"`
	Vision  vision.ClientConfig `json:"vision" yaml:"vision"`

	// VerifyTopN bounds how many candidates each layer replays.
	VerifyTopN int `json:"verify_top_n" yaml:"verify_top_n"`
	// DOMTimeout bounds each page interaction step.
	DOMTimeout time.Duration `json:"dom_timeout" yaml:"dom_timeout"`
	// VerifyTimeout bounds each HTTP verification.
	VerifyTimeout time.Duration `json:"verify_timeout" yaml:"verify_timeout"`
	// VisionTimeout bounds the vision analysis call.
	VisionTimeout time.Duration `json:"vision_timeout" yaml:"vision_timeout"`

	// HintCachePath enables the cross-session hint cache when set.
	HintCachePath string `json:"hint_cache_path" yaml:"hint_cache_path"`
	// HintTTL bounds hint staleness; zero means no expiry.
	HintTTL time.Duration `json:"hint_ttl" yaml:"hint_ttl"`

	LogLevel string `json:"log_level" yaml:"log_level"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Browser:       browser.DefaultConfig(),
		Replay:        replay.DefaultClientConfig(),
		Vision:        vision.DefaultClientConfig(),
		VerifyTopN:    3,
		DOMTimeout:    8 * time.Second,
		VerifyTimeout: 20 * time.Second,
		VisionTimeout: 60 * time.Second,
		HintTTL:       7 * 24 * time.Hour,
		LogLevel:      "info",
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.VerifyTopN <= 0 {
		return fmt.Errorf("verify_top_n must be positive")
	}
	if c.DOMTimeout <= 0 || c.VerifyTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}
