// Package config loads gateway configuration. Defaults are overlaid by an
// optional YAML file and finally by the process environment, so deployments
// can ship a file while operators override single values per host.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilnrun/kiln/pkg/types"
)

// Config holds every tunable of the gateway process.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	APIKeys     string `yaml:"api_keys"`
	WorkRoot    string `yaml:"work_root"`
	StorageRoot string `yaml:"storage_root"`
	BaseURL     string `yaml:"base_url"`
	SigningKey  string `yaml:"signing_key"`

	ContainerdSocket string `yaml:"containerd_socket"`
	SeccompProfile   string `yaml:"seccomp_profile"`
	ApparmorProfile  string `yaml:"apparmor_profile"`
	// DisableSandboxSecurity turns off seccomp and AppArmor enforcement for
	// development hosts without the profiles installed. Never set this in
	// production.
	DisableSandboxSecurity bool `yaml:"disable_sandbox_security"`

	// Images maps each language tag to its sandbox image reference.
	Images map[string]string `yaml:"images"`

	URLTTL time.Duration `yaml:"url_ttl"`

	DefaultRPS   float64 `yaml:"default_rps"`
	DefaultBurst float64 `yaml:"default_burst"`

	LimitDefaults types.Limits `yaml:"limit_defaults"`
	LimitMaximums types.Limits `yaml:"limit_maximums"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:       ":8080",
		WorkRoot:         "/var/lib/kiln/work",
		StorageRoot:      "/var/lib/kiln/storage",
		BaseURL:          "http://localhost:8080",
		ContainerdSocket: "/run/containerd/containerd.sock",
		Images: map[string]string{
			"python": "kilnrun/runner-python:latest",
			"node":   "kilnrun/runner-node:latest",
			"ruby":   "kilnrun/runner-ruby:latest",
			"php":    "kilnrun/runner-php:latest",
			"go":     "kilnrun/runner-go:latest",
		},
		URLTTL:       10 * time.Minute,
		DefaultRPS:   5,
		DefaultBurst: 10,
		LimitDefaults: types.Limits{
			TimeoutMS:        5000,
			MemoryMB:         256,
			CPUMs:            5000,
			MaxOutputBytes:   1 << 20,
			MaxArtifactBytes: 10 << 20,
			MaxArtifactFiles: 10,
		},
		LimitMaximums: types.Limits{
			TimeoutMS:        60000,
			MemoryMB:         1024,
			CPUMs:            60000,
			MaxOutputBytes:   5 << 20,
			MaxArtifactBytes: 50 << 20,
			MaxArtifactFiles: 50,
		},
		LogLevel: "info",
		LogJSON:  true,
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (if non-empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString(&c.ListenAddr, "KILN_LISTEN_ADDR")
	setString(&c.APIKeys, "KILN_API_KEYS")
	setString(&c.WorkRoot, "KILN_WORK_ROOT")
	setString(&c.StorageRoot, "KILN_STORAGE_ROOT")
	setString(&c.BaseURL, "KILN_BASE_URL")
	setString(&c.SigningKey, "KILN_SIGNING_KEY")
	setString(&c.ContainerdSocket, "KILN_CONTAINERD_SOCKET")
	setString(&c.SeccompProfile, "KILN_SECCOMP_PROFILE")
	setString(&c.ApparmorProfile, "KILN_APPARMOR_PROFILE")
	setString(&c.LogLevel, "KILN_LOG_LEVEL")

	if v, ok := os.LookupEnv("DISABLE_SANDBOX_SECURITY"); ok {
		c.DisableSandboxSecurity = v == "1" || strings.EqualFold(v, "true")
	}
	if v, ok := os.LookupEnv("KILN_URL_TTL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.URLTTL = d
		}
	}
	if v, ok := os.LookupEnv("KILN_DEFAULT_RPS"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.DefaultRPS = f
		}
	}
	if v, ok := os.LookupEnv("KILN_DEFAULT_BURST"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.DefaultBurst = f
		}
	}

	// KILN_IMAGES=python=img1,node=img2 overrides individual entries.
	if v, ok := os.LookupEnv("KILN_IMAGES"); ok {
		for _, pair := range strings.Split(v, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			if lang, image, found := strings.Cut(pair, "="); found && image != "" {
				c.Images[strings.TrimSpace(lang)] = strings.TrimSpace(image)
			}
		}
	}
}

func (c *Config) validate() error {
	if c.SigningKey == "" {
		return fmt.Errorf("signing key is required (KILN_SIGNING_KEY)")
	}
	if c.WorkRoot == "" || c.StorageRoot == "" {
		return fmt.Errorf("work root and storage root are required")
	}
	for _, lang := range types.Languages {
		if c.Images[string(lang)] == "" {
			return fmt.Errorf("no sandbox image configured for language %q", lang)
		}
	}
	return nil
}
