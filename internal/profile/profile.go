// Package profile holds the flat runtime configuration populated from CLI
// flags and then the environment, a two-stage override pattern shared with
// the rest of this module's config loading.
package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the process-level configuration: where data lives, how to
// reach storage, and the LLM credentials. The richer per-request tunables
// (caps, weights, presets) live in config.Config, built from this Profile
// at startup.
type Profile struct {
	Mode string // demo | dev | prod
	Data string // data directory; sqlite DSN is derived from this when DSN is unset
	DSN  string // explicit sqlite DSN; overrides Data-derived default
	Addr string
	Port int

	LLMProvider   string
	LLMAPIKey     string
	LLMBaseURL    string
	LLMModel      string
	LLMTimeout    time.Duration
	LLMMaxRetries int

	ConfigPreset string // minimal | balanced | full_featured
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv fills in any field CLI flags left at its zero value.
func (p *Profile) FromEnv() {
	if p.LLMProvider == "" {
		p.LLMProvider = getEnvOrDefault("MEMCHR_LLM_PROVIDER", "mock")
	}
	if p.LLMAPIKey == "" {
		p.LLMAPIKey = getEnvOrDefault("LLM_API_KEY", "")
	}
	if p.LLMBaseURL == "" {
		p.LLMBaseURL = getEnvOrDefault("LLM_BASE_URL", "")
	}
	if p.LLMModel == "" {
		p.LLMModel = getEnvOrDefault("MEMCHR_LLM_MODEL", "")
	}
	if p.LLMTimeout == 0 {
		p.LLMTimeout = time.Duration(getEnvOrDefaultInt("MEMCHR_LLM_TIMEOUT_SECONDS", 20)) * time.Second
	}
	if p.LLMMaxRetries == 0 {
		p.LLMMaxRetries = getEnvOrDefaultInt("MEMCHR_LLM_MAX_RETRIES", 3)
	}
	if p.ConfigPreset == "" {
		p.ConfigPreset = getEnvOrDefault("MEMCHR_CONFIG_PRESET", "balanced")
	}
	if p.Data == "" {
		p.Data = getEnvOrDefault("MEMCHR_DATA", "")
	}
	if p.Addr == "" {
		p.Addr = getEnvOrDefault("MEMCHR_ADDR", "")
	}
	if p.Port == 0 {
		p.Port = getEnvOrDefaultInt("MEMCHR_PORT", 8765)
	}
}

func checkDataDir(dataDir string) (string, error) {
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		if mkErr := os.MkdirAll(dataDir, 0o770); mkErr != nil {
			return "", errors.Wrapf(mkErr, "unable to create data folder %s", dataDir)
		}
	} else if err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate resolves the data directory, derives the sqlite DSN if one
// wasn't set explicitly, and defaults Mode/Addr.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Data == "" {
		p.Data = "./data"
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to resolve data directory", "data", p.Data, "error", err.Error())
		return err
	}
	p.Data = dataDir

	if p.DSN == "" {
		dbFile := fmt.Sprintf("memchr_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Addr == "" {
		p.Addr = "0.0.0.0"
	}
	switch p.ConfigPreset {
	case "minimal", "balanced", "full_featured":
	default:
		p.ConfigPreset = "balanced"
	}
	return nil
}
