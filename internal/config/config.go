// Package config reads service settings from the environment. A .env file
// in the working directory, when present, is loaded first; variables that
// are already set win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted in LEDGER_BACKEND.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
)

// Config holds every setting shared by the binaries under cmd/.
type Config struct {
	Port     string
	LogLevel string
	LogJSON  bool

	Backend     string
	ProjectID   string
	FirestoreDB string

	BQDataset string
	GCSBucket string

	GeminiModel string

	MaxAttempts  int
	RetryBackoff time.Duration

	ReconcileInterval time.Duration
	ReconcileOwners   []string
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:              "8080",
		LogLevel:          "info",
		Backend:           BackendMemory,
		FirestoreDB:       "(default)",
		BQDataset:         "ledger",
		GeminiModel:       "gemini-2.5-flash",
		MaxAttempts:       5,
		RetryBackoff:      20 * time.Millisecond,
		ReconcileInterval: time.Hour,
	}
}

// Load reads .env (if any) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("Load: reading .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, starting from Defaults.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Defaults()
	var errs []error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%s: want a positive integer, got %q", key, v))
			return
		}
		*dst = n
	}
	duration := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		dur, err := time.ParseDuration(v)
		if err != nil || dur < 0 {
			errs = append(errs, fmt.Errorf("%s: want a duration such as 30s, got %q", key, v))
			return
		}
		*dst = dur
	}

	str("PORT", &cfg.Port)
	str("LOG_LEVEL", &cfg.LogLevel)
	cfg.LogJSON = strings.EqualFold(getenv("LOG_FORMAT"), "json")

	str("LEDGER_BACKEND", &cfg.Backend)
	str("GCP_PROJECT", &cfg.ProjectID)
	str("FIRESTORE_DATABASE", &cfg.FirestoreDB)
	str("BQ_DATASET", &cfg.BQDataset)
	str("GCS_BUCKET", &cfg.GCSBucket)
	str("GEMINI_MODEL", &cfg.GeminiModel)

	integer("LEDGER_MAX_ATTEMPTS", &cfg.MaxAttempts)
	duration("LEDGER_RETRY_BACKOFF", &cfg.RetryBackoff)
	duration("RECONCILE_INTERVAL", &cfg.ReconcileInterval)

	if v := getenv("RECONCILE_OWNERS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.ReconcileOwners = append(cfg.ReconcileOwners, o)
			}
		}
	}

	cfg.Backend = strings.ToLower(cfg.Backend)
	switch cfg.Backend {
	case BackendMemory:
	case BackendFirestore:
		if cfg.ProjectID == "" {
			errs = append(errs, errors.New("GCP_PROJECT is required for the firestore backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("LEDGER_BACKEND: unknown backend %q", cfg.Backend))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("FromEnv: %w", err)
	}
	return cfg, nil
}

// BigQueryEnabled reports whether audit rows and reports go to BigQuery.
func (c Config) BigQueryEnabled() bool { return c.ProjectID != "" && c.BQDataset != "" }

// GCSEnabled reports whether reconciliation reports are exported to GCS.
func (c Config) GCSEnabled() bool { return c.GCSBucket != "" }
