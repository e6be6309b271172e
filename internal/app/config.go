package app

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds everything an App needs besides the pipeline file contents.
type Config struct {
	ConfigPath string

	LogFormat  string
	LogLevel   string
	Workers    int
	StatusPort int
	// LedgerPath is the SQLite run ledger; empty disables it.
	LedgerPath string

	SMTPAddr  string
	SMTPFrom  string
	NotifyURL string

	DSIStudioBin string
	AtlasDir     string
	FSLBinDir    string
}

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("a pipeline config path is required")
	}
	return ValidateRuntime(cfg)
}

// ValidateRuntime checks the fields that do not depend on a pipeline file.
func ValidateRuntime(cfg Config) (*Config, error) {
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("invalid workers %d: must be at least 1", cfg.Workers)
	}
	if cfg.StatusPort < 0 {
		return nil, fmt.Errorf("invalid status-port %d", cfg.StatusPort)
	}
	if (cfg.SMTPAddr == "") != (cfg.SMTPFrom == "") {
		return nil, errors.New("smtp-addr and smtp-from must be set together")
	}
	return &cfg, nil
}
