package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationResult is the structured outcome of Validate.
type ValidationResult struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

// Validate checks a parsed Config: a recognized store type with its
// required fields, and a parseable ACL grammar.
func Validate(cfg Config) ValidationResult {
	var errs []string

	switch cfg.Store.Type {
	case "disk":
		if strings.TrimSpace(cfg.Store.Path) == "" {
			errs = append(errs, "store.path is required for store.type=disk")
		}
	case "sqlite":
		if strings.TrimSpace(cfg.Store.Path) == "" {
			errs = append(errs, "store.path is required for store.type=sqlite")
		}
	case "postgres", "mysql":
		if strings.TrimSpace(cfg.Store.Host) == "" {
			errs = append(errs, "store.host is required for store.type="+cfg.Store.Type)
		}
		if strings.TrimSpace(cfg.Store.Database) == "" {
			errs = append(errs, "store.database is required for store.type="+cfg.Store.Type)
		}
	case "":
		errs = append(errs, "store.type is required")
	default:
		errs = append(errs, fmt.Sprintf("unrecognized store.type %q", cfg.Store.Type))
	}

	if cfg.DRB.Port < 0 || cfg.DRB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("drb.port %d out of range", cfg.DRB.Port))
	}

	if _, err := ParseACL(cfg.DRB.ACL); err != nil {
		errs = append(errs, "drb.acl: "+err.Error())
	}

	if cfg.Tracing.Enabled && strings.TrimSpace(cfg.Tracing.Collector) == "" {
		errs = append(errs, "tracing.collector is required when tracing.enabled is true")
	}

	return ValidationResult{OK: len(errs) == 0, Errors: errs}
}

// FormatValidationText renders a ValidationResult as a short summary,
// for `config validate --format text`.
func FormatValidationText(res ValidationResult) string {
	if res.OK {
		return "config OK"
	}
	return "config invalid:\n  " + strings.Join(res.Errors, "\n  ")
}

// FormatValidationJSON renders a ValidationResult as JSON, for
// `config validate --format json` (the default).
func FormatValidationJSON(res ValidationResult) (string, error) {
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
