package config

import (
	"fmt"
	"net"
	"net/mail"
	"strings"
)

// Validator accumulates validation failures so one pass reports them all.
type Validator struct{ errors []string }

func (v *Validator) AddError(format string, args ...interface{}) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}
func (v *Validator) HasErrors() bool  { return len(v.errors) > 0 }
func (v *Validator) Errors() []string { return v.errors }

// Validate reports hard configuration errors. Range problems are handled by
// Normalize, so only settings that cannot be defaulted fail here: enabled
// integrations with missing connection details.
func (c *Config) Validate() error {
	v := &Validator{}

	validateAPIConfig(v, &c.API)
	validateCatalogConfig(v, &c.Catalog)
	validateArchiveConfig(v, &c.Archive)
	validateNotifyConfig(v, &c.Notify)

	if v.HasErrors() {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(v.Errors(), "\n"))
	}
	return nil
}

func validateAPIConfig(v *Validator, cfg *APIConfig) {
	if !cfg.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		v.AddError("api.addr %q is not host:port: %v", cfg.Addr, err)
	}
}

func validateCatalogConfig(v *Validator, cfg *CatalogConfig) {
	if !cfg.Enabled {
		return
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		v.AddError("catalog.dsn is required when the catalog is enabled")
	}
}

func validateArchiveConfig(v *Validator, cfg *ArchiveConfig) {
	if !cfg.Enabled {
		return
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		v.AddError("archive.endpoint is required when the archive is enabled")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		v.AddError("archive.bucket is required when the archive is enabled")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		v.AddError("archive.access_key and archive.secret_key are required when the archive is enabled")
	}
}

func validateNotifyConfig(v *Validator, cfg *NotifyConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Gmail.ClientID == "" || cfg.Gmail.ClientSecret == "" {
		v.AddError("notify.gmail.client_id and notify.gmail.client_secret are required when notifications are enabled")
	}
	if cfg.Gmail.From == "" {
		v.AddError("notify.gmail.from is required when notifications are enabled")
	} else if _, err := mail.ParseAddress(cfg.Gmail.From); err != nil {
		v.AddError("notify.gmail.from %q is not a valid address: %v", cfg.Gmail.From, err)
	}
	if len(cfg.Gmail.To) == 0 {
		v.AddError("notify.gmail.to needs at least one recipient")
	}
	for _, to := range cfg.Gmail.To {
		if _, err := mail.ParseAddress(to); err != nil {
			v.AddError("notify.gmail.to %q is not a valid address: %v", to, err)
		}
	}
}
