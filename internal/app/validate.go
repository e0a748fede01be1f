package app

import (
	"fmt"
	"os"
	"strings"

	"chatledger/pkg/amount"
	"chatledger/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	// DB path must be present
	if eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, CHATLEDGER_DB_PATH env, or storage.db_path in config")
	}

	// TLS cert/key presence check if one is set
	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	// pricing override must parse as a non-negative decimal
	if p := strings.TrimSpace(eff.Config.Pricing.PerByte); p != "" {
		if _, err := amount.Parse(p); err != nil {
			return fmt.Errorf("invalid pricing.per_byte: %w", err)
		}
	}

	// limits cannot be negative; zero means protocol default
	if eff.Config.Limits.MaxMessageBytes < 0 || eff.Config.Limits.MaxAccountBytes < 0 {
		return fmt.Errorf("limits must be non-negative")
	}

	switch eff.Config.Server.Engine {
	case "", "nethttp", "fasthttp":
	default:
		return fmt.Errorf("unknown server.engine %q: use nethttp or fasthttp", eff.Config.Server.Engine)
	}

	return nil
}
