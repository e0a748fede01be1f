package config

import "fmt"

// Config is the main configuration struct.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Limits   LimitsConfig   `yaml:"limits"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
	Audit    AuditConfig    `yaml:"audit"`
}

// ServerConfig holds http and tls settings. Engine selects the listener
// implementation for the dedicated probe endpoint: "nethttp" (default) or
// "fasthttp". ProbeAddr, when set, starts a separate unauthenticated
// health listener for load balancers that cannot send API keys.
type ServerConfig struct {
	Address   string    `yaml:"address"`
	Port      int       `yaml:"port"`
	Engine    string    `yaml:"engine"`
	ProbeAddr string    `yaml:"probe_addr"`
	TLS       TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StorageConfig holds the database location.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// PricingConfig holds the storage price. PerByte is a decimal string in
// smallest native units; empty selects the protocol default (1e19).
type PricingConfig struct {
	PerByte string `yaml:"per_byte"`
}

// LimitsConfig bounds user-supplied fields (byte lengths). Zero selects
// the protocol defaults (1000-byte bodies, 128-byte accounts).
type LimitsConfig struct {
	MaxMessageBytes int `yaml:"max_message_bytes"`
	MaxAccountBytes int `yaml:"max_account_bytes"`
}

// SecurityConfig holds security related settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Backend  []string `yaml:"backend"`
		Frontend []string `yaml:"frontend"`
		Admin    []string `yaml:"admin"`
	} `yaml:"api_keys"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AuditConfig drives the background ledger audit runner.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// Addr renders the listen address from address/port, defaulting to :8080.
func (c *Config) Addr() string {
	if c == nil {
		return ":8080"
	}
	addr := c.Server.Address
	port := c.Server.Port
	if port == 0 {
		if addr == "" {
			return ":8080"
		}
		return addr
	}
	return fmt.Sprintf("%s:%d", addr, port)
}
