package config

import (
	"flag"
	"net"
	"os"
	"strconv"
	"strings"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the resolved configuration after merging file,
// env and flags. Source records which single origin won for addr/db.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "env", or "config"
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// ResolveConfigPath picks the config file path: an explicit flag wins,
// then CHATLEDGER_CONFIG, then the flag default.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if v := os.Getenv("CHATLEDGER_CONFIG"); v != "" {
		return v
	}
	return flagVal
}

// ParseConfigEnvs reads environment variables into a fresh Config and
// reports whether any env override was present. This function does not
// mutate any caller-provided config.
func ParseConfigEnvs() (*Config, bool) {
	envCfg := &Config{}
	envUsed := false
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	// Server address/port
	if v := os.Getenv("CHATLEDGER_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				envCfg.Server.Port = pi
			}
		} else {
			envCfg.Server.Address = v
		}
	} else {
		if host := os.Getenv("CHATLEDGER_SERVER_ADDRESS"); host != "" {
			envUsed = true
			envCfg.Server.Address = host
		}
		if port := os.Getenv("CHATLEDGER_SERVER_PORT"); port != "" {
			envUsed = true
			if pi, err := strconv.Atoi(port); err == nil {
				envCfg.Server.Port = pi
			}
		}
	}

	if v := os.Getenv("CHATLEDGER_DB_PATH"); v != "" {
		envUsed = true
		envCfg.Storage.DBPath = v
	}
	if v := os.Getenv("CHATLEDGER_SERVER_ENGINE"); v != "" {
		envUsed = true
		envCfg.Server.Engine = v
	}
	if v := os.Getenv("CHATLEDGER_PROBE_ADDR"); v != "" {
		envUsed = true
		envCfg.Server.ProbeAddr = v
	}
	if v := os.Getenv("CHATLEDGER_LOG_LEVEL"); v != "" {
		envUsed = true
		envCfg.Logging.Level = v
	}
	if v := os.Getenv("CHATLEDGER_PER_BYTE_PRICE"); v != "" {
		envUsed = true
		envCfg.Pricing.PerByte = v
	}
	if v := os.Getenv("CHATLEDGER_MAX_MESSAGE_BYTES"); v != "" {
		envUsed = true
		if n, err := strconv.Atoi(v); err == nil {
			envCfg.Limits.MaxMessageBytes = n
		}
	}
	if v := os.Getenv("CHATLEDGER_BACKEND_KEYS"); v != "" {
		envUsed = true
		envCfg.Security.APIKeys.Backend = parseList(v)
	}
	if v := os.Getenv("CHATLEDGER_FRONTEND_KEYS"); v != "" {
		envUsed = true
		envCfg.Security.APIKeys.Frontend = parseList(v)
	}
	if v := os.Getenv("CHATLEDGER_ADMIN_KEYS"); v != "" {
		envUsed = true
		envCfg.Security.APIKeys.Admin = parseList(v)
	}
	if v := os.Getenv("CHATLEDGER_RATE_LIMIT_RPS"); v != "" {
		envUsed = true
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			envCfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("CHATLEDGER_RATE_LIMIT_BURST"); v != "" {
		envUsed = true
		if n, err := strconv.Atoi(v); err == nil {
			envCfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("CHATLEDGER_IP_WHITELIST"); v != "" {
		envUsed = true
		envCfg.Security.IPWhitelist = parseList(v)
	}
	if v := os.Getenv("CHATLEDGER_AUDIT_ENABLED"); v != "" {
		envUsed = true
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			envCfg.Audit.Enabled = true
		}
	}
	if v := os.Getenv("CHATLEDGER_AUDIT_CRON"); v != "" {
		envUsed = true
		envCfg.Audit.Cron = v
	}

	return envCfg, envUsed
}

// mergeConfig overlays non-zero values of src onto dst.
func mergeConfig(dst, src *Config) {
	if src.Server.Address != "" {
		dst.Server.Address = src.Server.Address
	}
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.Engine != "" {
		dst.Server.Engine = src.Server.Engine
	}
	if src.Server.ProbeAddr != "" {
		dst.Server.ProbeAddr = src.Server.ProbeAddr
	}
	if src.Storage.DBPath != "" {
		dst.Storage.DBPath = src.Storage.DBPath
	}
	if src.Pricing.PerByte != "" {
		dst.Pricing.PerByte = src.Pricing.PerByte
	}
	if src.Limits.MaxMessageBytes != 0 {
		dst.Limits.MaxMessageBytes = src.Limits.MaxMessageBytes
	}
	if src.Limits.MaxAccountBytes != 0 {
		dst.Limits.MaxAccountBytes = src.Limits.MaxAccountBytes
	}
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if len(src.Security.APIKeys.Backend) > 0 {
		dst.Security.APIKeys.Backend = src.Security.APIKeys.Backend
	}
	if len(src.Security.APIKeys.Frontend) > 0 {
		dst.Security.APIKeys.Frontend = src.Security.APIKeys.Frontend
	}
	if len(src.Security.APIKeys.Admin) > 0 {
		dst.Security.APIKeys.Admin = src.Security.APIKeys.Admin
	}
	if src.Security.RateLimit.RPS != 0 {
		dst.Security.RateLimit.RPS = src.Security.RateLimit.RPS
	}
	if src.Security.RateLimit.Burst != 0 {
		dst.Security.RateLimit.Burst = src.Security.RateLimit.Burst
	}
	if len(src.Security.IPWhitelist) > 0 {
		dst.Security.IPWhitelist = src.Security.IPWhitelist
	}
	if len(src.Security.CORS.AllowedOrigins) > 0 {
		dst.Security.CORS.AllowedOrigins = src.Security.CORS.AllowedOrigins
	}
	if src.Audit.Enabled {
		dst.Audit.Enabled = true
	}
	if src.Audit.Cron != "" {
		dst.Audit.Cron = src.Audit.Cron
	}
}

// LoadEffective merges the config file (if present), environment
// overrides, and flags into one effective result. Precedence for addr
// and db path: explicit flags, then env, then file.
func LoadEffective(cfgPath string, flags Flags) (EffectiveConfigResult, error) {
	cfg := &Config{}
	fileFound := false
	if cfgPath != "" {
		if c, err := Load(cfgPath); err == nil {
			cfg = c
			fileFound = true
		} else if !os.IsNotExist(err) {
			return EffectiveConfigResult{}, err
		}
	}

	envCfg, envUsed := ParseConfigEnvs()
	mergeConfig(cfg, envCfg)

	eff := EffectiveConfigResult{Config: cfg, Source: "config"}
	if envUsed {
		eff.Source = "env"
	} else if !fileFound {
		eff.Source = "flags"
	}

	eff.Addr = cfg.Addr()
	if flags.Set["addr"] {
		eff.Addr = flags.Addr
		eff.Source = "flags"
	}
	eff.DBPath = cfg.Storage.DBPath
	if eff.DBPath == "" {
		eff.DBPath = flags.DB
	}
	if flags.Set["db"] {
		eff.DBPath = flags.DB
		eff.Source = "flags"
	}
	return eff, nil
}
