package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"vpntrack/internal/support"
)

type Config struct {
	Discovery struct {
		ConfigURL        string `json:"config_url"`
		Timeout          uint32 `json:"timeout"` // milliseconds
		Retries          uint32 `json:"retries"`
		RetryDelay       uint32 `json:"retry_delay"`
		EntrySuffix      string `json:"entry_suffix"`
		MaxResponseBytes int64  `json:"max_response_bytes"`
	} `json:"discovery"`

	DNS struct {
		Nameservers []string `json:"nameservers"`
		Timeout     uint32   `json:"timeout"`
		Lifetime    uint32   `json:"lifetime"`
		Retries     uint32   `json:"retries"`
		RetryDelay  uint32   `json:"retry_delay"`
	} `json:"dns"`

	SubnetLookup struct {
		BaseURL    string `json:"base_url"`
		Timeout    uint32 `json:"timeout"`
		Retries    uint32 `json:"retries"`
		RetryDelay uint32 `json:"retry_delay"`
		CacheTTL   uint32 `json:"cache_ttl"` // seconds
	} `json:"subnet_lookup"`

	Store struct {
		Backend    string `json:"backend"` // csv or postgres
		IPFile     string `json:"ip_file"`
		SubnetFile string `json:"subnet_file"`
	} `json:"store"`

	// UserAgent identifies this client to both the archive host and the
	// subnet lookup service.
	UserAgent string `json:"user_agent"`

	OutboundProxy    string `json:"outbound_proxy"`
	GeoLiteCountryDB string `json:"geolite_country_db"`
}

const SettingsFilePath = "data/settings.json"

//go:embed default_settings.json
var defaultConfig []byte

// Load reads the settings file at path, creating it from the embedded
// defaults when it does not exist yet, and applies environment overrides.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: read settings file: %w", err)
		}

		log.Warn("Settings file not found, creating with default configuration", "path", path)
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return Config{}, fmt.Errorf("config: create settings directory: %w", err)
			}
		}
		if err := os.WriteFile(path, defaultConfig, os.ModePerm); err != nil {
			return Config{}, fmt.Errorf("config: write default settings file: %w", err)
		}
		data = defaultConfig
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse settings file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Discovery.ConfigURL = support.GetEnv("CONFIG_URL", cfg.Discovery.ConfigURL)
	cfg.SubnetLookup.BaseURL = support.GetEnv("SUBNET_LOOKUP_URL", cfg.SubnetLookup.BaseURL)
	cfg.Store.Backend = support.GetEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.IPFile = support.GetEnv("IP_FILE", cfg.Store.IPFile)
	cfg.Store.SubnetFile = support.GetEnv("SUBNET_FILE", cfg.Store.SubnetFile)
	cfg.OutboundProxy = support.GetEnv("OUTBOUND_PROXY", cfg.OutboundProxy)
	cfg.GeoLiteCountryDB = support.GetEnv("GEOLITE_COUNTRY_DB", cfg.GeoLiteCountryDB)

	if servers := support.GetEnv("DNS_NAMESERVERS", ""); servers != "" {
		list := make([]string, 0, 2)
		for _, s := range strings.Split(servers, ",") {
			if s = strings.TrimSpace(s); s != "" {
				list = append(list, s)
			}
		}
		if len(list) > 0 {
			cfg.DNS.Nameservers = list
		}
	}
}

func validate(cfg Config) error {
	if cfg.Discovery.ConfigURL == "" {
		return fmt.Errorf("config: discovery config_url is empty")
	}
	if len(cfg.DNS.Nameservers) == 0 {
		return fmt.Errorf("config: dns nameservers list is empty")
	}
	if cfg.SubnetLookup.BaseURL == "" {
		return fmt.Errorf("config: subnet_lookup base_url is empty")
	}
	switch cfg.Store.Backend {
	case "csv", "postgres":
	default:
		return fmt.Errorf("config: unknown store backend %q", cfg.Store.Backend)
	}
	return nil
}

func (c Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.Timeout) * time.Millisecond
}

func (c Config) DiscoveryRetryDelay() time.Duration {
	return time.Duration(c.Discovery.RetryDelay) * time.Millisecond
}

func (c Config) DNSTimeout() time.Duration {
	return time.Duration(c.DNS.Timeout) * time.Millisecond
}

func (c Config) DNSLifetime() time.Duration {
	return time.Duration(c.DNS.Lifetime) * time.Millisecond
}

func (c Config) DNSRetryDelay() time.Duration {
	return time.Duration(c.DNS.RetryDelay) * time.Millisecond
}

func (c Config) SubnetLookupTimeout() time.Duration {
	return time.Duration(c.SubnetLookup.Timeout) * time.Millisecond
}

func (c Config) SubnetLookupRetryDelay() time.Duration {
	return time.Duration(c.SubnetLookup.RetryDelay) * time.Millisecond
}

func (c Config) SubnetCacheTTL() time.Duration {
	return time.Duration(c.SubnetLookup.CacheTTL) * time.Second
}
