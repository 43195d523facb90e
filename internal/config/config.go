package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	REST      RESTConfig      `yaml:"rest"`
	WS        WSConfig        `yaml:"ws"`
	State     StateConfig     `yaml:"state"`
	Market    MarketConfig    `yaml:"market"`
	Wallets   WalletsConfig   `yaml:"wallets"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Timescale TimescaleConfig `yaml:"timescale"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	// Format is "json" (default) or "console".
	Format string `yaml:"format"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WSConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	// MaxMidAge bounds how old a streamed mid may be before the cycle falls back to REST.
	MaxMidAge time.Duration `yaml:"max_mid_age"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MarketConfig struct {
	// Dexes lists the satellite perp namespaces scanned besides the main market.
	Dexes         []string      `yaml:"dexes"`
	MetaTTL       time.Duration `yaml:"meta_ttl"`
	QuoteCacheTTL time.Duration `yaml:"quote_cache_ttl"`
}

type WalletsConfig struct {
	// TargetsPattern is a fmt pattern taking the wallet id, e.g. config_wallet_%d.yaml.
	TargetsPattern string `yaml:"targets_pattern"`
	EnvPrefix      string `yaml:"env_prefix"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
	BaseURL string `yaml:"base_url"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

var defaultDexes = []string{"flx", "hyna", "vntl", "xyz"}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

// Default returns a config with every default applied, used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = "https://api.hyperliquid.xyz"
	}
	cfg.REST.BaseURL = strings.TrimRight(cfg.REST.BaseURL, "/")
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = deriveWSURL(cfg.REST.BaseURL)
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 30 * time.Second
	}
	if cfg.WS.MaxMidAge == 0 {
		cfg.WS.MaxMidAge = 30 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/hl-rebalancer.db"
	}
	if cfg.Market.Dexes == nil {
		cfg.Market.Dexes = append([]string(nil), defaultDexes...)
	}
	if cfg.Market.MetaTTL == 0 {
		cfg.Market.MetaTTL = 10 * time.Minute
	}
	if cfg.Wallets.TargetsPattern == "" {
		cfg.Wallets.TargetsPattern = "config_wallet_%d.yaml"
	}
	if cfg.Wallets.EnvPrefix == "" {
		cfg.Wallets.EnvPrefix = "HL"
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
}

// applyEnvOverrides lets secrets live in the environment instead of the file.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("HL_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("HL_TELEGRAM_CHAT_ID")); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := strings.TrimSpace(os.Getenv("HL_TIMESCALE_DSN")); v != "" {
		cfg.Timescale.DSN = v
	}
}

func deriveWSURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return "wss://api.hyperliquid.xyz/ws"
	}
}

func validate(cfg *Config) error {
	if cfg.Log.Format != "json" && cfg.Log.Format != "console" {
		return errors.New("log.format must be json or console")
	}
	if cfg.REST.Timeout < 0 {
		return errors.New("rest.timeout must be > 0")
	}
	if cfg.Market.MetaTTL < 0 {
		return errors.New("market.meta_ttl must be >= 0")
	}
	if cfg.Market.QuoteCacheTTL < 0 {
		return errors.New("market.quote_cache_ttl must be >= 0")
	}
	for _, dex := range cfg.Market.Dexes {
		if strings.TrimSpace(dex) == "" {
			return errors.New("market.dexes must not contain empty names")
		}
	}
	if !strings.Contains(cfg.Wallets.TargetsPattern, "%d") {
		return errors.New("wallets.targets_pattern must contain %d")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}

// IsMainnet reports whether the REST endpoint targets mainnet.
func (c *Config) IsMainnet() bool {
	return !strings.Contains(strings.ToLower(c.REST.BaseURL), "testnet")
}
