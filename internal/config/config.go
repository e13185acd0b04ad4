// Package config defines the top-level configuration for the margin terminal
// backend and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARGINTERM_* environment variables.
type Config struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`

	Cluster  ClusterConfig  `toml:"cluster"`
	Wallet   WalletConfig   `toml:"wallet"`
	Polling  PollingConfig  `toml:"polling"`
	Risk     RiskConfig     `toml:"risk"`
	Swap     SwapConfig     `toml:"swap"`
	History  HistoryConfig  `toml:"history"`
	Actions  ActionsConfig  `toml:"actions"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Fiat     FiatConfig     `toml:"fiat"`
}

// ClusterConfig selects the Solana cluster and the explorer used for links.
type ClusterConfig struct {
	Name   string `toml:"name"`
	RPCURL string `toml:"rpc_url"`
	// WSURL is the subscription endpoint; empty derives it from RPCURL.
	WSURL    string `toml:"ws_url"`
	Explorer string `toml:"explorer"`
}

// WalletConfig holds the signing keypair source and the token mints whose
// wallet balances are polled.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	KeypairPath      string `toml:"keypair_path"`
	// PublicKey is watched in monitor mode, where nothing is signed.
	PublicKey string `toml:"public_key"`
	// Mints maps token symbol to mint address.
	Mints map[string]string `toml:"mints"`
}

// HasKey reports whether any signing key source is configured.
func (w WalletConfig) HasKey() bool {
	return w.PrivateKey != "" || w.EncryptedKeyPath != "" || w.KeypairPath != ""
}

// PollingConfig holds the data-pipeline cadence.
type PollingConfig struct {
	Interval        duration `toml:"interval"`
	RefreshDelay    duration `toml:"refresh_delay"`
	CycleTimeout    duration `toml:"cycle_timeout"`
	HistoryInterval duration `toml:"history_interval"`
	// Subscribe pulls the next cycle forward on wallet activity.
	Subscribe bool `toml:"subscribe"`
	// Market is selected at startup.
	Market string `toml:"market"`
}

// RiskConfig holds the risk-indicator classification levels.
type RiskConfig struct {
	Warning     float64 `toml:"warning"`
	Critical    float64 `toml:"critical"`
	Liquidation float64 `toml:"liquidation"`
}

// SwapConfig holds swap quoting parameters.
type SwapConfig struct {
	// DefaultSlippage is a fraction (0.005 = 0.5%).
	DefaultSlippage float64 `toml:"default_slippage"`
}

// HistoryConfig points at the price and trade history endpoints.
type HistoryConfig struct {
	BaseURL           string   `toml:"base_url"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Resolution        string   `toml:"resolution"`
	Lookback          duration `toml:"lookback"`
}

// ActionsConfig bounds action dispatch per wallet.
type ActionsConfig struct {
	LockTTL    duration `toml:"lock_ttl"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// ArchiveConfig controls moving settled action history to S3.
type ArchiveConfig struct {
	// Enabled runs the archiver periodically in terminal and monitor modes.
	// Archive mode always runs it once.
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	WebhookURL        string `toml:"webhook_url"`
	WebhookSecret     string `toml:"webhook_secret"`
	// Outcomes forwarded to external channels; empty forwards all.
	Outcomes []string `toml:"outcomes"`
}

// FiatConfig controls display currency formatting.
type FiatConfig struct {
	Currency string `toml:"currency"`
	Locale   string `toml:"locale"`
	// Rates are units of each currency per USD.
	Rates map[string]float64 `toml:"rates"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Mode:     "terminal",
		LogLevel: "info",
		Cluster: ClusterConfig{
			Name:     "devnet",
			RPCURL:   "https://api.devnet.solana.com",
			Explorer: "solanaExplorer",
		},
		Wallet: WalletConfig{
			Mints: map[string]string{
				"SOL":  "So11111111111111111111111111111111111111112",
				"USDC": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			},
		},
		Polling: PollingConfig{
			Interval:        duration{4 * time.Second},
			RefreshDelay:    duration{3 * time.Second},
			CycleTimeout:    duration{10 * time.Second},
			HistoryInterval: duration{time.Minute},
			Subscribe:       true,
			Market:          "SOL/USDC",
		},
		Risk: RiskConfig{
			Warning:     0.8,
			Critical:    0.9,
			Liquidation: 1.0,
		},
		Swap: SwapConfig{DefaultSlippage: 0.005},
		History: HistoryConfig{
			BaseURL:           "https://api.jetprotocol.io/v1",
			RequestsPerSecond: 2,
			Resolution:        "1h",
			Lookback:          duration{24 * time.Hour},
		},
		Actions: ActionsConfig{
			LockTTL:    duration{2 * time.Minute},
			RateLimit:  10,
			RateWindow: duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marginterm",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "marginterm:",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marginterm",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Outcomes: []string{"success", "failed"},
		},
		Fiat: FiatConfig{
			Currency: "USD",
			Locale:   "en",
			Rates:    map[string]float64{"USD": 1},
		},
	}
}

// Modes.
const (
	ModeTerminal = "terminal"
	ModeMonitor  = "monitor"
	ModeArchive  = "archive"
)

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	ModeTerminal: true,
	ModeMonitor:  true,
	ModeArchive:  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validClusters = map[string]bool{"mainnet-beta": true, "devnet": true, "localnet": true}

var validExplorers = map[string]bool{"solanaExplorer": true, "solscan": true, "solanaBeach": true, "solanaFm": true}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: terminal, monitor, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Cluster
	if !validClusters[c.Cluster.Name] {
		errs = append(errs, fmt.Sprintf("cluster: unknown name %q (valid: mainnet-beta, devnet, localnet)", c.Cluster.Name))
	}
	if !validExplorers[c.Cluster.Explorer] {
		errs = append(errs, fmt.Sprintf("cluster: unknown explorer %q", c.Cluster.Explorer))
	}
	if c.Cluster.RPCURL != "" {
		if u, err := url.Parse(c.Cluster.RPCURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("cluster: rpc_url %q is not an absolute URL", c.Cluster.RPCURL))
		}
	}

	// Wallet
	switch mode {
	case ModeTerminal:
		if !c.Wallet.HasKey() {
			errs = append(errs, "wallet: private_key, encrypted_key_path or keypair_path must be set for mode terminal")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	case ModeMonitor:
		if c.Wallet.PublicKey == "" && !c.Wallet.HasKey() {
			errs = append(errs, "wallet: public_key (or a key source) must be set for mode monitor")
		}
	}

	// Polling
	if mode != ModeArchive {
		if c.Polling.Interval.Duration <= 0 {
			errs = append(errs, "polling: interval must be > 0")
		}
		if c.Polling.CycleTimeout.Duration <= 0 {
			errs = append(errs, "polling: cycle_timeout must be > 0")
		}
		if c.Polling.RefreshDelay.Duration < 0 {
			errs = append(errs, "polling: refresh_delay must be >= 0")
		}
	}

	// Risk
	if !(c.Risk.Warning > 0 && c.Risk.Warning < c.Risk.Critical && c.Risk.Critical <= c.Risk.Liquidation) {
		errs = append(errs, fmt.Sprintf("risk: levels must satisfy 0 < warning < critical <= liquidation, got %.2f/%.2f/%.2f",
			c.Risk.Warning, c.Risk.Critical, c.Risk.Liquidation))
	}

	// Swap
	if c.Swap.DefaultSlippage < 0 || c.Swap.DefaultSlippage >= 1 {
		errs = append(errs, "swap: default_slippage must be in [0, 1)")
	}

	// History
	if c.History.RequestsPerSecond < 0 {
		errs = append(errs, "history: requests_per_second must be >= 0")
	}

	// Actions
	if c.Actions.LockTTL.Duration <= 0 {
		errs = append(errs, "actions: lock_ttl must be > 0")
	}
	if c.Actions.RateLimit > 0 && c.Actions.RateWindow.Duration <= 0 {
		errs = append(errs, "actions: rate_window must be > 0 when rate_limit is set")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 and archive
	if c.NeedsS3() {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}
	if c.Archive.Enabled && mode != ModeArchive && c.Archive.Interval.Duration <= 0 {
		errs = append(errs, "archive: interval must be > 0 when enabled")
	}

	// Server
	if mode != ModeArchive {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, o := range c.Notify.Outcomes {
		switch strings.ToLower(o) {
		case "success", "cancelled", "failed":
		default:
			errs = append(errs, fmt.Sprintf("notify: unknown outcome %q", o))
		}
	}

	// Fiat
	if len(c.Fiat.Currency) != 3 {
		errs = append(errs, fmt.Sprintf("fiat: currency must be an ISO 4217 code, got %q", c.Fiat.Currency))
	}
	for code, rate := range c.Fiat.Rates {
		if rate <= 0 {
			errs = append(errs, fmt.Sprintf("fiat: rate for %s must be > 0", code))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// NeedsPostgres reports whether the mode persists action history.
func (c *Config) NeedsPostgres() bool {
	return validModes[strings.ToLower(c.Mode)]
}

// NeedsS3 reports whether the mode writes archives.
func (c *Config) NeedsS3() bool {
	return strings.ToLower(c.Mode) == ModeArchive || c.Archive.Enabled
}
