package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARGINTERM_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			keys := make([]string, 0, len(undec))
			for _, k := range undec {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARGINTERM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Cluster ──
	setStr(&cfg.Cluster.Name, "MARGINTERM_CLUSTER")
	setStr(&cfg.Cluster.RPCURL, "MARGINTERM_RPC_URL")
	setStr(&cfg.Cluster.WSURL, "MARGINTERM_WS_URL")
	setStr(&cfg.Cluster.Explorer, "MARGINTERM_EXPLORER")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "MARGINTERM_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "MARGINTERM_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "MARGINTERM_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.KeypairPath, "MARGINTERM_WALLET_KEYPAIR_PATH")
	setStr(&cfg.Wallet.PublicKey, "MARGINTERM_WALLET_PUBLIC_KEY")
	setStringMap(&cfg.Wallet.Mints, "MARGINTERM_WALLET_MINTS")

	// ── Polling ──
	setDuration(&cfg.Polling.Interval, "MARGINTERM_POLL_INTERVAL")
	setDuration(&cfg.Polling.RefreshDelay, "MARGINTERM_REFRESH_DELAY")
	setDuration(&cfg.Polling.CycleTimeout, "MARGINTERM_CYCLE_TIMEOUT")
	setDuration(&cfg.Polling.HistoryInterval, "MARGINTERM_HISTORY_INTERVAL")
	setBool(&cfg.Polling.Subscribe, "MARGINTERM_SUBSCRIBE")
	setStr(&cfg.Polling.Market, "MARGINTERM_MARKET")

	// ── Risk ──
	setFloat64(&cfg.Risk.Warning, "MARGINTERM_RISK_WARNING")
	setFloat64(&cfg.Risk.Critical, "MARGINTERM_RISK_CRITICAL")
	setFloat64(&cfg.Risk.Liquidation, "MARGINTERM_RISK_LIQUIDATION")

	// ── Swap ──
	setFloat64(&cfg.Swap.DefaultSlippage, "MARGINTERM_SWAP_DEFAULT_SLIPPAGE")

	// ── History ──
	setStr(&cfg.History.BaseURL, "MARGINTERM_HISTORY_BASE_URL")
	setFloat64(&cfg.History.RequestsPerSecond, "MARGINTERM_HISTORY_RPS")
	setStr(&cfg.History.Resolution, "MARGINTERM_HISTORY_RESOLUTION")
	setDuration(&cfg.History.Lookback, "MARGINTERM_HISTORY_LOOKBACK")

	// ── Actions ──
	setDuration(&cfg.Actions.LockTTL, "MARGINTERM_ACTIONS_LOCK_TTL")
	setInt(&cfg.Actions.RateLimit, "MARGINTERM_ACTIONS_RATE_LIMIT")
	setDuration(&cfg.Actions.RateWindow, "MARGINTERM_ACTIONS_RATE_WINDOW")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MARGINTERM_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "MARGINTERM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARGINTERM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARGINTERM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARGINTERM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARGINTERM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARGINTERM_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARGINTERM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARGINTERM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARGINTERM_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MARGINTERM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARGINTERM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARGINTERM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARGINTERM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARGINTERM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARGINTERM_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "MARGINTERM_REDIS_KEY_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MARGINTERM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARGINTERM_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARGINTERM_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARGINTERM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARGINTERM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARGINTERM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARGINTERM_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "MARGINTERM_S3_PREFIX")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "MARGINTERM_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "MARGINTERM_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "MARGINTERM_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setInt(&cfg.Server.Port, "MARGINTERM_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform-assigned port wins
	setStringSlice(&cfg.Server.CORSOrigins, "MARGINTERM_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MARGINTERM_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "MARGINTERM_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "MARGINTERM_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MARGINTERM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARGINTERM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARGINTERM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookURL, "MARGINTERM_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookSecret, "MARGINTERM_NOTIFY_WEBHOOK_SECRET")
	setStringSlice(&cfg.Notify.Outcomes, "MARGINTERM_NOTIFY_OUTCOMES")

	// ── Fiat ──
	setStr(&cfg.Fiat.Currency, "MARGINTERM_FIAT_CURRENCY")
	setStr(&cfg.Fiat.Locale, "MARGINTERM_FIAT_LOCALE")
	setFloatMap(&cfg.Fiat.Rates, "MARGINTERM_FIAT_RATES")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARGINTERM_MODE")
	setStr(&cfg.LogLevel, "MARGINTERM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// setStringMap parses "K1=v1,K2=v2" and merges it into dst.
func setStringMap(dst *map[string]string, key string) {
	var pairs []string
	setStringSlice(&pairs, key)
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		if *dst == nil {
			*dst = make(map[string]string)
		}
		(*dst)[k] = v
	}
}

// setFloatMap parses "EUR=0.92,GBP=0.79" and merges it into dst.
func setFloatMap(dst *map[string]float64, key string) {
	raw := map[string]string{}
	setStringMap(&raw, key)
	for k, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		if *dst == nil {
			*dst = make(map[string]float64)
		}
		(*dst)[strings.ToUpper(k)] = f
	}
}
