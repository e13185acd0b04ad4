package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTerminal() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "seed"
	return cfg
}

func TestDefaultsNeedOnlyAKey(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet:")

	cfg = validTerminal()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validTerminal()
	cfg.Mode = "bogus"
	cfg.Cluster.Name = "testnet"
	cfg.Risk.Warning = 0.95
	cfg.Redis.Addr = ""
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"unknown mode", "cluster: unknown name", "risk: levels", "redis: addr", "telegram_chat_id"} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateModes(t *testing.T) {
	t.Run("monitor needs a public key", func(t *testing.T) {
		cfg := Defaults()
		cfg.Mode = ModeMonitor
		require.Error(t, cfg.Validate())
		cfg.Wallet.PublicKey = "8szGkuLTAux9XMgZ2vtY39jVSowEcpBfFfD8hXSEqdGC"
		require.NoError(t, cfg.Validate())
	})

	t.Run("archive needs a bucket", func(t *testing.T) {
		cfg := Defaults()
		cfg.Mode = ModeArchive
		cfg.S3.Bucket = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "s3: bucket")
		assert.True(t, cfg.NeedsS3())
	})

	t.Run("encrypted key needs a password", func(t *testing.T) {
		cfg := Defaults()
		cfg.Wallet.EncryptedKeyPath = "/tmp/key.enc"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key_password")
	})
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "marginterm.toml")
	body := `
mode = "monitor"

[cluster]
name = "mainnet-beta"
rpc_url = "https://rpc.example.com/v1/secret-key"
explorer = "solscan"

[wallet]
public_key = "8szGkuLTAux9XMgZ2vtY39jVSowEcpBfFfD8hXSEqdGC"

[polling]
interval = "2s"

[risk]
warning = 0.7
critical = 0.85
liquidation = 1.0
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeMonitor, cfg.Mode)
	assert.Equal(t, "mainnet-beta", cfg.Cluster.Name)
	assert.Equal(t, "solscan", cfg.Cluster.Explorer)
	assert.Equal(t, 2*time.Second, cfg.Polling.Interval.Duration)
	assert.Equal(t, 3*time.Second, cfg.Polling.RefreshDelay.Duration)
	assert.InDelta(t, 0.7, cfg.Risk.Warning, 1e-9)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[cluster]\nnmae = \"devnet\"\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster.nmae")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MARGINTERM_MODE", "monitor")
	t.Setenv("MARGINTERM_POLL_INTERVAL", "9s")
	t.Setenv("MARGINTERM_RISK_CRITICAL", "0.95")
	t.Setenv("MARGINTERM_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("MARGINTERM_WALLET_MINTS", "BTC=9n4nbM75f5Ui33ZbPYXn59EwSgE8CGsHtAeTH5YFeJ9E,bad")
	t.Setenv("MARGINTERM_FIAT_RATES", "eur=0.92,GBP=x")
	t.Setenv("MARGINTERM_REDIS_DB", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ModeMonitor, cfg.Mode)
	assert.Equal(t, 9*time.Second, cfg.Polling.Interval.Duration)
	assert.InDelta(t, 0.95, cfg.Risk.Critical, 1e-9)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "9n4nbM75f5Ui33ZbPYXn59EwSgE8CGsHtAeTH5YFeJ9E", cfg.Wallet.Mints["BTC"])
	assert.Contains(t, cfg.Wallet.Mints, "SOL")
	assert.InDelta(t, 0.92, cfg.Fiat.Rates["EUR"], 1e-9)
	assert.NotContains(t, cfg.Fiat.Rates, "GBP")
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validTerminal()
	cfg.Cluster.RPCURL = "https://mainnet.helius-rpc.com/?api-key=abc123"
	cfg.Postgres.Password = "pg"
	cfg.Server.APIKey = "k"
	cfg.Notify.WebhookSecret = "s"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Wallet.PrivateKey)
	assert.Equal(t, redacted, out.Postgres.Password)
	assert.Equal(t, redacted, out.Server.APIKey)
	assert.Equal(t, redacted, out.Notify.WebhookSecret)
	assert.Empty(t, out.Wallet.KeyPassword)
	assert.Equal(t, "https://mainnet.helius-rpc.com/***", out.Cluster.RPCURL)
	assert.False(t, strings.Contains(out.Cluster.RPCURL, "abc123"))

	// The original is untouched, including nested maps.
	out.Wallet.Mints["SOL"] = "changed"
	assert.Equal(t, "seed", cfg.Wallet.PrivateKey)
	assert.NotEqual(t, "changed", cfg.Wallet.Mints["SOL"])

	plain := Defaults()
	assert.Equal(t, "https://api.devnet.solana.com", RedactedConfig(&plain).Cluster.RPCURL)
}
