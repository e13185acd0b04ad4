package config

import "net/url"

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Cluster RPC URLs frequently embed a provider API key.
	redactQuery(&out.Cluster.RPCURL)
	redactQuery(&out.Cluster.WSURL)

	// Wallet
	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)

	// Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	redact(&out.Redis.Password)

	// S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Server
	redact(&out.Server.APIKey)

	// Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Notify.WebhookURL)
	redact(&out.Notify.WebhookSecret)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Outcomes != nil {
		out.Notify.Outcomes = append([]string(nil), cfg.Notify.Outcomes...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}

	// Copy maps so mutations to the redacted copy do not affect the original.
	if cfg.Wallet.Mints != nil {
		out.Wallet.Mints = make(map[string]string, len(cfg.Wallet.Mints))
		for k, v := range cfg.Wallet.Mints {
			out.Wallet.Mints[k] = v
		}
	}
	if cfg.Fiat.Rates != nil {
		out.Fiat.Rates = make(map[string]float64, len(cfg.Fiat.Rates))
		for k, v := range cfg.Fiat.Rates {
			out.Fiat.Rates[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactQuery keeps scheme and host of a URL but hides its path and query,
// where RPC providers put access tokens.
func redactQuery(s *string) {
	u, err := url.Parse(*s)
	if err != nil || u.Host == "" {
		redact(s)
		return
	}
	if u.Path == "" && u.RawQuery == "" && u.User == nil {
		return
	}
	*s = u.Scheme + "://" + u.Host + "/" + redacted
}
