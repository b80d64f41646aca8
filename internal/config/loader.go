package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MONBOT_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MONBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set
// (i.e. not empty). This lets operators inject secrets at deploy time
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "MONBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "MONBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "MONBOT_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "MONBOT_CHAIN_RPC_URL")
	setDuration(&cfg.Chain.ReceiptPoll, "MONBOT_CHAIN_RECEIPT_POLL")
	setDuration(&cfg.Chain.ReceiptTimeout, "MONBOT_CHAIN_RECEIPT_TIMEOUT")
	setInt64(&cfg.Chain.GasLimitBump, "MONBOT_CHAIN_GAS_LIMIT_BUMP")

	// ── Feed / indexer ──
	setStr(&cfg.Feed.WsURL, "MONBOT_FEED_WS_URL")
	setStr(&cfg.Indexer.APIURL, "MONBOT_INDEXER_API_URL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MONBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MONBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MONBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MONBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MONBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MONBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MONBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MONBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MONBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MONBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MONBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MONBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MONBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MONBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MONBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MONBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MONBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MONBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "MONBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MONBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MONBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MONBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MONBOT_S3_FORCE_PATH_STYLE")

	// ── Maker ──
	setBool(&cfg.Maker.Enabled, "MONBOT_MAKER_ENABLED")
	setInt64(&cfg.Maker.SpreadBps, "MONBOT_MAKER_SPREAD_BPS")
	setStr(&cfg.Maker.Size, "MONBOT_MAKER_SIZE")
	setDuration(&cfg.Maker.Interval, "MONBOT_MAKER_INTERVAL")
	setBool(&cfg.Maker.PostOnly, "MONBOT_MAKER_POST_ONLY")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "MONBOT_ARCHIVE_RETENTION_DAYS")
	setBool(&cfg.Archive.Prune, "MONBOT_ARCHIVE_PRUNE")
	setInt(&cfg.Archive.BatchLimit, "MONBOT_ARCHIVE_BATCH_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MONBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MONBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MONBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.States, "MONBOT_NOTIFY_STATES")

	// ── Top-level ──
	setStr(&cfg.Mode, "MONBOT_MODE")
	setStr(&cfg.LogLevel, "MONBOT_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
