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
// built-in defaults, applies CONVICTIOND_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known CONVICTIOND_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setDuration(&cfg.Engine.GracePeriod, "CONVICTIOND_ENGINE_GRACE_PERIOD")
	setInt64(&cfg.Engine.CreatorSeed, "CONVICTIOND_ENGINE_CREATOR_SEED")
	setDuration(&cfg.Engine.MinDuration, "CONVICTIOND_ENGINE_MIN_DURATION")

	// ── Database ──
	setStr(&cfg.Database.DSN, "CONVICTIOND_DATABASE_DSN")
	setStr(&cfg.Database.Host, "CONVICTIOND_DATABASE_HOST")
	setInt(&cfg.Database.Port, "CONVICTIOND_DATABASE_PORT")
	setStr(&cfg.Database.Database, "CONVICTIOND_DATABASE_NAME")
	setStr(&cfg.Database.User, "CONVICTIOND_DATABASE_USER")
	setStr(&cfg.Database.Password, "CONVICTIOND_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "CONVICTIOND_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "CONVICTIOND_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "CONVICTIOND_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "CONVICTIOND_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CONVICTIOND_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CONVICTIOND_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CONVICTIOND_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CONVICTIOND_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CONVICTIOND_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CONVICTIOND_REDIS_TLS_ENABLED")

	// ── Enclave ──
	setStr(&cfg.Enclave.URL, "CONVICTIOND_ENCLAVE_URL")
	setStr(&cfg.Enclave.ApiKey, "CONVICTIOND_ENCLAVE_API_KEY")
	setDuration(&cfg.Enclave.Timeout, "CONVICTIOND_ENCLAVE_TIMEOUT")
	setStr(&cfg.Enclave.StubKey, "CONVICTIOND_ENCLAVE_STUB_KEY")

	// ── Treasury ──
	setStr(&cfg.Treasury.PrivateKey, "CONVICTIOND_TREASURY_PRIVATE_KEY")
	setStr(&cfg.Treasury.EncryptedKeyPath, "CONVICTIOND_TREASURY_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Treasury.KeyPassword, "CONVICTIOND_TREASURY_KEY_PASSWORD")
	setStr(&cfg.Treasury.RelayerURL, "CONVICTIOND_TREASURY_RELAYER_URL")
	setInt(&cfg.Treasury.ChainID, "CONVICTIOND_TREASURY_CHAIN_ID")
	setDuration(&cfg.Treasury.RequestTimeout, "CONVICTIOND_TREASURY_REQUEST_TIMEOUT")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CONVICTIOND_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CONVICTIOND_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CONVICTIOND_S3_REGION")
	setStr(&cfg.S3.Bucket, "CONVICTIOND_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CONVICTIOND_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CONVICTIOND_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CONVICTIOND_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CONVICTIOND_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "CONVICTIOND_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CONVICTIOND_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiKey, "CONVICTIOND_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CONVICTIOND_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CONVICTIOND_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CONVICTIOND_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CONVICTIOND_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CONVICTIOND_MODE")
	setStr(&cfg.LogLevel, "CONVICTIOND_LOG_LEVEL")
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
