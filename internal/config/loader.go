package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const envPrefix = "TRADETRACK_"

// Load reads the TOML file at path on top of Defaults, then applies
// TRADETRACK_* environment overrides. A .env file in the working directory
// is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")

	setStr(&cfg.Database.URL, "DATABASE_URL")
	setInt(&cfg.Database.MaxConns, "DATABASE_MAX_CONNS")
	setBool(&cfg.Database.AutoMigrate, "DATABASE_AUTO_MIGRATE")

	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")

	setBool(&cfg.S3.Enabled, "S3_ENABLED")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setStr(&cfg.S3.Prefix, "S3_PREFIX")

	setStr(&cfg.Polygon.APIKey, "POLYGON_API_KEY")
	setStr(&cfg.Polygon.KeyFile, "POLYGON_KEY_FILE")
	setStr(&cfg.Polygon.BaseURL, "POLYGON_BASE_URL")
	setStr(&cfg.Polygon.WSURL, "POLYGON_WS_URL")
	setBool(&cfg.Polygon.Stream, "POLYGON_STREAM")

	setBool(&cfg.Broker.Enabled, "BROKER_ENABLED")
	setStr(&cfg.Broker.BaseURL, "BROKER_BASE_URL")
	setStr(&cfg.Broker.Account, "BROKER_ACCOUNT")

	setDuration(&cfg.Tracker.Interval, "TRACKER_INTERVAL")
	setBool(&cfg.Tracker.DryRun, "TRACKER_DRY_RUN")
	setDuration(&cfg.Tracker.QuoteTTL, "TRACKER_QUOTE_TTL")
	setDuration(&cfg.Tracker.LockTTL, "TRACKER_LOCK_TTL")
	setStr(&cfg.Tracker.Timezone, "TRACKER_TIMEZONE")

	setBool(&cfg.Archive.Enabled, "ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Schedule, "ARCHIVE_SCHEDULE")

	setStr(&cfg.Notify.DiscordWebhook, "DISCORD_WEBHOOK")
	setStr(&cfg.Notify.TelegramToken, "TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TELEGRAM_CHAT_ID")

	setStr(&cfg.Server.Addr, "SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	if v := lookup("SERVER_ALLOW_ORIGINS"); v != "" {
		cfg.Server.AllowOrigins = strings.Split(v, ",")
	}
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func setStr(dst *string, key string) {
	if v := lookup(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := lookup(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := lookup(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
