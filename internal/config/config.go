package config

import (
	"fmt"
	"time"

	"github.com/crownedlabs/tradetrack/internal/domain"
)

// Duration wraps time.Duration so TOML values can be written as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`

	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Polygon  PolygonConfig  `toml:"polygon"`
	Broker   BrokerConfig   `toml:"broker"`
	Tracker  TrackerConfig  `toml:"tracker"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
	Selector SelectorConfig `toml:"selector"`
}

type DatabaseConfig struct {
	URL          string `toml:"url"`
	MaxConns     int    `toml:"max_conns"`
	AutoMigrate  bool   `toml:"auto_migrate"`
	QueryTimeout Duration `toml:"query_timeout"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type S3Config struct {
	Enabled   bool   `toml:"enabled"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Prefix    string `toml:"prefix"`
}

type PolygonConfig struct {
	APIKey      string   `toml:"api_key"`
	KeyFile     string   `toml:"key_file"`
	BaseURL     string   `toml:"base_url"`
	WSURL       string   `toml:"ws_url"`
	Stream      bool     `toml:"stream"`
	StreamTopics []string `toml:"stream_topics"`
	Timeout     Duration `toml:"timeout"`
	MaxChainPages int    `toml:"max_chain_pages"`
}

type BrokerConfig struct {
	Enabled bool     `toml:"enabled"`
	BaseURL string   `toml:"base_url"`
	Account string   `toml:"account"`
	Timeout Duration `toml:"timeout"`
}

type TrackerConfig struct {
	Interval   Duration `toml:"interval"`
	DryRun     bool     `toml:"dry_run"`
	QuoteTTL   Duration `toml:"quote_ttl"`
	LockTTL    Duration `toml:"lock_ttl"`
	MarketOpen  string  `toml:"market_open"`
	MarketClose string  `toml:"market_close"`
	Timezone    string  `toml:"timezone"`
}

type ArchiveConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"`
}

type NotifyConfig struct {
	DiscordWebhook string `toml:"discord_webhook"`
	TelegramToken  string `toml:"telegram_token"`
	TelegramChatID string `toml:"telegram_chat_id"`
}

type ServerConfig struct {
	Addr         string   `toml:"addr"`
	APIKey       string   `toml:"api_key"`
	AllowOrigins []string `toml:"allow_origins"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

// LadderLevel mirrors selector.Level so operators can override the
// relaxation tables from the config file.
type LadderLevel struct {
	DeltaMin         float64 `toml:"delta_min"`
	DeltaMax         float64 `toml:"delta_max"`
	MinOpenInterest  int     `toml:"min_open_interest"`
	MaxSpread        float64 `toml:"max_spread"`
	MoneynessBandPct float64 `toml:"moneyness_band_pct"`
	DTEWindows       [][]int `toml:"dte_windows"`
}

type SelectorConfig struct {
	Scalp []LadderLevel `toml:"scalp"`
	Swing []LadderLevel `toml:"swing"`
	Leap  []LadderLevel `toml:"leap"`
}

func Defaults() Config {
	return Config{
		Mode:     "track",
		LogLevel: "info",
		Database: DatabaseConfig{
			MaxConns:     8,
			AutoMigrate:  true,
			QueryTimeout: Duration{10 * time.Second},
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "archive",
		},
		Polygon: PolygonConfig{
			BaseURL:       "https://api.polygon.io",
			WSURL:         "wss://socket.polygon.io/options",
			Timeout:       Duration{10 * time.Second},
			MaxChainPages: 5,
		},
		Broker: BrokerConfig{
			BaseURL: "https://localhost:5000/v1/api",
			Timeout: Duration{15 * time.Second},
		},
		Tracker: TrackerConfig{
			Interval:    Duration{30 * time.Second},
			QuoteTTL:    Duration{5 * time.Second},
			LockTTL:     Duration{2 * time.Minute},
			MarketOpen:  "09:30",
			MarketClose: "16:00",
			Timezone:    "America/New_York",
		},
		Archive: ArchiveConfig{
			Schedule: "15 0 1 * *",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  Duration{10 * time.Second},
			WriteTimeout: Duration{30 * time.Second},
		},
	}
}

var validModes = map[string]bool{
	"track": true, "once": true, "reconcile": true, "server": true, "full": true,
}

func (c *Config) Validate() error {
	if !validModes[c.Mode] {
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("config: database.url is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Polygon.APIKey == "" && c.Polygon.KeyFile == "" {
		return fmt.Errorf("config: polygon.api_key or polygon.key_file is required")
	}
	if c.Tracker.Interval.Duration < time.Second {
		return fmt.Errorf("config: tracker.interval must be at least 1s")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("config: s3.bucket is required when s3 is enabled")
	}
	if c.Archive.Enabled && !c.S3.Enabled {
		return fmt.Errorf("config: archive requires s3 to be enabled")
	}
	if c.Broker.Enabled && c.Broker.Account == "" {
		return fmt.Errorf("config: broker.account is required when broker is enabled")
	}
	if _, err := time.LoadLocation(c.Tracker.Timezone); err != nil {
		return fmt.Errorf("config: tracker.timezone: %w", err)
	}
	for _, lvls := range map[string][]LadderLevel{"scalp": c.Selector.Scalp, "swing": c.Selector.Swing, "leap": c.Selector.Leap} {
		for _, lvl := range lvls {
			if lvl.DeltaMin > lvl.DeltaMax {
				return fmt.Errorf("config: selector level has delta_min > delta_max")
			}
			for _, w := range lvl.DTEWindows {
				if len(w) != 2 || w[0] > w[1] {
					return fmt.Errorf("config: selector dte window must be [min, max]")
				}
			}
		}
	}
	return nil
}

// Horizons reports which horizons carry a ladder override.
func (s SelectorConfig) Horizons() map[domain.Horizon][]LadderLevel {
	out := make(map[domain.Horizon][]LadderLevel)
	if len(s.Scalp) > 0 {
		out[domain.HorizonScalp] = s.Scalp
	}
	if len(s.Swing) > 0 {
		out[domain.HorizonSwing] = s.Swing
	}
	if len(s.Leap) > 0 {
		out[domain.HorizonLeap] = s.Leap
	}
	return out
}
