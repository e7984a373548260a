package config

import (
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrMissingProxy is returned when required proxy credentials are absent.
// The session constructor fails fast on it before any browser work.
var ErrMissingProxy = errors.New("proxy host and username must be set")

// Config holds all runtime configuration for the harvester.
type Config struct {
	BaseURL  string `mapstructure:"base_url"`
	PageSize int    `mapstructure:"page_size"`

	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Browser BrowserConfig `mapstructure:"browser"`
	Harvest HarvestConfig `mapstructure:"harvest"`
	DB      DBConfig      `mapstructure:"db"`
	Log     LogConfig     `mapstructure:"log"`
}

// ProxyConfig holds forward-proxy credentials for the browser session.
type ProxyConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// BrowserConfig fixes the evasion profile for the session's lifetime.
type BrowserConfig struct {
	Headless  bool    `mapstructure:"headless"`
	UserAgent string  `mapstructure:"user_agent"`
	Locale    string  `mapstructure:"locale"`
	Timezone  string  `mapstructure:"timezone"`
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
	Width     int     `mapstructure:"width"`
	Height    int     `mapstructure:"height"`

	NavTimeout   time.Duration `mapstructure:"nav_timeout"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	ConsentWait  time.Duration `mapstructure:"consent_wait"`
	ClickTimeout time.Duration `mapstructure:"click_timeout"`
	RevealWait   time.Duration `mapstructure:"reveal_wait"`
	RevealGrace  time.Duration `mapstructure:"reveal_grace"`
}

// HarvestConfig bounds the crawl loop.
type HarvestConfig struct {
	MaxPages     int           `mapstructure:"max_pages"`
	MaxAds       int           `mapstructure:"max_ads"`       // 0 = no explicit limit
	PageCap      int           `mapstructure:"page_cap"`      // per-page ad cap when MaxAds is 0
	FetchRetries int           `mapstructure:"fetch_retries"` // retries after the first attempt
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	AdDelay      time.Duration `mapstructure:"ad_delay"`
	Workers      int           `mapstructure:"workers"` // batch mode only; one session per worker

	OutFile   string `mapstructure:"out_file"`
	OutNDJSON string `mapstructure:"out_ndjson"` // optional record-per-line companion output
}

// DBConfig configures the optional Postgres store. Empty URL disables it.
type DBConfig struct {
	URL string `mapstructure:"url"`
}

// LogConfig configures the global zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional carscrape.yaml and the
// DONEDEAL_* environment, applying defaults for everything else.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("carscrape")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DONEDEAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("base_url", "https://www.donedeal.ie")
	v.SetDefault("page_size", 28)

	// Env-only keys still need defaults registered so AutomaticEnv
	// surfaces them during Unmarshal.
	v.SetDefault("proxy.host", "")
	v.SetDefault("proxy.port", "")
	v.SetDefault("proxy.username", "")
	v.SetDefault("proxy.password", "")
	v.SetDefault("db.url", "")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) "+
			"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36")
	v.SetDefault("browser.locale", "en-IE")
	v.SetDefault("browser.timezone", "Europe/Dublin")
	v.SetDefault("browser.latitude", 53.3498)
	v.SetDefault("browser.longitude", -6.2603)
	v.SetDefault("browser.width", 1920)
	v.SetDefault("browser.height", 1080)
	v.SetDefault("browser.nav_timeout", 90*time.Second)
	v.SetDefault("browser.settle_delay", 3*time.Second)
	v.SetDefault("browser.consent_wait", 2*time.Second)
	v.SetDefault("browser.click_timeout", 5*time.Second)
	v.SetDefault("browser.reveal_wait", 30*time.Second)
	v.SetDefault("browser.reveal_grace", 5*time.Second)

	v.SetDefault("harvest.max_pages", 1)
	v.SetDefault("harvest.max_ads", 0)
	v.SetDefault("harvest.page_cap", 20)
	v.SetDefault("harvest.fetch_retries", 2)
	v.SetDefault("harvest.retry_backoff", 2*time.Second)
	v.SetDefault("harvest.ad_delay", time.Second)
	v.SetDefault("harvest.workers", 1)
	v.SetDefault("harvest.out_file", "donedeal_cars.csv")
	v.SetDefault("harvest.out_ndjson", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the credentials required for the outbound tunnel
// are present. Absence of host or username is fatal.
func (p ProxyConfig) Validate() error {
	if p.Host == "" || p.Username == "" {
		return eris.Wrap(ErrMissingProxy, "config")
	}
	return nil
}

// Server returns the proxy endpoint in host:port form, tolerating a
// scheme-prefixed host value.
func (p ProxyConfig) Server() string {
	host := strings.TrimPrefix(strings.TrimPrefix(p.Host, "https://"), "http://")
	if p.Port == "" {
		return host
	}
	return host + ":" + p.Port
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
