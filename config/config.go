package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Scheduler   SchedulerConfig
	Market      MarketConfig
	Webhook     WebhookConfig
	Proxy       ProxyConfig
	DatabaseURL string
	DBPath      string
	LogLevel    string
	Preferences PreferencesConfig
	Sources     map[string]*SourceConfig
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type MarketConfig struct {
	DelayMS       int
	RetryAttempts int
}

type WebhookConfig struct {
	URL string
}

type ProxyConfig struct {
	URL string
}

type PreferencesConfig struct {
	Artists []string `yaml:"artists"`
	Genres  []string `yaml:"genres"`
	Albums  []string `yaml:"albums"`
}

type SourceConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Handler     string            `yaml:"handler"`
	RateLimitMS int               `yaml:"rate_limit_ms"`
	Endpoints   map[string]string `yaml:"endpoints"`
	Seed        int64             `yaml:"seed"`
}

// preferencesFile mirrors config/preferences.yaml.
type preferencesFile struct {
	Preferences PreferencesConfig `yaml:"preferences"`
	Scraping    struct {
		IntervalHours          int `yaml:"interval_hours"`
		DelayBetweenRequestsMS int `yaml:"delay_between_requests_ms"`
	} `yaml:"scraping"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("SCAN_CRON"),
		},
		Market: MarketConfig{
			DelayMS:       getEnvInt("REQUEST_DELAY_MS", 1500),
			RetryAttempts: getEnvInt("MARKET_RETRY_ATTEMPTS", 3),
		},
		Webhook: WebhookConfig{
			URL: os.Getenv("WEBHOOK_URL"),
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("PROXY_URL"),
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPath:      getEnv("DB_PATH", "vinyl_radar.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Sources:     make(map[string]*SourceConfig),
	}

	if err := cfg.loadPreferences(); err != nil {
		return nil, err
	}

	// Env overrides win over the YAML scraping block.
	if hours := getEnvInt("SCAN_INTERVAL_HOURS", 0); hours > 0 {
		cfg.Scheduler.Interval = time.Duration(hours) * time.Hour
	}
	if interval := os.Getenv("SCAN_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if err := cfg.loadSourceConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadPreferences() error {
	path := getEnv("PREFERENCES_PATH", "config/preferences.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var file preferencesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}

	c.Preferences = file.Preferences
	if file.Scraping.IntervalHours > 0 {
		c.Scheduler.Interval = time.Duration(file.Scraping.IntervalHours) * time.Hour
	}
	if file.Scraping.DelayBetweenRequestsMS > 0 {
		c.Market.DelayMS = file.Scraping.DelayBetweenRequestsMS
	}
	return nil
}

func (c *Config) loadSourceConfigs() error {
	configDir := getEnv("SOURCES_DIR", "config/sources")
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var source SourceConfig
		if err := yaml.Unmarshal(data, &source); err != nil {
			return err
		}

		c.Sources[source.ID] = &source
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
