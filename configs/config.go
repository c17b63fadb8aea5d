package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

// PlatformLimit is the admission budget of one platform.
type PlatformLimit struct {
	Hourly int
	Daily  int
	Burst  int
}

type Platforms struct {
	GraphAPIURL          string
	InstagramGraphURL    string
	InstagramRefreshURL  string
	TiktokAPIURL         string
	TiktokClientKey      string
	TiktokClientSecret   string
	YoutubeAPIURL        string
	GoogleClientID       string
	GoogleClientSecret   string
	Timeout              time.Duration
	MediaTimeout         time.Duration
	ContainerPollEvery   time.Duration
	ContainerPollRetries int
}

type Scheduler struct {
	PollInterval     time.Duration
	RetryInterval    time.Duration
	MonitorInterval  time.Duration
	Concurrency      int
	BatchSize        int
	MaxRetries       int
	RetryQueueCap    int
	RetryQueueKeep   int
	RetryLease       time.Duration
	FrequencyAlertIn int
}

type Config struct {
	PostgresURI     string
	RedisURI        string
	ListenAddr      string
	FrontendURL     string
	SecretKey       string
	EncryptionKey   string
	AdminAPIKey     string
	SessionTTL      time.Duration
	CookieName      string
	LogLevel        string
	LogFormat       string
	SlackWebhookURL string
	MessageTemplate string
	UTMCampaign     string
	R2              R2
	Platforms       Platforms
	Scheduler       Scheduler
	RateLimits      map[string]PlatformLimit
}

// DefaultRateLimits mirrors the published platform budgets.
var DefaultRateLimits = map[string]PlatformLimit{
	"facebook":  {Hourly: 200, Daily: 5000, Burst: 50},
	"instagram": {Hourly: 200, Daily: 4800, Burst: 40},
	"youtube":   {Hourly: 100, Daily: 10000, Burst: 25},
	"tiktok":    {Hourly: 100, Daily: 1000, Burst: 20},
}

const DefaultMessageTemplate = "{title}\n\n{body}\n\n{permalink}"

func LoadConfig() *Config {
	return &Config{
		PostgresURI:     getEnv("POSTGRES_URI", ""),
		RedisURI:        getEnv("REDIS_URI", "localhost:6379"),
		ListenAddr:      getEnv("LISTEN_ADDR", ":3000"),
		FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:5173"),
		SecretKey:       getEnv("SECRET_KEY", ""),
		EncryptionKey:   getEnv("ENCRYPTION_KEY", ""),
		AdminAPIKey:     getEnv("ADMIN_API_KEY", ""),
		SessionTTL:      getEnvDuration("SESSION_TTL", 24*time.Hour),
		CookieName:      getEnv("COOKIE_NAME", "autopublisher_session"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
		MessageTemplate: getEnv("MESSAGE_TEMPLATE", DefaultMessageTemplate),
		UTMCampaign:     getEnv("UTM_CAMPAIGN", "social_auto_publisher"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		Platforms: Platforms{
			GraphAPIURL:          getEnv("FACEBOOK_GRAPH_URL", "https://graph.facebook.com/v21.0"),
			InstagramGraphURL:    getEnv("INSTAGRAM_GRAPH_URL", "https://graph.facebook.com/v21.0"),
			InstagramRefreshURL:  getEnv("INSTAGRAM_REFRESH_URL", "https://graph.instagram.com/refresh_access_token"),
			TiktokAPIURL:         getEnv("TIKTOK_API_URL", "https://open.tiktokapis.com/v2"),
			TiktokClientKey:      getEnv("TIKTOK_CLIENT_KEY", ""),
			TiktokClientSecret:   getEnv("TIKTOK_CLIENT_SECRET", ""),
			YoutubeAPIURL:        getEnv("YOUTUBE_API_URL", ""),
			GoogleClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
			Timeout:              getEnvDuration("PLATFORM_TIMEOUT", 30*time.Second),
			MediaTimeout:         getEnvDuration("PLATFORM_MEDIA_TIMEOUT", 60*time.Second),
			ContainerPollEvery:   getEnvDuration("INSTAGRAM_CONTAINER_POLL", 5*time.Second),
			ContainerPollRetries: getEnvInt("INSTAGRAM_CONTAINER_RETRIES", 12),
		},
		Scheduler: Scheduler{
			PollInterval:     getEnvDuration("SCHEDULER_POLL_INTERVAL", time.Minute),
			RetryInterval:    getEnvDuration("RETRY_SWEEP_INTERVAL", 15*time.Minute),
			MonitorInterval:  getEnvDuration("FREQUENCY_MONITOR_INTERVAL", time.Hour),
			Concurrency:      getEnvInt("SCHEDULER_CONCURRENCY", 10),
			BatchSize:        getEnvInt("SCHEDULER_BATCH_SIZE", 50),
			MaxRetries:       getEnvInt("RETRY_MAX_RETRIES", 5),
			RetryQueueCap:    getEnvInt("RETRY_QUEUE_CAP", 1000),
			RetryQueueKeep:   getEnvInt("RETRY_QUEUE_KEEP", 900),
			RetryLease:       getEnvDuration("RETRY_LEASE", 10*time.Minute),
			FrequencyAlertIn: getEnvInt("FREQUENCY_ALERT_DAYS", 3),
		},
		RateLimits: loadRateLimits(),
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.PostgresURI == "" {
		errs = append(errs, errors.New("POSTGRES_URI is required"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	if len(c.EncryptionKey) != 32 {
		errs = append(errs, fmt.Errorf("ENCRYPTION_KEY must be 32 bytes, got %d", len(c.EncryptionKey)))
	}
	if c.Scheduler.PollInterval <= 0 || c.Scheduler.RetryInterval <= 0 || c.Scheduler.MonitorInterval <= 0 {
		errs = append(errs, errors.New("scheduler intervals must be positive"))
	}
	if c.Scheduler.RetryQueueKeep > c.Scheduler.RetryQueueCap {
		errs = append(errs, errors.New("RETRY_QUEUE_KEEP cannot exceed RETRY_QUEUE_CAP"))
	}
	return errors.Join(errs...)
}

// loadRateLimits reads RATE_LIMIT_<PLATFORM>=hourly,daily,burst overrides on
// top of DefaultRateLimits.
func loadRateLimits() map[string]PlatformLimit {
	limits := make(map[string]PlatformLimit, len(DefaultRateLimits))
	for platform, limit := range DefaultRateLimits {
		raw := getEnv("RATE_LIMIT_"+strings.ToUpper(platform), "")
		if raw == "" {
			limits[platform] = limit
			continue
		}
		parsed, ok := parseLimit(raw)
		if !ok {
			slog.Warn("ignoring malformed rate limit", "platform", platform, "value", raw)
			limits[platform] = limit
			continue
		}
		limits[platform] = parsed
	}
	return limits
}

func parseLimit(raw string) (PlatformLimit, bool) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return PlatformLimit{}, false
	}
	values := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 {
			return PlatformLimit{}, false
		}
		values[i] = v
	}
	return PlatformLimit{Hourly: values[0], Daily: values[1], Burst: values[2]}, true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer in environment", "key", key, "value", value)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration in environment", "key", key, "value", value)
		return defaultValue
	}
	return d
}
