package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Port        string
	Environment string

	AdminAPIToken string

	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// Dispatcher
	DispatcherWorkers      int
	DispatcherBatchSize    int
	DispatcherPollInterval time.Duration
	AdapterTimeout         time.Duration
	StaleSendingAfter      time.Duration
	RateLimitDefer         time.Duration

	// Retry escalation, whole minutes per attempt.
	BackoffMinutes []int

	// Circuit breaker thresholds, applied per channel.
	BreakerFailureRate   float64
	BreakerMinCalls      int
	BreakerWindowSize    int
	BreakerOpenWait      time.Duration
	BreakerHalfOpenCalls int

	// Rate limiter, requests per minute.
	ChannelRPM map[message.Channel]int
	TierRPM    map[message.Tier]int
	DefaultRPM int

	MetricsInterval time.Duration

	// Provider gateway
	GatewayBaseURL string
	GatewayAPIKey  string
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "dossier-messaging"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Port:        getenv("PORT", "8082"),
		Environment: getenv("ENVIRONMENT", "development"),

		AdminAPIToken: strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),

		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "messaging"),
		DBUser:            getenv("DB_USER", "postgres"),
		DBPassword:        getenv("DB_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DB_SSL_MODE", "disable"),
		DBMaxIdleConn:     getenvInt("DB_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DB_MAX_OPEN_CONN", 100),
		DBConnMaxLifetime: getenvInt("DB_CONN_MAX_LIFETIME", 3600),

		DispatcherWorkers:      getenvInt("DISPATCHER_WORKERS", 4),
		DispatcherBatchSize:    getenvInt("DISPATCHER_BATCH_SIZE", 10),
		DispatcherPollInterval: getenvDuration("DISPATCHER_POLL_INTERVAL", 5*time.Second),
		AdapterTimeout:         getenvDuration("ADAPTER_TIMEOUT", 30*time.Second),
		StaleSendingAfter:      getenvDuration("STALE_SENDING_AFTER", 10*time.Minute),
		RateLimitDefer:         getenvDuration("RATE_LIMIT_DEFER", 60*time.Second),

		BackoffMinutes: getenvIntList("BACKOFF_MINUTES", []int{1, 5, 15, 60, 360}),

		BreakerFailureRate:   getenvFloat("BREAKER_FAILURE_RATE", 0.5),
		BreakerMinCalls:      getenvInt("BREAKER_MIN_CALLS", 10),
		BreakerWindowSize:    getenvInt("BREAKER_WINDOW_SIZE", 10),
		BreakerOpenWait:      getenvDuration("BREAKER_OPEN_WAIT", 60*time.Second),
		BreakerHalfOpenCalls: getenvInt("BREAKER_HALF_OPEN_CALLS", 3),

		DefaultRPM: getenvInt("RATE_LIMIT_DEFAULT_RPM", 600),
		ChannelRPM: map[message.Channel]int{
			message.ChannelEmail:    getenvInt("RATE_LIMIT_EMAIL_RPM", 600),
			message.ChannelSMS:      getenvInt("RATE_LIMIT_SMS_RPM", 300),
			message.ChannelWhatsApp: getenvInt("RATE_LIMIT_WHATSAPP_RPM", 300),
			message.ChannelChat:     getenvInt("RATE_LIMIT_CHAT_RPM", 600),
			message.ChannelInApp:    getenvInt("RATE_LIMIT_IN_APP_RPM", 1200),
		},
		TierRPM: map[message.Tier]int{
			message.TierStandard: getenvInt("RATE_LIMIT_TIER1_RPM", 60),
			message.TierGrowth:   getenvInt("RATE_LIMIT_TIER2_RPM", 300),
			message.TierScale:    getenvInt("RATE_LIMIT_TIER3_RPM", 1200),
		},

		MetricsInterval: getenvDuration("METRICS_INTERVAL", 30*time.Second),

		GatewayBaseURL: strings.TrimRight(getenv("GATEWAY_BASE_URL", "http://localhost:9090"), "/"),
		GatewayAPIKey:  strings.TrimSpace(getenv("GATEWAY_API_KEY", "")),
	}

	return &cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvIntList(key string, def []int) []int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return def
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return def
	}
	return out
}
