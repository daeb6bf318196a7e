package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env             string
	HTTPPort        string
	APIBaseURL      string
	APITimeout      time.Duration
	SocketURL       string
	ChatRelay       bool
	RedisAddr       string
	DatabaseURL     string
	SessionTTL      time.Duration
	SessionBackend  string
	DigestWindow    time.Duration
	DigestDelivery  string
	QueueBackend    string
	RateLimitPerMin int
	CORSOrigins     []string
	RollbarToken    string
	CtlHome         string
}

// Load returns application config populated from environment variables with sensible defaults.
// A .env file in the working directory is read first when present.
func Load() App {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env not loaded: %v", err)
	}
	return App{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPPort:        getEnv("HTTP_PORT", "8081"),
		APIBaseURL:      strings.TrimRight(getEnv("LMS_API_URL", "http://localhost:5000/api"), "/"),
		APITimeout:      durationEnv("API_TIMEOUT", 15*time.Second),
		SocketURL:       getEnv("LMS_SOCKET_URL", "ws://localhost:5000/ws"),
		ChatRelay:       boolEnv("CHAT_RELAY", false),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		DatabaseURL:     getEnv("DATABASE_URL", "sqlite://./lmsportal.db"),
		SessionTTL:      durationEnv("SESSION_TTL", 7*24*time.Hour),
		SessionBackend:  getEnv("SESSION_BACKEND", "redis"),
		DigestWindow:    durationEnv("DIGEST_WINDOW", time.Hour),
		DigestDelivery:  getEnv("DIGEST_DELIVERY", "direct"),
		QueueBackend:    getEnv("QUEUE_BACKEND", "redis"),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 30),
		CORSOrigins:     listEnv("CORS_ORIGINS", []string{"http://localhost:5173"}),
		RollbarToken:    getEnv("ROLLBAR_TOKEN", ""),
		CtlHome:         getEnv("LMSCTL_HOME", defaultCtlHome()),
	}
}

// Production reports whether the app runs with production settings.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

func defaultCtlHome() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".lmsctl"
	}
	return dir + string(os.PathSeparator) + "lmsctl"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

func listEnv(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
