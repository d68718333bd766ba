package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort  string
	Environment string
	DevAuth     bool

	StoreDriver               string // "memory" or "firestore"
	SeedFile                  string
	FirebaseProject           string
	FirebaseServiceAccount    string
	FirebaseServiceAccountKey string

	PresenceDriver string // "memory" or "redis"
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	PresenceTTL    time.Duration

	NotifyDriver string // "log", "fcm" or "smtp"
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	WSSendTimeout    time.Duration
	WSPongWait       time.Duration
	WSAllowedOrigins []string
	ChatSendRate     int
	ChatSendInterval time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		DevAuth:     getEnvAsBool("DEV_AUTH", false),

		StoreDriver:               strings.ToLower(getEnv("STORE_DRIVER", "memory")),
		SeedFile:                  getEnv("SEED_FILE", ""),
		FirebaseProject:           getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseServiceAccount:    getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		FirebaseServiceAccountKey: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),

		PresenceDriver: strings.ToLower(getEnv("PRESENCE_DRIVER", "memory")),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvAsInt("REDIS_DB", 0),
		PresenceTTL:    getEnvAsDuration("PRESENCE_TTL", 0),

		NotifyDriver: strings.ToLower(getEnv("NOTIFY_DRIVER", "log")),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "no-reply@scrapmart.local"),

		WSSendTimeout:    getEnvAsDuration("WS_SEND_TIMEOUT", 10*time.Second),
		WSPongWait:       getEnvAsDuration("WS_PONG_WAIT", 60*time.Second),
		WSAllowedOrigins: getEnvAsList("WS_ALLOWED_ORIGINS"),
		ChatSendRate:     getEnvAsInt("CHAT_SEND_RATE", 10),
		ChatSendInterval: getEnvAsDuration("CHAT_SEND_INTERVAL", 6*time.Second),
	}

	return config, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err == nil && d >= 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
