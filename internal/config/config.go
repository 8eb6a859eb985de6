package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port        string
	Env         string
	FrontendURL string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBTimeZone string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// JWT
	JWTSecret               string
	JWTAccessTokenDuration  time.Duration
	JWTRefreshTokenDuration time.Duration

	// Default admin
	AdminName     string
	AdminEmail    string
	AdminPassword string
	AdminPhone    string

	// Logging
	LogLevel  string
	LogFormat string // "json" | "text"

	// Security
	BcryptCost        int
	RateLimitRequests int
	RateLimitDuration time.Duration

	// CORS
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string

	// Password recovery
	RecoveryStore             string // "memory" | "redis"
	RecoveryCodeTTL           time.Duration
	RecoveryMaxAttempts       int
	RecoveryEligibleRole      string
	RecoveryPurgeInterval     time.Duration
	RecoveryDebugEcho         bool
	RecoveryRateLimitRequests int
	RecoveryRateLimitWindow   time.Duration

	// Notifier
	NotifierProvider string // "whatsapp" | "seven" | "log"
	SMSFrom          string
	SevenAPIKey      string

	// WhatsApp Cloud API
	WhatsAppBaseURL       string
	WhatsAppPhoneNumberID string
	WhatsAppAccessToken   string
	WhatsAppTemplate      string
	WhatsAppLanguage      string
}

func New() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "internhub"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "internhub_db"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),
		DBTimeZone: getEnv("DB_TIMEZONE", "Asia/Kolkata"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// JWT
		JWTSecret:               getEnv("JWT_SECRET", "your-secret-key"),
		JWTAccessTokenDuration:  getEnvAsDuration("JWT_ACCESS_TOKEN_DURATION", "1h"),
		JWTRefreshTokenDuration: getEnvAsDuration("JWT_REFRESH_TOKEN_DURATION", "168h"),

		// Default admin
		AdminName:     getEnv("ADMIN_NAME", "Administrator"),
		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@internhub.local"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminPhone:    getEnv("ADMIN_PHONE", ""),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		// Security
		BcryptCost:        getEnvAsInt("BCRYPT_COST", 12),
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitDuration: getEnvAsDuration("RATE_LIMIT_DURATION", "1m"),

		// CORS
		AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		AllowedMethods: getEnvAsSlice("ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		AllowedHeaders: getEnvAsSlice("ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),

		// Password recovery
		RecoveryStore:             getEnv("RECOVERY_STORE", "memory"),
		RecoveryCodeTTL:           getEnvAsDuration("RECOVERY_CODE_TTL", "10m"),
		RecoveryMaxAttempts:       getEnvAsInt("RECOVERY_MAX_ATTEMPTS", 3),
		RecoveryEligibleRole:      getEnv("RECOVERY_ELIGIBLE_ROLE", "intern"),
		RecoveryPurgeInterval:     getEnvAsDuration("RECOVERY_PURGE_INTERVAL", "5m"),
		RecoveryDebugEcho:         getEnvAsBool("RECOVERY_DEBUG_ECHO", false),
		RecoveryRateLimitRequests: getEnvAsInt("RECOVERY_RATE_LIMIT_REQUESTS", 20),
		RecoveryRateLimitWindow:   getEnvAsDuration("RECOVERY_RATE_LIMIT_WINDOW", "1h"),

		// Notifier
		NotifierProvider: getEnv("NOTIFIER_PROVIDER", "log"),
		SMSFrom:          getEnv("SMS_FROM", "InternHub"),
		SevenAPIKey:      getEnv("SEVEN_API_KEY", ""),

		// WhatsApp Cloud API
		WhatsAppBaseURL:       getEnv("WHATSAPP_BASE_URL", "https://graph.facebook.com/v19.0"),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppTemplate:      getEnv("WHATSAPP_TEMPLATE", "password_reset_otp"),
		WhatsAppLanguage:      getEnv("WHATSAPP_LANGUAGE", "en"),
	}
}

// IsProduction reports whether the service runs with production safeguards.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	if duration, err := time.ParseDuration(defaultValue); err == nil {
		return duration
	}
	return time.Hour
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
