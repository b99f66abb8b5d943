package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Environment string
	Port        string
	Version     string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	AdminEmail    string
	AdminPassword string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Firebase Config
	FirebaseCredentials string
	FirebaseProjectID   string
	UseFirestore        bool
	FirestoreCollection string

	// Twilio Config
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	// Help workflow
	HelpCooldown          time.Duration
	HelpCountdownSeconds  int
	HelpTickInterval      time.Duration
	DispatchTimeout       time.Duration
	HelpIdleTimeout       time.Duration
	DispatchRetentionDays int

	// Device state kept in Redis
	PositionTTL       time.Duration
	ConnectionTTL     time.Duration
	CooldownTTL       time.Duration
	LocationMaxAge    time.Duration
	KitResyncInterval time.Duration

	// App Settings
	RateLimitRequest     int // per minute
	HelpRateLimitRequest int // per minute, per device
	CORSOrigins          []string

	// WebSocket
	WSMessagesPerSecond float64
	WSBurst             int
	WSIdleTimeout       time.Duration
}

// Load reads the environment, after merging a .env file when one exists.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		Version:     getEnv("APP_VERSION", "1.0.0"),
		DatabaseURL: getEnv("DATABASE_URL", "mongodb://localhost:27017/preventanyl"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:   getEnv("JWT_SECRET", "your-super-secret-jwt-key"),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		AccessTokenTTL:  getEnvAsDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		RefreshTokenTTL: getEnvAsDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),

		// Firebase
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),
		FirebaseProjectID:   getEnv("FIREBASE_PROJECT_ID", ""),
		UseFirestore:        getEnvAsBool("USE_FIRESTORE", false),
		FirestoreCollection: getEnv("FIRESTORE_KITS_COLLECTION", "staticKits"),

		// Twilio
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber: getEnv("TWILIO_PHONE_NUMBER", ""),

		// Help workflow
		HelpCooldown:          getEnvAsDuration("HELP_COOLDOWN", 10*time.Minute),
		HelpCountdownSeconds:  getEnvAsInt("HELP_COUNTDOWN_SECONDS", 5),
		HelpTickInterval:      getEnvAsDuration("HELP_TICK_INTERVAL", time.Second),
		DispatchTimeout:       getEnvAsDuration("DISPATCH_TIMEOUT", 30*time.Second),
		HelpIdleTimeout:       getEnvAsDuration("HELP_IDLE_TIMEOUT", 30*time.Minute),
		DispatchRetentionDays: getEnvAsInt("DISPATCH_RETENTION_DAYS", 90),

		PositionTTL:       getEnvAsDuration("POSITION_TTL", time.Hour),
		ConnectionTTL:     getEnvAsDuration("CONNECTION_TTL", 10*time.Minute),
		CooldownTTL:       getEnvAsDuration("COOLDOWN_TTL", 24*time.Hour),
		LocationMaxAge:    getEnvAsDuration("LOCATION_MAX_AGE", 10*time.Minute),
		KitResyncInterval: getEnvAsDuration("KIT_RESYNC_INTERVAL", 5*time.Minute),

		// App Settings
		RateLimitRequest:     getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		HelpRateLimitRequest: getEnvAsInt("HELP_RATE_LIMIT_REQUESTS", 10),
		CORSOrigins:          getEnvAsList("CORS_ORIGINS", []string{"*"}),

		WSMessagesPerSecond: getEnvAsFloat("WS_MESSAGES_PER_SECOND", 5),
		WSBurst:             getEnvAsInt("WS_BURST", 20),
		WSIdleTimeout:       getEnvAsDuration("WS_IDLE_TIMEOUT", 10*time.Minute),
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func InitRedis(cfg *Config) *redis.Client {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logrus.Warnf("Invalid REDIS_URL %q, falling back to localhost: %v", cfg.RedisURL, err)
		opt = &redis.Options{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		}
	}

	client := redis.NewClient(opt)
	return client
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or a plain number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
