package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	TenantID string

	JWTSecret     string
	JWTAudience   string
	JWTIssuer     string
	AllowDevToken bool

	ModelPath string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisURL   string
	SearchHost string

	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	HTTPAddr       string
	RequestTimeout int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "sieve"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,

		TenantID: getenv("TENANT_ID", "tenant_demo"),

		JWTSecret:     strings.TrimSpace(getenv("JWT_SECRET", "devsecret")),
		JWTAudience:   getenv("JWT_AUDIENCE", "invoice.sieve"),
		JWTIssuer:     getenv("JWT_ISSUER", "local.sieve"),
		AllowDevToken: getenvBool("AUTH_DEV_TOKEN", environment != "production"),

		ModelPath: getenv("DUP_MODEL_PATH", "models/dup_model.json"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "sieve"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 4),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 16),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),

		RedisURL:   getenv("REDIS_URL", ""),
		SearchHost: getenv("SEARCH_HOST", ""),

		RateLimitEnabled: getenvBool("SCORE_RATE_LIMIT_ENABLED", false),
		RateLimitRPS:     getenvFloat("SCORE_RATE_LIMIT_RPS", 25),
		RateLimitBurst:   getenvInt("SCORE_RATE_LIMIT_BURST", 50),

		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		RequestTimeout: getenvInt("REQUEST_TIMEOUT_SECONDS", 15),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
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
