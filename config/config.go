package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DBDriver   string `validate:"oneof=sqlite postgres"`
	SQLitePath string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RequestDelayMin   time.Duration `validate:"gte=0"`
	RequestDelayMax   time.Duration `validate:"gtefield=RequestDelayMin"`
	MaxRetries        int           `validate:"gte=1,lte=10"`
	RequestsPerMinute int           `validate:"gte=0"`
	RequestTimeout    time.Duration `validate:"gt=0"`

	UseCache  bool
	CacheTTL  time.Duration
	RedisAddr string

	UseBrowser   bool
	ChromeBin    string
	FetchDetails bool

	PolicyFile    string
	HTTPAddr      string
	ExportCSVPath string

	LogFile       string
	LogLevel      string `validate:"oneof=debug info warn error"`
	LogMaxSizeMB  int    `validate:"gte=1"`
	LogMaxBackups int    `validate:"gte=0"`
}

// Load reads the .env file and returns a populated Config struct.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		SQLitePath: getEnv("SQLITE_PATH", "./data/listings.db"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "deals"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "deals123"),
		PostgresDB:       getEnv("POSTGRES_DB", "timeshare_deals"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RequestDelayMin:   time.Duration(getEnvInt("REQUEST_DELAY_MIN_MS", 2000)) * time.Millisecond,
		RequestDelayMax:   time.Duration(getEnvInt("REQUEST_DELAY_MAX_MS", 5000)) * time.Millisecond,
		MaxRetries:        getEnvInt("MAX_RETRIES", 3),
		RequestsPerMinute: getEnvInt("REQUESTS_PER_MINUTE", 20),
		RequestTimeout:    time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		UseCache:  getEnvBool("USE_CACHE", false),
		CacheTTL:  time.Duration(getEnvInt("CACHE_TTL_SEC", 900)) * time.Second,
		RedisAddr: getEnv("REDIS_ADDR", ""),

		UseBrowser:   getEnvBool("USE_BROWSER", false),
		ChromeBin:    getEnv("CHROME_BIN", ""),
		FetchDetails: getEnvBool("FETCH_DETAILS", true),

		PolicyFile:    getEnv("POLICY_FILE", ""),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		ExportCSVPath: getEnv("EXPORT_CSV_PATH", "./output/deals.csv"),

		LogFile:       getEnv("LOG_FILE", ""),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 10),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints declared in struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
