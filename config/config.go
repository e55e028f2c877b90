package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"auction-importer/storage"
)

// ErrMissingBackend is returned by Validate when the hosted backend URL or
// public API key is absent.
var ErrMissingBackend = errors.New("hosted backend is not configured")

// Config holds all application configuration loaded from environment variables.
type Config struct {
	BackendURL    string
	BackendAPIKey string

	Storage  StorageConfig
	Import   ImportConfig
	Scraper  ScraperConfig
	Function FunctionConfig
	Redis    RedisConfig
	Events   EventsConfig

	HTTPAddr        string
	CORSOrigin      string
	SecureCookies   bool
	LogLevel        string
	OTelServiceName string
}

type StorageConfig struct {
	Driver      string // postgres | pgx | pebble | memory
	DatabaseURL string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	PebbleDir string
	ChunkSize int
	MaxConns  int
}

type ImportConfig struct {
	MaxBytes    int64
	MaxRecords  int
	PricePolicy string // thousands | none
	RawAuditCSV string
	LockTTL     time.Duration
}

type ScraperConfig struct {
	FunctionPath    string
	Timeout         time.Duration
	RandomUserAgent bool
	MockFallback    bool
	ImportMock      bool
	RequestsPerSec  float64
}

type FunctionConfig struct {
	Addr        string
	Browser     bool
	ChromeBin   string
	RulesFile   string
	MaxInFlight int
	MinInterval time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type EventsConfig struct {
	Driver       string // none | nats | kafka
	NATSURL      string
	NATSSubject  string
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		BackendURL:    strings.TrimRight(getEnv("BACKEND_URL", ""), "/"),
		BackendAPIKey: getEnv("BACKEND_API_KEY", ""),

		Storage: StorageConfig{
			Driver:           strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
			DatabaseURL:      getEnv("DATABASE_URL", ""),
			PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
			PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
			PostgresUser:     getEnv("POSTGRES_USER", "dealer"),
			PostgresPassword: getEnv("POSTGRES_PASSWORD", "dealer123"),
			PostgresDB:       getEnv("POSTGRES_DB", "dealership"),
			PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			PebbleDir:        getEnv("PEBBLE_DIR", "./data/auctions"),
			ChunkSize:        getEnvInt("INSERT_CHUNK_SIZE", 1000),
			MaxConns:         getEnvInt("PG_MAX_CONNS", 4),
		},

		Import: ImportConfig{
			MaxBytes:    int64(getEnvInt("IMPORT_MAX_BYTES", 100*1024*1024)),
			MaxRecords:  getEnvInt("IMPORT_MAX_RECORDS", 100000),
			PricePolicy: strings.ToLower(getEnv("PRICE_POLICY", "thousands")),
			RawAuditCSV: getEnv("RAW_AUDIT_CSV", ""),
			LockTTL:     time.Duration(getEnvInt("IMPORT_LOCK_TTL_SEC", 600)) * time.Second,
		},

		Scraper: ScraperConfig{
			FunctionPath:    getEnv("SCRAPER_FUNCTION_PATH", "/functions/v1"),
			Timeout:         time.Duration(getEnvInt("SCRAPER_TIMEOUT_MS", 60000)) * time.Millisecond,
			RandomUserAgent: getEnvBool("SCRAPER_RANDOM_UA", true),
			MockFallback:    getEnvBool("SCRAPER_MOCK_FALLBACK", true),
			ImportMock:      getEnvBool("SCRAPER_IMPORT_MOCK", false),
			RequestsPerSec:  getEnvFloat("SCRAPER_RPS", 0.5),
		},

		Function: FunctionConfig{
			Addr:        getEnv("FUNCTION_ADDR", ":8090"),
			Browser:     getEnvBool("FUNCTION_BROWSER", false),
			ChromeBin:   getEnv("CHROME_BIN", ""),
			RulesFile:   getEnv("FUNCTION_RULES_FILE", ""),
			MaxInFlight: getEnvInt("FUNCTION_MAX_INFLIGHT", 2),
			MinInterval: time.Duration(getEnvInt("FUNCTION_MIN_INTERVAL_MS", 1500)) * time.Millisecond,
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},

		Events: EventsConfig{
			Driver:       strings.ToLower(getEnv("EVENTS_DRIVER", "none")),
			NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
			NATSSubject:  getEnv("NATS_SUBJECT", "auctions.imports"),
			KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "auction-imports"),
		},

		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		CORSOrigin:      getEnv("CORS_ORIGIN", "*"),
		SecureCookies:   getEnvBool("SECURE_COOKIES", false),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		OTelServiceName: getEnv("OTEL_SERVICE_NAME", "auction-importer"),
	}
}

// Validate reports configuration the application cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.BackendURL == "" {
		missing = append(missing, "BACKEND_URL")
	}
	if c.BackendAPIKey == "" {
		missing = append(missing, "BACKEND_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s", ErrMissingBackend, strings.Join(missing, " and "))
	}
	return c.ValidateStorage()
}

// ValidateStorage checks the storage settings every command depends on.
func (c *Config) ValidateStorage() error {
	if c.Storage.ChunkSize <= 0 || c.Storage.ChunkSize > storage.MaxChunkSize {
		return fmt.Errorf("config: INSERT_CHUNK_SIZE must be between 1 and %d, got %d", storage.MaxChunkSize, c.Storage.ChunkSize)
	}
	return nil
}

// DSN returns the PostgreSQL connection string. DATABASE_URL wins when set.
func (c *Config) DSN() string {
	if c.Storage.DatabaseURL != "" {
		return c.Storage.DatabaseURL
	}
	s := c.Storage
	return "host=" + s.PostgresHost +
		" port=" + s.PostgresPort +
		" user=" + s.PostgresUser +
		" password=" + s.PostgresPassword +
		" dbname=" + s.PostgresDB +
		" sslmode=" + s.PostgresSSLMode
}

// RedisAddr returns host:port, or "" when Redis is not configured.
func (c *Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return c.Redis.Host + ":" + c.Redis.Port
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err == nil {
			return b
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
