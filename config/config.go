package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Dataset     string `validate:"required"`
	StoreDriver string `validate:"oneof=sqlite postgres"`
	StoreDir    string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	MaxConcurrency  int           `validate:"min=1"`
	RequestDelayMin time.Duration `validate:"gte=0"`
	RequestDelayMax time.Duration `validate:"gtefield=RequestDelayMin"`
	MaxRetries      int           `validate:"min=1"`
	FetchTimeout    time.Duration `validate:"gt=0"`
	MaxItems        int           `validate:"gte=0"`
	SourcesFile     string

	OracleTimeout time.Duration `validate:"gt=0"`
	GeocodeRPS    float64       `validate:"gt=0"`
	RoutingRPS    float64       `validate:"gt=0"`
	TransitRPS    float64       `validate:"gt=0"`
	NominatimURL  string        `validate:"omitempty,url"`
	OSRMURL       string        `validate:"omitempty,url"`
	TransitURL    string        `validate:"omitempty,url"`
	UserAgent     string

	LLMProvider      string  `validate:"oneof=gemini ollama none"`
	LLMModel         string
	GeminiAPIKey     string
	OllamaURL        string  `validate:"omitempty,url"`
	LLMMaxInputChars int     `validate:"min=500"`
	LLMRPS           float64 `validate:"gt=0"`

	WorkLat           float64 `validate:"latitude"`
	WorkLng           float64 `validate:"longitude"`
	Region            string  `validate:"required"`
	Country           string
	ReferenceCurrency string  `validate:"len=3"`

	CSVOutputPath    string
	FailedOutputPath string
	ChromeBin        string
	LogLevel         string
	APIAddr          string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		Dataset:     getEnv("DATASET", "amsterdam"),
		StoreDriver: getEnv("STORE_DRIVER", "sqlite"),
		StoreDir:    getEnv("STORE_DIR", "./data"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "rental_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MaxConcurrency:  getEnvInt("MAX_CONCURRENCY", 3),
		RequestDelayMin: getEnvDuration("REQUEST_DELAY_MIN", 2*time.Second),
		RequestDelayMax: getEnvDuration("REQUEST_DELAY_MAX", 5*time.Second),
		MaxRetries:      getEnvInt("MAX_RETRIES", 3),
		FetchTimeout:    getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		MaxItems:        getEnvInt("MAX_ITEMS", 0),
		SourcesFile:     getEnv("SOURCES_FILE", ""),

		OracleTimeout: getEnvDuration("ORACLE_TIMEOUT", 10*time.Second),
		GeocodeRPS:    getEnvFloat("GEOCODE_RPS", 1),
		RoutingRPS:    getEnvFloat("ROUTING_RPS", 2),
		TransitRPS:    getEnvFloat("TRANSIT_RPS", 1),
		NominatimURL:  getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		OSRMURL:       getEnv("OSRM_URL", "https://router.project-osrm.org"),
		TransitURL:    getEnv("TRANSIT_URL", ""),
		UserAgent:     getEnv("USER_AGENT", "rental-scraper/1.0"),

		LLMProvider:      strings.ToLower(getEnv("LLM_PROVIDER", "none")),
		LLMModel:         getEnv("LLM_MODEL", ""),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
		LLMMaxInputChars: getEnvInt("LLM_MAX_INPUT_CHARS", 12000),
		LLMRPS:           getEnvFloat("LLM_RPS", 1),

		WorkLat:           getEnvFloat("WORK_LAT", 52.2958),
		WorkLng:           getEnvFloat("WORK_LNG", 4.8374),
		Region:            strings.ToLower(getEnv("REGION", "amsterdam")),
		Country:           getEnv("COUNTRY", "Netherlands"),
		ReferenceCurrency: strings.ToUpper(getEnv("REFERENCE_CURRENCY", "EUR")),

		CSVOutputPath:    getEnv("CSV_OUTPUT_PATH", "./output/listings.csv"),
		FailedOutputPath: getEnv("FAILED_OUTPUT_PATH", "./output/failed_listings.yaml"),
		ChromeBin:        getEnv("CHROME_BIN", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		APIAddr:          getEnv("API_ADDR", ":8080"),
	}
}

// Validate checks the loaded values. A misconfiguration is fatal at startup.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.LLMProvider == "gemini" && c.GeminiAPIKey == "" {
		return fmt.Errorf("config: LLM_PROVIDER=gemini requires GEMINI_API_KEY")
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

// StorePath returns the sqlite file for the configured dataset. Each dataset
// gets its own file so stores are never shared.
func (c *Config) StorePath() string {
	return filepath.Join(c.StoreDir, c.Dataset+".db")
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

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("2s", "500ms") or plain seconds ("2").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return fallback
}
