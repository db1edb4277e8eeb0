package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	API       APIConfig
	Forms     FormsConfig
	DevServer DevServerConfig
}

type AppConfig struct {
	Environment string
	LogFilePath string
	DownloadDir string
}

// APIConfig points the client at the processing service.
type APIConfig struct {
	BaseURL          string
	PollInterval     time.Duration
	ProgressInterval time.Duration
	HTTPTimeout      time.Duration
}

type FormsConfig struct {
	SupabaseURL string
	AnonKey     string
}

// DevServerConfig configures the local stand-in for the processing service.
type DevServerConfig struct {
	Addr        string
	DataDir     string
	UploadDir   string
	OutputDir   string
	Workers     int
	DatabaseURL string
}

const DefaultAPIURL = "http://localhost:8000"

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Environment: getEnv("GO_ENV", "development"),
			LogFilePath: getEnv("LOG_FILE_PATH", "contract-extract.log"),
			DownloadDir: getEnv("DOWNLOAD_DIR", "."),
		},
		API: APIConfig{
			BaseURL:          getEnv("API_URL", DefaultAPIURL),
			PollInterval:     getEnvAsDuration("POLL_INTERVAL", 2*time.Second),
			ProgressInterval: getEnvAsDuration("PROGRESS_INTERVAL", time.Second),
			HTTPTimeout:      getEnvAsDuration("HTTP_TIMEOUT", 0),
		},
		Forms: FormsConfig{
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			AnonKey:     getEnv("SUPABASE_ANON_KEY", ""),
		},
		DevServer: DevServerConfig{
			Addr:        getEnv("DEVSERVER_ADDR", ":8000"),
			DataDir:     getEnv("DATA_DIR", ".data"),
			UploadDir:   getEnv("UPLOAD_DIR", ".uploads"),
			OutputDir:   getEnv("OUTPUT_DIR", ".output"),
			Workers:     getEnvAsInt("WORKERS", 4),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
	}
}

// IsProduction reports whether logs should be JSON-only on the console.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Validate checks the values every entry point relies on.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_URL must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.API.ProgressInterval <= 0 {
		return fmt.Errorf("PROGRESS_INTERVAL must be positive")
	}
	if c.DevServer.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive")
	}
	return nil
}

// ValidateForms checks the form-storage settings; only needed by form submissions.
func (c *Config) ValidateForms() error {
	if c.Forms.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.Forms.AnonKey == "" {
		return fmt.Errorf("SUPABASE_ANON_KEY is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value := getEnv(key, ""); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}
