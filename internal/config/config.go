// Package config loads and validates the harvester's environment-variable
// configuration, grounded on the teacher's config.LoadConfig/Validate
// load-then-validate two-step and on original_source/sis_scraper/main.py's
// load_dotenv()-then-required-os.getenv() sequence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the harvester's fully resolved, validated runtime configuration.
type Config struct {
	SISBaseURL  string
	EmailDomain string

	LogsDir            string
	RawOutputDataDir   string
	ProcessedOutputDir string
	CodeMapsDir        string

	AttributeMapFilename   string
	InstructorMapFilename  string
	RestrictionMapFilename string
	SubjectMapFilename     string

	LogLevel  string
	LogPretty bool
	AppVersion string

	MetricsAddr string

	SessionCap         int
	PerHostConnCap     int
	FetchTimeout       time.Duration

	RedisAddr        string
	ElasticsearchURL string
}

// Load reads a .env file if present (a missing file is not an error, it
// simply falls back to the process environment), then resolves every
// field, applying optional defaults and failing fast on any missing
// required variable.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		SISBaseURL:  os.Getenv("SIS_BASE_URL"),
		EmailDomain: os.Getenv("SCRAPER_EMAIL_DOMAIN"),

		LogsDir:            os.Getenv("SCRAPER_LOGS_DIR"),
		RawOutputDataDir:   os.Getenv("SCRAPER_RAW_OUTPUT_DATA_DIR"),
		ProcessedOutputDir: os.Getenv("SCRAPER_PROCESSED_OUTPUT_DATA_DIR"),
		CodeMapsDir:        os.Getenv("SCRAPER_CODE_MAPS_DIR"),

		AttributeMapFilename:   os.Getenv("ATTRIBUTE_CODE_NAME_MAP_FILENAME"),
		InstructorMapFilename:  os.Getenv("INSTRUCTOR_RCSID_NAME_MAP_FILENAME"),
		RestrictionMapFilename: os.Getenv("RESTRICTION_CODE_NAME_MAP_FILENAME"),
		SubjectMapFilename:     os.Getenv("SUBJECT_CODE_NAME_MAP_FILENAME"),

		LogLevel:   getEnvDefault("LOG_LEVEL", "info"),
		LogPretty:  os.Getenv("LOG_PRETTY") == "true",
		AppVersion: getEnvDefault("APP_VERSION", "dev"),

		MetricsAddr: getEnvDefault("METRICS_ADDR", ":9092"),

		SessionCap:     getEnvIntDefault("SESSION_CAP", 10),
		PerHostConnCap: getEnvIntDefault("PER_HOST_CONN_CAP", 5),
		FetchTimeout:   time.Duration(getEnvIntDefault("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,

		RedisAddr:        os.Getenv("REDIS_ADDR"),
		ElasticsearchURL: os.Getenv("ELASTICSEARCH_URL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every required field is present, mirroring main.py's
// "one or more required environment variables are not set" fatal exit.
func (c *Config) Validate() error {
	required := map[string]string{
		"SIS_BASE_URL":                          c.SISBaseURL,
		"SCRAPER_EMAIL_DOMAIN":                  c.EmailDomain,
		"SCRAPER_LOGS_DIR":                      c.LogsDir,
		"SCRAPER_RAW_OUTPUT_DATA_DIR":           c.RawOutputDataDir,
		"SCRAPER_PROCESSED_OUTPUT_DATA_DIR":     c.ProcessedOutputDir,
		"SCRAPER_CODE_MAPS_DIR":                 c.CodeMapsDir,
		"ATTRIBUTE_CODE_NAME_MAP_FILENAME":      c.AttributeMapFilename,
		"INSTRUCTOR_RCSID_NAME_MAP_FILENAME":    c.InstructorMapFilename,
		"RESTRICTION_CODE_NAME_MAP_FILENAME":    c.RestrictionMapFilename,
		"SUBJECT_CODE_NAME_MAP_FILENAME":        c.SubjectMapFilename,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("required environment variable %s is not set", name)
		}
	}
	if c.SessionCap < 1 {
		return fmt.Errorf("SESSION_CAP must be >= 1")
	}
	if c.PerHostConnCap < 1 {
		return fmt.Errorf("PER_HOST_CONN_CAP must be >= 1")
	}
	return nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}
