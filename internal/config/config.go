package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config is the runtime configuration of the billing service.
type Config struct {
	ServiceName        string         `yaml:"service_name" validate:"required"`
	LogLevel           string         `yaml:"log_level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	DatabaseURL        string         `yaml:"database_url"`
	FactsFile          string         `yaml:"facts_file" validate:"required_without=DatabaseURL"`
	Currency           string         `yaml:"currency" validate:"required,len=3"`
	ExportDir          string         `yaml:"export_dir" validate:"required"`
	MetricsTextfile    string         `yaml:"metrics_textfile"`
	SummaryConcurrency int            `yaml:"summary_concurrency" validate:"min=1,max=64"`
	Schedule           ScheduleConfig `yaml:"schedule"`
}

// ScheduleConfig is when the monthly invoice run fires. The run bills the
// previous calendar month.
type ScheduleConfig struct {
	DayOfMonth int      `yaml:"day_of_month" validate:"min=1,max=28"`
	At         string   `yaml:"at" validate:"datetime=15:04"`
	Tenants    []string `yaml:"tenants"`
}

// Load reads defaults, then .env, environment variables and the optional
// YAML file named by BILLING_CONFIG, and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ServiceName:        getenvDefault("SERVICE_NAME", "utility-billing"),
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		FactsFile:          os.Getenv("FACTS_FILE"),
		Currency:           getenvDefault("CURRENCY", "EUR"),
		ExportDir:          getenvDefault("EXPORT_DIR", filepath.FromSlash("var/invoices")),
		MetricsTextfile:    os.Getenv("METRICS_TEXTFILE"),
		SummaryConcurrency: getenvIntDefault("SUMMARY_CONCURRENCY", 4),
		Schedule: ScheduleConfig{
			DayOfMonth: getenvIntDefault("SCHEDULE_DAY", 1),
			At:         getenvDefault("SCHEDULE_AT", "02:00"),
			Tenants:    splitCSV(os.Getenv("SCHEDULE_TENANTS")),
		},
	}

	if path := os.Getenv("BILLING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Currency = strings.ToUpper(cfg.Currency)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s fails %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// UsesDatabase reports whether facts come from Postgres.
func (c Config) UsesDatabase() bool { return c.DatabaseURL != "" }

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
