package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Dashboard configures cmd/dashboard.
type Dashboard struct {
	ServerAddr     string        `yaml:"server_addr"`
	ServiceURL     string        `yaml:"download_service_url"`
	ServiceToken   string        `yaml:"download_service_token"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	NoticeTTL      time.Duration `yaml:"notice_ttl"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ViewTTL        time.Duration `yaml:"view_ttl"`
	MaxFormRows    int           `yaml:"max_form_rows"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	LogLevel       string        `yaml:"log_level"`
}

// DevService configures cmd/devservice, the simulated download service.
type DevService struct {
	ServerAddr  string        `yaml:"devservice_addr"`
	RedisURL    string        `yaml:"redis_url"`
	WorkerCount int           `yaml:"worker_count"`
	MaxBatch    int           `yaml:"max_batch"`
	StepDelay   time.Duration `yaml:"step_delay"`
	JWTSecret   string        `yaml:"jwt_secret"`
	LogLevel    string        `yaml:"log_level"`
}

// DefaultDashboard returns the dashboard defaults.
func DefaultDashboard() Dashboard {
	return Dashboard{
		ServerAddr:     ":8080",
		ServiceURL:     "http://localhost:8000/api",
		PollInterval:   2 * time.Second,
		NoticeTTL:      5 * time.Second,
		RequestTimeout: 10 * time.Second,
		ViewTTL:        30 * time.Minute,
		MaxFormRows:    15,
		AllowedOrigins: []string{"*"},
		LogLevel:       "info",
	}
}

// DefaultDevService returns the simulated service defaults.
func DefaultDevService() DevService {
	return DevService{
		ServerAddr:  ":8000",
		WorkerCount: 3,
		MaxBatch:    5,
		StepDelay:   500 * time.Millisecond,
		LogLevel:    "info",
	}
}

// LoadDotEnv loads .env files into the process environment. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// LoadDashboard builds the dashboard config from defaults, the optional
// CONFIG_FILE overlay and the environment, in that order.
func LoadDashboard() (Dashboard, error) {
	cfg := DefaultDashboard()
	if err := overlayFile(&cfg); err != nil {
		return cfg, err
	}

	var ge getenv
	cfg.ServerAddr = ge.String("SERVER_ADDR", cfg.ServerAddr)
	cfg.ServiceURL = strings.TrimRight(ge.String("DOWNLOAD_SERVICE_URL", cfg.ServiceURL), "/")
	cfg.ServiceToken = ge.String("DOWNLOAD_SERVICE_TOKEN", cfg.ServiceToken)
	cfg.PollInterval = ge.Duration("POLL_INTERVAL", cfg.PollInterval)
	cfg.NoticeTTL = ge.Duration("NOTICE_TTL", cfg.NoticeTTL)
	cfg.RequestTimeout = ge.Duration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ViewTTL = ge.Duration("VIEW_TTL", cfg.ViewTTL)
	cfg.MaxFormRows = ge.Int("MAX_FORM_ROWS", cfg.MaxFormRows)
	cfg.AllowedOrigins = ge.List("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.LogLevel = ge.String("LOG_LEVEL", cfg.LogLevel)

	if err := ge.Err(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the dashboard config for unusable values.
func (c Dashboard) Validate() error {
	var errs []error
	if c.ServiceURL == "" {
		errs = append(errs, errors.New("config: DOWNLOAD_SERVICE_URL is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("config: POLL_INTERVAL must be positive"))
	}
	if c.NoticeTTL <= 0 {
		errs = append(errs, errors.New("config: NOTICE_TTL must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("config: REQUEST_TIMEOUT must be positive"))
	}
	if c.MaxFormRows <= 0 {
		errs = append(errs, errors.New("config: MAX_FORM_ROWS must be positive"))
	}
	return errors.Join(errs...)
}

// LoadDevService builds the simulated service config.
func LoadDevService() (DevService, error) {
	cfg := DefaultDevService()
	if err := overlayFile(&cfg); err != nil {
		return cfg, err
	}

	var ge getenv
	cfg.ServerAddr = ge.String("DEVSERVICE_ADDR", cfg.ServerAddr)
	cfg.RedisURL = ge.String("REDIS_URL", cfg.RedisURL)
	cfg.WorkerCount = ge.Int("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxBatch = ge.Int("MAX_BATCH", cfg.MaxBatch)
	cfg.StepDelay = ge.Duration("STEP_DELAY", cfg.StepDelay)
	cfg.JWTSecret = ge.String("JWT_SECRET", cfg.JWTSecret)
	cfg.LogLevel = ge.String("LOG_LEVEL", cfg.LogLevel)

	if err := ge.Err(); err != nil {
		return cfg, err
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 3
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 5
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = generateDefaultSecret()
	}
	return cfg, nil
}

// overlayFile decodes CONFIG_FILE, when set, over the defaults in dst.
// Keys absent from the file keep their defaults.
func overlayFile(dst any) error {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func generateDefaultSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "dev-secret-change-in-production"
	}
	return hex.EncodeToString(bytes)
}
