package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envPollInterval       = "SS_POLL_INTERVAL"
	envStartTimeout       = "SS_START_TIMEOUT"
	envStopTimeout        = "SS_STOP_TIMEOUT"
	envHealthCheckTimeout = "SS_HEALTH_CHECK_TIMEOUT"
	envHealthMaxAge       = "SS_HEALTH_MAX_AGE"
	envMetricsHistorySize = "SS_METRICS_HISTORY_SIZE"
	envAlertRetention     = "SS_ALERT_RETENTION"
	envHTTPPort           = "SS_HTTP_PORT"
	envMetricsPort        = "SS_METRICS_PORT"
	envSlackWebhookURL    = "SS_SLACK_WEBHOOK_URL"
	envWebhookURL         = "SS_WEBHOOK_URL"
	envDryRun             = "SS_DRY_RUN"
	envLogLevel           = "SS_LOG_LEVEL"
	envManifestPath       = "SS_MANIFEST"
)

const (
	defaultPollInterval       = 15 * time.Second
	defaultStartTimeout       = 30 * time.Second
	defaultStopTimeout        = 15 * time.Second
	defaultHealthCheckTimeout = 5 * time.Second
	defaultHealthMaxAge       = 60 * time.Second
	defaultMetricsHistorySize = 120
	defaultAlertRetention     = time.Hour
	defaultHTTPPort           = 8080
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	PollInterval       time.Duration
	StartTimeout       time.Duration
	StopTimeout        time.Duration
	HealthCheckTimeout time.Duration
	HealthMaxAge       time.Duration
	MetricsHistorySize int
	AlertRetention     time.Duration
	HTTPPort           int
	MetricsPort        int
	SlackWebhookURL    string
	WebhookURL         string
	DryRun             bool
	LogLevel           string
	ManifestPath       string
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		PollInterval:       defaultPollInterval,
		StartTimeout:       defaultStartTimeout,
		StopTimeout:        defaultStopTimeout,
		HealthCheckTimeout: defaultHealthCheckTimeout,
		HealthMaxAge:       defaultHealthMaxAge,
		MetricsHistorySize: defaultMetricsHistorySize,
		AlertRetention:     defaultAlertRetention,
		HTTPPort:           defaultHTTPPort,
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{envPollInterval, &cfg.PollInterval},
		{envStartTimeout, &cfg.StartTimeout},
		{envStopTimeout, &cfg.StopTimeout},
		{envHealthCheckTimeout, &cfg.HealthCheckTimeout},
		{envHealthMaxAge, &cfg.HealthMaxAge},
		{envAlertRetention, &cfg.AlertRetention},
	}
	for _, d := range durations {
		if value, ok := lookupTrimmed(d.key); ok {
			parsed, err := time.ParseDuration(value)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
			}
			if parsed <= 0 {
				return Config{}, fmt.Errorf("%s must be greater than zero", d.key)
			}
			*d.target = parsed
		}
	}

	if value, ok := lookupTrimmed(envMetricsHistorySize); ok {
		size, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envMetricsHistorySize, err)
		}
		if size < 1 {
			return Config{}, fmt.Errorf("%s must be at least 1", envMetricsHistorySize)
		}
		cfg.MetricsHistorySize = size
	}

	ports := []struct {
		key    string
		target *int
	}{
		{envHTTPPort, &cfg.HTTPPort},
		{envMetricsPort, &cfg.MetricsPort},
	}
	for _, p := range ports {
		if value, ok := lookupTrimmed(p.key); ok {
			port, err := strconv.Atoi(value)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", p.key, err)
			}
			if port < 0 || port > 65535 {
				return Config{}, fmt.Errorf("%s must be a valid port", p.key)
			}
			*p.target = port
		}
	}

	if value, ok := lookupTrimmed(envSlackWebhookURL); ok {
		if err := validateURL(value, envSlackWebhookURL); err != nil {
			return Config{}, err
		}
		cfg.SlackWebhookURL = value
	}

	if value, ok := lookupTrimmed(envWebhookURL); ok {
		if err := validateURL(value, envWebhookURL); err != nil {
			return Config{}, err
		}
		cfg.WebhookURL = value
	}

	if value, ok := lookupTrimmed(envDryRun); ok {
		dryRun, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envDryRun, err)
		}
		cfg.DryRun = dryRun
	}

	if value, ok := lookupTrimmed(envLogLevel); ok {
		cfg.LogLevel = strings.ToLower(value)
	}

	if value, ok := lookupTrimmed(envManifestPath); ok {
		cfg.ManifestPath = value
	}

	return cfg, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
