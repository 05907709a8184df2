package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderMode selects the Account Aggregator client implementation at startup.
// It is always explicit: a missing or unknown value fails config loading rather
// than silently falling back to a mock.
type ProviderMode string

const (
	ProviderModeReal ProviderMode = "real"
	ProviderModeMock ProviderMode = "mock"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	AA         AAConfig
	Scheduler  SchedulerConfig
	TLS        TLSConfig
	Firebase   FirebaseConfig
	Telemetry  TelemetryConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	AllowedHosts []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret string
}

type EncryptionConfig struct {
	Key string
}

// AAConfig configures the Account Aggregator provider integration.
type AAConfig struct {
	Mode            ProviderMode
	BaseURL         string
	ApprovalBaseURL string
	ClientID        string
	ClientSecret    string
	// PEM-encoded public key the provider signs webhook payloads with.
	// Either the inline PEM or a file path must be set unless verification
	// is explicitly bypassed.
	WebhookPublicKeyPEM  string
	WebhookPublicKeyPath string
	// SkipWebhookVerification disables signature checks entirely. Dev/test
	// only; logged loudly at startup.
	SkipWebhookVerification bool
	// CustomerHandleSuffix is appended to the user's phone number to form
	// the provider customer handle, e.g. "9999999999@nadl".
	CustomerHandleSuffix string
	RequestTimeout       time.Duration
	ConsentValidityDays  int
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
	// Consents still PENDING after this long are polled against the
	// provider in case a status webhook was missed.
	ConsentPollAfter time.Duration
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

type FirebaseConfig struct {
	CredentialsFile string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
}

func Load() (*Config, error) {

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	// Parse scheduler configuration
	schedulerEnabled := getBoolEnv("SCHEDULER_ENABLED", true)
	schedulerTimes := strings.Split(getEnv("SCHEDULER_TIMES", "06:00,12:00,18:00"), ",")
	schedulerWorkers, err := strconv.Atoi(getEnv("SCHEDULER_WORKERS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_WORKERS: %w", err)
	}
	schedulerJobDelay, err := time.ParseDuration(getEnv("SCHEDULER_JOB_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_JOB_DELAY: %w", err)
	}
	schedulerQueueSize, err := strconv.Atoi(getEnv("SCHEDULER_QUEUE_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_QUEUE_SIZE: %w", err)
	}
	consentPollAfter, err := time.ParseDuration(getEnv("SCHEDULER_CONSENT_POLL_AFTER", "30m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_CONSENT_POLL_AFTER: %w", err)
	}

	aaTimeout, err := time.ParseDuration(getEnv("AA_REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid AA_REQUEST_TIMEOUT: %w", err)
	}
	consentValidityDays, err := strconv.Atoi(getEnv("AA_CONSENT_VALIDITY_DAYS", "365"))
	if err != nil {
		return nil, fmt.Errorf("invalid AA_CONSENT_VALIDITY_DAYS: %w", err)
	}

	// Parse allowed hosts (comma-separated list)
	allowedHostsStr := getEnv("ALLOWED_HOSTS", "")
	var allowedHosts []string
	if allowedHostsStr != "" {
		for _, host := range strings.Split(allowedHostsStr, ",") {
			host = strings.TrimSpace(host)
			if host != "" {
				allowedHosts = append(allowedHosts, host)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			AllowedHosts: allowedHosts,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "nivesh"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "nivesh"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		AA: AAConfig{
			Mode:                    ProviderMode(strings.ToLower(getEnv("AA_PROVIDER_MODE", ""))),
			BaseURL:                 getEnv("AA_BASE_URL", ""),
			ApprovalBaseURL:         getEnv("AA_APPROVAL_BASE_URL", ""),
			ClientID:                getEnv("AA_CLIENT_ID", ""),
			ClientSecret:            getEnv("AA_CLIENT_SECRET", ""),
			WebhookPublicKeyPEM:     getEnv("AA_WEBHOOK_PUBLIC_KEY", ""),
			WebhookPublicKeyPath:    getEnv("AA_WEBHOOK_PUBLIC_KEY_PATH", ""),
			SkipWebhookVerification: getBoolEnv("AA_WEBHOOK_SKIP_VERIFY", false),
			CustomerHandleSuffix:    getEnv("AA_CUSTOMER_HANDLE_SUFFIX", "nadl"),
			RequestTimeout:          aaTimeout,
			ConsentValidityDays:     consentValidityDays,
		},
		Scheduler: SchedulerConfig{
			Enabled:          schedulerEnabled,
			ScheduleTimes:    schedulerTimes,
			WorkerCount:      schedulerWorkers,
			JobDelay:         schedulerJobDelay,
			QueueSize:        schedulerQueueSize,
			RunOnStartup:     getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
			ConsentPollAfter: consentPollAfter,
		},
		TLS: TLSConfig{
			Enabled:      getBoolEnv("TLS_ENABLED", false),
			CertPath:     getEnv("TLS_CERT_PATH", ""),
			KeyPath:      getEnv("TLS_KEY_PATH", ""),
			RedirectHTTP: getBoolEnv("TLS_REDIRECT_HTTP", false),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "nivesh-api"),
			Environment:  getEnv("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("OTEL_METRICS_PORT", "9090"),
		},
	}

	// Validate required fields
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Encryption.Key == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(cfg.Encryption.Key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	// Validate AA provider configuration. The mode is never inferred: a
	// production deployment with missing credentials must fail here, not
	// quietly degrade into mock behavior.
	switch cfg.AA.Mode {
	case ProviderModeReal:
		if cfg.AA.BaseURL == "" {
			return nil, fmt.Errorf("AA_BASE_URL is required when AA_PROVIDER_MODE=real")
		}
		if cfg.AA.ClientID == "" || cfg.AA.ClientSecret == "" {
			return nil, fmt.Errorf("AA_CLIENT_ID and AA_CLIENT_SECRET are required when AA_PROVIDER_MODE=real")
		}
	case ProviderModeMock:
		// No provider credentials needed.
	default:
		return nil, fmt.Errorf("AA_PROVIDER_MODE must be 'real' or 'mock', got %q", cfg.AA.Mode)
	}

	if !cfg.AA.SkipWebhookVerification &&
		cfg.AA.WebhookPublicKeyPEM == "" && cfg.AA.WebhookPublicKeyPath == "" {
		return nil, fmt.Errorf("AA_WEBHOOK_PUBLIC_KEY or AA_WEBHOOK_PUBLIC_KEY_PATH is required unless AA_WEBHOOK_SKIP_VERIFY=true")
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return nil, fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if cfg.TLS.KeyPath == "" {
			return nil, fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
