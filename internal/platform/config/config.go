// Package config loads server configuration from the environment. An optional
// .env file is read first; variables already set in the process win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	defaultJWTSigningKey = "dev-secret-key-change-in-production"
)

// Server captures all process level configuration.
type Server struct {
	Addr            string
	Environment     string
	LogLevel        string
	DatabaseURL     string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	Redis  RedisConfig
	JWT    JWTConfig
	OTP    OTPConfig
	SMS    SMSConfig
	Twilio TwilioConfig
	Upload UploadConfig
	Kafka  KafkaConfig
}

// RedisConfig configures the shared token revocation list. Empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
	TTL        time.Duration
}

type OTPConfig struct {
	TTL             time.Duration
	MessageTemplate string
}

// SMSConfig selects and configures the OTP delivery provider.
type SMSConfig struct {
	Provider string // log, http or twilio
	BaseURL  string
	APIKey   string
	SenderID string
	UserID   string
	Password string
	Timeout  time.Duration

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

type UploadConfig struct {
	Dir          string
	MaxFileBytes int64
}

// KafkaConfig enables the audit event sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// IsProduction reports whether internal error details must be hidden.
func (s Server) IsProduction() bool {
	return s.Environment == EnvProduction
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Server{}, fmt.Errorf("load .env: %w", err)
	}
	return fromLookup(os.Getenv)
}

func fromLookup(getenv func(string) string) (Server, error) {
	e := env{get: getenv}
	cfg := Server{
		Addr:            e.str("ESEVA_ADDR", ":8080"),
		Environment:     e.str("APP_ENV", EnvDevelopment),
		LogLevel:        e.str("LOG_LEVEL", "info"),
		DatabaseURL:     e.str("DATABASE_URL", ""),
		RequestTimeout:  e.duration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		JWT: JWTConfig{
			SigningKey: e.str("JWT_SIGNING_KEY", defaultJWTSigningKey),
			Issuer:     e.str("JWT_ISSUER", "eseva"),
			Audience:   e.str("JWT_AUDIENCE", "eseva-clients"),
			TTL:        e.duration("JWT_TTL", 7*24*time.Hour),
		},
		OTP: OTPConfig{
			TTL:             e.duration("OTP_TTL", 5*time.Minute),
			MessageTemplate: e.str("OTP_MESSAGE_TEMPLATE", ""),
		},
		SMS: SMSConfig{
			Provider:         strings.ToLower(e.str("SMS_PROVIDER", "log")),
			BaseURL:          e.str("SMS_BASE_URL", ""),
			APIKey:           e.str("SMS_API_KEY", ""),
			SenderID:         e.str("SMS_SENDER_ID", ""),
			UserID:           e.str("SMS_USER_ID", ""),
			Password:         e.str("SMS_PASSWORD", ""),
			Timeout:          e.duration("SMS_TIMEOUT", 10*time.Second),
			RetryMaxAttempts: e.int("SMS_RETRY_MAX_ATTEMPTS", 3),
			RetryBaseDelay:   e.duration("SMS_RETRY_BASE_DELAY", 200*time.Millisecond),
			RetryMaxDelay:    e.duration("SMS_RETRY_MAX_DELAY", 2*time.Second),
		},
		Twilio: TwilioConfig{
			AccountSID: e.str("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  e.str("TWILIO_AUTH_TOKEN", ""),
			From:       e.str("TWILIO_FROM", ""),
		},
		Upload: UploadConfig{
			Dir:          e.str("UPLOAD_DIR", "uploads"),
			MaxFileBytes: int64(e.int("UPLOAD_MAX_FILE_BYTES", 5<<20)),
		},
		Kafka: KafkaConfig{
			Brokers:    e.list("KAFKA_BROKERS"),
			AuditTopic: e.str("KAFKA_AUDIT_TOPIC", "eseva.audit"),
		},
	}
	if e.err != nil {
		return Server{}, e.err
	}
	return cfg, cfg.validate()
}

func (s Server) validate() error {
	var errs []error
	switch s.SMS.Provider {
	case "log":
	case "http":
		if s.SMS.BaseURL == "" {
			errs = append(errs, errors.New("SMS_BASE_URL is required for the http provider"))
		}
	case "twilio":
		if s.Twilio.AccountSID == "" || s.Twilio.AuthToken == "" || s.Twilio.From == "" {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM are required for the twilio provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SMS_PROVIDER %q", s.SMS.Provider))
	}
	if s.IsProduction() && s.JWT.SigningKey == defaultJWTSigningKey {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must be set in production"))
	}
	if s.Upload.MaxFileBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_FILE_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

// env reads typed values and keeps the first parse error.
type env struct {
	get func(string) string
	err error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *env) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.get(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *env) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}
