package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := fromLookup(lookup(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, 5*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, "log", cfg.SMS.Provider)
	assert.Equal(t, 3, cfg.SMS.RetryMaxAttempts)
	assert.Equal(t, int64(5<<20), cfg.Upload.MaxFileBytes)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestOverrides(t *testing.T) {
	cfg, err := fromLookup(lookup(map[string]string{
		"ESEVA_ADDR":             ":9090",
		"SMS_PROVIDER":           "HTTP",
		"SMS_BASE_URL":           "https://sms.example.test/send",
		"SMS_RETRY_MAX_ATTEMPTS": "5",
		"OTP_TTL":                "2m",
		"KAFKA_BROKERS":          "k1:9092, k2:9092,",
		"REDIS_URL":              "redis://localhost:6379/0",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "http", cfg.SMS.Provider)
	assert.Equal(t, 5, cfg.SMS.RetryMaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"bad duration", map[string]string{"OTP_TTL": "five minutes"}},
		{"bad integer", map[string]string{"REDIS_POOL_SIZE": "many"}},
		{"unknown provider", map[string]string{"SMS_PROVIDER": "pigeon"}},
		{"http provider without url", map[string]string{"SMS_PROVIDER": "http"}},
		{"twilio without credentials", map[string]string{"SMS_PROVIDER": "twilio"}},
		{"production with dev key", map[string]string{"APP_ENV": "production"}},
		{"zero upload cap", map[string]string{"UPLOAD_MAX_FILE_BYTES": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromLookup(lookup(tt.vars))
			assert.Error(t, err)
		})
	}
}
