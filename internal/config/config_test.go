package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "ADVISOR_ENABLED", "")
	setEnv(t, "HOLDING_PERIOD", "12h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 12*time.Hour, cfg.HoldingPeriod)
	assert.Equal(t, DefaultAdvisorTimeout, cfg.AdvisorTimeout)
	assert.Equal(t, DefaultTrustHalfLife, cfg.TrustHalfLife)
	assert.False(t, cfg.AdvisorEnabled)
}

func TestLoad_AdvisorEnabledRequiresURL(t *testing.T) {
	setEnv(t, "ADVISOR_ENABLED", "true")
	setEnv(t, "ADVISOR_URL", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ADVISOR_URL is required")
}

func TestLoad_AdvisorSettings(t *testing.T) {
	setEnv(t, "ADVISOR_ENABLED", "true")
	setEnv(t, "ADVISOR_URL", "https://advisor.example.com/assess")
	setEnv(t, "ADVISOR_TIMEOUT", "2s")
	setEnv(t, "ADVISOR_BUDGET_PER_MINUTE", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.AdvisorEnabled)
	assert.Equal(t, "https://advisor.example.com/assess", cfg.AdvisorURL)
	assert.Equal(t, 2*time.Second, cfg.AdvisorTimeout)
	assert.Equal(t, 30, cfg.AdvisorBudget)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid config",
			config: Config{
				HoldingPeriod: DefaultHoldingPeriod,
				TimerInterval: DefaultTimerInterval,
			},
			wantErr: "",
		},
		{
			name: "advisor enabled without URL",
			config: Config{
				AdvisorEnabled: true,
				HoldingPeriod:  DefaultHoldingPeriod,
				TimerInterval:  DefaultTimerInterval,
			},
			wantErr: "ADVISOR_URL is required",
		},
		{
			name: "advisor URL malformed",
			config: Config{
				AdvisorEnabled: true,
				AdvisorURL:     "not a url",
				HoldingPeriod:  DefaultHoldingPeriod,
				TimerInterval:  DefaultTimerInterval,
			},
			wantErr: "not a valid URL",
		},
		{
			name: "zero holding period",
			config: Config{
				TimerInterval: DefaultTimerInterval,
			},
			wantErr: "HOLDING_PERIOD must be positive",
		},
		{
			name: "zero timer interval",
			config: Config{
				HoldingPeriod: DefaultHoldingPeriod,
			},
			wantErr: "TIMER_INTERVAL must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}

func TestGetEnvDuration(t *testing.T) {
	setEnv(t, "TEST_DUR", "90s")
	setEnv(t, "TEST_BAD_DUR", "ninety")

	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("NONEXISTENT_VAR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_BAD_DUR", time.Minute))
}
