package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saeid-a/FinCoachBack/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGetter struct {
	values map[string]string
	calls  []string
}

func (s *stubGetter) GetParameter(_ context.Context, name string) (string, error) {
	s.calls = append(s.calls, name)
	if value, ok := s.values[name]; ok {
		return value, nil
	}
	return "", secrets.ErrMissingValue
}

func TestFromViperRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := fromViper(newViper())
	assert.ErrorIs(t, err, ErrMissingJWTSecret)
}

func TestFromViperReadsEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("PAYMENT_CURRENCY", "usd")
	t.Setenv("SWEEPER_INTERVAL", "5m")

	cfg, err := fromViper(newViper())
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, 5*time.Minute, cfg.SweeperInterval)
	assert.Equal(t, 15*time.Second, cfg.OutboundTimeout)
	assert.False(t, cfg.PaymentsConfigured())
}

func TestApplySecretsFillsOnlyMissingValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	getter := &stubGetter{values: map[string]string{
		"JWT_SECRET":          "from-ssm",
		"RAZORPAY_KEY_SECRET": "rzp",
	}}

	v := newViper()
	require.NoError(t, applySecrets(context.Background(), v, getter))

	cfg, err := fromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, "rzp", cfg.RazorpayKeySecret)
	assert.NotContains(t, getter.calls, "JWT_SECRET")
}

type failingGetter struct{}

func (failingGetter) GetParameter(context.Context, string) (string, error) {
	return "", errors.New("access denied")
}

func TestApplySecretsPropagatesProviderErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	err := applySecrets(context.Background(), newViper(), failingGetter{})
	assert.ErrorContains(t, err, "access denied")
}

func TestNormalizeEnv(t *testing.T) {
	assert.Equal(t, "production", normalizeEnv("PROD"))
	assert.Equal(t, "staging", normalizeEnv(" stage "))
	assert.Equal(t, "custom", normalizeEnv("Custom"))
}
