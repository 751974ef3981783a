package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/saeid-a/FinCoachBack/internal/secrets"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	DBUrl       string
	JWTSecret   string
	JWTTTL      time.Duration
	AppEnv      string
	LogLevel    string
	CORSOrigins string
	EnableDocs  bool

	RazorpayBaseURL       string
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	Currency              string

	ResendBaseURL string
	ResendAPIKey  string
	EmailFrom     string
	AdminEmail    string

	SupabaseURL        string
	SupabaseBucket     string
	SupabaseServiceKey string

	NATSUrl          string
	CronSecret       string
	SweeperInterval  time.Duration
	RefundPolicyFile string
	OutboundTimeout  time.Duration
	ChatSendRPS      float64
	ChatSendBurst    int

	SSMParameterPrefix string
}

// secretKeys are pulled from SSM when SSM_PARAMETER_PREFIX is set and the value is not
// already present in the environment.
var secretKeys = []string{
	"jwt_secret",
	"razorpay_key_secret",
	"razorpay_webhook_secret",
	"resend_api_key",
	"supabase_service_key",
	"cron_secret",
	"db_url",
}

var ErrMissingJWTSecret = errors.New("JWT_SECRET is required")

func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if prefix := strings.TrimSpace(v.GetString("ssm_parameter_prefix")); prefix != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		provider, err := secrets.NewDefaultSSMProvider(ctx, prefix)
		if err != nil {
			return nil, err
		}
		if err := applySecrets(ctx, v, provider); err != nil {
			return nil, err
		}
	}

	return fromViper(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("jwt_ttl", "24h")
	v.SetDefault("app_env", "production")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", "*")
	v.SetDefault("enable_docs", true)
	v.SetDefault("payment_currency", "INR")
	v.SetDefault("email_from", "FinCoach <noreply@fincoach.app>")
	v.SetDefault("sweeper_interval", "0s")
	v.SetDefault("outbound_timeout", "15s")
	v.SetDefault("chat_send_rps", 2.0)
	v.SetDefault("chat_send_burst", 5)
	return v
}

func applySecrets(ctx context.Context, v *viper.Viper, getter secrets.Getter) error {
	for _, key := range secretKeys {
		if strings.TrimSpace(v.GetString(key)) != "" {
			continue
		}
		value, err := getter.GetParameter(ctx, strings.ToUpper(key))
		if err != nil {
			if errors.Is(err, secrets.ErrMissingValue) {
				continue
			}
			return fmt.Errorf("load secret %s: %w", strings.ToUpper(key), err)
		}
		v.Set(key, value)
	}
	return nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	jwtSecret := strings.TrimSpace(v.GetString("jwt_secret"))
	if jwtSecret == "" {
		return nil, ErrMissingJWTSecret
	}

	return &Config{
		Port:        v.GetString("port"),
		DBUrl:       v.GetString("db_url"),
		JWTSecret:   jwtSecret,
		JWTTTL:      v.GetDuration("jwt_ttl"),
		AppEnv:      normalizeEnv(v.GetString("app_env")),
		LogLevel:    v.GetString("log_level"),
		CORSOrigins: v.GetString("cors_origins"),
		EnableDocs:  v.GetBool("enable_docs"),

		RazorpayBaseURL:       v.GetString("razorpay_base_url"),
		RazorpayKeyID:         v.GetString("razorpay_key_id"),
		RazorpayKeySecret:     v.GetString("razorpay_key_secret"),
		RazorpayWebhookSecret: v.GetString("razorpay_webhook_secret"),
		Currency:              strings.ToUpper(v.GetString("payment_currency")),

		ResendBaseURL: v.GetString("resend_base_url"),
		ResendAPIKey:  v.GetString("resend_api_key"),
		EmailFrom:     v.GetString("email_from"),
		AdminEmail:    v.GetString("admin_email"),

		SupabaseURL:        v.GetString("supabase_url"),
		SupabaseBucket:     v.GetString("supabase_bucket"),
		SupabaseServiceKey: v.GetString("supabase_service_key"),

		NATSUrl:          v.GetString("nats_url"),
		CronSecret:       v.GetString("cron_secret"),
		SweeperInterval:  v.GetDuration("sweeper_interval"),
		RefundPolicyFile: v.GetString("refund_policy_file"),
		OutboundTimeout:  v.GetDuration("outbound_timeout"),
		ChatSendRPS:      v.GetFloat64("chat_send_rps"),
		ChatSendBurst:    v.GetInt("chat_send_burst"),

		SSMParameterPrefix: v.GetString("ssm_parameter_prefix"),
	}, nil
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

// DocsEnabled limits the API reference pages to development builds.
func (c *Config) DocsEnabled() bool {
	return c.IsDevelopment() && c.EnableDocs
}

// PaymentsConfigured reports whether real gateway credentials are present.
func (c *Config) PaymentsConfigured() bool {
	return c != nil && c.RazorpayKeyID != "" && c.RazorpayKeySecret != ""
}

func (c *Config) StorageConfigured() bool {
	return c != nil && c.SupabaseURL != "" && c.SupabaseBucket != "" && c.SupabaseServiceKey != ""
}
