package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Auth      AuthSettings      `mapstructure:"auth"`
	Cipher    CipherSettings    `mapstructure:"cipher"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	Notifier  NotifierSettings  `mapstructure:"notifier"`
	Directory DirectorySettings `mapstructure:"directory"`
	GeoIP     GeoIPSettings     `mapstructure:"geoip"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection and TLS.
type RedisSettings struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	DB            int    `mapstructure:"db"`
	Password      string `mapstructure:"password"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	AttemptPrefix string `mapstructure:"attempt_prefix"`
}

// KafkaSettings configures the Kafka producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type JWTSettings struct {
	KeyDirectory    string        `mapstructure:"key_directory"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// AnomalyPolicy selects what the orchestrator does with a fingerprint mismatch.
type AnomalyPolicy string

const (
	// AnomalyPolicyReject fails the login with an unauthorized error.
	AnomalyPolicyReject AnomalyPolicy = "reject"
	// AnomalyPolicyRequireOTP forces an additional OTP step instead.
	AnomalyPolicyRequireOTP AnomalyPolicy = "require_otp"
)

// AuthSettings carries the policy constants of the login state machine.
type AuthSettings struct {
	MaxFailedAttempts int           `mapstructure:"max_failed_attempts"`
	LockoutWindow     time.Duration `mapstructure:"lockout_window"`
	OTPTTL            time.Duration `mapstructure:"otp_ttl"`
	OTPEnterpriseTTL  time.Duration `mapstructure:"otp_enterprise_ttl"`
	OTPLength         int           `mapstructure:"otp_length"`
	CodeTTL           time.Duration `mapstructure:"code_ttl"`
	ResetTokenTTL     time.Duration `mapstructure:"reset_token_ttl"`
	AnomalyPolicy     AnomalyPolicy `mapstructure:"anomaly_policy"`

	PasswordMinLength   int `mapstructure:"password_min_length"`
	PasswordMinClasses  int `mapstructure:"password_min_classes"`
	PasswordMinStrength int `mapstructure:"password_min_strength"`
}

// CipherSettings configures the field cipher protecting PII and OTP columns.
// Keys are hex-encoded: 32 bytes for AES-256-GCM, any length for the HMAC
// blind-index key.
type CipherSettings struct {
	Key      string `mapstructure:"key"`
	IndexKey string `mapstructure:"index_key"`
}

// RateLimitSettings configures sliding-window throttles on delivery-triggering
// endpoints. The failed-login lockout lives under auth instead, because it is
// enforced against the user row, not the window store.
type RateLimitSettings struct {
	WindowDuration           time.Duration `mapstructure:"window_duration"`
	PasswordResetMaxAttempts int           `mapstructure:"password_reset_max_attempts"`
	OTPSendMaxAttempts       int           `mapstructure:"otp_send_max_attempts"`
	LoginIPMaxAttempts       int           `mapstructure:"login_ip_max_attempts"`
	LoginIPWindow            time.Duration `mapstructure:"login_ip_window"`
}

type TelemetrySettings struct {
	MetricsPort  int     `mapstructure:"metrics_port"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// NotifierSettings configures outbound OTP/reset delivery channels.
type NotifierSettings struct {
	SMTP   SMTPSettings   `mapstructure:"smtp"`
	Twilio TwilioSettings `mapstructure:"twilio"`
}

type SMTPSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type TwilioSettings struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
}

// DirectorySettings points at the external enterprise employee directory.
type DirectorySettings struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GeoIPSettings struct {
	DatabasePath string `mapstructure:"database_path"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SSO")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.allowed_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.attempt_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"jwt.key_directory",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"auth.max_failed_attempts",
		"auth.lockout_window",
		"auth.otp_ttl",
		"auth.otp_enterprise_ttl",
		"auth.otp_length",
		"auth.code_ttl",
		"auth.reset_token_ttl",
		"auth.anomaly_policy",
		"auth.password_min_length",
		"auth.password_min_classes",
		"auth.password_min_strength",
		"cipher.key",
		"cipher.index_key",
		"rate_limit.window_duration",
		"rate_limit.password_reset_max_attempts",
		"rate_limit.otp_send_max_attempts",
		"rate_limit.login_ip_max_attempts",
		"rate_limit.login_ip_window",
		"telemetry.metrics_port",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"notifier.smtp.host",
		"notifier.smtp.port",
		"notifier.smtp.username",
		"notifier.smtp.password",
		"notifier.smtp.from",
		"notifier.twilio.account_sid",
		"notifier.twilio.auth_token",
		"notifier.twilio.from",
		"directory.base_url",
		"directory.api_key",
		"directory.timeout",
		"geoip.database_path",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sso-core")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "sso")
	v.SetDefault("postgres.password", "sso_password")
	v.SetDefault("postgres.database", "sso")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.attempt_prefix", "sso:attempts")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "sso")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.access_token_ttl", "15m")
	v.SetDefault("jwt.refresh_token_ttl", "168h")

	v.SetDefault("auth.max_failed_attempts", 5)
	v.SetDefault("auth.lockout_window", "15m")
	v.SetDefault("auth.otp_ttl", "1m")
	v.SetDefault("auth.otp_enterprise_ttl", "10m")
	v.SetDefault("auth.otp_length", 6)
	v.SetDefault("auth.code_ttl", "60m")
	v.SetDefault("auth.reset_token_ttl", "2m")
	v.SetDefault("auth.anomaly_policy", string(AnomalyPolicyReject))
	v.SetDefault("auth.password_min_length", 10)
	v.SetDefault("auth.password_min_classes", 3)
	v.SetDefault("auth.password_min_strength", 3)

	v.SetDefault("rate_limit.window_duration", "1h")
	v.SetDefault("rate_limit.password_reset_max_attempts", 3)
	v.SetDefault("rate_limit.otp_send_max_attempts", 5)
	v.SetDefault("rate_limit.login_ip_max_attempts", 30)
	v.SetDefault("rate_limit.login_ip_window", "1m")

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "sso-core")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("notifier.smtp.port", 587)
	v.SetDefault("directory.timeout", "10s")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "SSO_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
