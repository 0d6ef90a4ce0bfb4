package config

import (
	"fmt"
	"strings"

	"github.com/paypro-bridge/internal/logger"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Security SecurityConfig `mapstructure:"security"`
	PayPro   PayProConfig   `mapstructure:"paypro"`
	Callback CallbackConfig `mapstructure:"callback"`
	Email    EmailConfig    `mapstructure:"email"`
	Store    StoreConfig    `mapstructure:"store"`
	Lock     LockConfig     `mapstructure:"lock"`
}

// ServerConfig http listener settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release

	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// LogConfig log output settings
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Stdout     bool   `mapstructure:"stdout"`
}

// ToLoggerOptions converts to logger.Options.
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.Level,
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
		Stdout:     c.Stdout,
	}
}

// DatabasePoolConfig connection pool settings
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig backs the document store.
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // sqlite / postgres
	DSN    string             `mapstructure:"dsn"`
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// RedisConfig is used for locks and rate limiting.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig async receipt queue
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig cross origin settings
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig request guards
type SecurityConfig struct {
	CreateRateLimit RateLimitConfig `mapstructure:"create_rate_limit"`
}

// RateLimitConfig sliding window limit
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
	BlockSeconds  int `mapstructure:"block_seconds"`
}

// PayProConfig upstream gateway settings
type PayProConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	AuthPath        string `mapstructure:"auth_path"`
	CreateOrderPath string `mapstructure:"create_order_path"`
	StatusPath      string `mapstructure:"status_path"`
	MerchantID      string `mapstructure:"merchant_id"`
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	Username        string `mapstructure:"username"`
	OrderType       string `mapstructure:"order_type"`
	DueDays         int    `mapstructure:"due_days"`
	ExpireSeconds   int    `mapstructure:"expire_seconds"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

// CallbackConfig credentials expected on invoice callbacks. Empty disables the check.
type CallbackConfig struct {
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password_hash"`
}

// EmailConfig SMTP receipt delivery
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	UseTLS   bool   `mapstructure:"use_tls"`
	UseSSL   bool   `mapstructure:"use_ssl"`
	Subject  string `mapstructure:"subject"`
	Brand    string `mapstructure:"brand"`
}

// StoreConfig collection names for the mapping indexes
type StoreConfig struct {
	OrdersCollection   string `mapstructure:"orders_collection"`
	PaymentsCollection string `mapstructure:"payments_collection"`
}

// LockConfig keyed lock settings
type LockConfig struct {
	TTLSeconds  int `mapstructure:"ttl_seconds"`
	WaitSeconds int `mapstructure:"wait_seconds"`
}

// Load reads config.yml plus environment overrides.
func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../")
	v.AddConfigPath("./etc")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // paypro.client_id -> PAYPRO_CLIENT_ID
	bindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("config unmarshal failed: %w", err))
	}
	cfg.normalize()
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("log.level", "")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "paypro-bridge.log")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.stdout", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/paypro.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "ppb")
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("queue.queues", map[string]int{"default": 1})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"X-Requested-With",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.create_rate_limit.window_seconds", 60)
	v.SetDefault("security.create_rate_limit.max_requests", 20)
	v.SetDefault("security.create_rate_limit.block_seconds", 120)
	v.SetDefault("paypro.base_url", "https://api.paypro.com.pk")
	v.SetDefault("paypro.auth_path", "/auth")
	v.SetDefault("paypro.create_order_path", "/v2/ppro/co")
	v.SetDefault("paypro.status_path", "/v2/ppro/ggos")
	v.SetDefault("paypro.merchant_id", "")
	v.SetDefault("paypro.client_id", "")
	v.SetDefault("paypro.client_secret", "")
	v.SetDefault("paypro.username", "")
	v.SetDefault("paypro.order_type", "Service")
	v.SetDefault("paypro.due_days", 1)
	v.SetDefault("paypro.expire_seconds", 0)
	v.SetDefault("paypro.timeout_seconds", 20)
	v.SetDefault("callback.username", "")
	v.SetDefault("callback.password", "")
	v.SetDefault("callback.password_hash", "")
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.host", "")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.from_name", "Secrets Discounts")
	v.SetDefault("email.use_tls", true)
	v.SetDefault("email.use_ssl", false)
	v.SetDefault("email.subject", "Payment receipt for order %s")
	v.SetDefault("email.brand", "Secrets Discounts")
	v.SetDefault("store.orders_collection", "paypro_orders")
	v.SetDefault("store.payments_collection", "paypro_payments")
	v.SetDefault("lock.ttl_seconds", 30)
	v.SetDefault("lock.wait_seconds", 10)
}

// legacyEnv maps older deployment variable names onto config keys.
var legacyEnv = map[string][]string{
	"email.host":      {"EMAIL_HOST", "SMTP_HOST"},
	"email.port":      {"EMAIL_PORT", "SMTP_PORT"},
	"email.username":  {"EMAIL_USERNAME", "SMTP_USER"},
	"email.password":  {"EMAIL_PASSWORD", "SMTP_PASS"},
	"email.from_name": {"EMAIL_FROM_NAME", "RECEIPT_FROM_NAME"},
	"server.port":     {"SERVER_PORT", "PORT"},
}

func bindLegacyEnv(v *viper.Viper) {
	for key, names := range legacyEnv {
		args := append([]string{key}, names...)
		_ = v.BindEnv(args...)
	}
}

func (c *Config) normalize() {
	c.PayPro.BaseURL = strings.TrimRight(strings.TrimSpace(c.PayPro.BaseURL), "/")
	if c.PayPro.DueDays <= 0 {
		c.PayPro.DueDays = 1
	}
	if c.PayPro.TimeoutSeconds <= 0 {
		c.PayPro.TimeoutSeconds = 20
	}
	if !c.Email.Enabled && strings.TrimSpace(c.Email.Host) != "" {
		c.Email.Enabled = true
	}
	// Port 465 is implicit TLS.
	if c.Email.Port == 465 {
		c.Email.UseSSL = true
	}
	if strings.TrimSpace(c.Store.OrdersCollection) == "" {
		c.Store.OrdersCollection = "paypro_orders"
	}
	if strings.TrimSpace(c.Store.PaymentsCollection) == "" {
		c.Store.PaymentsCollection = "paypro_payments"
	}
}

// CallbackAuthEnabled reports whether invoice callback credentials are enforced.
func (c CallbackConfig) CallbackAuthEnabled() bool {
	return strings.TrimSpace(c.Username) != "" ||
		strings.TrimSpace(c.Password) != "" ||
		strings.TrimSpace(c.PasswordHash) != ""
}
