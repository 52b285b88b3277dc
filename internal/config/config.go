package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Sweeper    SweeperConfig    `mapstructure:"sweeper"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" envconfig:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host" envconfig:"DB_HOST"`
	Port     int    `mapstructure:"port" envconfig:"DB_PORT"`
	User     string `mapstructure:"user" envconfig:"DB_USER"`
	Password string `mapstructure:"password" envconfig:"DB_PASSWORD"`
	Name     string `mapstructure:"name" envconfig:"DB_NAME"`
	SSLMode  string `mapstructure:"sslmode" envconfig:"DB_SSLMODE"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url" envconfig:"REDIS_URL"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type DispatcherConfig struct {
	Workers       int           `mapstructure:"workers" envconfig:"DISPATCHER_WORKERS"`
	BatchSize     int           `mapstructure:"batch_size" envconfig:"DISPATCHER_BATCH_SIZE"`
	PollInterval  time.Duration `mapstructure:"poll_interval" envconfig:"DISPATCHER_POLL_INTERVAL"`
	SendTimeout   time.Duration `mapstructure:"send_timeout" envconfig:"DISPATCHER_SEND_TIMEOUT"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffCap    time.Duration `mapstructure:"backoff_cap"`
	BackoffJitter time.Duration `mapstructure:"backoff_jitter"`
	ChannelPerSec float64       `mapstructure:"channel_per_sec"`
	ChannelBurst  int           `mapstructure:"channel_burst"`
}

type SweeperConfig struct {
	Interval  time.Duration `mapstructure:"interval" envconfig:"SWEEPER_INTERVAL"`
	Staleness time.Duration `mapstructure:"staleness" envconfig:"SWEEPER_STALENESS"`
}

type ProvidersConfig struct {
	SMS      SMSProviderConfig      `mapstructure:"sms"`
	WhatsApp WhatsAppProviderConfig `mapstructure:"whatsapp"`
	Email    EmailProviderConfig    `mapstructure:"email"`
}

type SMSProviderConfig struct {
	Endpoint string        `mapstructure:"endpoint" envconfig:"SMS_ENDPOINT"`
	APIKey   string        `mapstructure:"api_key" envconfig:"SMS_API_KEY"`
	Sender   string        `mapstructure:"sender" envconfig:"SMS_SENDER"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type WhatsAppProviderConfig struct {
	Endpoint    string        `mapstructure:"endpoint" envconfig:"WHATSAPP_ENDPOINT"`
	AccessToken string        `mapstructure:"access_token" envconfig:"WHATSAPP_ACCESS_TOKEN"`
	PhoneID     string        `mapstructure:"phone_id" envconfig:"WHATSAPP_PHONE_ID"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type EmailProviderConfig struct {
	Host     string `mapstructure:"host" envconfig:"SMTP_HOST"`
	Port     int    `mapstructure:"port" envconfig:"SMTP_PORT"`
	Username string `mapstructure:"username" envconfig:"SMTP_USERNAME"`
	Password string `mapstructure:"password" envconfig:"SMTP_PASSWORD"`
	From     string `mapstructure:"from" envconfig:"SMTP_FROM"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" envconfig:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `mapstructure:"prometheus_enabled"`
}

// LoadConfig reads the yaml config file, then applies environment
// overrides for deployment settings.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Missing file is fine; environment variables take over.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("notify", &config.Server); err != nil {
		return nil, fmt.Errorf("failed to process server env: %w", err)
	}
	if err := envconfig.Process("notify", &config.Database); err != nil {
		return nil, fmt.Errorf("failed to process database env: %w", err)
	}
	if err := envconfig.Process("notify", &config.Redis); err != nil {
		return nil, fmt.Errorf("failed to process redis env: %w", err)
	}
	if err := envconfig.Process("notify", &config.Providers.SMS); err != nil {
		return nil, fmt.Errorf("failed to process sms env: %w", err)
	}
	if err := envconfig.Process("notify", &config.Providers.WhatsApp); err != nil {
		return nil, fmt.Errorf("failed to process whatsapp env: %w", err)
	}
	if err := envconfig.Process("notify", &config.Providers.Email); err != nil {
		return nil, fmt.Errorf("failed to process email env: %w", err)
	}

	return &config, nil
}
