package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type WorkerConfig struct {
	ChunkSize    int           `mapstructure:"chunk_size"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	UploadDir    string        `mapstructure:"upload_dir"`
	TempDir      string        `mapstructure:"temp_dir"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
}

type EmailConfig struct {
	From            string   `mapstructure:"from"`
	SMTPHost        string   `mapstructure:"smtp_host"`
	SMTPPort        int      `mapstructure:"smtp_port"`
	Username        string   `mapstructure:"username"`
	Password        string   `mapstructure:"password"`
	AlertRecipients []string `mapstructure:"alert_recipients"`
}

type WebhookConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	URL            string `mapstructure:"url"`
	Secret         string `mapstructure:"secret"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	ServerPort  string `mapstructure:"server_port"`
	JWTSecret   string `mapstructure:"jwt_secret"`
	// VaultKey is the base64-encoded AES key used to encrypt integration
	// secrets at rest.
	VaultKey string         `mapstructure:"vault_key"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Email    EmailConfig    `mapstructure:"email"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}
	if config.VaultKey == "" {
		log.Fatal("Vault key must be set in the config file")
	}

	if config.Worker.ChunkSize <= 0 {
		config.Worker.ChunkSize = 500
	}
	if config.Worker.FetchTimeout <= 0 {
		config.Worker.FetchTimeout = 2 * time.Minute
	}
	if config.Worker.UploadDir == "" {
		config.Worker.UploadDir = "./uploads"
	}

	if config.Temporal.Namespace == "" {
		config.Temporal.Namespace = "default"
	}

	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}

	return &config
}
