package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// SubscriptionGateCacheTTL bounds how often the channel-membership provider
// is re-queried for the same user.
const SubscriptionGateCacheTTL = 30 * time.Second

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Telegram  TelegramConfig
	Storage   StorageConfig
	KeepAlive KeepAliveConfig
}

type ServerConfig struct {
	Port        string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type TelegramConfig struct {
	BotToken    string
	AdminID     int64
	PaymentCard string
}

type StorageConfig struct {
	DataDir string
}

type KeepAliveConfig struct {
	ExternalURL string
	Interval    time.Duration
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Name + "?sslmode=" + d.SSLMode
}

// TemplatesDir is where admin-uploaded template packages are stored.
func (s StorageConfig) TemplatesDir() string { return filepath.Join(s.DataDir, "templates") }

// InstancesDir holds one working directory per provisioned instance.
func (s StorageConfig) InstancesDir() string { return filepath.Join(s.DataDir, "instances") }

// PaymentsDir holds deposit evidence screenshots.
func (s StorageConfig) PaymentsDir() string { return filepath.Join(s.DataDir, "payments") }

func Load() (*Config, error) {
	_ = godotenv.Load()

	adminID, _ := strconv.ParseInt(getEnv("ADMIN_ID", "0"), 10, 64)
	keepAliveInterval, err := time.ParseDuration(getEnv("KEEPALIVE_INTERVAL", "5m"))
	if err != nil {
		keepAliveInterval = 5 * time.Minute
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "makerbot"),
			Password: getEnv("DB_PASSWORD", "makerbot"),
			Name:     getEnv("DB_NAME", "makerbot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Telegram: TelegramConfig{
			BotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
			AdminID:     adminID,
			PaymentCard: getEnv("PAYMENT_CARD", ""),
		},
		Storage: StorageConfig{
			DataDir: getEnv("DATA_DIR", "data"),
		},
		KeepAlive: KeepAliveConfig{
			ExternalURL: getEnv("EXTERNAL_URL", ""),
			Interval:    keepAliveInterval,
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
