package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Broker     BrokerConfig     `yaml:"broker"`
	Notify     NotifyConfig     `yaml:"notify"`
	Worker     WorkerConfig     `yaml:"worker"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

type APIAuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// GatewayConfig describes the card payment provider.
// DegradedModeStorefronts lists the storefront roles allowed to continue
// with a synthetic pending charge while the provider is unavailable.
type GatewayConfig struct {
	BaseURL                 string        `yaml:"base_url"`
	SecretKey               string        `yaml:"secret_key"`
	WebhookSecret           string        `yaml:"webhook_secret"`
	Timeout                 time.Duration `yaml:"timeout"`
	DegradedModeStorefronts []string      `yaml:"degraded_mode_storefronts"`
	ConfirmationURL         string        `yaml:"confirmation_url"`
	PostURL                 string        `yaml:"post_url"`
}

type PricingConfig struct {
	QuoteCacheTTL time.Duration `yaml:"quote_cache_ttl"`
}

type BrokerConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	FCM      FCMConfig      `yaml:"fcm"`
}

type TelegramConfig struct {
	BotToken       string  `yaml:"bot_token"`
	ManagerChatIDs []int64 `yaml:"manager_chat_ids"`
	Debug          bool    `yaml:"debug"`
}

type FCMConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	ProjectID       string `yaml:"project_id"`
}

type WorkerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	MaxRetries   int           `yaml:"max_retries"`
}

func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// ${VAR} placeholders are resolved before parsing
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Gateway.BaseURL == "" {
		return errors.New("gateway base_url is required")
	}
	if c.Gateway.SecretKey == "" {
		return errors.New("gateway secret_key is required")
	}
	if c.Gateway.Timeout < time.Second || c.Gateway.Timeout > time.Minute {
		return fmt.Errorf("gateway timeout must be between 1s and 60s, got %s", c.Gateway.Timeout)
	}
	if c.API.Auth.JWTSecret == "" {
		return errors.New("api auth jwt_secret is required")
	}
	return nil
}

// DegradedModeAllowed reports whether callers with the given storefront role
// may receive a synthetic charge when the gateway is unavailable.
func (g GatewayConfig) DegradedModeAllowed(storefront string) bool {
	for _, s := range g.DegradedModeStorefronts {
		if s == storefront {
			return true
		}
	}
	return false
}

func (c *Config) applyDefaults() {
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.Auth.Issuer == "" {
		c.API.Auth.Issuer = "tripdesk"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 20
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 40
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 20 * time.Second
	}
	if c.Gateway.DegradedModeStorefronts == nil {
		c.Gateway.DegradedModeStorefronts = []string{"sales_partner"}
	}
	if c.Pricing.QuoteCacheTTL == 0 {
		c.Pricing.QuoteCacheTTL = 5 * time.Minute
	}
	if c.Broker.Queue == "" {
		c.Broker.Queue = "payments.events"
	}
	if c.Backup.Enabled && c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 5 * time.Second
	}
	if c.Worker.BatchSize == 0 {
		c.Worker.BatchSize = 20
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
}
