package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	TelegramConfig     TelegramConfig     `json:"telegram"`
	MonitorConfig      MonitorConfig      `json:"monitor"`
	AIConfig           AIConfig           `json:"ai"`
	DataConfig         DataConfig         `json:"data"`
	NotificationConfig NotificationConfig `json:"notification"`
	ServerConfig       ServerConfig       `json:"server"`
	LoggingConfig      LoggingConfig      `json:"logging"`
	RedisConfig        RedisConfig        `json:"redis"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	VaultConfig        VaultConfig        `json:"vault"`
}

// TelegramConfig holds the bot credentials and the single authorized subscriber.
type TelegramConfig struct {
	BotToken     string `json:"bot_token"`
	SubscriberID int64  `json:"subscriber_id"`
	PollTimeout  int    `json:"poll_timeout"` // Long-poll timeout in seconds
}

// MonitorConfig holds the advisory cycle configuration
type MonitorConfig struct {
	Enabled              bool `json:"enabled"`                // Start monitoring on boot
	CheckIntervalSeconds int  `json:"check_interval_seconds"` // Seconds between cycles
	CycleTimeoutSeconds  int  `json:"cycle_timeout_seconds"`  // Upper bound for one cycle
}

// AIConfig holds the reasoning backend configuration
type AIConfig struct {
	Enabled        bool    `json:"enabled"`
	LLMProvider    string  `json:"llm_provider"` // "claude", "openai", or "deepseek"
	ClaudeAPIKey   string  `json:"claude_api_key"`
	OpenAIAPIKey   string  `json:"openai_api_key"`
	DeepSeekAPIKey string  `json:"deepseek_api_key"`
	LLMModel       string  `json:"llm_model"`
	MaxTokens      int     `json:"max_tokens"`
	Temperature    float64 `json:"temperature"`
	TimeoutSeconds int     `json:"timeout_seconds"` // Request-level timeout
}

// DataConfig holds market data source configuration.
// Missing optional credentials degrade the matching factor to unavailable at
// runtime; they are never fatal.
type DataConfig struct {
	Symbol              string `json:"symbol"`                // e.g. "BTCUSDT"
	SpotBaseURL         string `json:"spot_base_url"`         // Binance spot API
	FuturesBaseURL      string `json:"futures_base_url"`      // Binance futures API
	FearGreedURL        string `json:"fear_greed_url"`        // alternative.me
	MacroQuoteURL       string `json:"macro_quote_url"`       // stooq CSV quote for DXY
	BenchmarkHistoryURL string `json:"benchmark_history_url"` // stooq daily CSV for the risk benchmark
	FetchTimeoutSecs    int    `json:"fetch_timeout_secs"`    // Per-factor fetch timeout
	CorrelationDays     int    `json:"correlation_days"`      // Window for the BTC/benchmark correlation
}

type NotificationConfig struct {
	Enabled bool          `json:"enabled"`
	Discord DiscordConfig `json:"discord"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// ServerConfig holds the read-only status API configuration
type ServerConfig struct {
	Enabled        bool   `json:"enabled"`
	Port           int    `json:"port"`
	Host           string `json:"host"`
	AllowedOrigins string `json:"allowed_origins"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// RedisConfig holds Redis configuration for last-recommendation persistence
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// DatabaseConfig holds PostgreSQL configuration for recommendation history
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// VaultConfig holds HashiCorp Vault configuration for secret loading
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Validate enforces the startup-required options. A missing subscriber or bot
// token is fatal; the LLM credential is required only when AI is enabled.
func (c *Config) Validate() error {
	if c.TelegramConfig.BotToken == "" {
		return fmt.Errorf("configuration error: TELEGRAM_BOT_TOKEN is required")
	}
	if c.TelegramConfig.SubscriberID == 0 {
		return fmt.Errorf("configuration error: TELEGRAM_SUBSCRIBER_ID is required")
	}
	if c.AIConfig.Enabled && c.LLMAPIKey() == "" {
		return fmt.Errorf("configuration error: API key for LLM provider %q is required when AI is enabled", c.AIConfig.LLMProvider)
	}
	if c.MonitorConfig.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("configuration error: check interval must be positive, got %d", c.MonitorConfig.CheckIntervalSeconds)
	}
	return nil
}

// LLMAPIKey returns the API key for the configured provider
func (c *Config) LLMAPIKey() string {
	switch c.AIConfig.LLMProvider {
	case "openai":
		return c.AIConfig.OpenAIAPIKey
	case "deepseek":
		return c.AIConfig.DeepSeekAPIKey
	default:
		return c.AIConfig.ClaudeAPIKey
	}
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Telegram config
	cfg.TelegramConfig.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.TelegramConfig.BotToken)
	cfg.TelegramConfig.SubscriberID = getEnvInt64OrDefault("TELEGRAM_SUBSCRIBER_ID", cfg.TelegramConfig.SubscriberID)
	cfg.TelegramConfig.PollTimeout = getEnvIntOrDefault("TELEGRAM_POLL_TIMEOUT", defaultInt(cfg.TelegramConfig.PollTimeout, 30))

	// Monitor config. CHECK_INTERVAL is honored for parity with older deployments.
	cfg.MonitorConfig.Enabled = getEnvOrDefault("MONITOR_ENABLED", "true") == "true"
	cfg.MonitorConfig.CheckIntervalSeconds = getEnvIntOrDefault("CHECK_INTERVAL", defaultInt(cfg.MonitorConfig.CheckIntervalSeconds, 300))
	cfg.MonitorConfig.CycleTimeoutSeconds = getEnvIntOrDefault("CYCLE_TIMEOUT", defaultInt(cfg.MonitorConfig.CycleTimeoutSeconds, 120))

	// AI config
	cfg.AIConfig.Enabled = getEnvOrDefault("AI_ENABLED", "true") == "true"
	cfg.AIConfig.LLMProvider = getEnvOrDefault("AI_LLM_PROVIDER", defaultString(cfg.AIConfig.LLMProvider, "claude"))
	cfg.AIConfig.ClaudeAPIKey = getEnvOrDefault("AI_CLAUDE_API_KEY", cfg.AIConfig.ClaudeAPIKey)
	cfg.AIConfig.OpenAIAPIKey = getEnvOrDefault("AI_OPENAI_API_KEY", cfg.AIConfig.OpenAIAPIKey)
	cfg.AIConfig.DeepSeekAPIKey = getEnvOrDefault("AI_DEEPSEEK_API_KEY", cfg.AIConfig.DeepSeekAPIKey)
	cfg.AIConfig.LLMModel = getEnvOrDefault("AI_LLM_MODEL", defaultString(cfg.AIConfig.LLMModel, "claude-3-haiku-20240307"))
	cfg.AIConfig.MaxTokens = getEnvIntOrDefault("AI_MAX_TOKENS", defaultInt(cfg.AIConfig.MaxTokens, 1024))
	cfg.AIConfig.TimeoutSeconds = getEnvIntOrDefault("AI_TIMEOUT", defaultInt(cfg.AIConfig.TimeoutSeconds, 60))
	if cfg.AIConfig.Temperature == 0 {
		cfg.AIConfig.Temperature = 0.3
	}

	// Data config
	cfg.DataConfig.Symbol = getEnvOrDefault("DATA_SYMBOL", defaultString(cfg.DataConfig.Symbol, "BTCUSDT"))
	cfg.DataConfig.SpotBaseURL = getEnvOrDefault("DATA_SPOT_BASE_URL", defaultString(cfg.DataConfig.SpotBaseURL, "https://api.binance.com"))
	cfg.DataConfig.FuturesBaseURL = getEnvOrDefault("DATA_FUTURES_BASE_URL", defaultString(cfg.DataConfig.FuturesBaseURL, "https://fapi.binance.com"))
	cfg.DataConfig.FearGreedURL = getEnvOrDefault("DATA_FEAR_GREED_URL", defaultString(cfg.DataConfig.FearGreedURL, "https://api.alternative.me/fng/"))
	cfg.DataConfig.MacroQuoteURL = getEnvOrDefault("DATA_MACRO_QUOTE_URL", cfg.DataConfig.MacroQuoteURL)
	cfg.DataConfig.BenchmarkHistoryURL = getEnvOrDefault("DATA_BENCHMARK_HISTORY_URL", cfg.DataConfig.BenchmarkHistoryURL)
	cfg.DataConfig.FetchTimeoutSecs = getEnvIntOrDefault("DATA_FETCH_TIMEOUT", defaultInt(cfg.DataConfig.FetchTimeoutSecs, 10))
	cfg.DataConfig.CorrelationDays = getEnvIntOrDefault("DATA_CORRELATION_DAYS", defaultInt(cfg.DataConfig.CorrelationDays, 30))

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", "true") == "true"
	cfg.NotificationConfig.Discord.Enabled = getEnvOrDefault("DISCORD_ENABLED", "false") == "true"
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Server config
	cfg.ServerConfig.Enabled = getEnvOrDefault("SERVER_ENABLED", "false") == "true"
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", defaultString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", defaultString(cfg.ServerConfig.AllowedOrigins, "*"))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", "false") == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultString(cfg.DatabaseConfig.User, "advisor"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultString(cfg.DatabaseConfig.Database, "advisor"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultString(cfg.DatabaseConfig.SSLMode, "disable"))

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", defaultString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", defaultString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", defaultString(cfg.VaultConfig.SecretPath, "market-advisor/credentials"))
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"
}

// CheckInterval returns the cycle interval as a duration
func (c *MonitorConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// CycleTimeout returns the per-cycle timeout as a duration
func (c *MonitorConfig) CycleTimeout() time.Duration {
	return time.Duration(c.CycleTimeoutSeconds) * time.Second
}

// FetchTimeout returns the per-factor fetch timeout as a duration
func (c *DataConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		TelegramConfig: TelegramConfig{
			BotToken:     "your_bot_token_here",
			SubscriberID: 0,
			PollTimeout:  30,
		},
		MonitorConfig: MonitorConfig{
			Enabled:              true,
			CheckIntervalSeconds: 300,
			CycleTimeoutSeconds:  120,
		},
		AIConfig: AIConfig{
			Enabled:        true,
			LLMProvider:    "claude",
			LLMModel:       "claude-3-haiku-20240307",
			MaxTokens:      1024,
			Temperature:    0.3,
			TimeoutSeconds: 60,
		},
		DataConfig: DataConfig{
			Symbol:              "BTCUSDT",
			SpotBaseURL:         "https://api.binance.com",
			FuturesBaseURL:      "https://fapi.binance.com",
			FearGreedURL:        "https://api.alternative.me/fng/",
			MacroQuoteURL:       "https://stooq.com/q/l/?s=dx.f&f=sd2t2ohlcv&h&e=csv",
			BenchmarkHistoryURL: "https://stooq.com/q/d/l/?s=^ndx&i=d",
			FetchTimeoutSecs:    10,
			CorrelationDays:     30,
		},
		NotificationConfig: NotificationConfig{
			Enabled: true,
		},
		ServerConfig: ServerConfig{
			Enabled: false,
			Port:    8080,
			Host:    "0.0.0.0",
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
