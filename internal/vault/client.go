package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"market-advisor-bot/config"
)

// Secrets holds the credentials the service can load from Vault instead of
// the environment.
type Secrets struct {
	TelegramBotToken  string
	ClaudeAPIKey      string
	OpenAIAPIKey      string
	DeepSeekAPIKey    string
	DiscordWebhookURL string
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cached *Secrets
}

// NewClient creates a new Vault client. With Vault disabled the client is a
// no-op and LoadSecrets returns empty values.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// LoadSecrets reads the service credentials from the KV v2 store. Results
// are cached for the process lifetime; secrets do not rotate mid-run.
func (c *Client) LoadSecrets(ctx context.Context) (*Secrets, error) {
	if !c.config.Enabled {
		return &Secrets{}, nil
	}

	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return c.cached, nil
	}
	c.mu.RUnlock()

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secrets found at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	secrets := &Secrets{
		TelegramBotToken:  getString(data, "telegram_bot_token"),
		ClaudeAPIKey:      getString(data, "claude_api_key"),
		OpenAIAPIKey:      getString(data, "openai_api_key"),
		DeepSeekAPIKey:    getString(data, "deepseek_api_key"),
		DiscordWebhookURL: getString(data, "discord_webhook_url"),
	}

	c.mu.Lock()
	c.cached = secrets
	c.mu.Unlock()

	return secrets, nil
}

// ApplySecrets overlays Vault values onto the config, filling only fields
// the environment left empty so env vars keep precedence.
func ApplySecrets(cfg *config.Config, secrets *Secrets) {
	if cfg.TelegramConfig.BotToken == "" {
		cfg.TelegramConfig.BotToken = secrets.TelegramBotToken
	}
	if cfg.AIConfig.ClaudeAPIKey == "" {
		cfg.AIConfig.ClaudeAPIKey = secrets.ClaudeAPIKey
	}
	if cfg.AIConfig.OpenAIAPIKey == "" {
		cfg.AIConfig.OpenAIAPIKey = secrets.OpenAIAPIKey
	}
	if cfg.AIConfig.DeepSeekAPIKey == "" {
		cfg.AIConfig.DeepSeekAPIKey = secrets.DeepSeekAPIKey
	}
	if cfg.NotificationConfig.Discord.WebhookURL == "" {
		cfg.NotificationConfig.Discord.WebhookURL = secrets.DiscordWebhookURL
	}
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
