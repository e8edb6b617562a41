package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"market-advisor-bot/config"
	"market-advisor-bot/internal/advisor"
	"market-advisor-bot/internal/ai/llm"
	"market-advisor-bot/internal/api"
	"market-advisor-bot/internal/cache"
	"market-advisor-bot/internal/database"
	"market-advisor-bot/internal/events"
	"market-advisor-bot/internal/factors"
	"market-advisor-bot/internal/logging"
	"market-advisor-bot/internal/marketdata"
	"market-advisor-bot/internal/monitor"
	"market-advisor-bot/internal/notification"
	"market-advisor-bot/internal/telegram"
	"market-advisor-bot/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Overlay Vault secrets before validation so a Vault-held bot token counts
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatalf("Failed to create vault client: %v", err)
	}
	if vaultClient.IsEnabled() {
		vaultCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		secrets, err := vaultClient.LoadSecrets(vaultCtx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to load secrets from vault: %v", err)
		}
		vault.ApplySecrets(cfg, secrets)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize event bus
	eventBus := events.NewEventBus()
	logger.Info("Event bus initialized")

	// Initialize notification manager
	notifyManager := notification.NewManager(cfg.NotificationConfig.Enabled)

	telegramNotifier := notification.NewTelegramNotifier(notification.TelegramConfig{
		BotToken: cfg.TelegramConfig.BotToken,
		ChatID:   cfg.TelegramConfig.SubscriberID,
		Enabled:  true,
	})
	notifyManager.AddNotifier(telegramNotifier)
	logger.Info("Telegram notifications enabled", "subscriber_id", cfg.TelegramConfig.SubscriberID)

	if cfg.NotificationConfig.Discord.Enabled {
		discordNotifier := notification.NewDiscordNotifier(notification.DiscordConfig{
			WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
			Enabled:    cfg.NotificationConfig.Discord.Enabled,
		})
		notifyManager.AddNotifier(discordNotifier)
		logger.Info("Discord notifications enabled")
	}

	// Market data client and factor collector
	dataClient := marketdata.NewClient(marketdata.Config{
		SpotBaseURL:         cfg.DataConfig.SpotBaseURL,
		FuturesBaseURL:      cfg.DataConfig.FuturesBaseURL,
		FearGreedURL:        cfg.DataConfig.FearGreedURL,
		MacroQuoteURL:       cfg.DataConfig.MacroQuoteURL,
		BenchmarkHistoryURL: cfg.DataConfig.BenchmarkHistoryURL,
		Timeout:             cfg.DataConfig.FetchTimeout(),
	})

	collector := factors.NewCollector(dataClient, factors.Config{
		Symbol:          cfg.DataConfig.Symbol,
		FetchTimeout:    cfg.DataConfig.FetchTimeout(),
		CorrelationDays: cfg.DataConfig.CorrelationDays,
	})
	logger.Info("Factor collector initialized", "symbol", cfg.DataConfig.Symbol)

	// Advisory state
	state := advisor.NewState()

	// LLM advisor (optional)
	var narrator monitor.Narrator
	var answerer monitor.Answerer
	if cfg.AIConfig.Enabled {
		llmAdvisor := llm.NewAdvisor(&llm.AdvisorConfig{
			Enabled:         true,
			Provider:        llm.Provider(cfg.AIConfig.LLMProvider),
			APIKey:          cfg.LLMAPIKey(),
			Model:           cfg.AIConfig.LLMModel,
			MaxTokens:       cfg.AIConfig.MaxTokens,
			Temperature:     cfg.AIConfig.Temperature,
			Timeout:         time.Duration(cfg.AIConfig.TimeoutSeconds) * time.Second,
			CacheDuration:   5 * time.Minute,
			RateLimitPerMin: 10,
		})
		narrator = llmAdvisor
		answerer = llmAdvisor
		logger.Info("LLM advisor initialized", "provider", cfg.AIConfig.LLMProvider)
	} else {
		logger.Info("LLM advisor disabled, using deterministic messages")
	}

	// Redis persistence for the novelty gate baseline (optional)
	var persister monitor.Persister
	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.Warn("Redis unavailable, baseline will not survive restarts", "error", err.Error())
		} else {
			persister = cache.NewRecommendationStore(cacheService)
			logger.Info("Recommendation persistence enabled", "address", cfg.RedisConfig.Address)
		}
	}

	// PostgreSQL recommendation history (optional)
	var history monitor.HistoryRecorder
	var repo *database.Repository
	var db *database.DB
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		}, zlog)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		ctx := context.Background()
		if err := db.RunMigrations(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		repo = database.NewRepository(db, zlog)
		history = repo
		logger.Info("Recommendation history enabled", "database", cfg.DatabaseConfig.Database)
	}

	// Advisory monitor and interactive handler
	monitorConfig := monitor.Config{
		Enabled:       cfg.MonitorConfig.Enabled,
		CheckInterval: cfg.MonitorConfig.CheckInterval(),
		CycleTimeout:  cfg.MonitorConfig.CycleTimeout(),
	}

	mon := monitor.New(collector, state, narrator, notifyManager, eventBus, persister, history, monitorConfig)
	interactive := monitor.NewInteractive(collector, state, narrator, answerer, monitorConfig)

	// Telegram chat surface
	bot := telegram.NewBot(telegram.Config{
		BotToken:     cfg.TelegramConfig.BotToken,
		SubscriberID: cfg.TelegramConfig.SubscriberID,
		PollTimeout:  cfg.TelegramConfig.PollTimeout,
	}, mon, interactive, state)
	bot.Start()

	if cfg.MonitorConfig.Enabled {
		mon.Start()
	} else {
		logger.Info("Monitoring not started on boot, waiting for /monitor")
	}

	// Read-only status API (optional)
	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(api.ServerConfig{
			Port:           cfg.ServerConfig.Port,
			Host:           cfg.ServerConfig.Host,
			AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		}, mon, state, repo, db, dataClient, eventBus, zlog)

		go func() {
			if err := server.Start(); err != nil {
				logger.Error("API server failed", "error", err.Error())
			}
		}()
	}

	logger.Info("Market advisor started")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down API server", "error", err.Error())
		}
	}

	bot.Stop()
	mon.Stop()

	if cacheService != nil {
		if err := cacheService.Close(); err != nil {
			logger.Warn("Error closing Redis connection", "error", err.Error())
		}
	}

	logger.Info("Shutdown complete")
}
