package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"gamma-trading-bot/config"
	"gamma-trading-bot/internal/api"
	"gamma-trading-bot/internal/cache"
	"gamma-trading-bot/internal/consensus"
	"gamma-trading-bot/internal/database"
	"gamma-trading-bot/internal/gamma"
	"gamma-trading-bot/internal/logging"
	"gamma-trading-bot/internal/metrics"
	"gamma-trading-bot/internal/monitor"
	"gamma-trading-bot/internal/notification"
	"gamma-trading-bot/internal/provider"
	"gamma-trading-bot/internal/scheduler"
	"gamma-trading-bot/internal/touch"
	"gamma-trading-bot/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	loopLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Provider API key: Vault when enabled, config otherwise
	apiKey := cfg.ProviderConfig.APIKey
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal("Failed to initialize Vault client", "error", err.Error())
	}
	if !cfg.VaultConfig.Enabled {
		vaultClient.SeedCredentials("options", vault.ProviderCredentials{APIKey: apiKey})
	}
	creds, err := vaultClient.GetCredentials(ctx, "options")
	if err != nil {
		logger.Warn("No provider credentials available, continuing unauthenticated", "error", err.Error())
	} else {
		apiKey = creds.APIKey
	}

	// Touch history persistence: Postgres when enabled, Redis next, memory last
	var store touch.Store
	var recoverable scheduler.Recoverable
	switch {
	case cfg.DatabaseConfig.Enabled:
		db, err := database.NewDB(cfg.DatabaseConfig)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err.Error())
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal("Failed to run migrations", "error", err.Error())
		}
		store = database.NewTouchRepository(db)
		logger.Info("Touch history persisted to Postgres", "host", cfg.DatabaseConfig.Host)
	case cfg.RedisConfig.Enabled:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisConfig.Address,
			Password:     cfg.RedisConfig.Password,
			DB:           cfg.RedisConfig.DB,
			PoolSize:     cfg.RedisConfig.PoolSize,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		redisStore := database.NewRedisTouchStore(client)
		store = redisStore
		recoverable = redisStore
		logger.Info("Touch history persisted to Redis", "addr", cfg.RedisConfig.Address)
	default:
		store = touch.NewMemoryStore()
		logger.Warn("No persistence configured, touch history is in-memory only")
	}

	touchCfg := &touch.Config{
		ModelProbabilities: cfg.TouchConfig.ModelProbabilities,
		ModelWeight:        cfg.TouchConfig.ModelWeight,
		HistoryWeight:      cfg.TouchConfig.HistoryWeight,
		ExactPct:           cfg.TouchConfig.ExactPct,
		NearPct:            cfg.TouchConfig.NearPct,
		VolumeBoostMax:     cfg.TouchConfig.VolumeBoostMax,
	}
	trackers := make(map[string]*touch.Tracker, len(cfg.AnalysisConfig.Symbols))
	for _, symbol := range cfg.AnalysisConfig.Symbols {
		trackers[symbol] = touch.NewTracker(symbol, store, touchCfg)
	}
	trackerFor := func(symbol string) *touch.Tracker { return trackers[symbol] }

	var client provider.Interface
	if cfg.ProviderConfig.MockMode {
		client = provider.NewMockClient()
		logger.Warn("Mock mode enabled, serving simulated chains")
	} else {
		client = provider.NewClient(cfg.ProviderConfig.BaseURL, apiKey, cfg.ProviderConfig.RequestLimit)
	}

	engine := gamma.NewEngine(&gamma.Config{
		ContractMultiplier:    cfg.AnalysisConfig.ContractMultiplier,
		ReferenceVolumeWeight: cfg.AnalysisConfig.ReferenceVolumeWeight,
		WallProximityPoints:   cfg.AnalysisConfig.WallProximityPoints,
	})
	resolverCfg := consensus.DefaultConfig()
	resolverCfg.GammaWeight = cfg.ConsensusConfig.GammaWeight
	resolverCfg.TouchWeight = cfg.ConsensusConfig.TouchWeight
	resolverCfg.VolumeWeight = cfg.ConsensusConfig.VolumeWeight
	resolverCfg.MinConsensus = cfg.ConsensusConfig.MinConsensus
	resolverCfg.MaxNodeDistance = cfg.ConsensusConfig.MaxNodeDistance
	resolverCfg.StopFraction = cfg.ConsensusConfig.StopFraction
	resolverCfg.MaxPositionFraction = cfg.ConsensusConfig.MaxPositionFraction
	resolverCfg.WallProximityPoints = cfg.AnalysisConfig.WallProximityPoints
	resolver := consensus.NewResolver(resolverCfg)

	states := cache.NewMarketStateCache(cfg.RedisConfig)
	defer states.Close()
	m := metrics.New()

	notifyManager := notification.NewManager(cfg.NotificationConfig.Enabled)
	if cfg.NotificationConfig.Telegram.Enabled {
		notifyManager.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
			BotToken: cfg.NotificationConfig.Telegram.BotToken,
			ChatID:   cfg.NotificationConfig.Telegram.ChatID,
			Enabled:  true,
		}))
		logger.Info("Telegram notifications enabled")
	}
	if cfg.NotificationConfig.Discord.Enabled {
		notifyManager.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
			WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
			Enabled:    true,
		}))
		logger.Info("Discord notifications enabled")
	}

	watch := monitor.New(cfg.MonitorConfig, trackerFor, m, loopLogger)

	if cfg.MonitorConfig.Enabled {
		stream := provider.NewPriceStream(cfg.ProviderConfig.StreamURL, cfg.AnalysisConfig.Symbols, client, func(tick provider.Tick) {
			watch.HandleTick(ctx, tick)
		})
		stream.OnReconnect = m.StreamReconnects.Inc
		go stream.Start(ctx)
		defer stream.Stop()

		go func() {
			sweep := time.NewTicker(30 * time.Second)
			defer sweep.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-sweep.C:
					watch.Sweep(ctx)
				}
			}
		}()
		logger.Info("Touch monitor started", "symbols", cfg.AnalysisConfig.Symbols)
	}

	if cfg.SchedulerConfig.Enabled {
		sched := scheduler.New(cfg.SchedulerConfig, cfg.AnalysisConfig.Symbols, scheduler.Deps{
			Client:   client,
			Engine:   engine,
			Resolver: resolver,
			Trackers: trackerFor,
			States:   states,
			Monitor:  watch,
			Metrics:  m,
			Notify:   notifyManager,
			Store:    recoverable,
		}, loopLogger)
		go sched.Run(ctx)
	}

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(cfg.ServerConfig, cfg.AuthConfig, states, api.TrackerSource(trackerFor))
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("API server failed", "error", err.Error())
				cancel()
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		logger.Info("Shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown failed", "error", err.Error())
		}
	}
	logger.Info("Shutdown complete")
}
