package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guardian-api/internal/api"
	"guardian-api/internal/config"
	"guardian-api/internal/database"
	"guardian-api/internal/services"
	"guardian-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

func main() {
	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to initialize config: ", err)
	}

	// Initialize logging
	logging.InitLogging(cfg.LogLevel, cfg.LogFormat)

	// Initialize database
	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := database.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to initialize Redis: ", err)
	}

	// Rate limiting is shared through Redis when available
	var limiter services.Limiter
	if redisClient != nil {
		defer redisClient.Close()
		limiter = services.NewRedisLimiter(redisClient)
	} else {
		mem := services.NewMemoryLimiter()
		defer mem.Stop()
		limiter = mem
	}

	keys := services.NewKeyService(db)
	tickets := services.NewTicketService(db)
	licenses := services.NewLicenseService(db)
	moderation := services.NewModerationService(db)
	customBots := services.NewCustomBotService(db)

	deps := services.PaymentDeps{
		Keys:         keys,
		Tickets:      tickets,
		CustomBots:   customBots,
		Limiter:      limiter,
		Notifier:     services.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret),
		VerifyWindow: time.Duration(cfg.VerifyRateLimitMinutes) * time.Minute,
	}
	if cfg.BTCAddress != "" {
		oracle, err := services.NewBlockstreamClient(cfg.BlockstreamURL, cfg.BTCAddress, cfg.OracleTimeout)
		if err != nil {
			log.Fatal("Invalid BTC_ADDRESS: ", err)
		}
		deps.Oracle = oracle
		deps.Prices = services.NewPriceOracle(cfg.PriceAPIURL, cfg.PriceCacheTTL, cfg.OracleTimeout, redisClient)
	} else {
		logging.Warnf("BTC_ADDRESS not set, Bitcoin verification is disabled")
	}

	handler := &api.Handler{
		Config:        cfg,
		DB:            db,
		Redis:         redisClient,
		Licenses:      licenses,
		Keys:          keys,
		Payments:      services.NewPaymentService(db, deps),
		Moderation:    moderation,
		Guilds:        services.NewGuildService(db),
		Tickets:       tickets,
		CustomBots:    customBots,
		AutoResponses: services.NewAutoResponseService(db),
		Stats:         services.NewStatsService(db),
		Identity:      services.NewDiscordIdentityVerifier(cfg.OracleTimeout),
	}

	// Lapsed licenses; expired mutes are swept by the bot
	maintenance := services.NewMaintenance(licenses, cfg.LicenseSweepInterval)
	go maintenance.Run(ctx)

	// Set Gin mode
	gin.SetMode(cfg.Mode)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewEngine(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	<-ctx.Done()
	logging.Infof("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Errorf("Server shutdown failed: %v", err)
	}
}
