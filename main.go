// Package main provides the main entry point for the affiliate commission engine
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/amirphl/affiliate-engine/app/handlers"
	"github.com/amirphl/affiliate-engine/app/middleware"
	"github.com/amirphl/affiliate-engine/app/router"
	"github.com/amirphl/affiliate-engine/app/scheduler"
	"github.com/amirphl/affiliate-engine/app/services"
	businessflow "github.com/amirphl/affiliate-engine/business_flow"
	"github.com/amirphl/affiliate-engine/config"
	"github.com/amirphl/affiliate-engine/migrations"
	"github.com/amirphl/affiliate-engine/repository"
	"github.com/amirphl/affiliate-engine/utils"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	stopFuncs []func()
}

func main() {
	log.Println("Starting affiliate engine...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	closeLog := initializeLogging(cfg.Logging)
	defer closeLog()

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.router.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeLogging points the standard logger at stdout, a rotating file, or both
func initializeLogging(cfg config.LoggingConfig) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.LUTC)
	if cfg.Output == "stdout" || cfg.FilePath == "" {
		return func() {}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		log.Printf("Failed to create log directory, logging to stdout: %v", err)
		return func() {}
	}

	rotating := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	var out io.Writer = rotating
	if cfg.Output == "both" {
		out = io.MultiWriter(os.Stdout, rotating)
	}
	log.SetOutput(out)

	return func() { _ = rotating.Close() }
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	gormCfg := &gorm.Config{TranslateError: true}
	if cfg.SlowQueryLog {
		gormCfg.Logger = gormlogger.New(log.Default(), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	if cfg.AutoMigrate {
		if err := migrations.RunMigrations(db); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return db, nil
}

// initializeCache initializes the Cache client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis.
// The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeNotificationService initializes the notification service
func initializeNotificationService(cfg config.EmailConfig, repo repository.NotificationRepository) services.NotificationService {
	var emailProvider services.EmailProvider
	if cfg.Enabled {
		emailProvider = services.NewSMTPEmailProvider(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.FromEmail)
	} else {
		emailProvider = services.NewMockEmailProvider()
	}
	return services.NewNotificationService(repo, emailProvider)
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	var distributedLocker businessflow.RunLocker
	if rc != nil {
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.HealthCheckInterval))
		distributedLocker = businessflow.NewRedisRunLocker(rc, cfg.Cache.RedisPrefix+utils.SettlementLockKey, cfg.Settlement.LockTTL)
	}

	payloadKey, err := services.DecodePayloadKey(cfg.Crypto.PayloadKey)
	if err != nil {
		return nil, fmt.Errorf("invalid payload key: %w", err)
	}
	cipher, err := services.NewPayloadCipher(payloadKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize payload cipher: %w", err)
	}

	verifier, err := services.NewTokenVerifier(cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.UseRSAKeys, cfg.JWT.PublicKey, cfg.JWT.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	// Initialize repositories
	userRepo := repository.NewAffiliateUserRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	configRepo := repository.NewPlatformConfigRepository(db)
	commissionRepo := repository.NewCommissionRecordRepository(db)
	dailyRepo := repository.NewDailyActionCounterRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	withdrawalRepo := repository.NewWithdrawalRepository(db)
	runRepo := repository.NewSettlementRunRepository(db)
	tierRepo := repository.NewTierRepository(db)
	progressRepo := repository.NewUserTierProgressRepository(db)
	rewardLogRepo := repository.NewRewardLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Initialize services
	notifier := initializeNotificationService(cfg.Email, notificationRepo)
	idGen := services.NewIDGenerator()
	gateway := services.NewHTTPPayoutGateway(cfg.PayoutGateway)

	// Initialize business flows
	ledger := businessflow.NewWalletLedger(walletRepo, idGen, db)
	tierFlow := businessflow.NewTierProgressionFlow(tierRepo, progressRepo, rewardLogRepo, notifier, idGen, db)
	trackingFlow := businessflow.NewTrackingFlow(userRepo, campaignRepo, configRepo, commissionRepo, dailyRepo, tierFlow, idGen, db)
	rewardFlow := businessflow.NewRewardClaimFlow(rewardLogRepo, notifier, idGen, db)
	withdrawalFlow := businessflow.NewWithdrawalFlow(withdrawalRepo, userRepo, ledger, gateway, notifier, idGen, db, cfg.PayoutGateway.WebhookSecret)
	settlementFlow := businessflow.NewSettlementFlow(commissionRepo, campaignRepo, userRepo, dailyRepo, runRepo, ledger, notifier, distributedLocker, db, cfg.Settlement)
	reportFlow := businessflow.NewReportFlow(runRepo, commissionRepo, campaignRepo, userRepo)
	affiliateAdminFlow := businessflow.NewAffiliateAdminFlow(userRepo, campaignRepo, configRepo, commissionRepo, ledger, idGen, db)

	// Manual runs go through the scheduler even when the daily job is disabled
	settlementScheduler, err := scheduler.NewSettlementScheduler(settlementFlow, cfg.Settlement, cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize settlement scheduler: %w", err)
	}
	if cfg.Settlement.Enabled {
		stop, err := settlementScheduler.Start(context.Background())
		if err != nil {
			return nil, err
		}
		stopFuncs = append(stopFuncs, stop)
	}

	// Initialize handlers
	h := router.Handlers{
		Tracking:  handlers.NewTrackingHandler(trackingFlow, withdrawalFlow, cipher),
		Affiliate: handlers.NewAffiliateHandler(tierFlow, rewardFlow, trackingFlow, withdrawalFlow, ledger, cipher),
		Admin:     handlers.NewAdminHandler(settlementScheduler, affiliateAdminFlow, reportFlow, trackingFlow, rewardFlow, withdrawalFlow, tierFlow, ledger, cipher),
	}

	auth := middleware.NewAuthMiddleware(verifier, cfg.Tracking.APIKeys)

	if rc != nil {
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
	}

	return &Application{
		router:    router.NewFiberRouter(cfg, h, auth),
		config:    cfg,
		stopFuncs: stopFuncs,
	}, nil
}
