package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"settlement-ledger/config"
	httpHandler "settlement-ledger/internal/adapter/http/handler"
	"settlement-ledger/internal/adapter/http/middleware"
	"settlement-ledger/internal/adapter/storage/memory"
	pgStorage "settlement-ledger/internal/adapter/storage/postgres"
	redisStorage "settlement-ledger/internal/adapter/storage/redis"
	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"
	"settlement-ledger/internal/service"
	"settlement-ledger/migrations"
	"settlement-ledger/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// repositories bundles one storage driver's implementations of the ports.
type repositories struct {
	platform   ports.PlatformRepository
	merchant   ports.MerchantRepository
	customer   ports.CustomerRepository
	payment    ports.PaymentRepository
	asset      ports.AssetRepository
	token      ports.TokenAccountRepository
	account    ports.AccountRepository
	audit      ports.AuditRepository
	webhook    ports.WebhookRepository
	transactor ports.DBTransactor
	health     ports.HealthChecker
	close      func()
}

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("STL_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Driver).
		Int("port", cfg.Server.Port).
		Msg("Starting Settlement Ledger")

	ctx := context.Background()

	repos, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer repos.close()

	rdb, stopRedis, err := openRedis(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer stopRedis()

	if err := repos.asset.Upsert(ctx, &domain.Asset{
		Mint:     cfg.Asset.Mint,
		Symbol:   cfg.Asset.Symbol,
		Decimals: cfg.Asset.Decimals,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed asset")
	}

	// Redis stores
	paymentCache := redisStorage.NewPaymentCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Business services
	ledger := service.NewTokenLedger(repos.token, encSvc, logger.Component(log, "ledger"))
	auditSvc := service.NewAuditService(repos.audit, logger.Component(log, "audit"))
	webhookSvc := service.NewWebhookService(
		repos.webhook,
		repos.merchant,
		encSvc,
		sigSvc,
		&http.Client{Timeout: cfg.Webhook.Timeout},
		cfg.Webhook.RetryIntervals,
		logger.Component(log, "webhook"),
	)
	authSvc := service.NewAuthService(repos.account, hashSvc, encSvc, tokenSvc)
	platformSvc := service.NewPlatformService(repos.platform, repos.asset, ledger, repos.transactor, auditSvc, logger.Component(log, "platform"))
	merchantSvc := service.NewMerchantService(repos.merchant, repos.platform, repos.transactor, auditSvc, logger.Component(log, "merchant"))
	settlementSvc := service.NewSettlementService(
		repos.platform,
		repos.merchant,
		repos.customer,
		repos.payment,
		ledger,
		repos.transactor,
		paymentCache,
		webhookSvc,
		auditSvc,
		cfg.Redis.CacheTTL,
		logger.Component(log, "settlement"),
	)
	reportingSvc := service.NewReportingService(
		repos.payment,
		repos.merchant,
		repos.customer,
		repos.platform,
		ledger,
		paymentCache,
		cfg.Redis.CacheTTL,
		logger.Component(log, "reporting"),
	)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		PlatformSvc:    platformSvc,
		MerchantSvc:    merchantSvc,
		SettlementSvc:  settlementSvc,
		ReportingSvc:   reportingSvc,
		WebhookSvc:     webhookSvc,
		AuditSvc:       auditSvc,
		AccountRepo:    repos.account,
		EncSvc:         encSvc,
		SigSvc:         sigSvc,
		NonceStore:     nonceStore,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		RateLimitRules: middleware.DefaultRateLimitRules(middleware.RateLimitRule{
			Limit:  cfg.RateLimit.Limit,
			Window: cfg.RateLimit.Window,
		}),
		HealthCheckers: []ports.HealthChecker{repos.health, redisStorage.NewHealthCheck(rdb)},
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Mode:           cfg.Server.Mode,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let queued webhook deliveries and audit writes finish.
	webhookSvc.Wait()
	auditSvc.Wait()

	log.Info().Msg("Server exited")
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repositories, error) {
	switch cfg.Storage.Driver {
	case "memory":
		log.Warn().Msg("using in-memory storage; state is lost on exit")
		store := memory.New()
		return &repositories{
			platform:   memory.NewPlatformRepo(store),
			merchant:   memory.NewMerchantRepo(store),
			customer:   memory.NewCustomerRepo(store),
			payment:    memory.NewPaymentRepo(store),
			asset:      memory.NewAssetRepo(store),
			token:      memory.NewTokenAccountRepo(store),
			account:    memory.NewAccountRepo(store),
			audit:      memory.NewAuditRepo(store),
			webhook:    memory.NewWebhookRepo(store),
			transactor: store,
			health:     store,
			close:      func() {},
		}, nil
	default:
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		if err := pgStorage.Migrate(ctx, pool, migrations.FS, log); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info().Msg("PostgreSQL connected")
		return &repositories{
			platform:   pgStorage.NewPlatformRepo(pool),
			merchant:   pgStorage.NewMerchantRepo(pool),
			customer:   pgStorage.NewCustomerRepo(pool),
			payment:    pgStorage.NewPaymentRepo(pool),
			asset:      pgStorage.NewAssetRepo(pool),
			token:      pgStorage.NewTokenAccountRepo(pool),
			account:    pgStorage.NewAccountRepo(pool),
			audit:      pgStorage.NewAuditRepo(pool),
			webhook:    pgStorage.NewWebhookRepo(pool),
			transactor: pgStorage.NewTransactor(pool, cfg.Database.LockTimeout),
			health:     pgStorage.NewHealthCheck(pool),
			close:      pool.Close,
		}, nil
	}
}

// openRedis connects to the configured Redis, or starts an embedded one for
// the memory driver.
func openRedis(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*goredis.Client, func(), error) {
	if cfg.Storage.Driver == "memory" {
		return redisStorage.NewEmbedded(log)
	}
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Msg("Redis connected")
	return rdb, func() { _ = rdb.Close() }, nil
}
