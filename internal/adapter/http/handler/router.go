package handler

import (
	"settlement-ledger/internal/adapter/http/middleware"
	"settlement-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	PlatformSvc    ports.PlatformService
	MerchantSvc    ports.MerchantService
	SettlementSvc  ports.SettlementService
	ReportingSvc   ports.ReportingService
	WebhookSvc     ports.WebhookService
	AuditSvc       ports.AuditService // nil = request audit disabled
	AccountRepo    ports.AccountRepository
	EncSvc         ports.EncryptionService
	SigSvc         ports.SignatureService
	NonceStore     ports.NonceStore
	TokenSvc       ports.TokenService
	RateLimitStore ports.RateLimitStore // nil = rate limiting disabled
	RateLimitRules map[string]middleware.RateLimitRule
	HealthCheckers []ports.HealthChecker
	MaxBodyBytes   int64
	Mode           string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	}
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	if deps.MaxBodyBytes > 0 {
		r.Use(middleware.MaxBodySize(deps.MaxBodyBytes))
	}
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := deps.RateLimitRules
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			rule, ok = rules["default"]
		}
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")
	hmacAuth := middleware.HMACAuth(deps.AccountRepo, deps.EncSvc, deps.SigSvc, deps.NonceStore, deps.Logger)
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	accountHandler := NewAccountHandler(deps.AuthSvc, deps.ReportingSvc)
	platformHandler := NewPlatformHandler(deps.PlatformSvc)
	merchantHandler := NewMerchantHandler(deps.MerchantSvc, deps.WebhookSvc, deps.ReportingSvc)
	paymentHandler := NewPaymentHandler(deps.SettlementSvc, deps.ReportingSvc)

	// --- Public routes ---
	accounts := v1.Group("/accounts")
	{
		accounts.POST("/register", rl("accounts_register"), accountHandler.Register)
		accounts.POST("/login", rl("accounts_login"), accountHandler.Login)
		accounts.GET("/me/balance", jwtAuth, rl("default"), accountHandler.GetBalance)
	}

	// --- Platform registry and fee treasury ---
	platform := v1.Group("/platform")
	{
		platform.POST("", hmacAuth, rl("default"), platformHandler.Initialize)
		platform.PATCH("", hmacAuth, rl("default"), platformHandler.Update)
		platform.POST("/claim", hmacAuth, rl("platform_claim"), platformHandler.ClaimFees)
		platform.POST("/mint", hmacAuth, rl("default"), platformHandler.Mint)
		platform.GET("", jwtAuth, rl("default"), platformHandler.Get)
		platform.GET("/treasury", jwtAuth, rl("default"), platformHandler.Treasury)
	}

	// --- Merchant directory ---
	merchants := v1.Group("/merchants")
	{
		merchants.POST("", hmacAuth, rl("default"), merchantHandler.Register)
		merchants.PATCH("/:id/status", hmacAuth, rl("default"), merchantHandler.SetStatus)
		merchants.PUT("/:id/webhook", hmacAuth, rl("default"), merchantHandler.ConfigureWebhook)
		merchants.GET("", jwtAuth, rl("default"), merchantHandler.List)
		merchants.GET("/:id", jwtAuth, rl("default"), merchantHandler.Get)
		merchants.GET("/:id/payments", jwtAuth, rl("default"), merchantHandler.Payments)
		merchants.GET("/:id/payments/:payment_id/webhooks", jwtAuth, rl("default"), merchantHandler.WebhookDeliveries)
		merchants.GET("/:id/stats", jwtAuth, rl("default"), merchantHandler.Stats)
	}

	// --- Settlement ---
	payments := v1.Group("/payments")
	{
		payments.POST("", hmacAuth, rl("payments"), paymentHandler.ProcessPayment)
		payments.POST("/:id/refund", hmacAuth, rl("payments_refund"), paymentHandler.RefundPayment)
		payments.GET("/:id", jwtAuth, rl("default"), paymentHandler.GetPayment)
	}

	v1.GET("/customers/:id", jwtAuth, rl("default"), paymentHandler.GetCustomer)

	return r
}
