// cmd/server/main.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"challenge-orchestrator/internal/client"
	"challenge-orchestrator/internal/handler"
	"challenge-orchestrator/internal/logger"
	"challenge-orchestrator/internal/middleware"
	"challenge-orchestrator/internal/models"
	"challenge-orchestrator/internal/repository"
	"challenge-orchestrator/internal/service"
	"challenge-orchestrator/internal/signature"
)

func main() {
	cfg := loadConfig()

	log := logger.New("challenge-orchestrator", cfg.Environment)
	defer log.Sync()

	// Primary session store
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisURL,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	store := repository.NewRedisSessionStore(rdb, cfg.SessionTTL)

	// Legacy store, kept until the migration window closes
	var legacyStore repository.SessionStore
	if cfg.LegacyDatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.LegacyDatabaseURL)
		if err != nil {
			log.Fatal("failed to open legacy session database", zap.Error(err))
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			log.Fatal("failed to ping legacy session database", zap.Error(err))
		}
		if _, err := db.Exec(repository.SessionSchema); err != nil {
			log.Fatal("failed to ensure legacy session schema", zap.Error(err))
		}
		legacyStore = repository.NewPostgresSessionStore(db)
	}

	// Collaborator clients
	provider := client.NewPayerAuthClient(cfg.PayerAuthURL, cfg.ClientTimeout)
	instruments := client.NewInstrumentClient(cfg.InstrumentServiceURL, cfg.ClientTimeout)
	orders := client.NewOrderClient(cfg.OrderServiceURL, cfg.ClientTimeout)

	signer := signature.NewSigner([]byte(cfg.SessionSigningKey), "challenge-orchestrator")

	toggles := service.Toggles{
		TreatProviderFaultAsVerified: cfg.TreatProviderFaultAsVerified,
		AmbiguousStatusHeuristic:     cfg.AmbiguousStatusHeuristic,
		StrictContextChecks:          cfg.StrictContextChecks,
	}

	framePolicy := service.DefaultFramePolicyConfig()
	for _, partner := range splitList(cfg.ProxiedFramePartners) {
		framePolicy.PerPartner[partner] = models.FrameProxied
	}
	for _, partner := range splitList(cfg.RedirectPartners) {
		framePolicy.PerPartner[partner] = models.FullPageRedirect
	}

	// Services
	sessions := service.NewSessionManager(store, legacyStore, provider, instruments, signer, framePolicy, toggles, log)
	notifier := service.NewAttachmentNotifier(orders, log)
	engine := service.NewChallengeFlowEngine(sessions, provider, notifier, signer, toggles, cfg.PublicBaseURL, cfg.FingerprintTimeout, log)
	ownership := service.NewOwnershipVerifier(instruments, log)
	integrity := service.NewTransactionIntegrityVerifier(toggles, log)
	status := service.NewAuthenticationStatusService(sessions, ownership, integrity, log)

	sessionHandler := handler.NewSessionHandler(sessions, engine, status, log)

	router := setupRouter(sessionHandler, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

func setupRouter(sessionHandler *handler.SessionHandler, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		sessions := v1.Group("/paymentSessions")
		{
			sessions.POST("", sessionHandler.CreateSession)
			sessions.GET("/:id", sessionHandler.GetSession)
			sessions.POST("/:id/fingerprint", sessionHandler.CompleteFingerprint)
			sessions.POST("/:id/challenge", sessionHandler.CompleteChallenge)
			sessions.POST("/:id/cancel", sessionHandler.Cancel)
			sessions.GET("/:id/proxyFrame", sessionHandler.ProxyFrame)
		}

		v1.GET("/accounts/:accountId/paymentSessions/:id/status", sessionHandler.GetAuthenticationStatus)
	}

	return router
}

type Config struct {
	Port        string
	Environment string

	RedisURL          string
	SessionTTL        time.Duration
	LegacyDatabaseURL string

	PayerAuthURL         string
	InstrumentServiceURL string
	OrderServiceURL      string
	ClientTimeout        time.Duration

	PublicBaseURL      string
	SessionSigningKey  string
	FingerprintTimeout time.Duration

	TreatProviderFaultAsVerified bool
	AmbiguousStatusHeuristic     bool
	StrictContextChecks          bool

	ProxiedFramePartners string
	RedirectPartners     string
}

func loadConfig() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		RedisURL:          getEnv("REDIS_URL", "localhost:6379"),
		SessionTTL:        getDuration("SESSION_TTL", 24*time.Hour),
		LegacyDatabaseURL: getEnv("LEGACY_DATABASE_URL", ""),

		PayerAuthURL:         getEnv("PAYERAUTH_URL", "http://localhost:8081"),
		InstrumentServiceURL: getEnv("INSTRUMENT_SERVICE_URL", "http://localhost:8082"),
		OrderServiceURL:      getEnv("ORDER_SERVICE_URL", "http://localhost:8083"),
		ClientTimeout:        getDuration("CLIENT_TIMEOUT", 10*time.Second),

		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		SessionSigningKey:  getEnv("SESSION_SIGNING_KEY", "dev-signing-key"),
		FingerprintTimeout: getDuration("FINGERPRINT_TIMEOUT", 10*time.Second),

		TreatProviderFaultAsVerified: getEnv("TREAT_PROVIDER_FAULT_AS_VERIFIED", "false") == "true",
		AmbiguousStatusHeuristic:     getEnv("AMBIGUOUS_STATUS_HEURISTIC", "true") == "true",
		StrictContextChecks:          getEnv("STRICT_CONTEXT_CHECKS", "false") == "true",

		ProxiedFramePartners: getEnv("PROXIED_FRAME_PARTNERS", ""),
		RedirectPartners:     getEnv("REDIRECT_PARTNERS", ""),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
