package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"opinion-market/internal/auth"
	"opinion-market/internal/config"
	"opinion-market/internal/database"
	"opinion-market/internal/handlers"
	"opinion-market/internal/ledger"
	"opinion-market/internal/logger"
	"opinion-market/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Select the token ledger backend
	var tokens ledger.TokenLedger
	if cfg.Solana.Enabled {
		solanaLedger, err := ledger.NewSolanaLedger(cfg.Solana, zlog)
		if err != nil {
			log.Fatalf("Failed to initialize Solana ledger: %v", err)
		}
		tokens = solanaLedger
	} else {
		zlog.Warn("using in-memory token ledger; transfers are not settled on-chain")
		tokens = ledger.NewMemoryLedger()
	}

	// Initialize the engine
	serializer := services.NewSerializer()
	sequencer := services.NewSequencer(time.Duration(cfg.Market.BlockIntervalSeconds) * time.Second)
	priceEngine := services.NewPriceEngine(cfg.Market)
	feeLedger := services.NewFeeLedger(database.GetDB(), zlog, tokens, serializer, cfg.Market)
	rateGuard := services.NewRateGuard(cfg.Market)
	opinionService := services.NewOpinionService(
		database.GetDB(), zlog, cfg.Market, priceEngine, feeLedger, rateGuard, tokens, serializer)
	poolService := services.NewPoolService(
		database.GetDB(), zlog, cfg.Market, opinionService, feeLedger, tokens, serializer)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(cfg.App)
	opinionHandler := handlers.NewOpinionHandler(opinionService, sequencer)
	poolHandler := handlers.NewPoolHandler(poolService, sequencer)
	feeHandler := handlers.NewFeeHandler(feeLedger, sequencer)
	adminHandler := handlers.NewAdminHandler(database.GetDB(), serializer, cfg.Market)

	// Set up Gin router
	router := gin.Default()

	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
	}
	if frontendURL := os.Getenv("FRONTEND_URL"); frontendURL != "" {
		allowedOrigins = append(allowedOrigins, frontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Authentication routes (public)
	router.POST("/auth/wallet", authHandler.WalletLogin)

	// Public read routes
	router.GET("/api/opinions", opinionHandler.List)
	router.GET("/api/opinions/:id", opinionHandler.Get)
	router.GET("/api/opinions/:id/history", opinionHandler.History)
	router.GET("/api/pools", poolHandler.List)
	router.GET("/api/pools/:id", poolHandler.Get)
	router.GET("/api/pools/:id/contributions", poolHandler.Contributions)

	// API routes (protected)
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		api.POST("/opinions", opinionHandler.Create)
		api.POST("/opinions/:id/answers", opinionHandler.Submit)

		api.POST("/pools", poolHandler.Create)
		api.POST("/pools/:id/contributions", poolHandler.Contribute)
		api.POST("/pools/:id/execute", poolHandler.Execute)
		api.POST("/pools/:id/withdraw", poolHandler.Withdraw)

		api.GET("/fees/balance", feeHandler.Balance)
		api.POST("/fees/withdraw", feeHandler.Withdraw)

		moderator := api.Group("")
		moderator.Use(auth.RequireRole(auth.RoleModerator, auth.RoleAdmin))
		{
			moderator.POST("/opinions/:id/deactivate", opinionHandler.Deactivate)
			moderator.POST("/opinions/:id/reactivate", opinionHandler.Reactivate)
		}

		operator := api.Group("/admin")
		operator.Use(auth.RequireRole(auth.RoleOperator, auth.RoleAdmin))
		{
			operator.POST("/pause", adminHandler.Pause)
			operator.POST("/unpause", adminHandler.Unpause)
		}

		admin := api.Group("/admin")
		admin.Use(auth.RequireRole(auth.RoleAdmin))
		{
			admin.GET("/params", adminHandler.Params)
			admin.GET("/stats", adminHandler.Stats)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		zlog.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	zlog.Info("server exited")
}
