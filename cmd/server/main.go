package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/optionclear/internal/auth"
	"github.com/ksred/optionclear/internal/contracts"
	"github.com/ksred/optionclear/internal/database"
	"github.com/ksred/optionclear/internal/escrow"
	"github.com/ksred/optionclear/internal/registry"
	"github.com/ksred/optionclear/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Demo credentials for local runs and the simulation. The API key is the
// owner identity on the ledger.
var demoCredentials = map[string]string{
	"buyer-demo":  "buyer-demo-secret",
	"seller-demo": "seller-demo-secret",
}

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the settlement API server with graceful
// shutdown support
func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "optionclear.db"
	}

	db, err := database.NewDatabase(dbPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	router := gin.Default()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "optionclear-secret-key"
	}

	// Initialize services and handlers
	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	for key, secret := range demoCredentials {
		authService.RegisterAPICredentials(key, secret)
	}

	registryService := registry.NewService(db)
	registryHandlers := registry.NewGinHandlers(registryService)

	escrowService := escrow.NewService(db)
	escrowHandlers := escrow.NewGinHandlers(escrowService)

	contractService := contracts.NewService(db)
	contractHandlers := contracts.NewGinHandlers(contractService)

	// Create and start the settlement processor
	processor := contracts.NewProcessor(contractService)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go processor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	setupRoutes(router, jwtSecret, authHandlers, registryHandlers, escrowHandlers, contractHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Ledger routes: Protected by JWT authentication; the token's owner
//   address is the signer identity for every operation
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	registryHandlers *registry.GinHandlers,
	escrowHandlers *escrow.GinHandlers,
	contractHandlers *contracts.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// User registry routes
		users := v1.Group("/users")
		users.Use(middleware.JWTAuth(jwtSecret))
		{
			users.POST("", registryHandlers.InitializeUserHandler())
			users.GET("/me", registryHandlers.GetUserHandler())
			users.GET("/:address", registryHandlers.GetUserByAddressHandler())
		}

		// Escrow custody routes
		escrowRoutes := v1.Group("/escrow")
		escrowRoutes.Use(middleware.JWTAuth(jwtSecret))
		{
			escrowRoutes.POST("", escrowHandlers.InitializeEscrowHandler())
			escrowRoutes.GET("", escrowHandlers.GetEscrowHandler())
			escrowRoutes.POST("/deposit", escrowHandlers.DepositHandler())
			escrowRoutes.POST("/withdraw", escrowHandlers.WithdrawHandler())
			escrowRoutes.GET("/transfers", escrowHandlers.GetTransfersHandler())
			escrowRoutes.GET("/wallet", escrowHandlers.GetWalletHandler())
		}

		// Contract lifecycle routes. Settlement is open to any
		// authenticated caller.
		contractRoutes := v1.Group("/contracts")
		contractRoutes.Use(middleware.JWTAuth(jwtSecret))
		{
			contractRoutes.POST("", contractHandlers.CreateContractHandler())
			contractRoutes.GET("", contractHandlers.ListContractsHandler())
			contractRoutes.GET("/:address", contractHandlers.GetContractHandler())
			contractRoutes.POST("/:address/exercise", contractHandlers.ExerciseContractHandler())
			contractRoutes.POST("/:address/settle", contractHandlers.SettleContractHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/wallets/fund", escrowHandlers.FundWalletHandler())
		}
	}
}
