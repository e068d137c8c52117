package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/clearledger/backend/internal/config"
	"github.com/clearledger/backend/internal/database"
	"github.com/clearledger/backend/internal/gateway"
	"github.com/clearledger/backend/internal/handlers"
	mW "github.com/clearledger/backend/internal/middleware"
	"github.com/clearledger/backend/internal/services"
)

// @title Bank Reconciliation Backend API
// @version 1.0
// @description Reconciliation session and payment retry service
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")
	viper.BindEnv("settlement.bic", "SETTLEMENT_BIC")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize infrastructure
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize services
	paymentStore := services.NewPostgresPaymentStore(db)
	exportService := services.NewSettlementExportService(viper.GetString("settlement.bic"))
	reconciliationService := services.NewReconciliationService(db, redisClient, paymentStore, exportService)
	discrepancyCalc := services.NewDiscrepancyCalculator(paymentStore)
	summaryService := services.NewSummaryService()

	breaker := services.NewCircuitBreaker(config.LoadBreakerConfig())
	paymentGateway := gateway.NewHTTPPaymentGateway()
	retryService := services.NewPaymentRetryService(paymentStore, paymentGateway, breaker, redisClient, config.LoadRetryConfig())

	authService := services.NewAuthService(db, redisClient)
	reconciliationHandler := handlers.NewReconciliationHandler(reconciliationService, discrepancyCalc, summaryService)
	retryHandler := handlers.NewRetryHandler(retryService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Uploaded bank-statement files
	r.Handle("/static/statements/*", http.StripPrefix("/static/statements/",
		mW.StaticFileServer("./static/statements")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Operator authentication
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			// Operator profile
			r.Get("/auth/profile", authService.GetProfile)

			// Reconciliation sessions
			r.Post("/reconciliation/sessions", reconciliationHandler.StartSession)
			r.Get("/reconciliation/sessions/{sessionId}", reconciliationHandler.GetSession)
			r.Get("/reconciliation/sessions/{sessionId}/discrepancy", reconciliationHandler.GetDiscrepancy)
			r.Post("/reconciliation/sessions/{sessionId}/payments", reconciliationHandler.AddReconciledPayment)
			r.Post("/reconciliation/sessions/{sessionId}/complete", reconciliationHandler.CompleteSession)
			r.Post("/reconciliation/sessions/{sessionId}/approve", reconciliationHandler.ApproveSession)
			r.Get("/reconciliation/summary", reconciliationHandler.GetSummary)

			// Payment retries
			r.Post("/payments/{paymentId}/retry", retryHandler.RetryPayment)
			r.Get("/payments/retry/circuit", retryHandler.GetBreakerStatus)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
