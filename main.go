package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"finverseAPI/handlers"
	"finverseAPI/internal/catalog"
	"finverseAPI/internal/eventlog"
	"finverseAPI/internal/insight"
	"finverseAPI/internal/progressstore"
	"finverseAPI/middleware"
	"finverseAPI/services"

	_ "net/http/pprof"
)

var (
	dbPool             *pgxpool.Pool
	progressStore      *progressstore.FirestoreStore
	auditSink          *eventlog.AuditSink
	events             *eventlog.Log
	progressionService *services.ProgressionService
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	progressStore, err = progressstore.NewFirestoreStore(ctx, "./serviceAccountKey.json")
	if err != nil {
		log.Fatal("Failed to initialize progress store:", err)
	}
	log.Println("Successfully connected to Firestore")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}
	log.Println("Successfully connected to audit database")

	auditSink = eventlog.NewAuditSink(dbPool)
	events = eventlog.NewWithSink(auditSink)

	progressionService = services.NewProgressionService(
		progressStore,
		catalog.New(),
		events,
		insight.KeywordAnalyzer{},
	)

	middleware.InitPrometheus()
	services.InitProgressionMetrics()
}

func main() {
	defer func() {
		log.Println("Closing progress store and audit sink...")
		auditSink.Close()
		dbPool.Close()
		if err := progressStore.Close(); err != nil {
			log.Printf("Error closing progress store: %v", err)
		}
	}()

	progressionHandler := handlers.NewProgressionHandler(progressionService, events)

	r := mux.NewRouter()

	go middleware.CleanupVisitors()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "audit database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "finverse-api"}`))
	}).Methods("GET")

	// -------------------------------------------------------------------------
	// API V1 SUBROUTER
	// -------------------------------------------------------------------------
	api := r.PathPrefix("/api/v1").Subrouter()

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/progress", progressionHandler.GetProgress).Methods("GET")
	protected.HandleFunc("/progress/experience", progressionHandler.AwardExperience).Methods("POST")
	protected.HandleFunc("/progress/achievements", progressionHandler.UnlockAchievement).Methods("POST")
	protected.HandleFunc("/progress/challenges", progressionHandler.StartChallenge).Methods("POST")
	protected.HandleFunc("/progress/challenges/{challengeID}", progressionHandler.UpdateChallengeProgress).Methods("PUT")
	protected.HandleFunc("/progress/quests", progressionHandler.StartQuest).Methods("POST")
	protected.HandleFunc("/progress/quests/{questID}", progressionHandler.ProgressQuest).Methods("PUT")
	protected.HandleFunc("/progress/activity", progressionHandler.RecordActivity).Methods("POST")
	protected.HandleFunc("/progress/checkin", progressionHandler.CheckIn).Methods("POST")
	protected.HandleFunc("/progress/events", progressionHandler.DrainEvents).Methods("GET")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
