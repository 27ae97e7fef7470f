package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/reconcilia-matching-engine/internal/api_gateway"
	"github.com/reconcilia-matching-engine/internal/api_gateway/service"
	"github.com/reconcilia-matching-engine/internal/config"
	"github.com/reconcilia-matching-engine/internal/data/mongo"
	"github.com/reconcilia-matching-engine/internal/data/postgres"
	"github.com/reconcilia-matching-engine/internal/learner"
	"github.com/reconcilia-matching-engine/internal/ledger"
	"github.com/reconcilia-matching-engine/internal/logger"
	"github.com/reconcilia-matching-engine/internal/matching"
	"github.com/reconcilia-matching-engine/internal/platform/messaging/producers"
	"github.com/reconcilia-matching-engine/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producer for API Gateway (publishes to the scan topic)
	kafkaProducer, err := producers.NewScanReqMessageProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize API Gateway Kafka producer", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	documentRepo := postgres.NewDocumentRepository(log, postgresDB)
	patternRepo := postgres.NewVendorPatternRepository(log, postgresDB)
	allocationRepo := postgres.NewAllocationRepository(log, postgresDB)
	escalationRepo := postgres.NewEscalationRepository(log, postgresDB)
	decisionRepo := mongo.NewDecisionRepository(log, mongoDB.Database())

	// Initialize matching engine
	engineCfg := matching.ConfigFromApp(&cfg.Matching)
	engine, err := matching.NewEngine(engineCfg, log)
	if err != nil {
		log.Error("Failed to initialize matching engine", "error", err)
		os.Exit(1)
	}

	// Initialize pattern learner and the allocation write path
	patternLearner := learner.NewService(patternRepo, engineCfg.FeeModels, log)
	ledgerService := ledger.NewService(postgresDB, transactionRepo, documentRepo, allocationRepo, patternLearner, log)

	// Initialize services
	reconciliationService := service.NewReconciliationService(
		log,
		engine,
		kafkaProducer,
		transactionRepo,
		documentRepo,
		patternRepo,
		decisionRepo,
		escalationRepo,
	)
	allocationService := service.NewAllocationService(log, ledgerService)

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, reconciliationService, allocationService)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	if err = kafkaProducer.Close(); err != nil {
		log.Error("Error closing Kafka producer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
