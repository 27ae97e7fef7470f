package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/reconcilia-matching-engine/internal/config"
	"github.com/reconcilia-matching-engine/internal/data/mongo"
	"github.com/reconcilia-matching-engine/internal/data/postgres"
	"github.com/reconcilia-matching-engine/internal/investigator"
	"github.com/reconcilia-matching-engine/internal/learner"
	"github.com/reconcilia-matching-engine/internal/ledger"
	"github.com/reconcilia-matching-engine/internal/logger"
	"github.com/reconcilia-matching-engine/internal/matching"
	"github.com/reconcilia-matching-engine/internal/platform/messaging/consumers"
	"github.com/reconcilia-matching-engine/internal/platform/messaging/producers"
	"github.com/reconcilia-matching-engine/internal/platform/persistence"
	"github.com/reconcilia-matching-engine/internal/reconciliation_processor/components"
	"github.com/reconcilia-matching-engine/internal/reconciliation_processor/consumer"
	"github.com/reconcilia-matching-engine/internal/reconciliation_processor/escalation_poller"
	"github.com/reconcilia-matching-engine/internal/reconciliation_processor/service"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("reconciliation_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Reconciliation Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

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

	// Initialize repositories
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	documentRepo := postgres.NewDocumentRepository(log, postgresDB)
	patternRepo := postgres.NewVendorPatternRepository(log, postgresDB)
	allocationRepo := postgres.NewAllocationRepository(log, postgresDB)
	escalationRepo := postgres.NewEscalationRepository(log, postgresDB)
	decisionRepo := mongo.NewDecisionRepository(log, mongoDB.Database())

	// Initialize Kafka consumer
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	// Initialize Kafka DLQ producer
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// dlqProducer might be nil if DLQTopic is not configured. Handler should be nil-safe.

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

	// Initialize processing service with separated concerns
	processingService := components.CreateProcessingService(
		engine,
		ledgerService,
		transactionRepo,
		documentRepo,
		patternRepo,
		allocationRepo,
		decisionRepo,
		escalationRepo,
		log,
		cfg,
	)

	// Initialize scan event handler
	scanEventHandler := consumer.NewScanEventHandler(
		log,
		processingService,
		dlqProducer, // Pass the DLQ producer
	)

	// Create error channel for service errors
	errChan := make(chan error, 2)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start Kafka consumer in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Kafka consumer",
			"topic", cfg.Kafka.ScanTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Subscribe(appCtx, cfg.Kafka.ScanTopic, cfg.Kafka.ConsumerGroup, scanEventHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
		}
	}()

	// Start the escalation poller when investigations are enabled
	if cfg.Escalation.Enabled {
		geminiGenerator, err := investigator.NewGeminiGenerator(appCtx, cfg.Escalation.APIKey, cfg.Escalation.Model)
		if err != nil {
			log.Error("Failed to initialize Gemini investigation client", "error", err)
			os.Exit(1)
		}

		adapter := investigator.NewAdapter(geminiGenerator, investigator.Config{
			Timeout:     cfg.Escalation.Timeout,
			MaxAttempts: cfg.Escalation.MaxAttempts,
			BackoffBase: cfg.Escalation.BackoffBase,
		}, log)

		caseResolver := escalation_poller.NewCaseResolver(
			escalationRepo,
			decisionRepo,
			adapter,
			log,
		)
		poller := escalation_poller.NewPoller(
			&cfg.EscalationPoller,
			escalationRepo,
			caseResolver,
			log,
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("Starting Escalation Poller",
				"interval", cfg.EscalationPoller.PollingInterval.String(),
				"batch_size", cfg.EscalationPoller.BatchSize,
				"model", cfg.Escalation.Model,
			)
			poller.Start(appCtx)
		}()
	} else {
		log.Info("Escalation investigations disabled; uncertain cases stay queued")
	}

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Shutdown the worker pool if it's a WorkerPoolProcessingService
	if wpService, ok := processingService.(*service.WorkerPoolProcessingService); ok {
		log.Info("Shutting down worker pool", "running_workers", wpService.Running())
		wpService.Shutdown()
	}

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Wait for all goroutines to finish
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Close DLQ Kafka producer
	if dlqProducer != nil { // dlqProducer can be nil if DLQTopic was not configured
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}

	// Close Kafka consumer
	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serviceErr != nil {
		log.Error("Reconciliation Processor shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Reconciliation Processor shutdown completed with errors")
	} else {
		log.Info("Reconciliation Processor shutdown completed successfully")
	}
}
