package main

import (
	"context"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	appconfig "lookout/internal/config"
	"lookout/internal/handlers"
	"lookout/internal/notify"
	"lookout/pkg/config"
	"lookout/pkg/database"
	"lookout/pkg/email"
	"lookout/pkg/kafka"
	"lookout/pkg/logging"
	"lookout/pkg/monitoring"
	"lookout/pkg/redis"
	"lookout/pkg/server"
	"lookout/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("lookout")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Lookout (Curator Monitoring)")

	cfg := appconfig.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres (tracking records, roster, snapshots)
	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.DatabaseURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if err := database.ApplySchema(ctx, db, logger); err != nil {
		logger.WithError(err).Fatal("Failed to apply Postgres schema")
	}
	if config.GetEnvBool("APPLY_DEMO_SEEDS", false) {
		if err := database.ApplyDemoSeeds(ctx, db, logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply demo seeds")
		}
	}

	// Connect to ClickHouse: native for the ledger writer, SQL for read queries
	chConfig := database.DefaultClickHouseConfig()
	chConfig.Addr = cfg.ClickHouseHosts
	chConfig.Database = cfg.ClickHouseDatabase
	chConfig.Username = cfg.ClickHouseUser
	chConfig.Password = cfg.ClickHousePassword
	clickhouse := database.MustConnectClickHouseNative(chConfig, logger)
	defer clickhouse.Close()
	chdb := database.MustConnectClickHouse(chConfig, logger)
	defer chdb.Close()

	if err := database.ApplyClickHouseSchema(ctx, clickhouse, logger); err != nil {
		logger.WithError(err).Fatal("Failed to apply ClickHouse schema")
	}

	// Optional Redis cache for leaderboard reads
	var redisClient goredis.UniversalClient
	if cfg.RedisURL != "" {
		client, err := redis.NewClientFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		redisClient = client
		defer client.Close()
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("lookout", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("lookout", version.Version, version.GitCommit)

	// Create custom correlation metrics
	metrics := &handlers.LookoutMetrics{
		ChatEvents:       metricsCollector.NewCounter("chat_events_total", "Chat events processed", []string{"kind", "status"}),
		HelpRequests:     metricsCollector.NewCounter("help_requests_total", "Help request state transitions", []string{"server_id", "transition"}),
		EscalationAlerts: metricsCollector.NewCounter("escalation_alerts_total", "Escalation alerts raised", []string{"tier_label", "status"}),
		ActivityRecords:  metricsCollector.NewCounter("activity_records_total", "Activity ledger writes", []string{"kind", "status"}),
		TrackerEvents:    metricsCollector.NewCounter("tracker_events_total", "Tracker events published", []string{"event_type", "status"}),
		RatingRuns:       metricsCollector.NewCounter("rating_runs_total", "Rating recompute cycles", []string{"status"}),
		ResponseLatency:  metricsCollector.NewHistogram("response_latency_seconds", "Help request response latency", []string{"server_id"}, []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600}),
		OpenRequests:     metricsCollector.NewGauge("open_help_requests", "Help requests awaiting a response", []string{"server_id"}),
	}

	// Create database metrics
	metrics.DBQueries, metrics.DBDuration, metrics.DBConnections = metricsCollector.CreateDatabaseMetrics()

	roster := handlers.NewRoster(db, logger)
	ledger := handlers.NewActivityLedger(clickhouse, cfg.Rating.Weights, logger, metrics)

	// Initialize handlers
	handlers.Init(db, chdb, ledger, redisClient, cfg, logger, metrics)

	// Setup Kafka producer (tracker events, dead letters) and consumer
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClusterID, cfg.KafkaClientID, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka producer")
	}
	defer producer.Close()

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaClusterID, cfg.KafkaClientID, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka consumer")
	}
	defer consumer.Close()

	pipeline := handlers.NewEventPipeline(handlers.PipelineDeps{
		DB:       db,
		Roster:   roster,
		Ledger:   ledger,
		Producer: producer,
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
	})
	consumer.AddHandler(cfg.ChatEventsTopic, pipeline.HandleChatEvent)

	// Notification sinks: curator webhook for alerts, admin webhook and
	// optional SMTP for period digests
	sink := notify.NewDispatcher(notify.DispatcherConfig{
		WebhookNotifier: notify.NewWebhookNotifier("curator-alerts", cfg.WebhookURL, logger),
		AdminNotifier:   notify.NewWebhookNotifier("admin-digests", cfg.AdminWebhookURL, logger),
		EmailNotifier: notify.NewEmailNotifier(notify.Config{
			WebhookURL:      cfg.WebhookURL,
			AdminWebhookURL: cfg.AdminWebhookURL,
			AdminEmail:      cfg.AdminEmail,
			SMTP: email.Config{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				User:     cfg.SMTPUser,
				Password: cfg.SMTPPassword,
				From:     cfg.SMTPFrom,
				FromName: "Lookout",
			},
		}, logger),
		Logger: logger,
	})

	// Initialize and start JobManager for escalation sweeps, rating cycles
	// and retention cleanup
	jobManager := handlers.NewJobManager(handlers.JobDeps{
		DB:       db,
		Roster:   roster,
		Ledger:   ledger,
		Producer: producer,
		Sink:     sink,
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
	})
	jobManager.Start(ctx)
	defer jobManager.Stop()

	// Start consuming chat events
	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Kafka consumer error")
		}
	}()

	// Add health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("clickhouse", monitoring.ClickHouseNativeHealthCheck(clickhouse))
	healthChecker.AddCheck("kafka", monitoring.KafkaConsumerHealthCheck(consumer.GetClient()))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":     cfg.DatabaseURL,
		"CLICKHOUSE_HOSTS": strings.Join(cfg.ClickHouseHosts, ","),
		"KAFKA_BROKERS":    strings.Join(cfg.KafkaBrokers, ","),
	}))

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "lookout", healthChecker, metricsCollector)

	// API routes (root level - nginx adds /api/lookout/ prefix)
	router.GET("/servers", handlers.GetServers)
	router.GET("/curators", handlers.GetCurators)
	router.GET("/curators/:id/rating", handlers.GetCuratorRating)
	router.GET("/ratings", handlers.GetLeaderboard)
	router.GET("/requests", handlers.ListHelpRequests)
	router.GET("/requests/:id", handlers.GetHelpRequest)
	router.GET("/activity/summary", handlers.GetActivitySummary)
	router.GET("/activity/totals", handlers.GetActivityTotals)

	logger.Info("Lookout started - consuming chat events and serving curator standings")

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("lookout", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
