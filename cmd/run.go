package cmd

import (
	"context"
	"fmt"
	"time"

	"ledgerbot/api"
	"ledgerbot/application"
	"ledgerbot/config"
	"ledgerbot/database"
	"ledgerbot/domain/events"
	"ledgerbot/domain/interfaces"
	"ledgerbot/domain/services"
	"ledgerbot/infrastructure"
	"ledgerbot/infrastructure/observability"

	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the ledger service
func Run(ctx context.Context) error {
	cfg := config.Get()
	ConfigureLogging(cfg)
	log.Info("Starting ledgerbot...")

	// Initialize database connection
	log.Info("Connecting to database...")
	db, err := connectDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("Database connection established successfully")

	if _, err := database.CheckSchema(cfg.GetDatabaseURL()); err != nil {
		return fmt.Errorf("%w (run `ledgerbot migrate up`)", err)
	}

	// Initialize metrics
	if err := observability.InitializeGlobalMetrics(ctx, cfg); err != nil {
		log.WithError(err).Warn("Failed to initialize metrics, continuing without them")
	}

	// Initialize lock manager
	log.WithField("backend", cfg.LockBackend).Info("Initializing lock manager...")
	locks, closeLocks, err := newLockManager(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeLocks()
	log.Info("Lock manager initialized successfully")

	// Initialize chain gateway
	log.Info("Initializing chain gateway...")
	gateway, closeGateway, err := newChainGateway(cfg)
	if err != nil {
		return err
	}
	defer closeGateway()
	log.WithField("treasury", gateway.TreasuryAddress()).Info("Chain gateway initialized successfully")

	alerter, closeAlerter, err := newAlerter(cfg)
	if err != nil {
		return err
	}
	defer closeAlerter()

	// Initialize event publishing and the deposit stream
	var publisher interfaces.EventPublisher = infrastructure.NewNoopEventPublisher()
	var natsClient *infrastructure.NATSClient
	if cfg.NATSServers != "" {
		log.Info("Connecting to NATS...")
		natsClient = infrastructure.NewNATSClient(cfg.NATSServers)
		if err := natsClient.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		err := natsClient.EnsureStream(infrastructure.StreamSpec{
			Name:            infrastructure.LedgerEventStream,
			Subjects:        []string{"ledger.>"},
			Description:     "Ledger domain events",
			MaxAge:          7 * 24 * time.Hour,
			DuplicateWindow: 2 * time.Minute,
		})
		if err != nil {
			return fmt.Errorf("failed to ensure ledger event stream: %w", err)
		}
		natsClient.OnExhausted(func(subject string, data []byte, err error) {
			alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			message := fmt.Sprintf("Subject %s gave up after its last delivery: %v\nPayload: %.500s", subject, err, data)
			if alertErr := alerter.Alert(alertCtx, "Deposit message dropped", message); alertErr != nil {
				log.WithError(alertErr).Error("Failed to alert on dropped message")
			}
		})
		natsPublisher := infrastructure.NewNATSEventPublisher(natsClient, infrastructure.NewEventSubjectMapper())
		natsPublisher.OnPublished(observability.GetMetrics().RecordEventPublished)
		natsPublisher.RegisterLocalHandler(events.EventTypeBalanceChange, logBalanceChange)
		publisher = natsPublisher
		log.Info("NATS event publisher initialized successfully")
	} else {
		log.Warn("NATS_SERVERS not set, events are discarded and deposits arrive only through the ops API")
	}

	// Initialize ledger
	log.Info("Initializing ledger engine...")
	engine := newLedgerEngine(cfg, db, locks, gateway, alerter, publisher)
	if metrics := observability.GetMetrics(); metrics != nil {
		engine.SetMetrics(metrics)
	}
	deposits := application.NewDepositReconciler(engine, gateway)
	log.Info("Ledger engine initialized successfully")

	var fines api.FineQuoter
	if cfg.RateURL != "" {
		fines = services.NewFineCalculator(infrastructure.NewHTTPRateProvider(cfg.RateURL, cfg.RateCacheTTL))
	}

	// Start deposit consumer
	var consumer *infrastructure.MessageConsumer
	if natsClient != nil {
		listener := infrastructure.NewDepositEventListener(deposits)
		consumer = infrastructure.NewMessageConsumer(natsClient, cfg.DepositSubject, listener)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.WithError(err).Error("Deposit consumer stopped")
			}
		}()
	}

	// Start background workers
	stopSweep := application.NewLockSweepWorker(locks, cfg.LockSweepInterval).Start(ctx)
	stopReconcile := application.NewReconciliationWorker(engine, cfg.ReconcileInterval).Start(ctx)

	// Start ops API
	server := api.NewServer(engine, deposits, fines, func(ctx context.Context) error {
		return db.Ping(ctx)
	})
	apiErr := make(chan error, 1)
	go func() {
		apiErr <- server.ListenAndServe(ctx, cfg.OpsAPIAddr)
	}()

	log.WithField("environment", cfg.Environment).Info("Ledger is running")
	select {
	case <-ctx.Done():
	case err := <-apiErr:
		if err != nil {
			log.WithError(err).Error("Ops API failed")
		}
	}

	log.Info("Shutting down ledger...")

	if consumer != nil {
		consumer.Stop()
	}
	stopSweep()
	stopReconcile()

	// Give cleanup operations time to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := observability.ShutdownGlobalMetrics(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down metrics")
	}

	log.Info("Shutdown completed")
	return nil
}
