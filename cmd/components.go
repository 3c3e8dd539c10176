package cmd

import (
	"context"
	"fmt"
	"os"

	"ledgerbot/application"
	"ledgerbot/config"
	"ledgerbot/database"
	"ledgerbot/domain/entities"
	"ledgerbot/domain/events"
	"ledgerbot/domain/interfaces"
	"ledgerbot/infrastructure"
	"ledgerbot/repository"

	"github.com/bwmarrin/discordgo"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

// ConfigureLogging applies LOG_LEVEL and LOG_FORMAT to the global logger
func ConfigureLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Warnf("Unknown log level %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// connectDatabase opens the pool sized by DATABASE_MAX_CONNS
func connectDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.NewConnectionWithOptions(ctx, cfg.GetDatabaseURL(), database.PoolOptions{
		MaxConns: int32(cfg.DatabaseMaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// closer releases a resource during shutdown
type closer func()

// newLockManager builds the lease store selected by LOCK_BACKEND
func newLockManager(ctx context.Context, cfg *config.Config, db *database.DB) (interfaces.LockManager, closer, error) {
	switch cfg.LockBackend {
	case config.LockBackendPostgres:
		return repository.NewLockRepository(db), func() {}, nil
	case config.LockBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return infrastructure.NewRedisLockManager(client), func() {
			if err := client.Close(); err != nil {
				log.WithError(err).Error("Error closing redis client")
			}
		}, nil
	case config.LockBackendMemory:
		log.Warn("Using in-process locks; do not run more than one instance")
		return infrastructure.NewMemoryLockManager(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}

// newChainGateway dials the RPC endpoint and builds the ERC-20 treasury gateway
func newChainGateway(cfg *config.Config) (*infrastructure.EVMGateway, closer, error) {
	if cfg.ChainRPCURL == "" {
		return nil, nil, fmt.Errorf("CHAIN_RPC_URL is required")
	}

	client, err := ethclient.Dial(cfg.ChainRPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial chain rpc: %w", err)
	}

	signer, err := infrastructure.LoadTreasuryKey(cfg.TreasuryPrivateKey, cfg.TreasuryMnemonic)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	if signer == nil {
		log.Warn("No treasury key configured, withdrawals will fail")
	}

	gateway, err := infrastructure.NewEVMGateway(client, infrastructure.EVMGatewayConfig{
		TokenContract:    cfg.TokenContract,
		TreasuryAddress:  cfg.TreasuryAddress,
		TokenDecimals:    cfg.TokenDecimals,
		MinConfirmations: cfg.MinConfirmations,
	}, signer)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to create chain gateway: %w", err)
	}
	return gateway, client.Close, nil
}

// newAlerter posts to the operator channel when Discord is configured and logs otherwise
func newAlerter(cfg *config.Config) (interfaces.Alerter, closer, error) {
	if cfg.DiscordToken == "" || cfg.AlertChannelID == "" {
		log.Info("Discord alerts not configured, alerts go to the log")
		return infrastructure.LogAlerter{}, func() {}, nil
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return infrastructure.NewDiscordAlerter(session, cfg.AlertChannelID), func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Error("Error closing discord session")
		}
	}, nil
}

// newLedgerEngine assembles the engine over the Postgres repositories
func newLedgerEngine(
	cfg *config.Config,
	db *database.DB,
	locks interfaces.LockManager,
	gateway interfaces.ChainGateway,
	alerter interfaces.Alerter,
	publisher interfaces.EventPublisher,
) *application.LedgerEngine {
	uowFactory := infrastructure.NewUnitOfWorkFactory(repository.NewUnitOfWorkFactory(db), publisher)

	ledgerCfg := application.DefaultLedgerConfig()
	ledgerCfg.HolderID = holderID()
	ledgerCfg.LockTTL = cfg.LockTTL
	ledgerCfg.LockAcquireWait = cfg.LockAcquireWait
	ledgerCfg.GatewayTimeout = cfg.GatewayTimeout
	ledgerCfg.ReconcileTolerance = entities.Amount(cfg.ReconcileTolerance)

	return application.NewLedgerEngine(uowFactory, locks, gateway, alerter, ledgerCfg)
}

// holderID names this process in lock leases
func holderID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "ledgerbot"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

// logBalanceChange leaves an audit line for every committed balance change
func logBalanceChange(_ context.Context, event events.Event) error {
	change, ok := event.(events.BalanceChangeEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}
	log.WithFields(log.Fields{
		"account":   change.AccountID,
		"entry":     change.EntryID,
		"group":     change.GroupID,
		"entryType": change.EntryType,
		"old":       change.OldBalance,
		"new":       change.NewBalance,
	}).Info("Balance changed")
	return nil
}
