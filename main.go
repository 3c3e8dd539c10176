package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ledgerbot/cmd"
	"ledgerbot/database"

	log "github.com/sirupsen/logrus"
)

func main() {
	// Check for migration subcommands
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := handleMigrationCommand(); err != nil {
			log.Fatal("Migration error: ", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	var err error
	command := ""
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	switch command {
	case "", "run":
		err = cmd.Run(ctx)
	case "reconcile":
		err = cmd.Reconcile(ctx)
	case "adjust-reserve":
		err = cmd.AdjustReserve(ctx, os.Args[2:])
	case "replay-balances":
		err = cmd.ReplayBalances(ctx)
	default:
		err = fmt.Errorf("unknown command %q (want run, migrate, reconcile, adjust-reserve or replay-balances)", command)
	}
	if err != nil {
		log.Fatal("Application error: ", err)
	}
}

func handleMigrationCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: ledgerbot migrate [up|down|status] [args...]")
	}

	command := os.Args[2]
	switch command {
	case "up":
		return database.MigrateUp()
	case "down":
		steps := "1"
		if len(os.Args) > 3 {
			steps = os.Args[3]
		}
		return database.MigrateDown(steps)
	case "status":
		return database.MigrateStatus()
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}
