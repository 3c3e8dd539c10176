package testutil

import (
	"context"
	"testing"
	"time"

	"ledgerbot/database"
	"ledgerbot/domain/entities"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// TestDatabase is a migrated Postgres container owned by one test
type TestDatabase struct {
	Container *postgres.PostgresContainer
	DB        *database.DB
	URL       string
}

// SetupTestDatabase starts a Postgres container, applies the ledger schema and
// connects to it. Skipped under -short since it needs a container runtime.
func SetupTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("ledgerbot_test"),
		postgres.WithUsername("ledger"),
		postgres.WithPassword("ledger"),
		postgres.BasicWaitStrategies(),
		testcontainers.WithLabels(map[string]string{
			"test":      "ledgerbot-repository",
			"test-name": t.Name(),
		}),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrationsWithURL(url))

	db, err := database.NewConnection(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return &TestDatabase{
		Container: container,
		DB:        db,
		URL:       url,
	}
}

// SeedBalances creates the accounts and sets their cached balances directly,
// bypassing the entry log
func (td *TestDatabase) SeedBalances(t *testing.T, balances map[entities.AccountID]entities.Amount) {
	t.Helper()
	ctx := context.Background()

	for id, balance := range balances {
		_, err := td.DB.Exec(ctx, `
			INSERT INTO accounts (id, balance) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = NOW()`,
			int64(id), int64(balance))
		require.NoError(t, err, "seed account %d", id)
	}
}
