// Package testinfra starts disposable database containers for integration tests.
package testinfra

import (
	"context"
	"fmt"
	"os"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// DefaultImage is used unless $FANLOAD_TEST_IMAGE names another PostgreSQL image.
const DefaultImage = "postgres:16-alpine"

// serverSettings favour throughput over durability and allow many concurrent
// claim sessions.
var serverSettings = []string{
	"max_connections=200",
	"fsync=off",
	"synchronous_commit=off",
	"full_page_writes=off",
}

// LedgerDatabase is a running PostgreSQL container and a DSN for it.
type LedgerDatabase struct {
	*postgres.PostgresContainer
	ConnString string
}

// Image returns the PostgreSQL image integration tests run against.
func Image() string {
	if img := os.Getenv("FANLOAD_TEST_IMAGE"); img != "" {
		return img
	}
	return DefaultImage
}

// StartLedgerDatabase starts a plain PostgreSQL container without TLS.
func StartLedgerDatabase(ctx context.Context) (*LedgerDatabase, error) {
	cmd := []string{"postgres"}
	for _, s := range serverSettings {
		cmd = append(cmd, "-c", s)
	}

	ctr, err := postgres.Run(ctx, Image(),
		postgres.WithDatabase("fanload"),
		postgres.WithUsername("fanload"),
		postgres.WithPassword("fanload"),
		testcontainers.WithCmd(cmd...),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", Image(), err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(ctr)
		return nil, fmt.Errorf("container dsn: %w", err)
	}
	return &LedgerDatabase{PostgresContainer: ctr, ConnString: dsn}, nil
}
