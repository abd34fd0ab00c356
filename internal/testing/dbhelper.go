// Package testing holds integration-test helpers shared across packages.
// Import it as testhelpers.
package testing

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vvka-141/fanload/internal/db"
	"github.com/vvka-141/fanload/internal/testinfra"
)

// sharedServer is started at most once per test binary.
var sharedServer = sync.OnceValues(func() (string, error) {
	ld, err := testinfra.StartLedgerDatabase(context.Background())
	if err != nil {
		return "", err
	}
	return ld.ConnString, nil
})

// RequireDatabase returns a DSN for the test server: $FANLOAD_TEST_CONN, or a
// container started on first use. It skips under -short or without Docker.
func RequireDatabase(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	if dsn := os.Getenv("FANLOAD_TEST_CONN"); dsn != "" {
		return dsn
	}
	dsn, err := sharedServer()
	if err != nil {
		t.Skipf("FANLOAD_TEST_CONN not set and no container available: %v", err)
	}
	return dsn
}

// NewTestPool creates a throwaway database on the test server and returns a
// pool of maxConns connections to it. Both go away when the test ends.
func NewTestPool(t *testing.T, maxConns int32) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	server := RequireDatabase(t)
	name := "fanload_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	admin, err := pgx.Connect(ctx, server)
	if err != nil {
		t.Fatalf("connect to test server: %v", err)
	}
	defer admin.Close(ctx)
	if _, err := admin.Exec(ctx, "CREATE DATABASE "+name); err != nil {
		t.Fatalf("create database %s: %v", name, err)
	}
	t.Cleanup(func() { dropDatabase(t, server, name) })

	cc, err := db.ParseConnectionString(server)
	if err != nil {
		t.Fatalf("parse test DSN: %v", err)
	}
	cc.Database = name
	cfg, err := pgxpool.ParseConfig(db.BuildConnectionString(cc))
	if err != nil {
		t.Fatalf("pool config: %v", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool on %s: %v", name, err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// dropDatabase runs after the pool cleanup; FORCE ends any stray session.
func dropDatabase(t *testing.T, server, name string) {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, server)
	if err != nil {
		t.Logf("drop %s: %v", name, err)
		return
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, "DROP DATABASE IF EXISTS "+name+" WITH (FORCE)"); err != nil {
		t.Logf("drop %s: %v", name, err)
	}
}

// ForceApprover approves every reset request.
type ForceApprover struct{}

func (*ForceApprover) RequestApproval(context.Context, string, int64) (bool, error) {
	return true, nil
}
