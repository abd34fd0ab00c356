package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vvka-141/fanload/internal/db"
	"github.com/vvka-141/fanload/internal/logging"
	testhelpers "github.com/vvka-141/fanload/internal/testing"
	"github.com/vvka-141/fanload/pkg/fanload"
)

func TestStandardConnector_Connect(t *testing.T) {
	connString := testhelpers.RequireDatabase(t)

	cfg, err := db.ParseConnectionString(connString)
	require.NoError(t, err)
	cfg.MaxConns = 7

	connector, err := db.NewConnector(cfg, logging.NewNullLogger())
	require.NoError(t, err)

	pool, err := connector.Connect(context.Background())
	require.NoError(t, err)
	defer pool.Close()

	assert.Equal(t, int32(7), pool.Config().MaxConns)

	var conn fanload.DBConnection = db.NewPoolAdapter(pool)
	var one int
	require.NoError(t, conn.QueryRow(context.Background(), "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)

	pc, err := conn.Acquire(context.Background())
	require.NoError(t, err)
	_, err = pc.Exec(context.Background(), "SELECT 1")
	assert.NoError(t, err)
	pc.Release()
}

func TestStandardConnector_WrongDatabase(t *testing.T) {
	connString := testhelpers.RequireDatabase(t)

	cfg, err := db.ParseConnectionString(connString)
	require.NoError(t, err)
	cfg.Database = "fanload_does_not_exist"

	pool, err := db.NewStandardConnector(cfg, logging.NewNullLogger()).Connect(context.Background())
	require.Error(t, err)
	assert.Nil(t, pool)
	assert.ErrorIs(t, err, fanload.ErrConnectionFailed)
	assert.Contains(t, err.Error(), "createdb fanload_does_not_exist")
}
