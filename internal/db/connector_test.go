package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vvka-141/fanload/internal/logging"
	"github.com/vvka-141/fanload/internal/retry"
	"github.com/vvka-141/fanload/pkg/fanload"
)

type failingTokenProvider struct{ calls int }

func (f *failingTokenProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	f.calls++
	return "", time.Time{}, errors.New("credentials expired")
}

func (f *failingTokenProvider) String() string { return "failing" }

func TestNewConnector_Factory(t *testing.T) {
	logger := logging.NewNullLogger()

	c, err := NewConnector(&fanload.ConnectionConfig{AuthMethod: fanload.AuthMethodStandard}, logger)
	require.NoError(t, err)
	assert.IsType(t, &StandardConnector{}, c)

	_, err = NewConnector(&fanload.ConnectionConfig{AuthMethod: fanload.AuthMethodGoogleIAM}, logger)
	assert.ErrorIs(t, err, fanload.ErrInvalidConfig)

	c, err = NewConnector(&fanload.ConnectionConfig{AuthMethod: fanload.AuthMethodGoogleIAM, GoogleInstance: "p:r:i", Username: "u"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &GoogleCloudSQLConnector{}, c)

	_, err = NewConnector(&fanload.ConnectionConfig{AuthMethod: fanload.AuthMethodAWSIAM, Host: "h", Port: 5432}, logger)
	assert.ErrorIs(t, err, fanload.ErrInvalidConfig, "region and username are required")

	c, err = NewConnector(&fanload.ConnectionConfig{AuthMethod: fanload.AuthMethodAWSIAM, Host: "h", Port: 5432, AWSRegion: "us-east-1", Username: "u"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &TokenBasedConnector{}, c)

	_, err = NewConnector(&fanload.ConnectionConfig{AuthMethod: fanload.AuthMethod(99)}, logger)
	assert.ErrorIs(t, err, fanload.ErrUnsupportedAuthMethod)
}

func TestNewRDSTokenProvider(t *testing.T) {
	_, err := newRDSTokenProvider(&fanload.ConnectionConfig{})
	require.ErrorIs(t, err, fanload.ErrInvalidConfig)
	for _, want := range []string{"host and port", "region", "database user"} {
		assert.Contains(t, err.Error(), want)
	}

	p, err := newRDSTokenProvider(&fanload.ConnectionConfig{Host: "db.internal", Port: 5432, AWSRegion: "eu-west-1", Username: "loader"})
	require.NoError(t, err)
	assert.Equal(t, "db.internal:5432", p.endpoint)
	assert.Equal(t, "rds-iam loader@db.internal:5432 (eu-west-1)", p.String())

	p, err = newRDSTokenProvider(&fanload.ConnectionConfig{Host: "::1", Port: 5432, AWSRegion: "eu-west-1", Username: "loader"})
	require.NoError(t, err)
	assert.Equal(t, "[::1]:5432", p.endpoint)
}

func TestNewEntraTokenProvider_ServicePrincipal(t *testing.T) {
	p, err := newEntraTokenProvider(&fanload.ConnectionConfig{
		AzureTenantID:     "00000000-0000-0000-0000-000000000001",
		AzureClientID:     "00000000-0000-0000-0000-000000000002",
		AzureClientSecret: "s3cret",
	})
	require.NoError(t, err)
	assert.Contains(t, p.String(), "service principal 00000000-0000-0000-0000-000000000002")
	assert.NotContains(t, p.String(), "s3cret")
}

func TestGoogleCloudSQLConnector_CloseWithoutConnect(t *testing.T) {
	c := NewGoogleCloudSQLConnector(&fanload.ConnectionConfig{Username: "u"}, "p:r:i", logging.NewNullLogger())
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestTokenBasedConnector_TokenFailure(t *testing.T) {
	provider := &failingTokenProvider{}
	c := NewTokenBasedConnector(&fanload.ConnectionConfig{Host: "h", Port: 5432}, provider, "Test", logging.NewNullLogger())
	c.retryExecutor = retry.NewExecutor(retry.NewPostgreSQLErrorClassifier(), retry.NewExponentialBackoff(0))

	_, err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, fanload.ErrConnectionFailed)
	assert.Contains(t, err.Error(), "credentials expired")
	assert.Equal(t, 1, provider.calls, "non-transient token errors are not retried")
}

func TestWrapConnectionError(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"dial tcp: connection refused", "pg_isready"},
		{"lookup mdw: no such host", `cannot resolve host "mdw"`},
		{"FATAL: password authentication failed", "PGPASSWORD"},
		{`FATAL: database "climate" does not exist`, "createdb climate"},
		{"FATAL: sorry, too many connections", "-g"},
		{"something else", "failed to connect"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			raw := errors.New(tt.raw)
			err := wrapConnectionError(raw, "mdw", 5432, "climate")
			assert.Contains(t, err.Error(), tt.want)
			assert.ErrorIs(t, err, raw)
		})
	}
}
