package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vvka-141/fanload/internal/retry"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// Connection pool configuration constants
const (
	// DefaultMaxConns is used when the caller does not size the pool to its worker count.
	DefaultMaxConns = 5

	// DefaultMinConns maintains at least one connection in the pool.
	DefaultMinConns = 1

	// DefaultMaxConnIdleTime keeps connections alive across long loads.
	DefaultMaxConnIdleTime = 30 * time.Minute
)

func configurePool(poolConfig *pgxpool.Config, cfg *fanload.ConnectionConfig, logger fanload.Logger) {
	poolConfig.MaxConns = DefaultMaxConns
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = DefaultMinConns
	poolConfig.MaxConnIdleTime = DefaultMaxConnIdleTime
	poolConfig.ConnConfig.OnNotice = func(_ *pgconn.PgConn, notice *pgconn.Notice) {
		logger.Verbose("%s: %s", notice.Severity, notice.Message)
	}
}

// openPool parses connStr, sizes the pool and pings it.
func openPool(ctx context.Context, connStr string, cfg *fanload.ConnectionConfig, logger fanload.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}
	configurePool(poolConfig, cfg, logger)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, wrapConnectionError(err, cfg.Host, cfg.Port, cfg.Database)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrapConnectionError(err, cfg.Host, cfg.Port, cfg.Database)
	}
	return pool, nil
}

// StandardConnector implements fanload.Connector for username/password
// authentication with automatic retry on transient failures.
type StandardConnector struct {
	config        *fanload.ConnectionConfig
	logger        fanload.Logger
	retryExecutor *retry.Executor
}

// NewStandardConnector creates a new StandardConnector with the default retry policy.
func NewStandardConnector(config *fanload.ConnectionConfig, logger fanload.Logger) *StandardConnector {
	return &StandardConnector{
		config:        config,
		logger:        logger,
		retryExecutor: retryWithLogging(logger),
	}
}

// Connect establishes a connection pool using standard authentication with automatic retry.
func (c *StandardConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	connStr := BuildConnectionString(c.config)

	err := c.retryExecutor.Execute(ctx, func(ctx context.Context) error {
		var err error
		pool, err = openPool(ctx, connStr, c.config, c.logger)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fanload.ErrConnectionFailed, err)
	}
	return pool, nil
}

func retryWithLogging(logger fanload.Logger) *retry.Executor {
	return retry.NewDefaultExecutor().WithOnRetry(func(attempt int, err error, delay time.Duration) {
		logger.Verbose("Connection attempt %d failed (%v), retrying in %v", attempt+1, err, delay.Round(time.Millisecond))
	})
}

// NewConnector is a factory function that creates the appropriate Connector
// based on the ConnectionConfig's AuthMethod.
func NewConnector(config *fanload.ConnectionConfig, logger fanload.Logger) (fanload.Connector, error) {
	switch config.AuthMethod {
	case fanload.AuthMethodStandard:
		return NewStandardConnector(config, logger), nil
	case fanload.AuthMethodAWSIAM:
		return newAWSConnector(config, logger)
	case fanload.AuthMethodGoogleIAM:
		return newGoogleConnector(config, logger)
	case fanload.AuthMethodAzureEntraID:
		return newAzureConnector(config, logger)
	default:
		return nil, fmt.Errorf("unsupported auth method %v: %w", config.AuthMethod, fanload.ErrUnsupportedAuthMethod)
	}
}

// wrapConnectionError wraps raw pgx connection errors with actionable guidance.
func wrapConnectionError(err error, host string, port int, database string) error {
	errStr := strings.ToLower(err.Error())
	addr := fmt.Sprintf("%s:%d", host, port)

	switch {
	case strings.Contains(errStr, "connection refused"):
		return fmt.Errorf(`connection refused to %s

Possible causes:
  - The database is not running (check: pg_isready -h %s -p %d)
  - Wrong host or port

Original error: %w`, addr, host, port, err)

	case strings.Contains(errStr, "no such host"):
		return fmt.Errorf(`cannot resolve host "%s"

Original error: %w`, host, err)

	case strings.Contains(errStr, "password authentication failed"):
		return fmt.Errorf(`password authentication failed for database "%s"

Possible causes:
  - Wrong password (check $PGPASSWORD or ~/.pgpass)
  - Wrong username

Original error: %w`, database, err)

	case strings.Contains(errStr, "does not exist"):
		return fmt.Errorf(`database "%s" does not exist

To create it:
  createdb %s

Original error: %w`, database, database, err)

	case strings.Contains(errStr, "too many connections"):
		return fmt.Errorf(`too many connections to database "%s"

Lower the worker count (-g) or raise max_connections on the server.

Original error: %w`, database, err)

	default:
		return fmt.Errorf("failed to connect to database: %w", err)
	}
}

func newAWSConnector(config *fanload.ConnectionConfig, logger fanload.Logger) (fanload.Connector, error) {
	tokens, err := newRDSTokenProvider(config)
	if err != nil {
		return nil, err
	}
	return NewTokenBasedConnector(config, tokens, "AWS IAM", logger), nil
}

func newGoogleConnector(config *fanload.ConnectionConfig, logger fanload.Logger) (fanload.Connector, error) {
	if config.GoogleInstance == "" {
		return nil, fmt.Errorf("Google Cloud SQL IAM auth requires --google-instance (project:region:instance): %w", fanload.ErrInvalidConfig)
	}
	if config.Username == "" {
		return nil, fmt.Errorf("Google Cloud SQL IAM auth requires username (-U): %w", fanload.ErrInvalidConfig)
	}
	return NewGoogleCloudSQLConnector(config, config.GoogleInstance, logger), nil
}

func newAzureConnector(config *fanload.ConnectionConfig, logger fanload.Logger) (fanload.Connector, error) {
	tokens, err := newEntraTokenProvider(config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fanload.ErrConnectionFailed, err)
	}
	return NewTokenBasedConnector(config, tokens, "Azure", logger), nil
}
