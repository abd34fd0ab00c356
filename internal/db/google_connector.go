package db

import (
	"context"
	"fmt"
	"net"
	"sync"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// GoogleCloudSQLConnector dials a Cloud SQL instance (project:region:instance)
// through the Cloud SQL connector with IAM database authentication. Every pooled
// connection goes through the same dialer, so Close must follow the pool's Close.
type GoogleCloudSQLConnector struct {
	config   *fanload.ConnectionConfig
	instance string
	logger   fanload.Logger

	mu     sync.Mutex
	dialer *cloudsqlconn.Dialer
}

func NewGoogleCloudSQLConnector(config *fanload.ConnectionConfig, instance string, logger fanload.Logger) *GoogleCloudSQLConnector {
	return &GoogleCloudSQLConnector{config: config, instance: instance, logger: logger}
}

// Connect opens the pool, retrying transient failures like the standard connector.
func (c *GoogleCloudSQLConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	// Lazy refresh fetches certificates on demand instead of in a background loop.
	dialer, err := cloudsqlconn.NewDialer(ctx, cloudsqlconn.WithIAMAuthN(), cloudsqlconn.WithLazyRefresh())
	if err != nil {
		return nil, fmt.Errorf("%w: cloud sql dialer: %w", fanload.ErrConnectionFailed, err)
	}

	// The dialer supplies TLS and the address; host and port are placeholders.
	viaDialer := *c.config
	viaDialer.Host, viaDialer.Port = "localhost", 5432
	viaDialer.Password = ""
	viaDialer.SSLMode = "disable"
	poolConfig, err := pgxpool.ParseConfig(BuildConnectionString(&viaDialer))
	if err != nil {
		dialer.Close()
		return nil, fmt.Errorf("cloud sql pool config: %w", err)
	}
	poolConfig.ConnConfig.Host = c.instance
	poolConfig.ConnConfig.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
		return dialer.Dial(ctx, c.instance)
	}
	configurePool(poolConfig, c.config, c.logger)

	var pool *pgxpool.Pool
	err = retryWithLogging(c.logger).Execute(ctx, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		dialer.Close()
		return nil, fmt.Errorf("%w: cloud sql %s: %w", fanload.ErrConnectionFailed, c.instance, err)
	}

	c.mu.Lock()
	c.dialer = dialer
	c.mu.Unlock()
	c.logger.Verbose("Connected to Cloud SQL instance %s as %s", c.instance, c.config.Username)
	return pool, nil
}

// Close releases the dialer. Safe to call more than once.
func (c *GoogleCloudSQLConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dialer == nil {
		return nil
	}
	err := c.dialer.Close()
	c.dialer = nil
	return err
}
