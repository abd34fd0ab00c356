package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vvka-141/fanload/internal/retry"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// tokenExpiryWarning is how close to expiry a fresh token triggers a warning.
const tokenExpiryWarning = 5 * time.Minute

// TokenBasedConnector implements fanload.Connector for providers that
// authenticate with short-lived tokens used as the PostgreSQL password
// (AWS IAM, Azure Entra ID).
type TokenBasedConnector struct {
	config        *fanload.ConnectionConfig
	tokenProvider TokenProvider
	providerName  string
	logger        fanload.Logger
	retryExecutor *retry.Executor
}

// NewTokenBasedConnector creates a connector that uses tokenProvider for authentication.
// providerName is used in messages (e.g., "AWS IAM", "Azure").
func NewTokenBasedConnector(config *fanload.ConnectionConfig, tokenProvider TokenProvider, providerName string, logger fanload.Logger) *TokenBasedConnector {
	return &TokenBasedConnector{
		config:        config,
		tokenProvider: tokenProvider,
		providerName:  providerName,
		logger:        logger,
		retryExecutor: retryWithLogging(logger),
	}
}

// Connect acquires a fresh token per attempt and opens the pool with it.
func (c *TokenBasedConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool

	err := c.retryExecutor.Execute(ctx, func(ctx context.Context) error {
		token, expiresOn, err := c.tokenProvider.GetToken(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire %s token: %w", c.providerName, err)
		}
		if remaining := time.Until(expiresOn); remaining < tokenExpiryWarning {
			c.logger.Info("Warning: %s token expires in %v", c.providerName, remaining.Round(time.Second))
		}
		c.logger.Verbose("Acquired token from %s", c.tokenProvider)

		withToken := *c.config
		withToken.Password = token
		pool, err = openPool(ctx, BuildConnectionString(&withToken), c.config, c.logger)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fanload.ErrConnectionFailed, err)
	}
	return pool, nil
}
