package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vvka-141/fanload/internal/config"
	"github.com/vvka-141/fanload/internal/db"
	"github.com/vvka-141/fanload/internal/ledger"
	"github.com/vvka-141/fanload/internal/logging"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// connectionFlags holds the connection and config flag values every database command shares.
type connectionFlags struct {
	configPath string
	connection string
	host       string
	port       int
	username   string
	database   string
	sslMode    string
	ledger     string

	authMethod     string
	awsRegion      string
	googleInstance string
	azureTenantID  string
	azureClientID  string
}

// addConnectionFlags registers the shared flags on cmd.
func addConnectionFlags(cmd *cobra.Command, f *connectionFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", config.ConfigFileName,
		"Path to fanload.yaml (defaults apply when the file does not exist)")

	flags.StringVar(&f.connection, "connection", "",
		"PostgreSQL connection string (URI or ADO.NET format).\n"+
			"Mutually exclusive with granular flags (--host, --port, --username).\n"+
			"Alternative: FANLOAD_CONNECTION_STRING or DATABASE_URL environment variable.")
	flags.StringVarP(&f.host, "host", "h", "",
		"Database server host\n"+
			"Precedence: --host > $PGHOST > fanload.yaml > localhost")
	flags.IntVarP(&f.port, "port", "p", 0,
		"Database server port\n"+
			"Precedence: --port > $PGPORT > fanload.yaml > 5432")
	flags.StringVarP(&f.username, "username", "U", "",
		"Database user (default: $PGUSER or current OS user)")
	flags.StringVarP(&f.database, "database", "d", "",
		"Database holding the ledger and destination table (or $PGDATABASE)")
	flags.StringVar(&f.sslMode, "sslmode", "",
		"SSL mode: disable|allow|prefer|require|verify-ca|verify-full\n"+
			"(default: prefer, or $PGSSLMODE)")
	flags.StringVar(&f.ledger, "ledger", "",
		"Work ledger table, optionally schema-qualified (default from fanload.yaml or load_control)")

	flags.StringVar(&f.authMethod, "auth", "",
		"Authentication method: standard|aws|google|azure")
	flags.StringVar(&f.awsRegion, "aws-region", "", "AWS region for IAM authentication (overrides $AWS_REGION)")
	flags.StringVar(&f.googleInstance, "google-instance", "", "Cloud SQL instance connection name (project:region:instance)")
	flags.StringVar(&f.azureTenantID, "azure-tenant-id", "", "Azure AD tenant/directory ID (overrides $AZURE_TENANT_ID)")
	flags.StringVar(&f.azureClientID, "azure-client-id", "", "Azure AD application/client ID (overrides $AZURE_CLIENT_ID)")

	_ = cmd.RegisterFlagCompletionFunc("sslmode", completeSSLModes)
	_ = cmd.RegisterFlagCompletionFunc("auth", completeAuthMethods)
}

// loadProjectConfig loads .env and the project config, applying flag overrides
// that live in the config file.
func loadProjectConfig(f *connectionFlags) (*config.ProjectConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadOrDefault(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w: %w", f.configPath, err, fanload.ErrInvalidConfig)
	}
	if f.ledger != "" {
		cfg.Ledger.Table = f.ledger
	}
	return cfg, nil
}

// resolveConnection resolves the connection parameters from flags, environment and project config.
func resolveConnection(f *connectionFlags, projectCfg *config.ProjectConfig) (*fanload.ConnectionConfig, error) {
	granular := &db.GranularConnFlags{
		Host:     f.host,
		Port:     f.port,
		Username: f.username,
		Database: f.database,
		SSLMode:  f.sslMode,
	}
	cloud := &db.CloudFlags{
		AuthMethod:     f.authMethod,
		AWSRegion:      f.awsRegion,
		GoogleInstance: f.googleInstance,
		AzureTenantID:  f.azureTenantID,
		AzureClientID:  f.azureClientID,
	}
	return db.ResolveConnectionParams(f.connection, granular, cloud, db.LoadFromEnvironment(), projectCfg)
}

// session is an open database session for one command invocation.
type session struct {
	pool   *pgxpool.Pool
	ledger *ledger.PostgresLedger
	// dialer is set for connectors that own resources beyond the pool.
	dialer io.Closer
	logger fanload.Logger
}

// openSession connects and opens the ledger. maxConns of zero keeps the pool default.
func openSession(ctx context.Context, f *connectionFlags, cfg *config.ProjectConfig, maxConns int32, logger *logging.ConsoleLogger) (*session, error) {
	connCfg, err := resolveConnection(f, cfg)
	if err != nil {
		return nil, err
	}
	connCfg.AppName = "fanload"
	connCfg.MaxConns = maxConns
	logger.Verbose("Connecting to %s:%d/%s as %s (%s)", connCfg.Host, connCfg.Port, connCfg.Database, connCfg.Username, connCfg.AuthMethod)

	connector, err := db.NewConnector(connCfg, logger)
	if err != nil {
		return nil, err
	}
	pool, err := connector.Connect(ctx)
	if err != nil {
		if errors.Is(err, fanload.ErrConnectionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", fanload.ErrConnectionFailed, err)
	}

	sess := &session{pool: pool, logger: logger}
	if c, ok := connector.(io.Closer); ok {
		sess.dialer = c
	}
	l, err := ledger.New(pool, cfg.Ledger.Table, logger)
	if err != nil {
		sess.Close()
		return nil, err
	}
	sess.ledger = l
	return sess, nil
}

// Close closes the pool, then whatever the connector dials through.
func (s *session) Close() {
	s.pool.Close()
	if s.dialer != nil {
		if err := s.dialer.Close(); err != nil {
			s.logger.Verbose("Closing connector: %v", err)
		}
	}
}

// commandContext returns cmd's context wired to SIGINT and SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
