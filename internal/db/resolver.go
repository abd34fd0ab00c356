package db

import (
	"fmt"
	"os"
	"strconv"

	"github.com/vvka-141/fanload/internal/config"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// GranularConnFlags represents connection parameters from CLI flags.
// These follow PostgreSQL standard flag conventions (-h, -p, -U, -d).
//
// Password is NOT a CLI flag. Use $PGPASSWORD, ~/.pgpass or a connection string.
type GranularConnFlags struct {
	Host     string
	Port     int
	Username string
	Database string
	SSLMode  string
}

// IsEmpty returns true if no granular flags were provided.
func (g *GranularConnFlags) IsEmpty() bool {
	return g == nil || (g.Host == "" && g.Port == 0 && g.Username == "" && g.Database == "" && g.SSLMode == "")
}

// CloudFlags selects and parameterizes a cloud authentication method.
// The Azure client secret only comes from $AZURE_CLIENT_SECRET.
type CloudFlags struct {
	AuthMethod     string
	AWSRegion      string
	GoogleInstance string
	AzureTenantID  string
	AzureClientID  string
}

// EnvVars holds the environment consulted during resolution.
type EnvVars struct {
	FANLOAD_CONNECTION_STRING string
	DATABASE_URL              string

	PGHOST     string
	PGPORT     string
	PGUSER     string
	PGPASSWORD string
	PGDATABASE string
	PGSSLMODE  string

	AWS_REGION          string
	AZURE_TENANT_ID     string
	AZURE_CLIENT_ID     string
	AZURE_CLIENT_SECRET string
}

// LoadFromEnvironment reads the variables listed in EnvVars.
func LoadFromEnvironment() *EnvVars {
	return &EnvVars{
		FANLOAD_CONNECTION_STRING: os.Getenv("FANLOAD_CONNECTION_STRING"),
		DATABASE_URL:              os.Getenv("DATABASE_URL"),
		PGHOST:                    os.Getenv("PGHOST"),
		PGPORT:                    os.Getenv("PGPORT"),
		PGUSER:                    os.Getenv("PGUSER"),
		PGPASSWORD:                os.Getenv("PGPASSWORD"),
		PGDATABASE:                os.Getenv("PGDATABASE"),
		PGSSLMODE:                 os.Getenv("PGSSLMODE"),
		AWS_REGION:                os.Getenv("AWS_REGION"),
		AZURE_TENANT_ID:           os.Getenv("AZURE_TENANT_ID"),
		AZURE_CLIENT_ID:           os.Getenv("AZURE_CLIENT_ID"),
		AZURE_CLIENT_SECRET:       os.Getenv("AZURE_CLIENT_SECRET"),
	}
}

// ResolveConnectionParams resolves connection parameters with this precedence:
//
//  1. --connection flag
//  2. granular flags (-h, -p, -U, -d, --sslmode)
//  3. $FANLOAD_CONNECTION_STRING, then $DATABASE_URL
//  4. PG* environment variables
//  5. fanload.yaml connection section
//  6. defaults (localhost:5432, sslmode=prefer)
//
// Specifying both --connection and granular flags is an error. A database flag
// alone is allowed with a connection string and overrides its database.
func ResolveConnectionParams(
	connStringFlag string,
	granular *GranularConnFlags,
	cloud *CloudFlags,
	env *EnvVars,
	projectConfig *config.ProjectConfig,
) (*fanload.ConnectionConfig, error) {
	if granular == nil {
		granular = &GranularConnFlags{}
	}
	if cloud == nil {
		cloud = &CloudFlags{}
	}
	if env == nil {
		env = &EnvVars{}
	}
	var pc config.ConnectionConfig
	if projectConfig != nil {
		pc = projectConfig.Connection
	}

	hostFlags := *granular
	hostFlags.Database = ""
	if connStringFlag != "" && !hostFlags.IsEmpty() {
		return nil, fmt.Errorf("cannot specify both --connection and granular flags (-h, -p, -U, --sslmode): %w",
			fanload.ErrInvalidConfig)
	}

	connStr := connStringFlag
	if connStr == "" && hostFlags.IsEmpty() {
		connStr = firstNonEmpty(env.FANLOAD_CONNECTION_STRING, env.DATABASE_URL)
	}

	var cfg *fanload.ConnectionConfig
	if connStr != "" {
		parsed, err := ParseConnectionString(connStr)
		if err != nil {
			return nil, fmt.Errorf("invalid connection string: %w: %w", err, fanload.ErrInvalidConfig)
		}
		cfg = parsed
		if granular.Database != "" {
			cfg.Database = granular.Database
		}
	} else {
		built, err := resolveFromGranularParams(granular, env, pc)
		if err != nil {
			return nil, err
		}
		cfg = built
	}

	if err := applyCloudAuth(cfg, cloud, env, pc); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveFromGranularParams(flags *GranularConnFlags, env *EnvVars, pc config.ConnectionConfig) (*fanload.ConnectionConfig, error) {
	cfg := newDefaultConfig()
	cfg.Host = firstNonEmpty(flags.Host, env.PGHOST, pc.Host, cfg.Host)
	cfg.Username = firstNonEmpty(flags.Username, env.PGUSER, pc.Username, os.Getenv("USER"), os.Getenv("USERNAME"))
	cfg.Password = env.PGPASSWORD
	cfg.Database = firstNonEmpty(flags.Database, env.PGDATABASE, pc.Database, cfg.Database)
	cfg.SSLMode = firstNonEmpty(flags.SSLMode, env.PGSSLMODE, pc.SSLMode, cfg.SSLMode)

	switch {
	case flags.Port != 0:
		cfg.Port = flags.Port
	case env.PGPORT != "":
		port, err := strconv.Atoi(env.PGPORT)
		if err != nil {
			return nil, fmt.Errorf("invalid $PGPORT value '%s': must be an integer: %w", env.PGPORT, fanload.ErrInvalidConfig)
		}
		cfg.Port = port
	case pc.Port != 0:
		cfg.Port = pc.Port
	}
	return cfg, nil
}

// applyCloudAuth selects the auth method: explicit flag/config first, then
// Azure when Azure identifiers are present.
func applyCloudAuth(cfg *fanload.ConnectionConfig, cloud *CloudFlags, env *EnvVars, pc config.ConnectionConfig) error {
	method, err := fanload.ParseAuthMethod(firstNonEmpty(cloud.AuthMethod, pc.AuthMethod))
	if err != nil {
		return err
	}

	tenantID := firstNonEmpty(cloud.AzureTenantID, env.AZURE_TENANT_ID, pc.AzureTenantID)
	clientID := firstNonEmpty(cloud.AzureClientID, env.AZURE_CLIENT_ID, pc.AzureClientID)
	if method == fanload.AuthMethodStandard && (cloud.AzureTenantID != "" || cloud.AzureClientID != "") {
		method = fanload.AuthMethodAzureEntraID
	}

	cfg.AuthMethod = method
	switch method {
	case fanload.AuthMethodAWSIAM:
		cfg.AWSRegion = firstNonEmpty(cloud.AWSRegion, env.AWS_REGION, pc.AWSRegion)
	case fanload.AuthMethodGoogleIAM:
		cfg.GoogleInstance = firstNonEmpty(cloud.GoogleInstance, pc.GoogleInstance)
	case fanload.AuthMethodAzureEntraID:
		cfg.AzureTenantID = tenantID
		cfg.AzureClientID = clientID
		cfg.AzureClientSecret = env.AZURE_CLIENT_SECRET
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
