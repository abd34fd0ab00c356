package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vvka-141/fanload/internal/config"
	"github.com/vvka-141/fanload/pkg/fanload"
)

func TestResolve_ConnectionFlagWins(t *testing.T) {
	env := &EnvVars{DATABASE_URL: "postgresql://other@elsewhere/x", PGHOST: "pghost"}

	cfg, err := ResolveConnectionParams("postgresql://gpadmin@mdw:5432/climate", nil, nil, env, nil)
	require.NoError(t, err)
	assert.Equal(t, "mdw", cfg.Host)
	assert.Equal(t, "climate", cfg.Database)
}

func TestResolve_DatabaseFlagOverridesConnectionString(t *testing.T) {
	cfg, err := ResolveConnectionParams("postgresql://gpadmin@mdw:5432/climate", &GranularConnFlags{Database: "scratch"}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "scratch", cfg.Database)
}

func TestResolve_ConflictingFlags(t *testing.T) {
	_, err := ResolveConnectionParams("postgresql://mdw/climate", &GranularConnFlags{Host: "other"}, nil, nil, nil)
	assert.ErrorIs(t, err, fanload.ErrInvalidConfig)
}

func TestResolve_EnvironmentConnectionStrings(t *testing.T) {
	env := &EnvVars{
		FANLOAD_CONNECTION_STRING: "postgresql://a@first/db1",
		DATABASE_URL:              "postgresql://b@second/db2",
	}
	cfg, err := ResolveConnectionParams("", nil, nil, env, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", cfg.Host)

	env.FANLOAD_CONNECTION_STRING = ""
	cfg, err = ResolveConnectionParams("", nil, nil, env, nil)
	require.NoError(t, err)
	assert.Equal(t, "second", cfg.Host)
}

func TestResolve_GranularPrecedence(t *testing.T) {
	env := &EnvVars{PGHOST: "envhost", PGPORT: "6432", PGUSER: "envuser", PGPASSWORD: "pw", PGDATABASE: "envdb"}
	project := &config.ProjectConfig{Connection: config.ConnectionConfig{
		Host: "yamlhost", Port: 7000, Username: "yamluser", Database: "yamldb", SSLMode: "require",
	}}

	cfg, err := ResolveConnectionParams("", &GranularConnFlags{Host: "flaghost"}, nil, env, project)
	require.NoError(t, err)

	assert.Equal(t, "flaghost", cfg.Host)
	assert.Equal(t, 6432, cfg.Port)
	assert.Equal(t, "envuser", cfg.Username)
	assert.Equal(t, "pw", cfg.Password)
	assert.Equal(t, "envdb", cfg.Database)
	assert.Equal(t, "require", cfg.SSLMode)
}

func TestResolve_ProjectConfigFallback(t *testing.T) {
	project := &config.ProjectConfig{Connection: config.ConnectionConfig{Host: "yamlhost", Port: 7000, Database: "yamldb"}}

	cfg, err := ResolveConnectionParams("", nil, nil, &EnvVars{}, project)
	require.NoError(t, err)
	assert.Equal(t, "yamlhost", cfg.Host)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "yamldb", cfg.Database)
	assert.Equal(t, "prefer", cfg.SSLMode)
}

func TestResolve_InvalidPGPORT(t *testing.T) {
	_, err := ResolveConnectionParams("", nil, nil, &EnvVars{PGPORT: "abc"}, nil)
	assert.ErrorIs(t, err, fanload.ErrInvalidConfig)
}

func TestResolve_CloudAuth(t *testing.T) {
	env := &EnvVars{AWS_REGION: "us-east-1", AZURE_CLIENT_SECRET: "s3cret"}

	cfg, err := ResolveConnectionParams("", nil, &CloudFlags{AuthMethod: "aws"}, env, nil)
	require.NoError(t, err)
	assert.Equal(t, fanload.AuthMethodAWSIAM, cfg.AuthMethod)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)

	cfg, err = ResolveConnectionParams("", nil, &CloudFlags{AzureTenantID: "t", AzureClientID: "c"}, env, nil)
	require.NoError(t, err)
	assert.Equal(t, fanload.AuthMethodAzureEntraID, cfg.AuthMethod)
	assert.Equal(t, "s3cret", cfg.AzureClientSecret)

	project := &config.ProjectConfig{Connection: config.ConnectionConfig{AuthMethod: "google", GoogleInstance: "p:r:i"}}
	cfg, err = ResolveConnectionParams("", nil, nil, env, project)
	require.NoError(t, err)
	assert.Equal(t, fanload.AuthMethodGoogleIAM, cfg.AuthMethod)
	assert.Equal(t, "p:r:i", cfg.GoogleInstance)

	_, err = ResolveConnectionParams("", nil, &CloudFlags{AuthMethod: "ldap"}, env, nil)
	assert.ErrorIs(t, err, fanload.ErrUnsupportedAuthMethod)
}
