// Package config loads fanload.yaml, the project-level settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

const ConfigFileName = "fanload.yaml"

type ConnectionConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Database       string `yaml:"database"`
	SSLMode        string `yaml:"sslmode"`
	AuthMethod     string `yaml:"auth_method,omitempty"`
	AzureTenantID  string `yaml:"azure_tenant_id,omitempty"`
	AzureClientID  string `yaml:"azure_client_id,omitempty"`
	AWSRegion      string `yaml:"aws_region,omitempty"`
	GoogleInstance string `yaml:"google_instance,omitempty"`
}

type LedgerConfig struct {
	// Table may be schema-qualified.
	Table string `yaml:"table"`
}

// Column is one destination/external-table column.
type Column struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type DestinationConfig struct {
	Table   string   `yaml:"table"`
	Columns []Column `yaml:"columns"`
	// KeyColumn holds each file's source key; verification counts rows by it.
	KeyColumn          string `yaml:"key_column"`
	Distinct           bool   `yaml:"distinct"`
	RejectLimitPercent int    `yaml:"reject_limit_percent"`
	// Create issues CREATE TABLE IF NOT EXISTS before loading.
	Create bool `yaml:"create"`
}

type FleetConfig struct {
	Command     string        `yaml:"command"`
	Args        []string      `yaml:"args"`
	Host        string        `yaml:"host"`
	Scheme      string        `yaml:"scheme"`
	BasePort    int           `yaml:"base_port"`
	Size        int           `yaml:"size"`
	WorkDir     string        `yaml:"work_dir"`
	StartGrace  time.Duration `yaml:"start_grace"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
	Probe       bool          `yaml:"probe"`
	// LinkMode is "symlink" or "copy".
	LinkMode string `yaml:"link_mode"`
}

type CorpusConfig struct {
	Dir       string `yaml:"dir"`
	Pattern   string `yaml:"pattern"`
	Recursive bool   `yaml:"recursive"`
}

type LoadConfig struct {
	Mode           string        `yaml:"mode"`
	MaxFiles       int           `yaml:"max_files"`
	BatchSize      int           `yaml:"batch_size"`
	ClaimSize      int           `yaml:"claim_size"`
	MismatchPolicy string        `yaml:"mismatch_policy"`
	Timeout        time.Duration `yaml:"timeout"`
	MetricsAddr    string        `yaml:"metrics_addr,omitempty"`
}

type ProjectConfig struct {
	Connection  ConnectionConfig  `yaml:"connection"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Destination DestinationConfig `yaml:"destination"`
	Fleet       FleetConfig       `yaml:"fleet"`
	Corpus      CorpusConfig      `yaml:"corpus"`
	Load        LoadConfig        `yaml:"load"`
}

// DefaultColumns is the daily-observation layout loaded when no columns are configured.
func DefaultColumns() []Column {
	return []Column{
		{Name: "station_id", Type: "VARCHAR(20)"},
		{Name: "observation_date", Type: "DATE"},
		{Name: "element", Type: "CHAR(4)"},
		{Name: "value", Type: "NUMERIC"},
		{Name: "mflag", Type: "VARCHAR(1)"},
		{Name: "qflag", Type: "VARCHAR(1)"},
		{Name: "sflag", Type: "VARCHAR(1)"},
	}
}

// Default returns a configuration with every default applied.
func Default() *ProjectConfig {
	cfg := &ProjectConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued settings. Connection settings are left to the resolver.
func (c *ProjectConfig) ApplyDefaults() {
	if c.Ledger.Table == "" {
		c.Ledger.Table = "load_control"
	}
	if c.Destination.Table == "" {
		c.Destination.Table = "ghcn_daily"
	}
	if len(c.Destination.Columns) == 0 {
		c.Destination.Columns = DefaultColumns()
		if c.Destination.KeyColumn == "" {
			c.Destination.KeyColumn = "station_id"
		}
	}
	if c.Destination.RejectLimitPercent == 0 {
		c.Destination.RejectLimitPercent = 1
	}
	if c.Fleet.Command == "" {
		c.Fleet.Command = "gpfdist"
	}
	if len(c.Fleet.Args) == 0 {
		c.Fleet.Args = []string{"-d", "{dir}", "-p", "{port}"}
	}
	if c.Fleet.Host == "" {
		c.Fleet.Host = "localhost"
	}
	if c.Fleet.Scheme == "" {
		c.Fleet.Scheme = "gpfdist"
	}
	if c.Fleet.BasePort == 0 {
		c.Fleet.BasePort = 8081
	}
	if c.Fleet.Size == 0 {
		c.Fleet.Size = 1
	}
	if c.Fleet.WorkDir == "" {
		c.Fleet.WorkDir = os.TempDir()
	}
	if c.Fleet.StartGrace == 0 {
		c.Fleet.StartGrace = 2 * time.Second
	}
	if c.Fleet.StopTimeout == 0 {
		c.Fleet.StopTimeout = 5 * time.Second
	}
	if c.Fleet.LinkMode == "" {
		c.Fleet.LinkMode = "symlink"
	}
	if c.Corpus.Pattern == "" {
		c.Corpus.Pattern = "*.csv"
	}
	if c.Load.Mode == "" {
		c.Load.Mode = "external"
	}
	if c.Load.BatchSize == 0 {
		c.Load.BatchSize = 1000
	}
	if c.Load.ClaimSize == 0 {
		c.Load.ClaimSize = 1
	}
	if c.Load.MismatchPolicy == "" {
		c.Load.MismatchPolicy = "warn"
	}
}

// Load reads fanload.yaml from dir and applies defaults.
func Load(dir string) (*ProjectConfig, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads the named config file and applies defaults.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// LoadOrDefault is Load that falls back to Default when the file is absent.
func LoadOrDefault(path string) (*ProjectConfig, error) {
	cfg, err := LoadFile(path)
	if errors.Is(err, ErrConfigNotFound) {
		return Default(), nil
	}
	return cfg, err
}
