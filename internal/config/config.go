// Package config loads searchsync settings from layered YAML files, a
// project .env file and SEARCHSYNC_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

// Project file names, in lookup order.
const (
	ProjectFileYAML = ".searchsync.yaml"
	ProjectFileYML  = ".searchsync.yml"
	EnvFile         = ".env"
)

// Config represents the complete searchsync configuration.
type Config struct {
	Version       int                 `yaml:"version" json:"version"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch" json:"elasticsearch"`
	Index         IndexConfig         `yaml:"index" json:"index"`
	Reindex       ReindexConfig       `yaml:"reindex" json:"reindex"`
	Backend       BackendConfig       `yaml:"backend" json:"backend"`
	Source        SourceConfig        `yaml:"source" json:"source"`
	Daemon        DaemonConfig        `yaml:"daemon" json:"daemon"`
	Server        ServerConfig        `yaml:"server" json:"server"`
}

// ElasticsearchConfig configures the cluster connection and write behavior.
type ElasticsearchConfig struct {
	// Hosts is a list of host:port entries. A host without a port gets 9200.
	Hosts  []string `yaml:"hosts" json:"hosts"`
	Scheme string   `yaml:"scheme" json:"scheme"`

	// ConcurrencyLevel is the number of reindex workers.
	ConcurrencyLevel int `yaml:"concurrency_level" json:"concurrency_level"`

	// RefreshInterval is applied to the alias target after a reindex.
	RefreshInterval string `yaml:"refresh_interval" json:"refresh_interval"`

	// RefreshPolicy is true, wait_for or false.
	RefreshPolicy string `yaml:"refresh_policy" json:"refresh_policy"`
}

// IndexConfig names what is synchronized.
type IndexConfig struct {
	Alias     string `yaml:"alias" json:"alias"`
	Type      string `yaml:"type" json:"type"`
	TypesFile string `yaml:"types_file" json:"types_file"`
}

// ReindexConfig tunes the reindex pipeline.
type ReindexConfig struct {
	PageSize     int     `yaml:"page_size" json:"page_size"`
	BatchCeiling int     `yaml:"batch_ceiling" json:"batch_ceiling"`
	RateLimit    float64 `yaml:"rate_limit" json:"rate_limit"` // pages per second, 0 = unlimited
	LockDir      string  `yaml:"lock_dir" json:"lock_dir"`
}

// BackendConfig selects the search backend.
type BackendConfig struct {
	// Kind is "elastic" or "local".
	Kind string `yaml:"kind" json:"kind"`

	// DataDir holds local indices. Empty keeps them in memory.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// SourceConfig describes the relational source.
type SourceConfig struct {
	// Driver is sqlite, sqlite3 or postgres.
	Driver   string `yaml:"driver" json:"driver"`
	DSN      string `yaml:"dsn" json:"dsn"`
	Table    string `yaml:"table" json:"table"`
	IDColumn string `yaml:"id_column" json:"id_column"`
	OrderBy  string `yaml:"order_by" json:"order_by"`
}

// DaemonConfig configures the background service.
type DaemonConfig struct {
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	PIDPath    string `yaml:"pid_path" json:"pid_path"`
	Timeout    string `yaml:"timeout" json:"timeout"`

	// Schedule is a cron expression for periodic reindex. Empty disables it.
	Schedule string `yaml:"schedule" json:"schedule"`
}

// ServerConfig holds process-wide settings.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Backend kinds.
const (
	BackendElastic = "elastic"
	BackendLocal   = "local"
)

// Source drivers.
const (
	DriverSQLite   = "sqlite"
	DriverSQLite3  = "sqlite3"
	DriverPostgres = "postgres"
)

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	home := HomeDir()
	return &Config{
		Version: 1,
		Elasticsearch: ElasticsearchConfig{
			Hosts:            []string{"127.0.0.1:9200"},
			Scheme:           "http",
			ConcurrencyLevel: 20,
			RefreshInterval:  "1s",
			RefreshPolicy:    "true",
		},
		Index: IndexConfig{
			TypesFile: "searchsync.types.yaml",
		},
		Reindex: ReindexConfig{
			PageSize:     500,
			BatchCeiling: 150000,
			LockDir:      filepath.Join(home, "locks"),
		},
		Backend: BackendConfig{
			Kind:    BackendElastic,
			DataDir: filepath.Join(home, "data"),
		},
		Source: SourceConfig{
			Driver:   DriverSQLite,
			IDColumn: "id",
		},
		Daemon: DaemonConfig{
			SocketPath: filepath.Join(home, "daemon.sock"),
			PIDPath:    filepath.Join(home, "daemon.pid"),
			Timeout:    "30s",
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
	}
}

// HomeDir returns ~/.searchsync, the root for state files.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".searchsync")
	}
	return filepath.Join(home, ".searchsync")
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/searchsync/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/searchsync/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "searchsync", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "searchsync", "config.yaml")
	}
	return filepath.Join(home, ".config", "searchsync", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the project in dir.
// Precedence, lowest first:
//  1. Defaults
//  2. User config (~/.config/searchsync/config.yaml)
//  3. Project config (.searchsync.yaml in dir)
//  4. Project .env file (never overrides variables already set)
//  5. Environment variables (SEARCHSYNC_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if envPath := filepath.Join(dir, EnvFile); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, serrors.New(serrors.ErrCodeConfigInvalid, "failed to load "+envPath, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectFile returns the project config path in dir, or "" when none exists.
func ProjectFile(dir string) string {
	for _, name := range []string{ProjectFileYAML, ProjectFileYML} {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

func (c *Config) loadFromFile(dir string) error {
	if path := ProjectFile(dir); path != "" {
		return c.loadYAML(path)
	}
	return nil
}

// loadYAML merges the non-zero values of a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return serrors.New(serrors.ErrCodeFileNotFound, "failed to read config file "+path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return serrors.New(serrors.ErrCodeConfigInvalid, "failed to parse config file "+path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	es := other.Elasticsearch
	if len(es.Hosts) > 0 {
		c.Elasticsearch.Hosts = es.Hosts
	}
	setString(&c.Elasticsearch.Scheme, es.Scheme)
	setInt(&c.Elasticsearch.ConcurrencyLevel, es.ConcurrencyLevel)
	setString(&c.Elasticsearch.RefreshInterval, es.RefreshInterval)
	setString(&c.Elasticsearch.RefreshPolicy, es.RefreshPolicy)

	setString(&c.Index.Alias, other.Index.Alias)
	setString(&c.Index.Type, other.Index.Type)
	setString(&c.Index.TypesFile, other.Index.TypesFile)

	setInt(&c.Reindex.PageSize, other.Reindex.PageSize)
	setInt(&c.Reindex.BatchCeiling, other.Reindex.BatchCeiling)
	if other.Reindex.RateLimit != 0 {
		c.Reindex.RateLimit = other.Reindex.RateLimit
	}
	setString(&c.Reindex.LockDir, other.Reindex.LockDir)

	setString(&c.Backend.Kind, other.Backend.Kind)
	setString(&c.Backend.DataDir, other.Backend.DataDir)

	setString(&c.Source.Driver, other.Source.Driver)
	setString(&c.Source.DSN, other.Source.DSN)
	setString(&c.Source.Table, other.Source.Table)
	setString(&c.Source.IDColumn, other.Source.IDColumn)
	setString(&c.Source.OrderBy, other.Source.OrderBy)

	setString(&c.Daemon.SocketPath, other.Daemon.SocketPath)
	setString(&c.Daemon.PIDPath, other.Daemon.PIDPath)
	setString(&c.Daemon.Timeout, other.Daemon.Timeout)
	setString(&c.Daemon.Schedule, other.Daemon.Schedule)

	setString(&c.Server.LogLevel, other.Server.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies SEARCHSYNC_* environment variable overrides.
// Malformed numbers are configuration errors.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("SEARCHSYNC_HOSTS"); v != "" {
		c.Elasticsearch.Hosts = SplitHosts(v)
	}
	if v := os.Getenv("SEARCHSYNC_SCHEME"); v != "" {
		c.Elasticsearch.Scheme = v
	}
	if v := os.Getenv("SEARCHSYNC_CONCURRENCY_LEVEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("SEARCHSYNC_CONCURRENCY_LEVEL", v, err)
		}
		c.Elasticsearch.ConcurrencyLevel = n
	}
	if v := os.Getenv("SEARCHSYNC_REFRESH_INTERVAL"); v != "" {
		c.Elasticsearch.RefreshInterval = v
	}
	if v := os.Getenv("SEARCHSYNC_REFRESH_POLICY"); v != "" {
		c.Elasticsearch.RefreshPolicy = v
	}

	if v := os.Getenv("SEARCHSYNC_ALIAS"); v != "" {
		c.Index.Alias = v
	}
	if v := os.Getenv("SEARCHSYNC_TYPE"); v != "" {
		c.Index.Type = v
	}

	if v := os.Getenv("SEARCHSYNC_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("SEARCHSYNC_PAGE_SIZE", v, err)
		}
		c.Reindex.PageSize = n
	}
	if v := os.Getenv("SEARCHSYNC_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return envError("SEARCHSYNC_RATE_LIMIT", v, err)
		}
		c.Reindex.RateLimit = f
	}

	if v := os.Getenv("SEARCHSYNC_BACKEND"); v != "" {
		c.Backend.Kind = v
	}
	if v := os.Getenv("SEARCHSYNC_DATA_DIR"); v != "" {
		c.Backend.DataDir = v
	}

	if v := os.Getenv("SEARCHSYNC_SOURCE_DRIVER"); v != "" {
		c.Source.Driver = v
	}
	if v := os.Getenv("SEARCHSYNC_SOURCE_DSN"); v != "" {
		c.Source.DSN = v
	}

	if v := os.Getenv("SEARCHSYNC_SCHEDULE"); v != "" {
		c.Daemon.Schedule = v
	}
	if v := os.Getenv("SEARCHSYNC_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	return nil
}

func envError(name, value string, err error) error {
	return serrors.New(serrors.ErrCodeConfigInvalid, fmt.Sprintf("%s=%q is not a number", name, value), err)
}

// SplitHosts parses a comma-separated host list.
func SplitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return serrors.ConfigError(fmt.Sprintf(format, args...), nil)
	}

	if c.Elasticsearch.ConcurrencyLevel <= 0 {
		return invalid("elasticsearch.concurrency_level must be positive, got %d", c.Elasticsearch.ConcurrencyLevel)
	}
	switch strings.ToLower(c.Elasticsearch.Scheme) {
	case "http", "https":
	default:
		return invalid("elasticsearch.scheme must be 'http' or 'https', got %s", c.Elasticsearch.Scheme)
	}
	switch strings.ToLower(c.Elasticsearch.RefreshPolicy) {
	case "true", "wait_for", "false", "immediate", "wait_until", "none":
	default:
		return invalid("elasticsearch.refresh_policy must be 'true', 'wait_for' or 'false', got %s", c.Elasticsearch.RefreshPolicy)
	}

	if c.Reindex.PageSize <= 0 {
		return invalid("reindex.page_size must be positive, got %d", c.Reindex.PageSize)
	}
	if c.Reindex.BatchCeiling < c.Reindex.PageSize {
		return invalid("reindex.batch_ceiling (%d) must be at least page_size (%d)", c.Reindex.BatchCeiling, c.Reindex.PageSize)
	}
	if c.Reindex.RateLimit < 0 {
		return invalid("reindex.rate_limit must be non-negative, got %g", c.Reindex.RateLimit)
	}

	switch c.Backend.Kind {
	case BackendElastic:
		if len(c.Elasticsearch.Hosts) == 0 {
			return invalid("elasticsearch.hosts must not be empty")
		}
	case BackendLocal:
	default:
		return invalid("backend.kind must be 'elastic' or 'local', got %s", c.Backend.Kind)
	}

	switch c.Source.Driver {
	case DriverSQLite, DriverSQLite3, DriverPostgres:
	default:
		return invalid("source.driver must be 'sqlite', 'sqlite3' or 'postgres', got %s", c.Source.Driver)
	}

	if c.Daemon.Timeout != "" {
		if _, err := time.ParseDuration(c.Daemon.Timeout); err != nil {
			return invalid("daemon.timeout is not a duration: %s", c.Daemon.Timeout)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return invalid("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// RequireTarget checks the settings every sync operation needs.
func (c *Config) RequireTarget() error {
	if c.Index.Alias == "" {
		return serrors.ConfigError("index.alias is not set", nil).
			WithSuggestion("Run 'searchsync config init' and set index.alias")
	}
	if c.Index.Type == "" {
		return serrors.ConfigError("index.type is not set", nil).
			WithSuggestion("Set index.type to a type declared in " + c.Index.TypesFile)
	}
	return nil
}

// DaemonTimeout returns the parsed daemon timeout, 30s when unset.
func (c *Config) DaemonTimeout() time.Duration {
	d, err := time.ParseDuration(c.Daemon.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ResolvePath makes a relative path absolute against dir.
func ResolvePath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return serrors.InternalError("failed to marshal config", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return serrors.New(serrors.ErrCodeFilePermission, "failed to create "+filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return serrors.New(serrors.ErrCodeFilePermission, "failed to write config file "+path, err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a project config file
// or a .git directory. It returns startDir when neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	dir := absDir
	for {
		if ProjectFile(dir) != "" || dirExists(filepath.Join(dir, ".git")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return absDir, nil
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
