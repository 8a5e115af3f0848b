package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/telcoingest/invoice-pipeline/internal/application/port"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/fingerprint"
	"github.com/telcoingest/invoice-pipeline/internal/ingest"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Procedures ProceduresConfig `mapstructure:"procedures"`
	Mapping    MappingConfig    `mapstructure:"mapping"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Supported persistence drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig holds database configuration. Path is used by sqlite, DSN by postgres.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// IngestConfig holds the pipeline settings
type IngestConfig struct {
	Tolerance           string        `mapstructure:"tolerance"`
	MinVendorConfidence float64       `mapstructure:"min_vendor_confidence"`
	DedupKey            string        `mapstructure:"dedup_key"`
	PersistMode         string        `mapstructure:"persist_mode"`
	PersistTimeout      time.Duration `mapstructure:"persist_timeout"`
	PersistAttempts     int           `mapstructure:"persist_attempts"`
	MapTimeout          time.Duration `mapstructure:"map_timeout"`
	Workers             int           `mapstructure:"workers"`
	CacheSize           int           `mapstructure:"cache_size"`
	Fuzzy               bool          `mapstructure:"fuzzy"`
	MaxUploadMB         int64         `mapstructure:"max_upload_mb"`
}

// ProceduresConfig names the per-vendor stored procedures of the postgres store
type ProceduresConfig struct {
	Upsert map[string]string `mapstructure:"upsert"`
	Map    map[string]string `mapstructure:"map"`
}

// Mapping modes
const (
	MappingNone      = "none"
	MappingDirectory = "directory"
	MappingProcedure = "procedure"
	MappingAMQP      = "amqp"
)

// MappingConfig selects how persisted packages are mapped to org units
type MappingConfig struct {
	Mode     string `mapstructure:"mode"`
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string `mapstructure:"exchange"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads configPath, a .env file next to the process if present and the
// environment, in increasing order of precedence. An empty configPath means
// defaults plus environment only.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TELCO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/invoices.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("ingest.tolerance", "0.05")
	v.SetDefault("ingest.min_vendor_confidence", 0.5)
	v.SetDefault("ingest.dedup_key", string(fingerprint.StrategyRaw))
	v.SetDefault("ingest.persist_mode", string(port.PersistDefault))
	v.SetDefault("ingest.persist_timeout", 10*time.Second)
	v.SetDefault("ingest.persist_attempts", 3)
	v.SetDefault("ingest.map_timeout", 10*time.Second)
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.cache_size", 1024)
	v.SetDefault("ingest.fuzzy", true)
	v.SetDefault("ingest.max_upload_mb", 20)

	v.SetDefault("mapping.mode", MappingDirectory)
	v.SetDefault("mapping.exchange", "invoice.events")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds credentials that are never kept in the config file
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.dsn", "DATABASE_DSN")
	_ = v.BindEnv("mapping.amqp_url", "AMQP_URL")
	_ = v.BindEnv("ingest.persist_mode", "TELCO_PERSIST_MODE", "TELCO_INGEST_PERSIST_MODE")
	_ = v.BindEnv("ingest.dedup_key", "TELCO_DEDUP_KEY", "TELCO_INGEST_DEDUP_KEY")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
		if len(c.Procedures.Upsert) == 0 {
			return fmt.Errorf("procedures.upsert is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}

	if _, err := c.Procedures.UpsertProcedures(); err != nil {
		return err
	}
	if _, err := c.Procedures.MapProcedures(); err != nil {
		return err
	}

	switch c.Mapping.Mode {
	case MappingNone:
	case MappingDirectory:
		if c.Database.Driver != DriverSQLite {
			return fmt.Errorf("mapping.mode directory requires the sqlite driver")
		}
	case MappingProcedure:
		if c.Database.Driver != DriverPostgres {
			return fmt.Errorf("mapping.mode procedure requires the postgres driver")
		}
	case MappingAMQP:
		if c.Mapping.AMQPURL == "" {
			return fmt.Errorf("mapping.amqp_url is required for amqp mapping")
		}
		if c.Mapping.Exchange == "" {
			return fmt.Errorf("mapping.exchange is required for amqp mapping")
		}
	default:
		return fmt.Errorf("unknown mapping.mode %q", c.Mapping.Mode)
	}

	if c.Ingest.MaxUploadMB <= 0 {
		return fmt.Errorf("ingest.max_upload_mb must be positive")
	}
	if _, err := c.Ingest.Settings(); err != nil {
		return err
	}
	return nil
}

// Settings converts the ingest section into orchestrator settings
func (c IngestConfig) Settings() (ingest.Config, error) {
	out := ingest.DefaultConfig()

	if c.Tolerance != "" {
		tol, err := decimal.NewFromString(c.Tolerance)
		if err != nil {
			return out, fmt.Errorf("ingest.tolerance: %w", err)
		}
		if tol.IsNegative() {
			return out, fmt.Errorf("ingest.tolerance must not be negative")
		}
		out.Tolerance = tol
	}
	if c.MinVendorConfidence < 0 || c.MinVendorConfidence > 1 {
		return out, fmt.Errorf("ingest.min_vendor_confidence must be within [0, 1]")
	}
	if c.MinVendorConfidence > 0 {
		out.MinVendorConfidence = c.MinVendorConfidence
	}

	key, err := fingerprint.ParseStrategy(c.DedupKey)
	if err != nil {
		return out, fmt.Errorf("ingest.dedup_key: %w", err)
	}
	out.DedupKey = key

	mode, err := port.ParsePersistMode(c.PersistMode)
	if err != nil {
		return out, fmt.Errorf("ingest.persist_mode: %w", err)
	}
	out.PersistMode = mode

	if c.PersistTimeout > 0 {
		out.PersistTimeout = c.PersistTimeout
	}
	if c.PersistAttempts > 0 {
		out.PersistAttempts = c.PersistAttempts
	}
	if c.MapTimeout > 0 {
		out.MapTimeout = c.MapTimeout
	}
	if c.Workers > 0 {
		out.Workers = c.Workers
	}
	if c.CacheSize > 0 {
		out.CacheSize = c.CacheSize
	}
	out.Fuzzy = c.Fuzzy
	return out, nil
}

// MaxUploadBytes is the upload limit in bytes
func (c IngestConfig) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// UpsertProcedures returns the upsert procedure per vendor
func (p ProceduresConfig) UpsertProcedures() (map[invoice.Vendor]string, error) {
	return vendorMap("procedures.upsert", p.Upsert)
}

// MapProcedures returns the mapping procedure per vendor
func (p ProceduresConfig) MapProcedures() (map[invoice.Vendor]string, error) {
	return vendorMap("procedures.map", p.Map)
}

func vendorMap(section string, in map[string]string) (map[invoice.Vendor]string, error) {
	out := make(map[invoice.Vendor]string, len(in))
	for k, name := range in {
		vendor := invoice.ParseVendor(k)
		if !vendor.IsKnown() {
			return nil, fmt.Errorf("%s: unknown vendor %q", section, k)
		}
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%s.%s: procedure name is empty", section, k)
		}
		out[vendor] = name
	}
	return out, nil
}

// Address is the listen address of the HTTP server
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
