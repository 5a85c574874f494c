package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	awsclient "github.com/nholding/cycle-book/internal/repository"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

// AWSConfig holds the S3 and RDS settings shared by the s3 and postgres drivers.
type AWSConfig struct {
	Profile string `yaml:"profile,omitempty"`
	Region  string `yaml:"region"`

	Bucket string `yaml:"bucket,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`

	RDSEndpoint string `yaml:"rds_endpoint,omitempty"`
	// RDSInstance is resolved to an endpoint through the RDS API when
	// RDSEndpoint is empty.
	RDSInstance string `yaml:"rds_instance,omitempty"`
	RDSUser     string `yaml:"rds_user,omitempty"`
	RDSDB       string `yaml:"rds_db,omitempty"`
	RDSPort     int    `yaml:"rds_port,omitempty"`
}

type StorageConfig struct {
	// Driver selects the persistence backend: "memory", "postgres" or "s3".
	Driver string `yaml:"driver"`

	// DatabaseURL is a plain PostgreSQL DSN. When empty the postgres driver
	// connects to RDS with IAM authentication.
	DatabaseURL string `yaml:"database_url,omitempty"`

	AWS AWSConfig `yaml:"aws"`
}

type SyncConfig struct {
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

type JobsConfig struct {
	// OpenPeriodCron schedules the open-period check (robfig/cron syntax).
	OpenPeriodCron string `yaml:"open_period_cron"`
	// MaxOpenDays is the day number after which an open period is reported.
	MaxOpenDays int `yaml:"max_open_days"`
}

type PeriodsConfig struct {
	// MaxDays is the longest period accepted on close, start day included.
	MaxDays int `yaml:"max_days"`
}

// AuthConfig enables HTTP Basic Auth when both fields are set.
// PasswordHash is a bcrypt hash, see the hash-password command.
type AuthConfig struct {
	Username     string `yaml:"username,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen    string `yaml:"listen"`
	Env       string `yaml:"env"` // dev|prod
	LogLevel  string `yaml:"log_level"`
	Timezone  string `yaml:"timezone"`
	SentryDSN string `yaml:"sentry_dsn,omitempty"`

	Storage StorageConfig `yaml:"storage"`
	Periods PeriodsConfig `yaml:"periods"`
	Sync    SyncConfig    `yaml:"sync"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Auth    AuthConfig    `yaml:"auth"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.AWS.Region == "" {
		c.Storage.AWS.Region = "eu-central-1"
	}
	if c.Storage.AWS.RDSPort <= 0 {
		c.Storage.AWS.RDSPort = 5432
	}
	if c.Sync.QueueSize <= 0 {
		c.Sync.QueueSize = 256
	}
	if c.Sync.Timeout <= 0 {
		c.Sync.Timeout = 5 * time.Second
	}
	if c.Jobs.OpenPeriodCron == "" {
		c.Jobs.OpenPeriodCron = "0 * * * *"
	}
	if c.Jobs.MaxOpenDays <= 0 {
		c.Jobs.MaxOpenDays = 10
	}
	if c.Periods.MaxDays <= 0 {
		c.Periods.MaxDays = 366
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		rds := c.Storage.AWS
		if c.Storage.DatabaseURL == "" && ((rds.RDSEndpoint == "" && rds.RDSInstance == "") || rds.RDSUser == "") {
			errs = append(errs, errors.New("storage: postgres needs database_url, or rds_endpoint (or rds_instance) and rds_user"))
		}
	case DriverS3:
		if c.Storage.AWS.Bucket == "" {
			errs = append(errs, errors.New("storage: s3 needs a bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if (c.Auth.Username == "") != (c.Auth.PasswordHash == "") {
		errs = append(errs, errors.New("auth: username and password_hash must be set together"))
	}

	return errors.Join(errs...)
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AuthEnabled reports whether HTTP Basic Auth is configured.
func (c *Config) AuthEnabled() bool {
	return c.Auth.Username != "" && c.Auth.PasswordHash != ""
}

// ClientConfig maps the storage settings onto the AWS/RDS client configuration.
func (c *Config) ClientConfig() *awsclient.Config {
	return &awsclient.Config{
		Profile:      c.Storage.AWS.Profile,
		S3BucketName: c.Storage.AWS.Bucket,
		S3Prefix:     c.Storage.AWS.Prefix,
		Region:       c.Storage.AWS.Region,
		DatabaseURL:  c.Storage.DatabaseURL,
		DBEndpoint:   c.Storage.AWS.RDSEndpoint,
		DBInstanceID: c.Storage.AWS.RDSInstance,
		DBUser:       c.Storage.AWS.RDSUser,
		DBName:       c.Storage.AWS.RDSDB,
		DBPort:       c.Storage.AWS.RDSPort,
	}
}

// Load reads the YAML file at path, loads an optional .env file and applies
// environment overrides.
//
// Behavior:
//   - If the config file does not exist, a default one is written with 0600 perms
//   - envFile may be empty; a missing .env file is not an error
//   - environment variables win over YAML values
func Load(path, envFile string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// LoadFile loads configuration from the given YAML path only.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// ApplyEnv overrides fields with the non-empty environment variables returned by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("LISTEN", &c.Listen)
	str("ENV", &c.Env)
	str("LOG_LEVEL", &c.LogLevel)
	str("TZ", &c.Timezone)
	str("SENTRY_DSN", &c.SentryDSN)

	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("DATABASE_URL", &c.Storage.DatabaseURL)
	str("AWS_PROFILE", &c.Storage.AWS.Profile)
	str("AWS_REGION", &c.Storage.AWS.Region)
	str("S3_BUCKET", &c.Storage.AWS.Bucket)
	str("S3_PREFIX", &c.Storage.AWS.Prefix)
	str("RDS_ENDPOINT", &c.Storage.AWS.RDSEndpoint)
	str("RDS_INSTANCE", &c.Storage.AWS.RDSInstance)
	str("RDS_USER", &c.Storage.AWS.RDSUser)
	str("RDS_DB", &c.Storage.AWS.RDSDB)
	num("RDS_PORT", &c.Storage.AWS.RDSPort)

	num("SYNC_QUEUE_SIZE", &c.Sync.QueueSize)
	if v := strings.TrimSpace(getenv("SYNC_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SYNC_TIMEOUT: %w", err))
		} else {
			c.Sync.Timeout = d
		}
	}

	str("OPEN_PERIOD_CRON", &c.Jobs.OpenPeriodCron)
	num("MAX_OPEN_DAYS", &c.Jobs.MaxOpenDays)
	num("MAX_PERIOD_DAYS", &c.Periods.MaxDays)

	str("AUTH_USER", &c.Auth.Username)
	str("AUTH_PASSWORD_HASH", &c.Auth.PasswordHash)

	return errors.Join(errs...)
}

// Save writes the configuration atomically via a temp file + rename, with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".cycle-book-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
