package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"arcsync/internal/errdefs"
)

// Source backends.
const (
	SourceArchive = "archive"
	SourceBucket  = "bucket"
)

// State backends.
const (
	StateFile   = "file"
	StateSQLite = "sqlite"
)

// Config is the full application configuration. It is assembled once at
// startup from defaults, the optional YAML file, and flag overrides, and is
// treated as immutable afterwards.
type Config struct {
	RootDir  string         `yaml:"root_dir"`
	LogLevel string         `yaml:"log_level"`
	Source   SourceConfig   `yaml:"source"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Transfer TransferConfig `yaml:"transfer"`
	State    StateConfig    `yaml:"state"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	// Run holds per-invocation settings that only come from the command
	// line, never from the file.
	Run RunConfig `yaml:"-"`
}

// SourceConfig selects and configures the remote source backend.
type SourceConfig struct {
	Type    string        `yaml:"type"`
	Archive ArchiveConfig `yaml:"archive"`
	Bucket  BucketConfig  `yaml:"bucket"`
}

// ArchiveConfig configures the metadata-indexed archive source.
type ArchiveConfig struct {
	BaseURL string `yaml:"base_url"`
	FileExt string `yaml:"file_ext"`
}

// BucketConfig configures the S3-compatible listing source.
type BucketConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Prefix    string `yaml:"prefix"`
}

// CatalogConfig tunes catalog fetching and its retry policy.
type CatalogConfig struct {
	Rows           int `yaml:"rows"`
	Attempts       int `yaml:"attempts"`
	RetryBackoffMs int `yaml:"retry_backoff_ms"`
	TimeoutSec     int `yaml:"timeout_sec"`
}

// TransferConfig tunes per-item downloads.
type TransferConfig struct {
	TimeoutSec        int `yaml:"timeout_sec"`
	ConnectTimeoutSec int `yaml:"connect_timeout_sec"`
}

// StateConfig selects the state-store backend.
type StateConfig struct {
	Backend string `yaml:"backend"`
}

// MetricsConfig configures the optional metrics endpoint. An empty address
// disables the server.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// RunConfig carries the per-invocation request.
type RunConfig struct {
	Rows        int
	Collections []string
	DryRun      bool
}

// Load builds the configuration from the optional YAML file and command line
// flags. Flags win over the file, the file wins over defaults.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		RootDir:  ".",
		LogLevel: "info",
		Source: SourceConfig{
			Type: SourceArchive,
			Archive: ArchiveConfig{
				FileExt: "zip",
			},
			Bucket: BucketConfig{
				Secure: true,
			},
		},
		Catalog: CatalogConfig{
			Rows:           100,
			Attempts:       3,
			RetryBackoffMs: 2000,
			TimeoutSec:     30,
		},
		Transfer: TransferConfig{
			TimeoutSec:        900,
			ConnectTimeoutSec: 10,
		},
		State: StateConfig{
			Backend: StateFile,
		},
	}

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, errdefs.New(errdefs.KindValidation, "config.load",
				fmt.Errorf("config file %s: %w", configFile, err))
		}
	}

	if err := loadFromFlags(cfg, flags); err != nil {
		return nil, errdefs.New(errdefs.KindValidation, "config.load", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}

	if flags.Changed("root") {
		cfg.RootDir, _ = flags.GetString("root")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	if flags.Changed("source") {
		cfg.Source.Type, _ = flags.GetString("source")
	}
	if flags.Changed("base-url") {
		cfg.Source.Archive.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("file-ext") {
		cfg.Source.Archive.FileExt, _ = flags.GetString("file-ext")
	}

	if flags.Changed("bucket-endpoint") {
		cfg.Source.Bucket.Endpoint, _ = flags.GetString("bucket-endpoint")
	}
	if flags.Changed("bucket-access-key") {
		cfg.Source.Bucket.AccessKey, _ = flags.GetString("bucket-access-key")
	}
	if flags.Changed("bucket-secret-key") {
		cfg.Source.Bucket.SecretKey, _ = flags.GetString("bucket-secret-key")
	}
	if flags.Changed("bucket-secure") {
		cfg.Source.Bucket.Secure, _ = flags.GetBool("bucket-secure")
	}
	if flags.Changed("bucket-prefix") {
		cfg.Source.Bucket.Prefix, _ = flags.GetString("bucket-prefix")
	}

	if flags.Changed("retries") {
		cfg.Catalog.Attempts, _ = flags.GetInt("retries")
	}
	if flags.Changed("retry-backoff-ms") {
		cfg.Catalog.RetryBackoffMs, _ = flags.GetInt("retry-backoff-ms")
	}

	if flags.Changed("state-backend") {
		cfg.State.Backend, _ = flags.GetString("state-backend")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}

	if flags.Changed("dry-run") {
		cfg.Run.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("verbose") {
		if verbose, _ := flags.GetBool("verbose"); verbose {
			cfg.LogLevel = "debug"
		}
	}

	return nil
}

func (c *Config) validate() error {
	fail := func(format string, args ...any) error {
		return errdefs.Newf(errdefs.KindValidation, "config", format, args...)
	}

	if c.RootDir == "" {
		return fail("root directory is required")
	}
	if c.LogLevel == "" {
		return fail("log level is required")
	}

	switch c.Source.Type {
	case SourceArchive:
		if c.Source.Archive.BaseURL == "" {
			return fail("source.archive.base_url is required")
		}
		if c.Source.Archive.FileExt == "" {
			return fail("source.archive.file_ext is required")
		}
	case SourceBucket:
		if c.Source.Bucket.Endpoint == "" {
			return fail("source.bucket.endpoint is required")
		}
		if c.Source.Bucket.AccessKey == "" {
			return fail("source.bucket.access_key is required")
		}
		if c.Source.Bucket.SecretKey == "" {
			return fail("source.bucket.secret_key is required")
		}
	default:
		// Unknown backends fail with a dependency error when the source is
		// constructed, before any collection is touched.
	}

	if c.Catalog.Rows <= 0 {
		return fail("catalog.rows must be positive")
	}
	if c.Catalog.Attempts <= 0 {
		return fail("catalog.attempts must be positive")
	}
	if c.Catalog.RetryBackoffMs < 0 {
		return fail("catalog.retry_backoff_ms must not be negative")
	}
	if c.Catalog.TimeoutSec <= 0 {
		return fail("catalog.timeout_sec must be positive")
	}

	if c.Transfer.TimeoutSec <= 0 {
		return fail("transfer.timeout_sec must be positive")
	}
	if c.Transfer.ConnectTimeoutSec <= 0 {
		return fail("transfer.connect_timeout_sec must be positive")
	}

	if c.State.Backend != StateFile && c.State.Backend != StateSQLite {
		return fail("state.backend must be %q or %q", StateFile, StateSQLite)
	}

	return nil
}

// collectionPattern constrains collection identifiers to names that are safe
// as directory and bucket names.
var collectionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ParseArgs splits the positional arguments into an optional leading row
// limit and one or more collection identifiers.
func ParseArgs(args []string) (rows int, collections []string, err error) {
	fail := func(format string, fa ...any) error {
		return errdefs.Newf(errdefs.KindValidation, "args", format, fa...)
	}

	if len(args) == 0 {
		return 0, nil, fail("at least one collection is required")
	}

	rest := args
	if isDigits(args[0]) {
		n, convErr := strconv.Atoi(args[0])
		if convErr != nil || n <= 0 {
			return 0, nil, fail("row limit %q must be a positive integer", args[0])
		}
		rows = n
		rest = args[1:]
	}

	if len(rest) == 0 {
		return 0, nil, fail("at least one collection is required")
	}

	for _, name := range rest {
		if !collectionPattern.MatchString(name) {
			return 0, nil, fail("invalid collection identifier %q", name)
		}
	}

	return rows, rest, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
