package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/chartsync/internal/syncerr"
)

// Config holds the full application configuration.
type Config struct {
	Wiki     WikiConfig     `yaml:"wiki" mapstructure:"wiki"`
	Supabase SupabaseConfig `yaml:"supabase" mapstructure:"supabase"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Upsert   UpsertConfig   `yaml:"upsert" mapstructure:"upsert"`
	Mapping  MappingConfig  `yaml:"mapping" mapstructure:"mapping"`
	Files    FilesConfig    `yaml:"files" mapstructure:"files"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// WikiConfig configures the MediaWiki API client.
type WikiConfig struct {
	APIURL            string      `yaml:"api_url" mapstructure:"api_url"`
	Page              string      `yaml:"page" mapstructure:"page"`
	UserAgent         string      `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64     `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxLag            int         `yaml:"max_lag" mapstructure:"max_lag"`
	Retry             RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig holds backoff settings in config-friendly units.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// SupabaseConfig holds the hosted project endpoint and service-role credential.
type SupabaseConfig struct {
	URL            string `yaml:"url" mapstructure:"url"`
	ServiceRoleKey string `yaml:"service_role_key" mapstructure:"service_role_key"`
	Schema         string `yaml:"schema" mapstructure:"schema"`
}

// StoreConfig selects the upsert backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// UpsertConfig configures batching of the upsert stage.
type UpsertConfig struct {
	BatchSize   int         `yaml:"batch_size" mapstructure:"batch_size"`
	TimeoutSecs int         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// MappingConfig configures row validation.
type MappingConfig struct {
	MaxConstant float64 `yaml:"max_constant" mapstructure:"max_constant"`
	Strict      bool    `yaml:"strict" mapstructure:"strict"`
}

// FilesConfig names the pipeline's on-disk artifacts.
type FilesConfig struct {
	SongsCSV  string `yaml:"songs_csv" mapstructure:"songs_csv"`
	ExportCSV string `yaml:"export_csv" mapstructure:"export_csv"`
}

// ServerConfig configures the trigger server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// .env is optional and never overrides variables already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CHARTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Well-known names shared with the Supabase tooling.
	for key, env := range map[string]string{
		"supabase.url":              "SUPABASE_URL",
		"supabase.service_role_key": "SUPABASE_SERVICE_ROLE_KEY",
		"store.database_url":        "DATABASE_URL",
	} {
		if err := v.BindEnv(key, "CHARTSYNC_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	// Defaults
	v.SetDefault("wiki.api_url", "https://arcaea.fandom.com/api.php")
	v.SetDefault("wiki.page", "Songs_by_Level")
	v.SetDefault("wiki.user_agent", "chartsync/1.0 (https://github.com/sells-group/chartsync; gentle bot)")
	v.SetDefault("wiki.timeout_secs", 30)
	v.SetDefault("wiki.requests_per_second", 1.0)
	v.SetDefault("wiki.max_lag", 5)
	v.SetDefault("wiki.retry.max_attempts", 3)
	v.SetDefault("wiki.retry.initial_backoff_ms", 1000)
	v.SetDefault("wiki.retry.max_backoff_ms", 30000)
	v.SetDefault("wiki.retry.multiplier", 2.0)
	v.SetDefault("wiki.retry.jitter_fraction", 0.25)
	v.SetDefault("supabase.schema", "public")
	v.SetDefault("store.driver", "rest")
	v.SetDefault("store.table", "songs")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("upsert.batch_size", 500)
	v.SetDefault("upsert.timeout_secs", 60)
	v.SetDefault("upsert.retry.max_attempts", 2)
	v.SetDefault("upsert.retry.initial_backoff_ms", 1000)
	v.SetDefault("upsert.retry.max_backoff_ms", 10000)
	v.SetDefault("upsert.retry.multiplier", 2.0)
	v.SetDefault("upsert.retry.jitter_fraction", 0.25)
	v.SetDefault("mapping.max_constant", 13.0)
	v.SetDefault("mapping.strict", true)
	v.SetDefault("files.songs_csv", "songs_by_level.csv")
	v.SetDefault("files.export_csv", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings needed by the given command are present.
// Modes: "scrape", "sync", "migrate", "serve". All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "scrape":
		errs = append(errs, c.validateWiki()...)
	case "sync":
		errs = append(errs, c.validateWiki()...)
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateUpsert()...)
	case "migrate":
		errs = append(errs, c.validateStore()...)
		if c.Store.Driver == "rest" {
			errs = append(errs, "migrate requires store.driver postgres or sqlite")
		}
	case "serve":
		errs = append(errs, c.validateWiki()...)
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateUpsert()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return syncerr.Errorf(syncerr.Config, "config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return syncerr.Errorf(syncerr.Config, "config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateWiki() []string {
	var errs []string
	if c.Wiki.APIURL == "" {
		errs = append(errs, "wiki.api_url is required")
	}
	if c.Wiki.Page == "" {
		errs = append(errs, "wiki.page is required")
	}
	if c.Files.SongsCSV == "" {
		errs = append(errs, "files.songs_csv is required")
	}
	return errs
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "rest":
		if c.Supabase.URL == "" {
			errs = append(errs, "SUPABASE_URL is required")
		}
		if c.Supabase.ServiceRoleKey == "" {
			errs = append(errs, "SUPABASE_SERVICE_ROLE_KEY is required")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres driver")
		}
	case "sqlite":
	default:
		errs = append(errs, "store.driver must be one of rest, postgres, sqlite")
	}
	if c.Store.Table == "" {
		errs = append(errs, "store.table is required")
	}
	return errs
}

func (c *Config) validateUpsert() []string {
	var errs []string
	if c.Upsert.BatchSize < 1 {
		errs = append(errs, "upsert.batch_size must be >= 1")
	}
	if c.Mapping.MaxConstant < 0 {
		errs = append(errs, "mapping.max_constant must be >= 0")
	}
	return errs
}

// Redacted returns a copy safe to print, with credentials masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.Supabase.ServiceRoleKey != "" {
		out.Supabase.ServiceRoleKey = "****"
	}
	if out.Store.DatabaseURL != "" && out.Store.Driver != "sqlite" {
		out.Store.DatabaseURL = "****"
	}
	return out
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
