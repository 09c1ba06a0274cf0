package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Screen  ScreenConfig  `yaml:"screen" mapstructure:"screen"`
	Input   InputConfig   `yaml:"input" mapstructure:"input"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Audit   AuditConfig   `yaml:"audit" mapstructure:"audit"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ScreenConfig tunes classification and batching.
type ScreenConfig struct {
	BatchSize       int    `yaml:"batch_size" mapstructure:"batch_size"`
	FuzzyThreshold  int    `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	MalformedPolicy string `yaml:"malformed_policy" mapstructure:"malformed_policy"`
	Workers         int    `yaml:"workers" mapstructure:"workers"`
	ExtractionMode  string `yaml:"extraction_mode" mapstructure:"extraction_mode"`
}

// InputConfig locates the transaction feed and reference lists. Each
// location is a path, "-" for stdin, or an http(s):// or ftp:// URL.
type InputConfig struct {
	Transactions        string `yaml:"transactions" mapstructure:"transactions"`
	TransactionsKey     string `yaml:"transactions_key" mapstructure:"transactions_key"`
	SanctionedCountries string `yaml:"sanctioned_countries" mapstructure:"sanctioned_countries"`
	AllCountries        string `yaml:"all_countries" mapstructure:"all_countries"`
	Blacklist           string `yaml:"blacklist" mapstructure:"blacklist"`
	BlacklistElement    string `yaml:"blacklist_element" mapstructure:"blacklist_element"`
}

// OutputConfig names the result files.
type OutputConfig struct {
	Flagged       string `yaml:"flagged" mapstructure:"flagged"`
	Review        string `yaml:"review" mapstructure:"review"`
	IncludeReason bool   `yaml:"include_reason" mapstructure:"include_reason"`
	Summary       string `yaml:"summary" mapstructure:"summary"`
}

// FetchConfig configures remote downloads.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// AuditConfig configures the detection audit trail.
type AuditConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MetricsConfig configures the prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TXSCREEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key has one so that env overrides reach Unmarshal.
	v.SetDefault("screen.batch_size", 1000)
	v.SetDefault("screen.fuzzy_threshold", 85)
	v.SetDefault("screen.malformed_policy", "review")
	v.SetDefault("screen.workers", 1)
	v.SetDefault("screen.extraction_mode", "strict")
	v.SetDefault("input.transactions", "transactions.json")
	v.SetDefault("input.transactions_key", "transactions")
	v.SetDefault("input.sanctioned_countries", "sanctioned_countries.txt")
	v.SetDefault("input.all_countries", "all_countries.txt")
	v.SetDefault("input.blacklist", "")
	v.SetDefault("input.blacklist_element", "individual")
	v.SetDefault("output.flagged", "flagged_transactions.csv")
	v.SetDefault("output.review", "transactions_for_review.csv")
	v.SetDefault("output.include_reason", false)
	v.SetDefault("output.summary", "")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "txscreen/1.0")
	v.SetDefault("audit.driver", "")
	v.SetDefault("audit.database_url", "")
	v.SetDefault("metrics.textfile", "")
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

// Validate checks the settings the given command depends on. mode is one
// of "screen", "extract" or "match".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "screen":
		if c.Input.Transactions == "" {
			errs = append(errs, "input.transactions is required")
		}
		if c.Output.Flagged == "" {
			errs = append(errs, "output.flagged is required")
		}
		if c.Output.Review == "" {
			errs = append(errs, "output.review is required")
		}
		if c.Output.Flagged != "" && c.Output.Flagged == c.Output.Review {
			errs = append(errs, "output.flagged and output.review must differ")
		}
		if c.Screen.BatchSize < 1 {
			errs = append(errs, "screen.batch_size must be >= 1")
		}
		if c.Screen.Workers < 1 || c.Screen.Workers > 64 {
			errs = append(errs, "screen.workers must be between 1 and 64")
		}
		switch c.Screen.MalformedPolicy {
		case "review", "abort":
		default:
			errs = append(errs, "screen.malformed_policy must be review or abort")
		}
		switch c.Audit.Driver {
		case "":
		case "sqlite", "postgres":
			if c.Audit.DatabaseURL == "" {
				errs = append(errs, "audit.database_url is required for audit.driver "+c.Audit.Driver)
			}
		default:
			errs = append(errs, "audit.driver must be empty, sqlite or postgres")
		}
		errs = append(errs, c.validateCountries()...)
		errs = append(errs, c.validateThreshold()...)
	case "extract":
		errs = append(errs, c.validateCountries()...)
	case "match":
		errs = append(errs, c.validateThreshold()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateCountries() []string {
	var errs []string
	if c.Input.SanctionedCountries == "" {
		errs = append(errs, "input.sanctioned_countries is required")
	}
	if c.Input.AllCountries == "" {
		errs = append(errs, "input.all_countries is required")
	}
	switch c.Screen.ExtractionMode {
	case "strict", "lenient":
	default:
		errs = append(errs, "screen.extraction_mode must be strict or lenient")
	}
	return errs
}

func (c *Config) validateThreshold() []string {
	if c.Screen.FuzzyThreshold < 0 || c.Screen.FuzzyThreshold > 100 {
		return []string{"screen.fuzzy_threshold must be between 0 and 100"}
	}
	return nil
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
