// Package config assembles the reconciler's runtime configuration from
// defaults, an optional config file and RECONCILER_* environment variables.
package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"treasury-reconciler/internal/ai"
	"treasury-reconciler/internal/matcher"
	"treasury-reconciler/internal/models"
	"treasury-reconciler/internal/persistence"
	"treasury-reconciler/internal/reporter"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "RECONCILER"

// Storage backends
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Heuristic matching profiles
const (
	ProfileDefault = "default"
	ProfileStrict  = "strict"
	ProfileRelaxed = "relaxed"
)

// Config is the full application configuration
type Config struct {
	User      string          `mapstructure:"user" validate:"required"`
	Log       logger.Config   `mapstructure:"log"`
	AI        ai.Config       `mapstructure:"ai"`
	Matcher   matcher.Config  `mapstructure:"matcher"`
	Heuristic HeuristicConfig `mapstructure:"heuristic"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// HeuristicConfig tunes the offline matcher used when no AI key is set
type HeuristicConfig struct {
	Profile         string  `mapstructure:"profile" validate:"oneof=default strict relaxed"`
	DateTolerance   int     `mapstructure:"date_tolerance" validate:"gte=0"`
	AmountTolerance float64 `mapstructure:"amount_tolerance" validate:"gte=0,lte=100"`
}

// StorageConfig selects the key-value backend
type StorageConfig struct {
	Backend    string `mapstructure:"backend" validate:"oneof=sqlite redis memory"`
	SQLitePath string `mapstructure:"sqlite_path" validate:"required_if=Backend sqlite"`
	RedisURL   string `mapstructure:"redis_url" validate:"required_if=Backend redis"`
	Prefix     string `mapstructure:"prefix"`
}

// SetDefaults registers every key so environment overrides are picked up by
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	logDefaults := logger.DefaultConfig()
	v.SetDefault("user", "Treasurer")
	v.SetDefault("log.level", string(logDefaults.Level))
	v.SetDefault("log.format", string(logDefaults.Format))
	v.SetDefault("log.output", string(logDefaults.Output))
	v.SetDefault("log.file", "")
	v.SetDefault("log.caller_info", false)

	retry := ai.DefaultRetryOptions()
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", ai.DefaultModel)
	v.SetDefault("ai.base_url", ai.DefaultBaseURL)
	v.SetDefault("ai.retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("ai.retry.initial_delay", retry.InitialDelay)
	v.SetDefault("ai.retry.max_delay", retry.MaxDelay)
	v.SetDefault("ai.retry.multiplier", retry.Multiplier)

	m := matcher.DefaultConfig()
	v.SetDefault("matcher.confidence_threshold", m.ConfidenceThreshold)
	v.SetDefault("matcher.request_timeout", m.RequestTimeout)

	h := matcher.DefaultMatchingConfig()
	v.SetDefault("heuristic.profile", ProfileDefault)
	v.SetDefault("heuristic.date_tolerance", h.DateToleranceDays)
	v.SetDefault("heuristic.amount_tolerance", h.AmountTolerancePercent)

	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.sqlite_path", "reconciler.db")
	v.SetDefault("storage.redis_url", "")
	v.SetDefault("storage.prefix", persistence.DefaultRedisPrefix)
}

// BindEnv makes RECONCILER_AI_API_KEY override ai.api_key and so on
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load unmarshals and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ConfigurationError("config", v.ConfigFileUsed(), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.ConfigurationError("config", describeValidation(err), err)
	}
	if err := c.Log.Validate(); err != nil {
		return errors.ConfigurationError("log", c.Log, err)
	}
	if err := c.Matcher.Validate(); err != nil {
		return errors.ConfigurationError("matcher", c.Matcher, err)
	}
	if c.AI.Retry.MaxAttempts < 1 {
		return errors.ConfigurationError("ai.retry.max_attempts", c.AI.Retry.MaxAttempts, nil)
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(fields, ", ")
}

// UseAI reports whether a Gemini key is configured
func (c *Config) UseAI() bool {
	return strings.TrimSpace(c.AI.APIKey) != ""
}

// NewLogger builds the process logger from the log section
func (c *Config) NewLogger() (logger.Logger, error) {
	log, err := logger.NewLogger(&c.Log)
	if err != nil {
		return nil, errors.ConfigurationError("log", c.Log, err)
	}
	return log, nil
}

// NewSuggester returns the Gemini suggester when a key is configured and the
// heuristic matcher otherwise. The returned name is used in log lines.
func (c *Config) NewSuggester(ctx context.Context, log logger.Logger) (matcher.Suggester, string, error) {
	if c.UseAI() {
		s, err := ai.NewGeminiSuggester(ctx, c.AI, log)
		if err != nil {
			return nil, "", err
		}
		return s, "gemini:" + c.AI.Model, nil
	}
	mc, err := CreateMatchingConfig(c.Heuristic.Profile, c.Heuristic.DateTolerance, c.Heuristic.AmountTolerance)
	if err != nil {
		return nil, "", err
	}
	return matcher.NewHeuristicSuggester(mc), "heuristic:" + c.Heuristic.Profile, nil
}

// OpenStorage opens the configured key-value backend
func (c *Config) OpenStorage(ctx context.Context) (persistence.KeyValueStore, error) {
	switch c.Storage.Backend {
	case BackendSQLite:
		store, err := persistence.NewSQLiteStore(c.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendRedis:
		store, err := persistence.NewRedisStoreFromURL(c.Storage.RedisURL, c.Storage.Prefix)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case BackendMemory:
		return persistence.NewMemoryStore(), nil
	default:
		return nil, errors.ConfigurationError("storage.backend", c.Storage.Backend, nil)
	}
}

// CreateMatchingConfig resolves a named profile. The tolerances only apply to
// the default profile; strict and relaxed are fixed.
func CreateMatchingConfig(profile string, dateTolerance int, amountTolerance float64) (*matcher.MatchingConfig, error) {
	var mc *matcher.MatchingConfig
	switch profile {
	case ProfileDefault, "":
		mc = matcher.DefaultMatchingConfig()
		mc.DateToleranceDays = dateTolerance
		mc.AmountTolerancePercent = amountTolerance
	case ProfileStrict:
		mc = matcher.StrictMatchingConfig()
	case ProfileRelaxed:
		mc = matcher.RelaxedMatchingConfig()
	default:
		return nil, errors.ConfigurationError("heuristic.profile", profile, nil).
			WithSuggestion("use one of: default, strict, relaxed")
	}
	if err := mc.Validate(); err != nil {
		return nil, errors.ConfigurationError("heuristic", mc.String(), err)
	}
	return mc, nil
}

// ReportOptions carries the report-related flags
type ReportOptions struct {
	Format    string
	Scope     string
	StartDate string
	EndDate   string
	Audit     bool
	MaxItems  int
	NoColor   bool
}

// CreateReportConfig converts flag values into a reporter configuration
func CreateReportConfig(opts ReportOptions) (*reporter.ReportConfig, error) {
	cfg := reporter.DefaultReportConfig()
	if opts.Format != "" {
		cfg.Format = reporter.OutputFormat(opts.Format)
	}
	if opts.Scope != "" {
		cfg.Scope = reporter.Scope(opts.Scope)
	}
	if opts.StartDate != "" {
		d, err := models.ParseDate(opts.StartDate)
		if err != nil {
			return nil, errors.ConfigurationError("start-date", opts.StartDate, err)
		}
		cfg.StartDate = d
	}
	if opts.EndDate != "" {
		d, err := models.ParseDate(opts.EndDate)
		if err != nil {
			return nil, errors.ConfigurationError("end-date", opts.EndDate, err)
		}
		cfg.EndDate = d
	}
	cfg.IncludeAuditTrail = opts.Audit
	if opts.MaxItems > 0 {
		cfg.MaxItems = opts.MaxItems
	}
	cfg.UseColors = !opts.NoColor && cfg.Format == reporter.FormatConsole

	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError("report", opts.Format, err)
	}
	return cfg, nil
}
