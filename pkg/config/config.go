package config

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goliatone/go-config/cfgx"
)

// Config captures module-level configuration knobs. Feature packages (cycle,
// scheduler, submit, etc.) pull from these nested structs.
type Config struct {
	Storage    StorageConfig    `mapstructure:"storage" json:"storage" toml:"storage"`
	Submission SubmissionConfig `mapstructure:"submission" json:"submission" toml:"submission"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler" json:"scheduler" toml:"scheduler"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" json:"rate_limit" toml:"rate_limit"`
	Ingest     IngestConfig     `mapstructure:"ingest" json:"ingest" toml:"ingest"`
	Rules      []RuleConfig     `mapstructure:"rules" json:"rules" toml:"rules"`
	Logging    LoggingConfig    `mapstructure:"logging" json:"logging" toml:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry" json:"telemetry" toml:"telemetry"`
}

// StorageConfig selects the flag store backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver" json:"driver" toml:"driver"`
	DSN    string `mapstructure:"dsn" json:"dsn" toml:"dsn"`
}

// SubmissionConfig describes the scoring endpoint and how requests are built.
type SubmissionConfig struct {
	URL                string            `mapstructure:"url" json:"url" toml:"url"`
	Token              string            `mapstructure:"token" json:"token" toml:"token"`
	Method             string            `mapstructure:"method" json:"method" toml:"method"`
	Format             string            `mapstructure:"format" json:"format" toml:"format"`
	TokenField         string            `mapstructure:"token_field" json:"token_field" toml:"token_field"`
	FlagField          string            `mapstructure:"flag_field" json:"flag_field" toml:"flag_field"`
	TokenHeader        string            `mapstructure:"token_header" json:"token_header" toml:"token_header"`
	ContentType        string            `mapstructure:"content_type" json:"content_type" toml:"content_type"`
	BodyTemplate       string            `mapstructure:"body_template" json:"body_template" toml:"body_template"`
	Headers            map[string]string `mapstructure:"headers" json:"headers" toml:"headers"`
	Timeout            time.Duration     `mapstructure:"timeout" json:"timeout" toml:"timeout"`
	FlagsQuota         float64           `mapstructure:"flags_quota" json:"flags_quota" toml:"flags_quota"`
	MaxAttempts        int               `mapstructure:"max_attempts" json:"max_attempts" toml:"max_attempts"`
	BatchSize          int               `mapstructure:"batch_size" json:"batch_size" toml:"batch_size"`
	InsecureSkipVerify bool              `mapstructure:"insecure_skip_verify" json:"insecure_skip_verify" toml:"insecure_skip_verify"`
}

// SchedulerConfig controls how often cycles run.
type SchedulerConfig struct {
	Interval               time.Duration `mapstructure:"interval" json:"interval" toml:"interval"`
	SingleRun              bool          `mapstructure:"single_run" json:"single_run" toml:"single_run"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures" json:"max_consecutive_failures" toml:"max_consecutive_failures"`
}

// RateLimitConfig tunes the backoff applied when the endpoint throttles us.
type RateLimitConfig struct {
	BaseDelay  time.Duration `mapstructure:"base_delay" json:"base_delay" toml:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay" json:"max_delay" toml:"max_delay"`
	AbortAfter int           `mapstructure:"abort_after" json:"abort_after" toml:"abort_after"`
}

// IngestConfig filters harvester output.
type IngestConfig struct {
	FlagPattern string `mapstructure:"flag_pattern" json:"flag_pattern" toml:"flag_pattern"`
}

// RuleConfig is one response classification rule. A rule matches when any of
// its status codes, substrings or its regex match the response.
type RuleConfig struct {
	Name        string   `mapstructure:"name" json:"name" toml:"name"`
	Outcome     string   `mapstructure:"outcome" json:"outcome" toml:"outcome"`
	StatusCodes []int    `mapstructure:"status_codes" json:"status_codes" toml:"status_codes"`
	Contains    []string `mapstructure:"contains" json:"contains" toml:"contains"`
	Regex       string   `mapstructure:"regex" json:"regex" toml:"regex"`
}

// LoggingConfig sets the minimum log level.
type LoggingConfig struct {
	Level string `mapstructure:"level" json:"level" toml:"level"`
}

// TelemetryConfig toggles OpenTelemetry metrics.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled" toml:"enabled"`
	Stdout  bool `mapstructure:"stdout" json:"stdout" toml:"stdout"`
}

var (
	validDrivers  = []string{"sqlite", "memory"}
	validFormats  = []string{"form", "json", "template"}
	validOutcomes = []string{"accepted", "rejected", "already_submitted", "duplicate", "rate_limited", "transport_error"}
	validLevels   = []string{"debug", "info", "warn", "warning", "error"}
)

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "flags.db",
		},
		Submission: SubmissionConfig{
			Method:      "POST",
			Format:      "form",
			TokenField:  "team_token",
			FlagField:   "flag",
			Timeout:     5 * time.Second,
			FlagsQuota:  25,
			MaxAttempts: 0,
			BatchSize:   0,
		},
		Scheduler: SchedulerConfig{
			Interval:               10 * time.Second,
			MaxConsecutiveFailures: 5,
		},
		RateLimit: RateLimitConfig{
			BaseDelay:  time.Second,
			MaxDelay:   30 * time.Second,
			AbortAfter: 3,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// DefaultSettings flattens Defaults into dotted keys, the shape viper's
// SetDefault expects.
func DefaultSettings() map[string]any {
	d := Defaults()
	return map[string]any{
		"storage.driver":                     d.Storage.Driver,
		"storage.dsn":                        d.Storage.DSN,
		"submission.method":                  d.Submission.Method,
		"submission.format":                  d.Submission.Format,
		"submission.token_field":             d.Submission.TokenField,
		"submission.flag_field":              d.Submission.FlagField,
		"submission.timeout":                 d.Submission.Timeout,
		"submission.flags_quota":             d.Submission.FlagsQuota,
		"submission.max_attempts":            d.Submission.MaxAttempts,
		"submission.batch_size":              d.Submission.BatchSize,
		"scheduler.interval":                 d.Scheduler.Interval,
		"scheduler.single_run":               d.Scheduler.SingleRun,
		"scheduler.max_consecutive_failures": d.Scheduler.MaxConsecutiveFailures,
		"rate_limit.base_delay":              d.RateLimit.BaseDelay,
		"rate_limit.max_delay":               d.RateLimit.MaxDelay,
		"rate_limit.abort_after":             d.RateLimit.AbortAfter,
		"logging.level":                      d.Logging.Level,
	}
}

// ValidationError lists every invalid field found by Validate.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "config: invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Validate ensures required fields are present and sane.
func (c *Config) Validate() error {
	verr := &ValidationError{}

	if !oneOf(c.Storage.Driver, validDrivers) {
		verr.add("storage.driver must be one of %s", strings.Join(validDrivers, ", "))
	}
	if strings.EqualFold(c.Storage.Driver, "sqlite") && strings.TrimSpace(c.Storage.DSN) == "" {
		verr.add("storage.dsn is required for sqlite")
	}

	s := c.Submission
	if strings.TrimSpace(s.URL) == "" {
		verr.add("submission.url is required")
	} else if u, err := url.Parse(s.URL); err != nil || u.Scheme == "" || u.Host == "" {
		verr.add("submission.url must be an absolute URL")
	}
	if strings.TrimSpace(s.Token) == "" {
		verr.add("submission.token is required")
	}
	if !oneOf(s.Format, validFormats) {
		verr.add("submission.format must be one of %s", strings.Join(validFormats, ", "))
	}
	if strings.EqualFold(s.Format, "template") && strings.TrimSpace(s.BodyTemplate) == "" {
		verr.add("submission.body_template is required when format is template")
	}
	if s.Timeout <= 0 {
		verr.add("submission.timeout must be > 0")
	}
	if s.FlagsQuota < 0 {
		verr.add("submission.flags_quota must be >= 0")
	}
	if s.MaxAttempts < 0 {
		verr.add("submission.max_attempts must be >= 0")
	}
	if s.BatchSize < 0 {
		verr.add("submission.batch_size must be >= 0")
	}

	if !c.Scheduler.SingleRun && c.Scheduler.Interval <= 0 {
		verr.add("scheduler.interval must be > 0 unless single_run is set")
	}
	if c.Scheduler.MaxConsecutiveFailures < 0 {
		verr.add("scheduler.max_consecutive_failures must be >= 0")
	}

	if c.RateLimit.BaseDelay < 0 || c.RateLimit.MaxDelay < 0 {
		verr.add("rate_limit delays must be >= 0")
	}
	if c.RateLimit.MaxDelay > 0 && c.RateLimit.BaseDelay > c.RateLimit.MaxDelay {
		verr.add("rate_limit.base_delay must not exceed rate_limit.max_delay")
	}
	if c.RateLimit.AbortAfter < 0 {
		verr.add("rate_limit.abort_after must be >= 0")
	}

	if c.Ingest.FlagPattern != "" {
		if _, err := regexp.Compile(c.Ingest.FlagPattern); err != nil {
			verr.add("ingest.flag_pattern: %v", err)
		}
	}

	for i, rule := range c.Rules {
		if !oneOf(rule.Outcome, validOutcomes) {
			verr.add("rules[%d].outcome %q is not a known outcome", i, rule.Outcome)
		}
		if len(rule.StatusCodes) == 0 && len(rule.Contains) == 0 && rule.Regex == "" {
			verr.add("rules[%d] needs status_codes, contains or regex", i)
		}
		if rule.Regex != "" {
			if _, err := regexp.Compile(rule.Regex); err != nil {
				verr.add("rules[%d].regex: %v", i, err)
			}
		}
	}

	if c.Logging.Level != "" && !oneOf(c.Logging.Level, validLevels) {
		verr.add("logging.level must be one of %s", strings.Join(validLevels, ", "))
	}

	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

// Load decodes arbitrary input (struct, map, cfg struct) using cfgx helpers.
// When cfgx.Build yields a zero value we fall back to mapstructure so maps
// coming from viper (durations as strings, weak types) decode correctly.
//
// Maps are decoded on top of Defaults, so only keys present in the input
// override. Struct input is taken as is for flags_quota,
// max_consecutive_failures and abort_after, where 0 disables the feature;
// start from Defaults() to keep the stock values.
func Load(input any, opts ...LoadOption) (Config, error) {
	settings := loadOptions{}
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := cfgx.Build(input, settings.buildOpts...)
	if err != nil {
		return Config{}, err
	}

	if isZero(cfg) {
		if err := decodeFallback(input, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg = cfg.withDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadOption lets callers amend cfgx build options.
type LoadOption func(*loadOptions)

type loadOptions struct {
	buildOpts []cfgx.Option[Config]
}

// WithBuildOptions forwards cfgx options (duration hooks, preprocessors, etc.).
func WithBuildOptions(opts ...cfgx.Option[Config]) LoadOption {
	return func(lo *loadOptions) {
		lo.buildOpts = append(lo.buildOpts, opts...)
	}
}

func (c Config) withDefaults() Config {
	defaults := Defaults()

	if c.Storage.Driver == "" {
		c.Storage.Driver = defaults.Storage.Driver
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.DSN == "" && c.Storage.Driver == "sqlite" {
		c.Storage.DSN = defaults.Storage.DSN
	}
	if c.Submission.Method == "" {
		c.Submission.Method = defaults.Submission.Method
	}
	c.Submission.Method = strings.ToUpper(c.Submission.Method)
	if c.Submission.Format == "" {
		c.Submission.Format = defaults.Submission.Format
	}
	c.Submission.Format = strings.ToLower(c.Submission.Format)
	if c.Submission.TokenField == "" {
		c.Submission.TokenField = defaults.Submission.TokenField
	}
	if c.Submission.FlagField == "" {
		c.Submission.FlagField = defaults.Submission.FlagField
	}
	if c.Submission.Timeout == 0 {
		c.Submission.Timeout = defaults.Submission.Timeout
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = defaults.Scheduler.Interval
	}
	if c.RateLimit.BaseDelay == 0 {
		c.RateLimit.BaseDelay = defaults.RateLimit.BaseDelay
	}
	if c.RateLimit.MaxDelay == 0 {
		c.RateLimit.MaxDelay = defaults.RateLimit.MaxDelay
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	return c
}

func oneOf(value string, allowed []string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}

func isZero(cfg Config) bool {
	return reflect.DeepEqual(cfg, Config{})
}

func decodeFallback(input any, cfg *Config) error {
	switch v := input.(type) {
	case nil:
		return nil
	case Config:
		*cfg = v
		return nil
	case *Config:
		if v != nil {
			*cfg = *v
		}
		return nil
	case map[string]any:
		*cfg = Defaults()
		return decodeMap(v, cfg)
	default:
		return fmt.Errorf("unsupported config input type: %T", input)
	}
}

func decodeMap(input map[string]any, cfg *Config) error {
	if input == nil {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
