// Package config loads the publish configuration from a YAML file, a .env
// file and SITESYNC_* environment variables.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kubetraining/sitesync/errors"
	"github.com/kubetraining/sitesync/internal/sync/executor"
	"github.com/kubetraining/sitesync/synctypes"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "SITESYNC"

// DefaultRegion is used when neither the target nor the defaults name one.
const DefaultRegion = "us-east-1"

type Config struct {
	ContentDir string
	OutputDir  string
	HugoBin    string

	// HugoArgs are appended to the hugo command line
	HugoArgs []string

	// HugoEnv is added to hugo's environment. Names are upper-cased since
	// config keys are case-insensitive.
	HugoEnv map[string]string

	Concurrency int
	CallTimeout time.Duration
	Retry       RetryConfig

	// RateLimit caps upload attempts per second; 0 disables the limit
	RateLimit float64

	Include []string
	Exclude []string

	Telemetry TelemetryConfig
	Defaults  TargetConfig

	// Credentials apply to every target that does not set its own
	Credentials synctypes.Credentials

	Targets map[synctypes.Environment]TargetConfig
}

type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

type TelemetryConfig struct {
	Endpoint   string
	Insecure   bool
	SampleRate float64
}

// TargetConfig is the raw configuration of one environment.
type TargetConfig struct {
	Bucket       string
	Prefix       string
	Endpoint     string
	Region       string
	CacheControl string
	BaseURL      string
	Credentials  synctypes.Credentials
}

// Configured reports whether the target names a bucket.
func (t TargetConfig) Configured() bool {
	return strings.TrimSpace(t.Bucket) != ""
}

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// ConfigFile is a YAML file; when empty, sitesync.yaml is searched in
	// the working directory and a missing file is not an error
	ConfigFile string

	// EnvFile is loaded into the process environment when it exists
	EnvFile string
}

// Load reads the configuration. Environment variables take precedence over
// the config file, which takes precedence over the defaults. The result is
// not validated: callers apply their overrides and then call Validate.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := loadEnvFile(envFile, opts.EnvFile != ""); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New("load config", errors.KindConfig, fmt.Errorf("read %s: %w", opts.ConfigFile, err))
		}
	} else {
		v.SetConfigName("sitesync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.New("load config", errors.KindConfig, err)
			}
		}
	}

	return fromViper(v), nil
}

func loadEnvFile(path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if required {
			return errors.New("load env file", errors.KindConfig, err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.New("load env file", errors.KindConfig, fmt.Errorf("parse %s: %w", path, err))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := executor.DefaultRetryPolicy()

	v.SetDefault("content_dir", ".")
	v.SetDefault("output_dir", "public")
	v.SetDefault("hugo_bin", "hugo")
	v.SetDefault("hugo_args", []string{})
	v.SetDefault("concurrency", executor.DefaultConcurrency)
	v.SetDefault("timeout", executor.DefaultCallTimeout)
	v.SetDefault("retry.max_retries", d.MaxRetries)
	v.SetDefault("retry.initial_interval", d.InitialInterval)
	v.SetDefault("retry.max_interval", d.MaxInterval)
	v.SetDefault("retry.multiplier", d.Multiplier)
	v.SetDefault("rate_limit", 0.0)
	v.SetDefault("include", []string{})
	v.SetDefault("exclude", []string{})
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.sample_rate", 1.0)
	v.SetDefault("defaults.endpoint", "")
	v.SetDefault("defaults.region", DefaultRegion)
	v.SetDefault("defaults.cache_control", "")
}

// bindEnv maps config keys to their environment variables. Per-target
// variables drop the "targets" segment: targets.prd.bucket is read from
// SITESYNC_PRD_BUCKET.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("access_key", envName("ACCESS_KEY"))
	_ = v.BindEnv("secret_key", envName("SECRET_KEY"))
	_ = v.BindEnv("session_token", envName("SESSION_TOKEN"))
	_ = v.BindEnv("defaults.endpoint", envName("ENDPOINT"))
	_ = v.BindEnv("defaults.region", envName("REGION"))
	_ = v.BindEnv("defaults.cache_control", envName("CACHE_CONTROL"))

	for _, env := range synctypes.Environments {
		for _, field := range targetFields {
			key := fmt.Sprintf("targets.%s.%s", env, field)
			_ = v.BindEnv(key, envName(strings.ToUpper(string(env)+"_"+field)))
		}
	}
}

var targetFields = []string{
	"bucket", "prefix", "endpoint", "region", "cache_control", "base_url",
	"access_key", "secret_key", "session_token",
}

func envName(suffix string) string {
	return EnvPrefix + "_" + suffix
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		ContentDir:  v.GetString("content_dir"),
		OutputDir:   v.GetString("output_dir"),
		HugoBin:     v.GetString("hugo_bin"),
		Concurrency: v.GetInt("concurrency"),
		CallTimeout: v.GetDuration("timeout"),
		Retry: RetryConfig{
			MaxRetries:      v.GetInt("retry.max_retries"),
			InitialInterval: v.GetDuration("retry.initial_interval"),
			MaxInterval:     v.GetDuration("retry.max_interval"),
			Multiplier:      v.GetFloat64("retry.multiplier"),
		},
		RateLimit: v.GetFloat64("rate_limit"),
		Include:   v.GetStringSlice("include"),
		Exclude:   v.GetStringSlice("exclude"),
		Telemetry: TelemetryConfig{
			Endpoint:   v.GetString("telemetry.endpoint"),
			Insecure:   v.GetBool("telemetry.insecure"),
			SampleRate: v.GetFloat64("telemetry.sample_rate"),
		},
		Defaults: TargetConfig{
			Endpoint:     v.GetString("defaults.endpoint"),
			Region:       v.GetString("defaults.region"),
			CacheControl: v.GetString("defaults.cache_control"),
		},
		Credentials: synctypes.Credentials{
			AccessKey:    v.GetString("access_key"),
			SecretKey:    v.GetString("secret_key"),
			SessionToken: v.GetString("session_token"),
		},
		Targets: make(map[synctypes.Environment]TargetConfig),
	}

	cfg.HugoArgs = v.GetStringSlice("hugo_args")
	if env := v.GetStringMapString("hugo_env"); len(env) > 0 {
		cfg.HugoEnv = make(map[string]string, len(env))
		for k, val := range env {
			cfg.HugoEnv[strings.ToUpper(k)] = val
		}
	}

	for _, env := range synctypes.Environments {
		prefix := "targets." + string(env) + "."
		tc := TargetConfig{
			Bucket:       v.GetString(prefix + "bucket"),
			Prefix:       v.GetString(prefix + "prefix"),
			Endpoint:     v.GetString(prefix + "endpoint"),
			Region:       v.GetString(prefix + "region"),
			CacheControl: v.GetString(prefix + "cache_control"),
			BaseURL:      v.GetString(prefix + "base_url"),
			Credentials: synctypes.Credentials{
				AccessKey:    v.GetString(prefix + "access_key"),
				SecretKey:    v.GetString(prefix + "secret_key"),
				SessionToken: v.GetString(prefix + "session_token"),
			},
		}
		if tc.Configured() {
			cfg.Targets[env] = tc
		}
	}

	return cfg
}

// Validate checks the run settings. Targets are checked when resolved.
func (c *Config) Validate() error {
	var problems []string
	if c.Concurrency <= 0 {
		problems = append(problems, "concurrency must be positive")
	}
	if c.CallTimeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		problems = append(problems, "retry.max_retries must not be negative")
	}
	if c.Retry.InitialInterval <= 0 {
		problems = append(problems, "retry.initial_interval must be positive")
	}
	if c.Retry.MaxInterval < c.Retry.InitialInterval {
		problems = append(problems, "retry.max_interval must not be below retry.initial_interval")
	}
	if c.Retry.Multiplier < 1 {
		problems = append(problems, "retry.multiplier must be at least 1")
	}
	if c.RateLimit < 0 {
		problems = append(problems, "rate_limit must not be negative")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		problems = append(problems, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(problems) > 0 {
		return errors.New("validate config", errors.KindConfig, fmt.Errorf("%s", strings.Join(problems, "; ")))
	}
	return nil
}

// RetryPolicy converts the retry settings for the executor.
func (c *Config) RetryPolicy() executor.RetryPolicy {
	p := executor.DefaultRetryPolicy()
	p.MaxRetries = c.Retry.MaxRetries
	p.InitialInterval = c.Retry.InitialInterval
	p.MaxInterval = c.Retry.MaxInterval
	p.Multiplier = c.Retry.Multiplier
	return p
}

// Target resolves the environment named env into an immutable Target,
// filling unset fields from the defaults and the global credentials.
func (c *Config) Target(name string) (synctypes.Target, TargetConfig, error) {
	env, err := synctypes.ParseEnvironment(name)
	if err != nil {
		return synctypes.Target{}, TargetConfig{}, errors.New("resolve target", errors.KindConfig,
			fmt.Errorf("%w: %w", errors.ErrInvalidTarget, err))
	}

	tc, ok := c.Targets[env]
	if !ok {
		return synctypes.Target{}, TargetConfig{}, errors.New("resolve target", errors.KindConfig,
			fmt.Errorf("%w: no bucket configured for %s (set targets.%s.bucket or %s)",
				errors.ErrInvalidTarget, env, env, envName(strings.ToUpper(string(env))+"_BUCKET")))
	}

	creds := tc.Credentials
	if creds.AccessKey == "" && creds.SecretKey == "" {
		creds = c.Credentials
	}
	if !creds.Complete() {
		return synctypes.Target{}, TargetConfig{}, errors.New("resolve target", errors.KindConfig,
			fmt.Errorf("%w for %s (set %s and %s)", errors.ErrMissingCredentials, env,
				envName("ACCESS_KEY"), envName("SECRET_KEY")))
	}

	target := synctypes.Target{
		Name:         env,
		Bucket:       strings.TrimSpace(tc.Bucket),
		Prefix:       tc.Prefix,
		Endpoint:     firstNonEmpty(tc.Endpoint, c.Defaults.Endpoint),
		Region:       firstNonEmpty(tc.Region, c.Defaults.Region, DefaultRegion),
		Credentials:  creds,
		CacheControl: firstNonEmpty(tc.CacheControl, c.Defaults.CacheControl),
	}
	return target, tc, nil
}

// TargetNames returns the configured environments in promotion order.
func (c *Config) TargetNames() []synctypes.Environment {
	names := make([]synctypes.Environment, 0, len(c.Targets))
	for env := range c.Targets {
		names = append(names, env)
	}
	order := make(map[synctypes.Environment]int, len(synctypes.Environments))
	for i, env := range synctypes.Environments {
		order[env] = i
	}
	sort.Slice(names, func(i, j int) bool { return order[names[i]] < order[names[j]] })
	return names
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
