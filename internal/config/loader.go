package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

func NewLoader() *Loader {
	return &Loader{}
}

// Defaults mirrors the flag defaults so file-only configs get the same baseline.
func Defaults() *Config {
	return &Config{
		BaseURL:            DefaultBaseURL,
		Policy:             PolicyWave,
		Waves:              5,
		WaveSize:           20,
		Concurrency:        10,
		Duration:           5 * time.Minute,
		Total:              1000,
		DrainTimeout:       5 * time.Second,
		AttemptTimeout:     30 * time.Second,
		PollInterval:       100 * time.Millisecond,
		EligibilityRefresh: 5 * time.Second,
		ResolveDelay:       Window{Min: 1500 * time.Millisecond, Max: 3 * time.Second},
		Stagger:            Window{Min: 50 * time.Millisecond, Max: 200 * time.Millisecond},
		WavePause:          Window{Min: 2 * time.Second, Max: 5 * time.Second},
		Redis:              RedisConfig{Addr: DefaultRedisAddr},
		Tracing:            TracingConfig{Protocol: "grpc", SampleRate: 1.0, Propagate: true},
		Progress:           true,
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

// Load parses command-line arguments and an optional config file into a Config.
// Precedence: flags set explicitly, then the config file, then Defaults.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Policy = Policy(strings.ToLower(strings.TrimSpace(string(cfg.Policy))))
	cfg.Users = compactStrings(cfg.Users)
	cfg.Kafka.Brokers = compactStrings(cfg.Kafka.Brokers)

	return cfg, nil
}

func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	strs := []struct {
		dst  *string
		keys []string
	}{
		{&cfg.BaseURL, []string{"base_url", "baseurl", "base-url"}},
		{&cfg.HealthURL, []string{"health_url", "healthurl", "health-url"}},
		{&cfg.UsersFile, []string{"users_file", "usersfile", "users-file"}},
		{&cfg.StatusAddr, []string{"status_addr", "statusaddr", "status-addr"}},
		{&cfg.LockFile, []string{"lock_file", "lockfile", "lock-file"}},
		{&cfg.LogLevel, []string{"log_level", "loglevel", "log-level"}},
		{&cfg.LogFormat, []string{"log_format", "logformat", "log-format"}},
	}
	for _, s := range strs {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = strings.TrimSpace(val)
		}
	}

	if raw, ok := lookupSetting(settings, "policy"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("policy: %w", err)
		}
		cfg.Policy = Policy(val)
	}

	ints := []struct {
		dst  *int
		keys []string
	}{
		{&cfg.Waves, []string{"waves"}},
		{&cfg.WaveSize, []string{"wave_size", "wavesize", "wave-size"}},
		{&cfg.Concurrency, []string{"concurrency"}},
		{&cfg.Total, []string{"total"}},
	}
	for _, n := range ints {
		if raw, ok := lookupSetting(settings, n.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", n.keys[0], err)
			}
			*n.dst = val
		}
	}

	durs := []struct {
		dst  *time.Duration
		keys []string
	}{
		{&cfg.Duration, []string{"duration"}},
		{&cfg.DrainTimeout, []string{"drain_timeout", "draintimeout", "drain-timeout"}},
		{&cfg.AttemptTimeout, []string{"attempt_timeout", "attempttimeout", "attempt-timeout"}},
		{&cfg.PollInterval, []string{"poll_interval", "pollinterval", "poll-interval"}},
		{&cfg.EligibilityRefresh, []string{"eligibility_refresh", "eligibilityrefresh", "eligibility-refresh"}},
	}
	for _, d := range durs {
		if raw, ok := lookupSetting(settings, d.keys...); ok {
			val, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", d.keys[0], err)
			}
			*d.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "launch_rate", "launchrate", "launch-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("launch_rate: %w", err)
		}
		cfg.LaunchRate = val
	}
	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = int64(val)
	}
	if raw, ok := lookupSetting(settings, "skip_health_check", "skiphealthcheck", "skip-health-check"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("skip_health_check: %w", err)
		}
		cfg.SkipHealthCheck = val
	}
	if raw, ok := lookupSetting(settings, "json_output", "jsonoutput", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("json_output: %w", err)
		}
		cfg.JSONOutput = val
	}
	if raw, ok := lookupSetting(settings, "progress"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		cfg.Progress = val
	}
	if raw, ok := lookupSetting(settings, "users"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("users: %w", err)
		}
		cfg.Users = val
	}

	windows := []struct {
		dst  *Window
		keys []string
	}{
		{&cfg.ResolveDelay, []string{"resolve_delay", "resolvedelay", "resolve-delay"}},
		{&cfg.Stagger, []string{"stagger"}},
		{&cfg.WavePause, []string{"wave_pause", "wavepause", "wave-pause"}},
	}
	for _, w := range windows {
		if raw, ok := lookupSetting(settings, w.keys...); ok {
			if err := parseWindow(raw, w.dst); err != nil {
				return fmt.Errorf("%s: %w", w.keys[0], err)
			}
		}
	}

	if raw, ok := lookupSetting(settings, "budgets"); ok {
		section, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("budgets: %w", err)
		}
		if v, ok := lookupSetting(section, "postgres_dsn", "postgresdsn", "postgres-dsn"); ok {
			dsn, _ := asString(v)
			cfg.Budgets.PostgresDSN = strings.TrimSpace(dsn)
		}
	}
	if raw, ok := lookupSetting(settings, "redis"); ok {
		if err := parseRedis(raw, &cfg.Redis); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "kafka"); ok {
		if err := parseKafka(raw, &cfg.Kafka); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := parseTracing(raw, &cfg.Tracing); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}
	return nil
}

func parseWindow(value interface{}, dst *Window) error {
	section, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(section, "min"); ok {
		if dst.Min, err = asDuration(raw); err != nil {
			return fmt.Errorf("min: %w", err)
		}
	}
	if raw, ok := lookupSetting(section, "max"); ok {
		if dst.Max, err = asDuration(raw); err != nil {
			return fmt.Errorf("max: %w", err)
		}
	}
	return nil
}

func parseRedis(value interface{}, dst *RedisConfig) error {
	section, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(section, "addr"); ok {
		v, _ := asString(raw)
		dst.Addr = strings.TrimSpace(v)
	}
	if raw, ok := lookupSetting(section, "password"); ok {
		dst.Password, _ = asString(raw)
	}
	if raw, ok := lookupSetting(section, "db"); ok {
		if dst.DB, err = asInt(raw); err != nil {
			return fmt.Errorf("db: %w", err)
		}
	}
	if raw, ok := lookupSetting(section, "disabled"); ok {
		if dst.Disabled, err = asBool(raw); err != nil {
			return fmt.Errorf("disabled: %w", err)
		}
	}
	return nil
}

func parseKafka(value interface{}, dst *KafkaConfig) error {
	section, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(section, "brokers"); ok {
		if dst.Brokers, err = asStringSlice(raw); err != nil {
			return fmt.Errorf("brokers: %w", err)
		}
	}
	if raw, ok := lookupSetting(section, "topic"); ok {
		v, _ := asString(raw)
		dst.Topic = strings.TrimSpace(v)
	}
	return nil
}

func parseTracing(value interface{}, dst *TracingConfig) error {
	section, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(section, "endpoint"); ok {
		v, _ := asString(raw)
		dst.Endpoint = strings.TrimSpace(v)
	}
	if raw, ok := lookupSetting(section, "protocol"); ok {
		v, _ := asString(raw)
		dst.Protocol = strings.ToLower(strings.TrimSpace(v))
	}
	if raw, ok := lookupSetting(section, "service_name", "servicename", "service-name"); ok {
		v, _ := asString(raw)
		dst.ServiceName = strings.TrimSpace(v)
	}
	if raw, ok := lookupSetting(section, "insecure"); ok {
		if dst.Insecure, err = asBool(raw); err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
	}
	if raw, ok := lookupSetting(section, "propagate"); ok {
		if dst.Propagate, err = asBool(raw); err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
	}
	if raw, ok := lookupSetting(section, "sample_rate", "samplerate", "sample-rate"); ok {
		if dst.SampleRate, err = asFloat64(raw); err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
	}
	return nil
}

func compactStrings(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
