package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "frolicsim",
		Short:         "Drive synthetic play traffic and reconcile brand budgets",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	// Platform
	flags.String("base-url", DefaultBaseURL, "Platform API base URL")
	flags.String("health-url", "", "Health endpoint (defaults to <host>/actuator/health)")
	flags.Bool("skip-health-check", false, "Do not check platform health before the run")

	// Traffic shape
	flags.StringP("policy", "p", string(PolicyWave), "Traffic policy: wave, continuous, stress, or quick")
	flags.IntP("waves", "w", 5, "Number of sequential waves (wave policy)")
	flags.IntP("wave-size", "u", 20, "Users per wave (wave policy)")
	flags.IntP("concurrency", "c", 10, "In-flight attempts to hold (continuous policy)")
	flags.DurationP("duration", "d", 5*time.Minute, "How long to hold traffic (continuous policy)")
	flags.IntP("total", "t", 1000, "Total attempts to fire (stress policy)")
	flags.Duration("drain-timeout", 5*time.Second, "Max time to wait for in-flight attempts after stop")
	flags.Duration("attempt-timeout", 30*time.Second, "Per-attempt timeout covering submit, delay, and poll")
	flags.Duration("poll-interval", 100*time.Millisecond, "Coordinating loop interval (continuous policy)")
	flags.Duration("eligibility-refresh", 5*time.Second, "How often the active-games set is refreshed")
	flags.Float64("launch-rate", 0, "Max attempt launches per second for wave/continuous (0 means unlimited)")
	flags.Duration("resolve-delay-min", 1500*time.Millisecond, "Lower bound of the wait before polling a result")
	flags.Duration("resolve-delay-max", 3*time.Second, "Upper bound of the wait before polling a result")
	flags.Duration("stagger-min", 50*time.Millisecond, "Lower bound of the jitter between launches within a wave")
	flags.Duration("stagger-max", 200*time.Millisecond, "Upper bound of the jitter between launches within a wave")
	flags.Duration("wave-pause-min", 2*time.Second, "Lower bound of the pause between waves")
	flags.Duration("wave-pause-max", 5*time.Second, "Upper bound of the pause between waves")
	flags.Int64("seed", 0, "Random seed (0 picks one from the clock)")

	// Inputs
	flags.String("users-file", "", "Path to demo data file with user_ids (and optional budgets)")
	flags.StringSlice("user", nil, "User id to drive traffic with (repeatable)")
	flags.String("postgres-dsn", "", "Read initial budgets from the platform database")

	// Reconciliation store
	flags.String("redis-addr", DefaultRedisAddr, "Redis address holding remaining budgets")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database index")
	flags.Bool("skip-reconcile", false, "Do not reconcile budgets after the run")

	// Integrations
	flags.StringSlice("kafka-broker", nil, "Kafka broker for outcome events (repeatable)")
	flags.String("kafka-topic", "", "Kafka topic for outcome events")
	flags.String("tracing-endpoint", "", "OTLP collector endpoint")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS to the OTLP collector")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sample rate between 0 and 1")
	flags.Bool("tracing-propagate", true, "Inject W3C trace headers into platform requests")
	flags.String("status-addr", "", "Serve live run status on this address (e.g. :9090)")
	flags.String("lock-file", "", "Exclusive lock file preventing concurrent runs")

	// Output
	flags.Bool("json-output", false, "Emit JSON formatted report")
	flags.Bool("progress", true, "Print a progress line every second")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "console", "Log format: console or json")
	flags.String("config", "", "Path to configuration file (YAML, JSON, or TOML)")
}

func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies explicitly set flags on top of file values.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	str := func(name string, dst *string) {
		if err != nil || !fs.Changed(name) {
			return
		}
		var v string
		v, err = fs.GetString(name)
		*dst = strings.TrimSpace(v)
	}
	num := func(name string, dst *int) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetInt(name)
	}
	dur := func(name string, dst *time.Duration) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetDuration(name)
	}
	flt := func(name string, dst *float64) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetFloat64(name)
	}
	boolean := func(name string, dst *bool) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetBool(name)
	}
	slice := func(name string, dst *[]string) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetStringSlice(name)
	}

	str("base-url", &cfg.BaseURL)
	str("health-url", &cfg.HealthURL)
	boolean("skip-health-check", &cfg.SkipHealthCheck)

	var policy string
	str("policy", &policy)
	if policy != "" {
		cfg.Policy = Policy(strings.ToLower(policy))
	}
	num("waves", &cfg.Waves)
	num("wave-size", &cfg.WaveSize)
	num("concurrency", &cfg.Concurrency)
	dur("duration", &cfg.Duration)
	num("total", &cfg.Total)
	dur("drain-timeout", &cfg.DrainTimeout)
	dur("attempt-timeout", &cfg.AttemptTimeout)
	dur("poll-interval", &cfg.PollInterval)
	dur("eligibility-refresh", &cfg.EligibilityRefresh)
	flt("launch-rate", &cfg.LaunchRate)
	dur("resolve-delay-min", &cfg.ResolveDelay.Min)
	dur("resolve-delay-max", &cfg.ResolveDelay.Max)
	dur("stagger-min", &cfg.Stagger.Min)
	dur("stagger-max", &cfg.Stagger.Max)
	dur("wave-pause-min", &cfg.WavePause.Min)
	dur("wave-pause-max", &cfg.WavePause.Max)
	if err == nil && fs.Changed("seed") {
		cfg.Seed, err = fs.GetInt64("seed")
	}

	str("users-file", &cfg.UsersFile)
	slice("user", &cfg.Users)
	str("postgres-dsn", &cfg.Budgets.PostgresDSN)

	str("redis-addr", &cfg.Redis.Addr)
	str("redis-password", &cfg.Redis.Password)
	num("redis-db", &cfg.Redis.DB)
	boolean("skip-reconcile", &cfg.Redis.Disabled)

	slice("kafka-broker", &cfg.Kafka.Brokers)
	str("kafka-topic", &cfg.Kafka.Topic)
	str("tracing-endpoint", &cfg.Tracing.Endpoint)
	str("tracing-protocol", &cfg.Tracing.Protocol)
	boolean("tracing-insecure", &cfg.Tracing.Insecure)
	flt("tracing-sample-rate", &cfg.Tracing.SampleRate)
	boolean("tracing-propagate", &cfg.Tracing.Propagate)
	str("status-addr", &cfg.StatusAddr)
	str("lock-file", &cfg.LockFile)

	boolean("json-output", &cfg.JSONOutput)
	boolean("progress", &cfg.Progress)
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)

	return err
}
