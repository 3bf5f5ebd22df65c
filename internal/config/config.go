package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

type Policy string

const (
	PolicyWave       Policy = "wave"
	PolicyContinuous Policy = "continuous"
	PolicyStress     Policy = "stress"
	// PolicyQuick is a preset: a single wave of ten users.
	PolicyQuick Policy = "quick"
)

const (
	DefaultBaseURL    = "http://localhost:8080/api/v1"
	DefaultRedisAddr  = "localhost:6379"
	quickPresetWaves  = 1
	quickPresetUsers  = 10
	maxSafeConcurrent = 500
)

type Config struct {
	BaseURL            string        `mapstructure:"base_url"`
	HealthURL          string        `mapstructure:"health_url"`
	SkipHealthCheck    bool          `mapstructure:"skip_health_check"`
	Policy             Policy        `mapstructure:"policy"`
	Waves              int           `mapstructure:"waves"`
	WaveSize           int           `mapstructure:"wave_size"`
	Concurrency        int           `mapstructure:"concurrency"`
	Duration           time.Duration `mapstructure:"duration"`
	Total              int           `mapstructure:"total"`
	DrainTimeout       time.Duration `mapstructure:"drain_timeout"`
	AttemptTimeout     time.Duration `mapstructure:"attempt_timeout"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	EligibilityRefresh time.Duration `mapstructure:"eligibility_refresh"`
	LaunchRate         float64       `mapstructure:"launch_rate"`
	ResolveDelay       Window        `mapstructure:"resolve_delay"`
	Stagger            Window        `mapstructure:"stagger"`
	WavePause          Window        `mapstructure:"wave_pause"`
	UsersFile          string        `mapstructure:"users_file"`
	Users              []string      `mapstructure:"users"`
	Seed               int64         `mapstructure:"seed"`
	Budgets            BudgetConfig  `mapstructure:"budgets"`
	Redis              RedisConfig   `mapstructure:"redis"`
	Kafka              KafkaConfig   `mapstructure:"kafka"`
	Tracing            TracingConfig `mapstructure:"tracing"`
	StatusAddr         string        `mapstructure:"status_addr"`
	LockFile           string        `mapstructure:"lock_file"`
	JSONOutput         bool          `mapstructure:"json_output"`
	Progress           bool          `mapstructure:"progress"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFormat          string        `mapstructure:"log_format"`
	ConfigFile         string        `mapstructure:"-"`
}

// Window is a closed [Min, Max] range sampled uniformly.
type Window struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

type BudgetConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Disabled bool   `mapstructure:"disabled"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Enabled reports whether outcome events should be published.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && strings.TrimSpace(k.Topic) != ""
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
	Propagate   bool    `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured, directly or via OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ApplyPreset expands preset policies into their concrete form.
func (c *Config) ApplyPreset() {
	if c.Policy == PolicyQuick {
		c.Policy = PolicyWave
		c.Waves = quickPresetWaves
		c.WaveSize = quickPresetUsers
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.BaseURL) == "" {
		issues = append(issues, "base_url is required")
	} else if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, fmt.Sprintf("base_url %q is not an absolute URL", c.BaseURL))
	}

	switch c.Policy {
	case PolicyWave:
		if c.Waves < 1 {
			issues = append(issues, "waves must be >= 1 for wave policy")
		}
		if c.WaveSize < 1 {
			issues = append(issues, "wave_size must be >= 1 for wave policy")
		}
	case PolicyContinuous:
		if c.Concurrency < 1 {
			issues = append(issues, "concurrency must be >= 1 for continuous policy")
		}
		if c.Duration <= 0 {
			issues = append(issues, "duration must be > 0 for continuous policy")
		}
	case PolicyStress:
		if c.Total < 1 {
			issues = append(issues, "total must be >= 1 for stress policy")
		}
	case PolicyQuick:
	default:
		issues = append(issues, fmt.Sprintf("policy %q is not supported (wave, continuous, stress, quick)", c.Policy))
	}

	if c.DrainTimeout < 0 {
		issues = append(issues, "drain_timeout must be >= 0")
	}
	if c.AttemptTimeout < 0 {
		issues = append(issues, "attempt_timeout must be >= 0")
	}
	if c.PollInterval < 0 {
		issues = append(issues, "poll_interval must be >= 0")
	}
	if c.EligibilityRefresh < 0 {
		issues = append(issues, "eligibility_refresh must be >= 0")
	}
	if c.LaunchRate < 0 {
		issues = append(issues, "launch_rate must be >= 0")
	}
	issues = append(issues, validateWindow("resolve_delay", c.ResolveDelay)...)
	issues = append(issues, validateWindow("stagger", c.Stagger)...)
	issues = append(issues, validateWindow("wave_pause", c.WavePause)...)

	if strings.TrimSpace(c.UsersFile) == "" && len(c.Users) == 0 {
		issues = append(issues, "users_file or users is required")
	}

	if c.Redis.DB < 0 {
		issues = append(issues, "redis: db must be >= 0")
	}
	if len(c.Kafka.Brokers) > 0 && strings.TrimSpace(c.Kafka.Topic) == "" {
		issues = append(issues, "kafka: topic is required when brokers are set")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0 and 1")
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", c.Tracing.Protocol))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "console":
	default:
		issues = append(issues, fmt.Sprintf("log_format must be 'json' or 'console', got %q", c.LogFormat))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Warnings returns non-fatal findings the caller should surface before a run.
func (c Config) Warnings() []string {
	var warnings []string
	if c.Policy == PolicyContinuous && c.Concurrency > maxSafeConcurrent {
		warnings = append(warnings, fmt.Sprintf("high concurrency configured (%d in-flight attempts); ensure you have authorization to load the target platform", c.Concurrency))
	}
	if c.Policy == PolicyWave && c.WaveSize > maxSafeConcurrent {
		warnings = append(warnings, fmt.Sprintf("large waves configured (%d concurrent attempts); ensure you have authorization to load the target platform", c.WaveSize))
	}
	return warnings
}

func validateWindow(name string, w Window) []string {
	var issues []string
	if w.Min < 0 || w.Max < 0 {
		issues = append(issues, fmt.Sprintf("%s: bounds must be >= 0", name))
	}
	if w.Max < w.Min {
		issues = append(issues, fmt.Sprintf("%s: max must be >= min", name))
	}
	return issues
}
