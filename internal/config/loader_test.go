package config

import (
	"testing"
	"time"
)

func TestScalarParsers(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		for in, want := range map[interface{}]string{"g1": "g1", 42: "42", false: "false"} {
			got, err := asString(in)
			if err != nil || got != want {
				t.Errorf("asString(%v) = %q, %v; want %q", in, got, err, want)
			}
		}
		if got, _ := asString([]byte("raw")); got != "raw" {
			t.Errorf("asString([]byte) = %q, want raw", got)
		}
		if got, _ := asString(nil); got != "" {
			t.Errorf("asString(nil) = %q, want empty", got)
		}
	})

	t.Run("int", func(t *testing.T) {
		cases := []struct {
			in   interface{}
			want int
		}{
			{20, 20},
			{" 250 ", 250},
			{"", 0},
			{int64(7), 7},
			{float64(3), 3},
			{nil, 0},
		}
		for _, c := range cases {
			got, err := asInt(c.in)
			if err != nil || got != c.want {
				t.Errorf("asInt(%#v) = %d, %v; want %d", c.in, got, err, c.want)
			}
		}
		if _, err := asInt("twenty"); err == nil {
			t.Error("asInt(\"twenty\") should fail")
		}
	})

	t.Run("float", func(t *testing.T) {
		got, err := asFloat64("0.25")
		if err != nil || got != 0.25 {
			t.Errorf("asFloat64(\"0.25\") = %v, %v", got, err)
		}
		if got, _ := asFloat64("  "); got != 0 {
			t.Errorf("asFloat64(blank) = %v, want 0", got)
		}
	})

	t.Run("bool", func(t *testing.T) {
		cases := []struct {
			in   interface{}
			want bool
		}{
			{true, true},
			{"true", true},
			{"1", true},
			{"false", false},
			{"", false},
			{nil, false},
		}
		for _, c := range cases {
			got, err := asBool(c.in)
			if err != nil || got != c.want {
				t.Errorf("asBool(%#v) = %v, %v; want %v", c.in, got, err, c.want)
			}
		}
	})
}

func TestAsDuration(t *testing.T) {
	cases := []struct {
		in   interface{}
		want time.Duration
	}{
		{2 * time.Second, 2 * time.Second},
		{"1.5s", 1500 * time.Millisecond},
		{"5m", 5 * time.Minute},
		{30, 30 * time.Second},
		{1.5, 1500 * time.Millisecond},
		{"", 0},
		{nil, 0},
	}
	for _, c := range cases {
		got, err := asDuration(c.in)
		if err != nil {
			t.Errorf("asDuration(%#v) error = %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("asDuration(%#v) = %s, want %s", c.in, got, c.want)
		}
	}
	if _, err := asDuration([]string{"1s"}); err == nil {
		t.Error("asDuration(slice) should fail")
	}
}

func TestAsStringSlice(t *testing.T) {
	got, err := asStringSlice("k1:9092,k2:9092")
	if err != nil || len(got) != 2 || got[1] != "k2:9092" {
		t.Errorf("asStringSlice(comma string) = %v, %v", got, err)
	}
	got, err = asStringSlice([]interface{}{"u1", "u2", "u3"})
	if err != nil || len(got) != 3 {
		t.Errorf("asStringSlice(list) = %v, %v", got, err)
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Defaults()
	settings := map[string]interface{}{
		"base_url":    "http://platform:8080/api/v1",
		"policy":      "continuous",
		"concurrency": 25,
		"duration":    "90s",
		"resolve_delay": map[string]interface{}{
			"min": "1s",
			"max": "2s",
		},
		"redis": map[string]interface{}{
			"addr": "redis:6379",
			"db":   2,
		},
		"kafka": map[string]interface{}{
			"brokers": []interface{}{"k1:9092", "k2:9092"},
			"topic":   "play-outcomes",
		},
		"users": []interface{}{"u1", "u2"},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.BaseURL != "http://platform:8080/api/v1" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Policy != PolicyContinuous {
		t.Errorf("Policy = %q, want continuous", cfg.Policy)
	}
	if cfg.Concurrency != 25 {
		t.Errorf("Concurrency = %d, want 25", cfg.Concurrency)
	}
	if cfg.Duration != 90*time.Second {
		t.Errorf("Duration = %v, want 90s", cfg.Duration)
	}
	if cfg.ResolveDelay.Min != time.Second || cfg.ResolveDelay.Max != 2*time.Second {
		t.Errorf("ResolveDelay = %+v, want 1s..2s", cfg.ResolveDelay)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Topic != "play-outcomes" {
		t.Errorf("Kafka = %+v", cfg.Kafka)
	}
	if len(cfg.Users) != 2 {
		t.Errorf("Users = %v, want 2 entries", cfg.Users)
	}
	// Untouched sections keep their defaults.
	if cfg.Stagger != Defaults().Stagger {
		t.Errorf("Stagger = %+v, want defaults", cfg.Stagger)
	}
}

func TestApplyConfigSettingsRejectsBadDuration(t *testing.T) {
	cfg := Defaults()
	err := applyConfigSettings(cfg, map[string]interface{}{"drain_timeout": "soon"})
	if err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestCompactStrings(t *testing.T) {
	got := compactStrings([]string{" a ", "", "  ", "b"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("compactStrings() = %v, want [a b]", got)
	}
}
