package config_test

import (
	"testing"
	"time"

	"github.com/sightwear/sightwear/internal/config"
)

func defaults() *config.Config {
	c := &config.Config{}
	config.ApplyDefaults(c)
	return c
}

func TestCompare_NoChange(t *testing.T) {
	t.Parallel()
	if d := config.Compare(defaults(), defaults()); !d.Empty() {
		t.Errorf("Compare(defaults, defaults) = %+v, want empty", d)
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(config.Diff) bool
	}{
		{"log level", func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			func(d config.Diff) bool { return d.LogLevelChanged && d.NewLogLevel == config.LogDebug }},
		{"arbiter", func(c *config.Config) { c.Arbiter.MinInterval = time.Second },
			func(d config.Diff) bool { return d.ArbiterChanged && d.MinInterval == time.Second }},
		{"vision", func(c *config.Config) { c.Vision.CloseDepth = 150 },
			func(d config.Diff) bool { return d.VisionChanged && d.CloseDepth == 150 }},
		{"wakeword", func(c *config.Config) { c.WakeWord.Threshold = 0.9 },
			func(d config.Diff) bool { return d.WakeWordChanged && d.Threshold == 0.9 }},
		{"cold field", func(c *config.Config) { c.Peripheral.ListenAddr = ":9999" },
			func(d config.Diff) bool { return d.Empty() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n := defaults()
			tt.mutate(n)
			if d := config.Compare(defaults(), n); !tt.check(d) {
				t.Errorf("Compare() = %+v", d)
			}
		})
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	t.Parallel()
	c := defaults()
	c.Arbiter.MinInterval = 700 * time.Millisecond
	config.ApplyDefaults(c)
	if c.Arbiter.MinInterval != 700*time.Millisecond {
		t.Errorf("ApplyDefaults overwrote a set value: %v", c.Arbiter.MinInterval)
	}
}
