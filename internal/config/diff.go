package config

import "time"

// Diff describes what changed between two configs. Only fields that can be
// applied without a restart are tracked.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ArbiterChanged bool
	MinInterval    time.Duration
	PassiveVolume  float64

	VisionChanged    bool
	ConfidenceCutoff float64
	CloseDepth       float64
	DepthInterval    time.Duration

	WakeWordChanged bool
	Threshold       float64
	Cooldown        time.Duration
}

// Empty reports whether nothing hot-reloadable changed.
func (d Diff) Empty() bool {
	return !d.LogLevelChanged && !d.ArbiterChanged && !d.VisionChanged && !d.WakeWordChanged
}

// Compare returns the hot-reloadable differences between old and new.
func Compare(old, new *Config) Diff {
	d := Diff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Arbiter.MinInterval != new.Arbiter.MinInterval || old.Arbiter.PassiveVolume != new.Arbiter.PassiveVolume {
		d.ArbiterChanged = true
		d.MinInterval = new.Arbiter.MinInterval
		d.PassiveVolume = new.Arbiter.PassiveVolume
	}

	ov, nv := old.Vision, new.Vision
	if ov.ConfidenceCutoff != nv.ConfidenceCutoff || ov.CloseDepth != nv.CloseDepth || ov.DepthInterval != nv.DepthInterval {
		d.VisionChanged = true
		d.ConfidenceCutoff = nv.ConfidenceCutoff
		d.CloseDepth = nv.CloseDepth
		d.DepthInterval = nv.DepthInterval
	}

	if old.WakeWord.Threshold != new.WakeWord.Threshold || old.WakeWord.Cooldown != new.WakeWord.Cooldown {
		d.WakeWordChanged = true
		d.Threshold = new.WakeWord.Threshold
		d.Cooldown = new.WakeWord.Cooldown
	}

	return d
}
