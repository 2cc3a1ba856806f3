package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sightwear/sightwear/internal/config"
)

const baseDeviceYAML = `
server:
  log_level: info
arbiter:
  min_interval: 1.5s
wakeword:
  threshold: 0.95
`

// reloadCapture collects every diff the watcher reports.
type reloadCapture struct {
	diffs chan config.Diff
}

func newReloadCapture() *reloadCapture {
	return &reloadCapture{diffs: make(chan config.Diff, 8)}
}

func (c *reloadCapture) onChange(_, _ *config.Config, d config.Diff) { c.diffs <- d }

func (c *reloadCapture) next(t *testing.T) config.Diff {
	t.Helper()
	select {
	case d := <-c.diffs:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no reload within 2s")
		return config.Diff{}
	}
}

func (c *reloadCapture) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case d := <-c.diffs:
		t.Errorf("unexpected reload: %+v", d)
	case <-time.After(wait):
	}
}

// watchFile writes content to a fresh config file and runs a fast polling
// watcher on it until the test ends.
func watchFile(t *testing.T, content string, fn config.ChangeFunc) (string, *config.Watcher) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	rewrite(t, path, content)

	w, err := config.NewWatcher(path, fn, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return path, w
}

func rewrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	// Push the mtime forward so coarse filesystem clocks still see a change.
	later := time.Now().Add(time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func TestWatcher_StartsWithLoadedConfig(t *testing.T) {
	t.Parallel()

	_, w := watchFile(t, baseDeviceYAML, nil)
	cfg := w.Current()
	if cfg.WakeWord.Threshold != 0.95 {
		t.Errorf("wakeword.threshold = %v, want 0.95", cfg.WakeWord.Threshold)
	}
	if cfg.Vision.CloseDepth != 200 {
		t.Errorf("defaults not applied: vision.close_depth = %v", cfg.Vision.CloseDepth)
	}
}

func TestWatcher_ReportsHotSettings(t *testing.T) {
	t.Parallel()

	rc := newReloadCapture()
	path, w := watchFile(t, baseDeviceYAML, rc.onChange)

	rewrite(t, path, `
server:
  log_level: debug
arbiter:
  min_interval: 2s
wakeword:
  threshold: 0.9
vision:
  close_depth: 150
`)
	d := rc.next(t)

	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %v/%q", d.LogLevelChanged, d.NewLogLevel)
	}
	if !d.ArbiterChanged || d.MinInterval != 2*time.Second {
		t.Errorf("arbiter diff = %v/%s", d.ArbiterChanged, d.MinInterval)
	}
	if !d.WakeWordChanged || d.Threshold != 0.9 {
		t.Errorf("wake word diff = %v/%v", d.WakeWordChanged, d.Threshold)
	}
	if !d.VisionChanged || d.CloseDepth != 150 {
		t.Errorf("vision diff = %v/%v", d.VisionChanged, d.CloseDepth)
	}
	if w.Current().Server.LogLevel != config.LogDebug {
		t.Error("Current() still returns the old config")
	}
}

func TestWatcher_IgnoresRejectedAndUnchangedFiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"invalid value", "server:\n  log_level: bananas\n"},
		{"unknown key", "server:\n  colour: blue\n"},
		{"same content", baseDeviceYAML},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rc := newReloadCapture()
			path, w := watchFile(t, baseDeviceYAML, rc.onChange)

			rewrite(t, path, tc.content)
			rc.none(t, 200*time.Millisecond)

			if w.Current().Server.LogLevel != config.LogInfo {
				t.Errorf("Current() log level = %q, want the original", w.Current().Server.LogLevel)
			}
		})
	}
}

func TestNewWatcher_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("NewWatcher() returned nil error for a missing file")
	}
}
