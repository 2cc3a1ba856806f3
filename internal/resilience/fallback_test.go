package resilience

import (
	"errors"
	"testing"
	"time"
)

type namedProvider struct {
	name string
	err  error
}

func TestFallbackGroup_PrimaryWins(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup(namedProvider{name: "whisper"}, "whisper", FallbackConfig{})
	fg.AddFallback("openai", namedProvider{name: "openai"})

	got, err := ExecuteWithResult(fg, func(p namedProvider) (string, error) { return p.name, p.err })
	if err != nil || got != "whisper" {
		t.Errorf("ExecuteWithResult() = %q, %v; want whisper, nil", got, err)
	}
	if fg.Len() != 2 || fg.Primary().name != "whisper" {
		t.Errorf("Len()=%d Primary()=%q", fg.Len(), fg.Primary().name)
	}
}

func TestFallbackGroup_FailsOver(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup(namedProvider{name: "whisper", err: errBoom}, "whisper", FallbackConfig{})
	fg.AddFallback("openai", namedProvider{name: "openai"})

	got, err := ExecuteWithResult(fg, func(p namedProvider) (string, error) { return p.name, p.err })
	if err != nil || got != "openai" {
		t.Errorf("ExecuteWithResult() = %q, %v; want openai, nil", got, err)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup(namedProvider{err: errors.New("first")}, "a", FallbackConfig{})
	fg.AddFallback("b", namedProvider{err: errBoom})

	err := fg.Execute(func(p namedProvider) error { return p.err })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("Execute() = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("Execute() = %v, want last error wrapped", err)
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	cfg := FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}}
	fg := NewFallbackGroup(namedProvider{name: "a", err: errBoom}, "a", cfg)
	fg.AddFallback("b", namedProvider{name: "b"})

	calls := map[string]int{}
	for range 3 {
		if err := fg.Execute(func(p namedProvider) error { calls[p.name]++; return p.err }); err != nil {
			t.Fatalf("Execute(): %v", err)
		}
	}
	if calls["a"] != 1 {
		t.Errorf("primary called %d times, want 1 before the breaker opened", calls["a"])
	}
	if calls["b"] != 3 {
		t.Errorf("fallback called %d times, want 3", calls["b"])
	}
}
