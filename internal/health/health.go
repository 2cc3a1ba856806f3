// Package health provides the liveness and readiness endpoints of the
// device's operations server.
//
//   - /healthz always returns 200 while the process serves HTTP.
//   - /readyz returns 200 only when every required [Checker] passes. Optional
//     checkers that fail mark the device "degraded" without failing the check;
//     a device without its camera can still talk.
//
// Responses are JSON objects with a top-level "status" field ("ok",
// "degraded" or "fail") and a "checks" map with the result of each checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// checkTimeout bounds one readiness check.
const checkTimeout = 3 * time.Second

// Checker is a named readiness check.
type Checker struct {
	// Name is the key in the JSON response ("peripheral", "camera").
	Name string

	// Optional checkers degrade the status instead of failing it.
	Optional bool

	// Check returns nil when the dependency is healthy. It must respect
	// context cancellation.
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler]. Checkers run concurrently on every /readyz.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz evaluates every checker with a [checkTimeout] deadline.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := make([]error, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			errs[i] = c.Check(ctx)
		}()
	}
	wg.Wait()

	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK
	for i, c := range h.checkers {
		if errs[i] == nil {
			res.Checks[c.Name] = "ok"
			continue
		}
		res.Checks[c.Name] = "fail: " + errs[i].Error()
		switch {
		case !c.Optional:
			res.Status, status = "fail", http.StatusServiceUnavailable
		case res.Status == "ok":
			res.Status = "degraded"
		}
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Pinger is implemented by collaborators that can ping their backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping adapts a [Pinger] into a checker.
func Ping(name string, p Pinger, optional bool) Checker {
	return Checker{Name: name, Optional: optional, Check: p.Ping}
}

// Fresh fails when last reports a time older than maxAge, or the zero time.
// It suits producers that stamp their latest output, such as the camera.
func Fresh(name string, last func() time.Time, maxAge time.Duration, optional bool) Checker {
	return Checker{Name: name, Optional: optional, Check: func(context.Context) error {
		t := last()
		if t.IsZero() {
			return errors.New("no data yet")
		}
		if age := time.Since(t); age > maxAge {
			return fmt.Errorf("stale for %s", age.Round(time.Millisecond))
		}
		return nil
	}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
