// Package health serves liveness and readiness probes.
//
// /healthz always answers 200 while the process can serve HTTP. /readyz runs
// every registered [Checker] concurrently and answers 200 when all critical
// checks pass; a failing non-critical check only downgrades the status to
// "degraded".
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single check when the Checker sets none.
const DefaultTimeout = 5 * time.Second

// Response status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker is a named readiness probe.
type Checker struct {
	// Name is the key of this check in the JSON response.
	Name string

	// Check returns nil when the dependency is usable. It must respect ctx.
	Check func(ctx context.Context) error

	// Critical checks fail the probe with 503. Non-critical ones only mark it
	// degraded.
	Critical bool

	// Timeout overrides DefaultTimeout.
	Timeout time.Duration
}

// CheckResult is the outcome of one [Checker].
type CheckResult struct {
	Status    string  `json:"status"`
	Error     string  `json:"error,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

// Report is the JSON body of both endpoints.
type Report struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] for the given checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Run executes all checks concurrently and aggregates their results.
func (h *Handler) Run(ctx context.Context) Report {
	var (
		mu  sync.Mutex
		rep = Report{Status: StatusOK, Checks: make(map[string]CheckResult, len(h.checkers))}
	)
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			res := runCheck(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			rep.Checks[c.Name] = res
			if res.Status == StatusOK {
				return nil
			}
			switch {
			case c.Critical:
				rep.Status = StatusFail
			case rep.Status == StatusOK:
				rep.Status = StatusDegraded
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

func runCheck(ctx context.Context, c Checker) CheckResult {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	res := CheckResult{
		Status:    StatusOK,
		LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		res.Status = StatusFail
		res.Error = err.Error()
	}
	return res
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK})
}

// Readyz is the readiness probe. It answers 503 when a critical check fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Run(r.Context())
	status := http.StatusOK
	if rep.Status == StatusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// FileReadable returns a check that passes when path exists, is a regular
// file and can be opened. Used for model files.
func FileReadable(path string) func(context.Context) error {
	return func(context.Context) error {
		fi, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return fmt.Errorf("%s is not a regular file", path)
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		return f.Close()
	}
}

// HTTPStatus returns a check that GETs url and passes on any 2xx answer.
func HTTPStatus(client *http.Client, url string) func(context.Context) error {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
		}
		return nil
	}
}
