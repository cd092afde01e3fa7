package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/utafrali/cartstore/pkg/httputil"
)

// Checker reports whether a dependency is usable.
type Checker func(ctx context.Context) error

// Status represents the health status of a component.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Response is the JSON body of both health endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Status    Status `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Handler serves liveness and readiness endpoints.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
}

// NewHandler creates a handler whose readiness checks share a 5s budget.
func NewHandler() *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		timeout:  5 * time.Second,
	}
}

// Register adds a named readiness check, replacing any with the same name.
func (h *Handler) Register(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// LivenessHandler answers 200 while the process is running.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, Response{
			Status:    StatusUp,
			Timestamp: time.Now().UTC(),
		})
	}
}

// ReadinessHandler runs every registered check concurrently and answers 200
// when all pass, 503 otherwise.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		checks := h.run(ctx)

		resp := Response{Status: StatusUp, Timestamp: time.Now().UTC(), Checks: checks}
		status := http.StatusOK
		for _, c := range checks {
			if c.Status == StatusDown {
				resp.Status = StatusDown
				status = http.StatusServiceUnavailable
				break
			}
		}
		httputil.WriteJSON(w, status, resp)
	}
}

func (h *Handler) run(ctx context.Context) map[string]CheckResult {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for k, v := range h.checkers {
		checkers[k] = v
	}
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]CheckResult, len(checkers))
	)
	for name, check := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := check(ctx)

			res := CheckResult{Status: StatusUp, LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				res.Status, res.Error = StatusDown, err.Error()
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}
