package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck reports whether one dependency (Redis, Postgres, a venue) is
// reachable.
type HealthCheck func(ctx context.Context) HealthCheckResult

// HealthCheckResult is one check's outcome.
type HealthCheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// HealthChecker runs a named set of HealthChecks concurrently.
type HealthChecker struct {
	checks map[string]HealthCheck
	mu     sync.RWMutex
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]HealthCheck)}
}

func (hc *HealthChecker) RegisterCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

func (hc *HealthChecker) CheckHealth(ctx context.Context) map[string]HealthCheckResult {
	hc.mu.RLock()
	checks := make(map[string]HealthCheck, len(hc.checks))
	for name, check := range hc.checks {
		checks[name] = check
	}
	hc.mu.RUnlock()

	results := make(map[string]HealthCheckResult, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			result := check(checkCtx)
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name, check)
	}

	wg.Wait()
	return results
}

func overallStatus(results map[string]HealthCheckResult) HealthStatus {
	for _, r := range results {
		if r.Status != HealthStatusHealthy {
			return HealthStatusUnhealthy
		}
	}
	return HealthStatusHealthy
}

// HealthServer exposes /healthz for a single stage process.
type HealthServer struct {
	checker     *HealthChecker
	serviceName string
}

func NewHealthServer(checker *HealthChecker, serviceName string) *HealthServer {
	return &HealthServer{checker: checker, serviceName: serviceName}
}

func (hs *HealthServer) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", hs.handle).Methods("GET")
}

func (hs *HealthServer) handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	results := hs.checker.CheckHealth(ctx)
	status := overallStatus(results)

	statusCode := http.StatusOK
	if status != HealthStatusHealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"service": hs.serviceName,
		"status":  status,
		"checks":  results,
	})
}

// DatabaseHealthCheck builds a HealthCheck out of a ping function.
func DatabaseHealthCheck(pingFunc func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) HealthCheckResult {
		if err := pingFunc(ctx); err != nil {
			return HealthCheckResult{Status: HealthStatusUnhealthy, Message: "database ping failed", Error: err.Error()}
		}
		return HealthCheckResult{Status: HealthStatusHealthy, Message: "ok"}
	}
}

// RedisHealthCheck builds a HealthCheck out of a ping function.
func RedisHealthCheck(pingFunc func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) HealthCheckResult {
		if err := pingFunc(ctx); err != nil {
			return HealthCheckResult{Status: HealthStatusUnhealthy, Message: "redis ping failed", Error: err.Error()}
		}
		return HealthCheckResult{Status: HealthStatusHealthy, Message: "ok"}
	}
}
