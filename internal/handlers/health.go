package handlers

import (
	"context"
	"net/http"
	"os"
	"time"
)

const (
	version       = "0.1.0"
	healthTimeout = 3 * time.Second
)

// Check is the result of checking one dependency.
type Check struct {
	Status  string `json:"status"` // pass | fail
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is served by GET /health. Status is "degraded" as soon as
// one check fails.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Region    string           `json:"region,omitempty"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Users     int64            `json:"users"`
	Timestamp string           `json:"timestamp"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

func checkDep(ctx context.Context, p pinger) Check {
	if p == nil {
		return Check{Status: "fail", Message: "not configured"}
	}
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	return Check{Status: "pass", Latency: time.Since(start).Round(time.Microsecond).String()}
}

// Health reports the database and live store connectivity.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Version:   version,
		Region:    os.Getenv("FLY_REGION"),
		Instance:  os.Getenv("FLY_ALLOC_ID"),
		Checks:    make(map[string]Check, 2),
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}

	var db, live pinger
	if h.data != nil {
		db = h.data
	}
	if h.live != nil {
		live = h.live
	}
	resp.Checks["database"] = checkDep(ctx, db)
	resp.Checks["live"] = checkDep(ctx, live)

	if resp.Checks["database"].Status == "pass" {
		resp.Users, _ = h.data.CountUsers(ctx)
	}

	code := http.StatusOK
	for _, c := range resp.Checks {
		if c.Status != "pass" {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	h.JSON(w, code, resp)
}

// RootResponse is served by GET /api.
type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Root identifies the gateway.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{Name: "chatdeck", Version: version})
}
