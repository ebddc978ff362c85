package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"skycheck/internal/types"
)

// healthCheckTimeout bounds all probes together.
const healthCheckTimeout = 2 * time.Second

// HealthProbe checks one dependency.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// criticalProbe is implemented by probes that can declare themselves
// optional. Probes without it are critical.
type criticalProbe interface {
	Critical() bool
}

// PingProbe adapts a types.Pinger into a HealthProbe. Non-critical probes
// degrade the service instead of failing it.
type PingProbe struct {
	ProbeName string
	Target    types.Pinger
	Required  bool
}

func (p PingProbe) Name() string                    { return p.ProbeName }
func (p PingProbe) Check(ctx context.Context) error { return p.Target.Ping(ctx) }
func (p PingProbe) Critical() bool                  { return p.Required }

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs all probes concurrently.
//
//   - all pass:                       200 "healthy"
//   - only non-critical probes fail:  200 "degraded"
//   - any critical probe fails:       503 "unhealthy"
//
// A probe that misses the deadline counts as failed.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}

	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	var (
		mu      sync.Mutex
		results = make(map[int]error, len(probes))
		wg      sync.WaitGroup
	)
	for i, probe := range probes {
		wg.Add(1)
		go func(i int, p HealthProbe) {
			defer wg.Done()

			var err error
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						err = fmt.Errorf("probe panicked: %v", rec)
					}
				}()
				err = p.Check(ctx)
			}()

			mu.Lock()
			results[i] = err
			mu.Unlock()
		}(i, probe)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	resp.Components = make(map[string]componentStatus, len(probes))
	criticalFailed, optionalFailed := false, false
	for i, probe := range probes {
		err, finished := results[i]
		if !finished {
			err = fmt.Errorf("health check timed out")
		}
		if err == nil {
			resp.Components[probe.Name()] = componentStatus{Status: "healthy"}
			continue
		}

		critical := true
		if cp, ok := probe.(criticalProbe); ok {
			critical = cp.Critical()
		}
		status := "unhealthy"
		if critical {
			criticalFailed = true
		} else {
			optionalFailed = true
			status = "degraded"
		}
		resp.Components[probe.Name()] = componentStatus{Status: status, Message: err.Error()}
	}

	switch {
	case criticalFailed:
		resp.Status = "unhealthy"
		JSON(w, r, http.StatusServiceUnavailable, resp)
	case optionalFailed:
		resp.Status = "degraded"
		JSON(w, r, http.StatusOK, resp)
	default:
		JSON(w, r, http.StatusOK, resp)
	}
}
