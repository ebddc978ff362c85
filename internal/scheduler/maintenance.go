package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"skycheck/internal/types"
	"skycheck/internal/weather"
)

// -----------------------------------------------------------------------------
// Counter purge
// -----------------------------------------------------------------------------

// CounterSweeper is implemented by counter stores without native key expiry
// (postgres, sqlite, memory).
type CounterSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CounterPurgeService deletes usage counters past their expiry.
type CounterPurgeService struct {
	store  CounterSweeper
	logger *slog.Logger
}

// NewCounterPurgeService creates a CounterPurgeService. A nil store makes
// PurgeExpired a no-op, which is the case for Redis and for a disabled store.
func NewCounterPurgeService(store CounterSweeper, logger *slog.Logger) *CounterPurgeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CounterPurgeService{store: store, logger: logger}
}

// PurgeExpired deletes every counter whose expiry is at or before now.
func (s *CounterPurgeService) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if s.store == nil {
		s.logger.InfoContext(ctx, "counter store expires keys itself, nothing to purge")
		return 0, nil
	}
	n, err := s.store.DeleteExpired(ctx, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired counters: %w", err)
	}
	return int(n), nil
}

// -----------------------------------------------------------------------------
// Upstream probe
// -----------------------------------------------------------------------------

// Briefer is the slice of weather.Service the probe needs.
type Briefer interface {
	Briefing(ctx context.Context, icao string, class types.AircraftClass) (*weather.Briefing, error)
}

// DefaultProbeAerodromes are checked when no list is configured.
var DefaultProbeAerodromes = []string{"EGLL", "EGPH"}

// probeTimeout bounds each canary briefing.
const probeTimeout = 20 * time.Second

// UpstreamProbeService runs canary briefings so a provider outage shows up in
// the logs before users report it.
type UpstreamProbeService struct {
	briefer    Briefer
	aerodromes []string
	logger     *slog.Logger
}

// NewUpstreamProbeService creates a probe over aerodromes, or
// DefaultProbeAerodromes when empty.
func NewUpstreamProbeService(b Briefer, aerodromes []string, logger *slog.Logger) *UpstreamProbeService {
	if len(aerodromes) == 0 {
		aerodromes = DefaultProbeAerodromes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UpstreamProbeService{briefer: b, aerodromes: aerodromes, logger: logger}
}

// Probe briefs every canary aerodrome concurrently and returns how many
// succeeded with a usable observation. Any failed briefing fails the probe;
// a missing observation only logs a warning.
func (s *UpstreamProbeService) Probe(ctx context.Context) (int, error) {
	results := make([]error, len(s.aerodromes))
	healthy := make([]bool, len(s.aerodromes))

	var g errgroup.Group
	for i, icao := range s.aerodromes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			b, err := s.briefer.Briefing(pctx, icao, types.AircraftLight)
			if err != nil {
				results[i] = fmt.Errorf("%s: %w", icao, err)
				return nil
			}
			if len(b.Warnings) > 0 {
				s.logger.WarnContext(ctx, "canary briefing degraded",
					"icao", icao,
					"warnings", b.Warnings,
				)
				return nil
			}
			healthy[i] = true
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for _, ok := range healthy {
		if ok {
			count++
		}
	}
	return count, errors.Join(results...)
}
