package weather

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"skycheck/internal/external"
	"skycheck/internal/suitability"
	"skycheck/internal/types"
)

// DefaultForecastHours is the forecast window requested when none is set.
const DefaultForecastHours = 12

// Metrics counts upstream failures per provider.
type Metrics interface {
	RecordUpstreamFailure(ctx context.Context, provider string)
}

// Options tunes a Service.
type Options struct {
	ForecastHours int
	CacheTTL      time.Duration
	Clock         func() time.Time
	Metrics       Metrics
}

// Service fetches weather for catalogue aerodromes and evaluates it.
type Service struct {
	forecasts external.ForecastProvider
	metars    external.METARProvider
	catalogue *Catalogue
	evaluator *suitability.Evaluator
	logger    *slog.Logger
	metrics   Metrics

	hours int
	now   func() time.Time
	cache *ttlCache
	group singleflight.Group
}

// NewService wires the providers, catalogue and evaluator together.
func NewService(
	forecasts external.ForecastProvider,
	metars external.METARProvider,
	catalogue *Catalogue,
	evaluator *suitability.Evaluator,
	logger *slog.Logger,
	opts Options,
) *Service {
	if opts.ForecastHours <= 0 {
		opts.ForecastHours = DefaultForecastHours
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if catalogue == nil {
		catalogue = DefaultCatalogue()
	}
	return &Service{
		forecasts: forecasts,
		metars:    metars,
		catalogue: catalogue,
		evaluator: evaluator,
		logger:    logger,
		metrics:   opts.Metrics,
		hours:     opts.ForecastHours,
		now:       opts.Clock,
		cache:     newTTLCache(opts.CacheTTL),
	}
}

// ForecastReport is the forecast view of an aerodrome.
type ForecastReport struct {
	Aerodrome Aerodrome               `json:"aerodrome"`
	ValidAt   time.Time               `json:"valid_at"`
	Snapshot  suitability.Snapshot    `json:"snapshot"`
	Hourly    []external.ForecastHour `json:"hourly"`
}

// METARReport is the latest observation for an aerodrome. Snapshot is nil
// when the observation lacks the fields the evaluator needs.
type METARReport struct {
	Aerodrome   Aerodrome             `json:"aerodrome"`
	Observation *external.METAR       `json:"observation"`
	Snapshot    *suitability.Snapshot `json:"snapshot,omitempty"`
}

// Assessment is one source's snapshot and the decision made from it.
type Assessment struct {
	Source   types.WeatherSource  `json:"source"`
	ValidAt  time.Time            `json:"valid_at"`
	Snapshot suitability.Snapshot `json:"snapshot"`
	Decision suitability.Decision `json:"decision"`
}

// Briefing combines forecast and observation for one aircraft class. The
// headline verdict comes from the observation when one is usable.
type Briefing struct {
	Aerodrome     Aerodrome           `json:"aerodrome"`
	AircraftClass types.AircraftClass `json:"aircraft_class"`
	Verdict       types.Verdict       `json:"verdict"`
	Primary       types.WeatherSource `json:"primary_source"`
	Observed      *Assessment         `json:"observed,omitempty"`
	Forecast      *Assessment         `json:"forecast"`
	Warnings      []string            `json:"warnings,omitempty"`
	GeneratedAt   time.Time           `json:"generated_at"`
}

// Aerodromes lists the catalogue.
func (s *Service) Aerodromes() []Aerodrome {
	return s.catalogue.All()
}

// Aerodrome resolves an ICAO code against the catalogue.
func (s *Service) Aerodrome(icao string) (Aerodrome, error) {
	return s.catalogue.Lookup(icao)
}

// Forecast returns the forecast snapshot for the hour containing now.
func (s *Service) Forecast(ctx context.Context, icao string) (*ForecastReport, error) {
	ad, err := s.catalogue.Lookup(icao)
	if err != nil {
		return nil, err
	}
	return s.forecastReport(ctx, ad)
}

// METAR returns the latest observation for icao.
func (s *Service) METAR(ctx context.Context, icao string) (*METARReport, error) {
	ad, err := s.catalogue.Lookup(icao)
	if err != nil {
		return nil, err
	}
	return s.metarReport(ctx, ad)
}

// Briefing fetches forecast and METAR concurrently and evaluates both. A
// forecast failure fails the briefing; a METAR failure becomes a warning.
func (s *Service) Briefing(ctx context.Context, icao string, class types.AircraftClass) (*Briefing, error) {
	if !class.IsValid() {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidAircraft,
			"aircraft must be one of jet, light, microlight", nil, map[string]any{"aircraft": string(class)})
	}
	ad, err := s.catalogue.Lookup(icao)
	if err != nil {
		return nil, err
	}

	var (
		fc       *ForecastReport
		obs      *METARReport
		metarErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fc, err = s.forecastReport(gctx, ad)
		return err
	})
	g.Go(func() error {
		obs, metarErr = s.metarReport(gctx, ad)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := &Briefing{
		Aerodrome:     ad,
		AircraftClass: class,
		GeneratedAt:   s.now().UTC(),
	}

	fcDecision, err := s.evaluator.Evaluate(fc.Snapshot, class)
	if err != nil {
		return nil, err
	}
	b.Forecast = &Assessment{Source: types.SourceForecast, ValidAt: fc.ValidAt, Snapshot: fc.Snapshot, Decision: fcDecision}
	b.Verdict, b.Primary = fcDecision.Overall.Verdict, types.SourceForecast

	switch {
	case metarErr != nil:
		b.Warnings = append(b.Warnings, "observation unavailable: "+publicMessage(metarErr))
	case obs.Snapshot == nil:
		b.Warnings = append(b.Warnings, "observation incomplete; verdict based on forecast")
	default:
		d, err := s.evaluator.Evaluate(*obs.Snapshot, class)
		if err != nil {
			return nil, err
		}
		b.Observed = &Assessment{Source: types.SourceMETAR, ValidAt: obs.Observation.ObservedAt, Snapshot: *obs.Snapshot, Decision: d}
		b.Verdict, b.Primary = d.Overall.Verdict, types.SourceMETAR
	}
	return b, nil
}

func (s *Service) forecastReport(ctx context.Context, ad Aerodrome) (*ForecastReport, error) {
	v, err := s.fetch(ctx, "forecast:"+ad.ICAO, func(ctx context.Context) (any, error) {
		return s.forecasts.Forecast(ctx, ad.Latitude, ad.Longitude, s.hours)
	})
	if err != nil {
		s.logFailure(ctx, "forecast", ad.ICAO, err)
		return nil, err
	}
	fc := v.(*external.Forecast)
	if len(fc.Hours) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamForecast, "forecast returned no hourly data", nil)
	}

	hour := currentHour(fc.Hours, s.now())
	snap, err := SnapshotFromForecast(hour)
	if err != nil {
		return nil, err
	}
	return &ForecastReport{Aerodrome: ad, ValidAt: hour.Time, Snapshot: snap, Hourly: fc.Hours}, nil
}

func (s *Service) metarReport(ctx context.Context, ad Aerodrome) (*METARReport, error) {
	v, err := s.fetch(ctx, "metar:"+ad.ICAO, func(ctx context.Context) (any, error) {
		return s.metars.LatestMETAR(ctx, ad.ICAO)
	})
	if err != nil {
		s.logFailure(ctx, "metar", ad.ICAO, err)
		return nil, err
	}
	m := v.(*external.METAR)

	report := &METARReport{Aerodrome: ad, Observation: m}
	if snap, err := SnapshotFromMETAR(m); err == nil {
		report.Snapshot = &snap
	}
	return report, nil
}

// fetch serves key from the cache or runs fn once for all concurrent
// callers. The shared call is detached from any one caller's cancellation.
func (s *Service) fetch(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if v, ok := s.cache.get(key, s.now()); ok {
		return v, nil
	}
	ch := s.group.DoChan(key, func() (any, error) {
		v, err := fn(context.WithoutCancel(ctx))
		if err == nil {
			s.cache.set(key, v, s.now())
		}
		return v, err
	})
	select {
	case <-ctx.Done():
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "weather request cancelled", ctx.Err())
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (s *Service) logFailure(ctx context.Context, kind, icao string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Warn("weather fetch failed",
		"request_id", types.GetRequestID(ctx),
		"kind", kind,
		"icao", icao,
		"error", err,
	)
	var appErr *types.AppError
	if s.metrics != nil && (!errors.As(err, &appErr) || appErr.HTTPStatus() >= 500) {
		s.metrics.RecordUpstreamFailure(ctx, kind)
	}
}

// currentHour picks the first step that has not ended by now, falling back to
// the last step. hours must not be empty.
func currentHour(hours []external.ForecastHour, now time.Time) external.ForecastHour {
	for _, h := range hours {
		if now.Before(h.Time.Add(time.Hour)) {
			return h
		}
	}
	return hours[len(hours)-1]
}

func publicMessage(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "upstream error"
}
