package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"commuterbliss/internal/config"
	"commuterbliss/internal/geo"
	"commuterbliss/internal/observability"
	"commuterbliss/internal/stations"
)

var (
	// ErrNoFix means the device could not supply a position.
	ErrNoFix = errors.New("no location fix")
	// ErrNoStation means no station could be matched to a position.
	ErrNoStation = errors.New("no station near location")
)

// Resolution modes.
const (
	ModeFixed       = "fixed"
	ModeGeolocation = "geolocation"
	ModeFallback    = "fallback"
)

// Route is the origin/destination pair for one schedule lookup.
type Route struct {
	Origin      string
	Destination string
}

// Stationary reports whether the user is already at the destination.
func (r Route) Stationary() bool {
	return r.Origin == r.Destination
}

func (r Route) String() string {
	return r.Origin + "->" + r.Destination
}

// Resolution is the outcome of one route decision.
type Resolution struct {
	Route    Route
	Mode     string
	Reason   string  // fallback reason, empty unless Mode == ModeFallback
	Distance float64 // meters from the fix to the origin, geolocation mode only
}

// HomeBound reports whether the hour counts as the journey home:
// from noon until 03:00 the next morning.
func HomeBound(hour int) bool {
	return hour >= 12 || hour < 3
}

// TimeBased chooses the route purely from the local hour of now.
func TimeBased(prefs config.Preferences, now time.Time) Route {
	if HomeBound(now.Hour()) {
		return Route{Origin: prefs.Work, Destination: prefs.Home}
	}
	return Route{Origin: prefs.Home, Destination: prefs.Work}
}

// Resolver decides the active route for an update cycle.
type Resolver struct {
	index       *stations.Index
	timeout     time.Duration
	maxDistance float64
	logger      *slog.Logger
	metrics     *observability.Collector
}

// NewResolver creates a Resolver. maxDistance is in meters; zero accepts a
// nearest station at any distance.
func NewResolver(index *stations.Index, timeout time.Duration, maxDistance float64, logger *slog.Logger, metrics *observability.Collector) *Resolver {
	return &Resolver{
		index:       index,
		timeout:     timeout,
		maxDistance: maxDistance,
		logger:      logger,
		metrics:     metrics,
	}
}

// Resolve picks the route. With location disabled the hour rule decides both
// ends. With location enabled the nearest station to a fresh fix is the
// origin and the hour rule only picks the destination. Any geolocation
// failure falls back to the hour rule.
func (r *Resolver) Resolve(ctx context.Context, prefs config.Preferences, loc Locator, now time.Time) Resolution {
	fallback := TimeBased(prefs, now)
	if !prefs.UseLocation {
		return Resolution{Route: fallback, Mode: ModeFixed}
	}
	if loc == nil {
		loc = Reported{}
	}

	station, dist, err := r.nearest(ctx, loc)
	if err != nil {
		reason := fallbackReason(err)
		r.logger.Warn("geolocation failed, using time-based route",
			"reason", reason, "route", fallback.String(), "error", err)
		r.metrics.LocationFallback(reason)
		return Resolution{Route: fallback, Mode: ModeFallback, Reason: reason}
	}

	dest := prefs.Work
	if HomeBound(now.Hour()) {
		dest = prefs.Home
	}
	route := Route{Origin: station.Code, Destination: dest}
	r.logger.Debug("resolved origin from location",
		"origin", station.Code, "distance_m", int(dist), "destination", dest)
	return Resolution{Route: route, Mode: ModeGeolocation, Distance: dist}
}

func (r *Resolver) nearest(ctx context.Context, loc Locator) (stations.Station, float64, error) {
	fix, err := r.locate(ctx, loc)
	if err != nil {
		return stations.Station{}, 0, err
	}
	if r.index == nil {
		return stations.Station{}, 0, ErrNoStation
	}
	s, ok := r.index.Nearest(fix.Lat, fix.Lon)
	if !ok {
		return stations.Station{}, 0, ErrNoStation
	}
	dist := geo.Haversine(fix.Lat, fix.Lon, s.Lat, s.Lon)
	if r.maxDistance > 0 && dist > r.maxDistance {
		return stations.Station{}, 0, fmt.Errorf("%w: %s is %.0fm away", ErrNoStation, s.Code, dist)
	}
	return s, dist, nil
}

// locate runs the locator under the resolver timeout. A locator that ignores
// its context is abandoned when the deadline passes.
func (r *Resolver) locate(ctx context.Context, loc Locator) (Fix, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	type result struct {
		fix Fix
		err error
	}
	ch := make(chan result, 1)
	go func() {
		fix, err := loc.Locate(ctx)
		ch <- result{fix, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return Fix{}, res.err
		}
		if !res.fix.Valid() {
			return Fix{}, fmt.Errorf("%w: coordinates out of range (%f, %f)", ErrNoFix, res.fix.Lat, res.fix.Lon)
		}
		return res.fix, nil
	case <-ctx.Done():
		return Fix{}, fmt.Errorf("locate: %w", ctx.Err())
	}
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNoFix):
		return "no_fix"
	case errors.Is(err, ErrNoStation):
		return "no_station"
	default:
		return "error"
	}
}
