package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"commuterbliss/internal/board"
	"commuterbliss/internal/clock"
	"commuterbliss/internal/config"
	"commuterbliss/internal/device"
	"commuterbliss/internal/location"
	"commuterbliss/internal/message"
	"commuterbliss/internal/observability"
	"commuterbliss/internal/schedule"
)

// Trigger starts one update cycle.
type Trigger struct {
	DeviceID string
	Prefs    config.Preferences
	Locator  location.Locator // nil when the device sent no fix
	Now      time.Time        // zero means the current time
}

// Result describes a finished cycle.
type Result struct {
	CycleID    uint64
	Resolution location.Resolution
	Trains     []schedule.TrainStatus
	Skipped    []schedule.Skipped
	Offset     int64
	Failed     bool
	FetchErr   error
	Outbound   message.Outbound
}

// Pipeline runs update cycles. Cycles are independent and may overlap.
type Pipeline struct {
	resolver  *location.Resolver
	source    board.Source
	clock     *clock.Corrector
	transport device.Transport
	limit     int
	logger    *slog.Logger
	metrics   *observability.Collector

	seq    atomic.Uint64
	checks sync.WaitGroup
	now    func() time.Time
}

// New creates a Pipeline. corrector and transport may be nil.
func New(resolver *location.Resolver, source board.Source, corrector *clock.Corrector, transport device.Transport, limit int, logger *slog.Logger, metrics *observability.Collector) *Pipeline {
	if limit <= 0 {
		limit = schedule.MaxTrains
	}
	return &Pipeline{
		resolver:  resolver,
		source:    source,
		clock:     corrector,
		transport: transport,
		limit:     limit,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Run executes one cycle and hands the message to the device. The returned
// error is only a delivery failure; upstream failures are reported in the
// message and in Result.FetchErr.
func (p *Pipeline) Run(ctx context.Context, tr Trigger) (Result, error) {
	start := time.Now()
	id := p.seq.Add(1)

	ctx, span := observability.Tracer().Start(ctx, "pipeline.cycle")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("cycle.id", int64(id)),
		attribute.String("device.id", tr.DeviceID),
	)

	now := tr.Now
	if now.IsZero() {
		now = p.now()
	}
	prefs := tr.Prefs
	log := p.logger.With("cycle", id, "device", tr.DeviceID)

	offsetDone := p.startClockCheck(ctx, prefs, log)

	res := Result{CycleID: id}
	res.Resolution = p.resolver.Resolve(ctx, prefs, tr.Locator, now)
	route := res.Resolution.Route
	span.SetAttributes(
		attribute.String("route", route.String()),
		attribute.String("route.mode", res.Resolution.Mode),
	)

	outcome := observability.OutcomeOK
	if route.Stationary() {
		outcome = observability.OutcomeStationary
		log.Info("at destination, skipping fetch", "route", route.String())
	} else {
		raw, err := p.source.Departures(ctx, board.Query{
			Origin:      route.Origin,
			Destination: route.Destination,
			Limit:       p.limit,
			HTTPS:       prefs.UseHTTPS,
		})
		if err != nil {
			outcome = observability.OutcomeFailed
			res.Failed = true
			res.FetchErr = err
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Warn("schedule fetch failed", "route", route.String(), "error", err)
		} else {
			res.Trains, res.Skipped = schedule.Normalize(raw, now)
			for _, s := range res.Skipped {
				log.Warn("skipping departure", "index", s.Index, "error", s.Err)
			}
		}
	}

	res.Offset = p.offset(prefs, offsetDone)
	res.Outbound = message.Assemble(message.Input{
		Route:        route,
		Trains:       res.Trains,
		OffsetMillis: res.Offset,
		Prefs:        prefs,
		Failed:       res.Failed,
	})
	p.metrics.ObserveCycle(outcome, time.Since(start))
	log.Info("cycle complete",
		"route", route.String(),
		"mode", res.Resolution.Mode,
		"trains", len(res.Trains),
		"failed", res.Failed,
		"offset_ms", res.Offset,
		"took", time.Since(start).Round(time.Millisecond))

	if p.transport == nil {
		return res, nil
	}
	err := p.transport.Send(ctx, tr.DeviceID, device.Envelope{
		CycleID:     id,
		Kind:        device.KindSchedule,
		Origin:      route.Origin,
		Destination: route.Destination,
		Mode:        res.Resolution.Mode,
		Failed:      res.Failed,
		Message:     res.Outbound.Message(),
	})
	if err != nil {
		if !errors.Is(err, device.ErrNoSession) {
			log.Warn("deliver message", "error", err)
		}
		return res, fmt.Errorf("deliver cycle %d: %w", id, err)
	}
	return res, nil
}

// startClockCheck begins verification when the user asked for it. The
// returned channel yields the verified offset once; it is nil when no check runs.
func (p *Pipeline) startClockCheck(ctx context.Context, prefs config.Preferences, log *slog.Logger) <-chan int64 {
	if p.clock == nil || !prefs.CheckTime {
		return nil
	}
	done := make(chan int64, 1)
	ctx = context.WithoutCancel(ctx)
	p.checks.Add(1)
	go func() {
		defer p.checks.Done()
		ms, err := p.clock.Verify(ctx)
		if err != nil {
			log.Warn("clock check failed, keeping previous offset", "offset_ms", ms, "error", err)
		}
		done <- ms
	}()
	return done
}

// offset is zero unless time checks are on. Then it takes the verified
// offset if the check already finished, otherwise the stored one. It never
// waits.
func (p *Pipeline) offset(prefs config.Preferences, done <-chan int64) int64 {
	if !prefs.CheckTime {
		return 0
	}
	select {
	case ms := <-done:
		return ms
	default:
	}
	if p.clock == nil {
		return 0
	}
	return p.clock.Offset()
}

// Handshake delivers the preferences-only message to a device that just
// connected, when its preferences call for one.
func (p *Pipeline) Handshake(ctx context.Context, deviceID string, prefs config.Preferences) (bool, error) {
	if !message.NeedsHandshake(prefs) || p.transport == nil {
		return false, nil
	}
	route := location.TimeBased(prefs, p.now())
	offset := p.offset(prefs, nil)
	err := p.transport.Send(ctx, deviceID, device.Envelope{
		Kind:        device.KindHandshake,
		Origin:      route.Origin,
		Destination: route.Destination,
		Mode:        location.ModeFixed,
		Message:     message.Handshake(route, prefs, offset),
	})
	if err != nil {
		return false, fmt.Errorf("handshake: %w", err)
	}
	return true, nil
}

// Wait blocks until background clock checks finish.
func (p *Pipeline) Wait() {
	p.checks.Wait()
}
