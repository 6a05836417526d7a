package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"commuterbliss/internal/board"
	"commuterbliss/internal/clock"
	"commuterbliss/internal/config"
	"commuterbliss/internal/location"
	"commuterbliss/internal/observability"
	"commuterbliss/internal/realtime"
	"commuterbliss/internal/stations"
	"commuterbliss/internal/storage"
)

// gtfsrtInterval is how often the TripUpdates feed is polled in serve mode.
const gtfsrtInterval = 30 * time.Second

// app is the wiring shared by every command that runs cycles.
type app struct {
	db       *storage.DB
	index    *stations.Index
	metrics  *observability.Collector
	clock    *clock.Corrector
	board    *board.Client
	fetcher  *realtime.Fetcher // nil unless the source is gtfsrt
	source   board.Source
	resolver *location.Resolver
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	list, err := db.EnsureStations(ctx, stations.Default)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load stations: %w", err)
	}
	index, err := stations.NewIndex(list)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("index stations: %w", err)
	}
	logger.Info("stations loaded", "count", index.Len())

	metrics, err := observability.NewCollector(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	corrector := clock.NewCorrector(cfg.TimeHost, cfg.TimeTimeout, db, logger, metrics)
	if ms, verified, ok, err := db.LoadClockOffset(ctx); err != nil {
		logger.Warn("loading stored clock offset", "error", err)
	} else if ok {
		corrector.Restore(ms, verified)
		logger.Info("clock offset restored", "offset_ms", ms, "verified", verified)
	}

	a := &app{
		db:       db,
		index:    index,
		metrics:  metrics,
		clock:    corrector,
		board:    board.NewClient(cfg.BoardHost, cfg.FetchTimeout, cfg.FeasibilityTimeout, logger, metrics),
		resolver: location.NewResolver(index, cfg.LocationTimeout, cfg.MaxStationDistance, logger, metrics),
	}

	switch strings.ToLower(cfg.ScheduleSource) {
	case config.SourceBoard, "":
		a.source = a.board
	case config.SourceGTFSRT:
		if cfg.GTFSRTURL == "" {
			db.Close()
			return nil, errors.New("gtfsrt source needs COMMUTER_GTFSRT_URL")
		}
		a.fetcher = realtime.NewFetcher(cfg.GTFSRTURL, realtime.NewStore(), cfg.FetchTimeout, 2*gtfsrtInterval, logger, metrics)
		a.source = a.fetcher
	default:
		db.Close()
		return nil, fmt.Errorf("unknown schedule source %q", cfg.ScheduleSource)
	}
	logger.Info("schedule source", "source", cfg.ScheduleSource)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
