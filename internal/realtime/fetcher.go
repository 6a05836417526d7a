package realtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"commuterbliss/internal/board"
	"commuterbliss/internal/observability"
)

// Fetcher downloads a GTFS-RT TripUpdates feed and serves departures from it.
// Stop ids in the feed are expected to be station codes.
type Fetcher struct {
	url     string
	store   *Store
	client  *http.Client
	maxAge  time.Duration
	logger  *slog.Logger
	metrics *observability.Collector
	now     func() time.Time
}

// NewFetcher creates a GTFS-RT fetcher. A snapshot older than maxAge is
// refreshed before it is used to answer a query.
func NewFetcher(url string, store *Store, timeout, maxAge time.Duration, logger *slog.Logger, metrics *observability.Collector) *Fetcher {
	return &Fetcher{
		url:     url,
		store:   store,
		client:  &http.Client{Timeout: timeout},
		maxAge:  maxAge,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Start refreshes the feed on every tick. Blocks until ctx is cancelled.
func (f *Fetcher) Start(ctx context.Context, interval time.Duration) {
	if err := f.Refresh(ctx); err != nil {
		f.logger.Warn("GTFS-RT refresh failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil {
				f.logger.Warn("GTFS-RT refresh failed", "error", err)
			}
		case <-ctx.Done():
			f.logger.Info("GTFS-RT fetcher stopped")
			return
		}
	}
}

// Refresh downloads and parses the feed once and replaces the snapshot.
func (f *Fetcher) Refresh(ctx context.Context) error {
	start := time.Now()
	trips, err := f.fetch(ctx)
	f.metrics.ObserveUpstream(observability.UpstreamGTFSRT, time.Since(start), err)
	if err != nil {
		return err
	}
	f.store.SetTrips(trips, f.now())
	f.logger.Debug("GTFS-RT trip updates refreshed", "trips", len(trips))
	return nil
}

// Departures answers q from the snapshot, refreshing it first when stale.
func (f *Fetcher) Departures(ctx context.Context, q board.Query) ([]board.RawDeparture, error) {
	trips, fetched := f.store.Snapshot()
	if fetched.IsZero() || f.now().Sub(fetched) > f.maxAge {
		if err := f.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("trip updates %s to %s: %w", q.Origin, q.Destination, err)
		}
		trips, _ = f.store.Snapshot()
	}
	return Departures(trips, q, f.now()), nil
}

func (f *Fetcher) fetch(ctx context.Context) ([]Trip, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create trip updates request: %w", err)
	}
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch trip updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trip updates feed returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read trip updates body: %w", err)
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("parse trip updates protobuf: %w", err)
	}
	return ParseTrips(feed), nil
}

// ParseTrips extracts trip updates from a feed. Entities without a trip
// update are ignored.
func ParseTrips(feed *gtfs.FeedMessage) []Trip {
	var trips []Trip
	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}

		trip := Trip{
			ID:        tu.GetTrip().GetTripId(),
			Cancelled: tu.GetTrip().GetScheduleRelationship() == gtfs.TripDescriptor_CANCELED,
		}
		if trip.ID == "" {
			trip.ID = entity.GetId()
		}

		for _, stu := range tu.GetStopTimeUpdate() {
			ev := StopEvent{
				StopID:  strings.ToUpper(stu.GetStopId()),
				Skipped: stu.GetScheduleRelationship() == gtfs.TripUpdate_StopTimeUpdate_SKIPPED,
			}
			e := stu.GetDeparture()
			if e == nil {
				e = stu.GetArrival()
			}
			if e != nil {
				if t := e.GetTime(); t != 0 {
					ev.Time = time.Unix(t, 0)
				}
				if e.Delay != nil {
					ev.Delay = time.Duration(e.GetDelay()) * time.Second
					ev.DelayKnown = true
				}
			}
			trip.Stops = append(trip.Stops, ev)
		}
		trips = append(trips, trip)
	}
	return trips
}

// Departures derives board-shaped departures for trips calling at q.Origin
// and later at q.Destination, ordered by scheduled time and cut to q.Limit.
// Trips that already left the origin before now are dropped.
func Departures(trips []Trip, q board.Query, now time.Time) []board.RawDeparture {
	type candidate struct {
		scheduled time.Time
		dep       board.RawDeparture
	}
	origin, dest := strings.ToUpper(q.Origin), strings.ToUpper(q.Destination)
	loc := now.Location()

	var found []candidate
	for _, trip := range trips {
		oi, di := -1, -1
		for i, s := range trip.Stops {
			if oi < 0 && s.StopID == origin {
				oi = i
			} else if oi >= 0 && s.StopID == dest {
				di = i
				break
			}
		}
		if oi < 0 || di < 0 {
			continue
		}
		at := trip.Stops[oi]
		if at.Time.IsZero() || at.Time.Before(now.Truncate(time.Minute)) {
			continue
		}

		scheduled := at.Time.Add(-at.Delay).In(loc)
		etd := "On time"
		switch {
		case trip.Cancelled || at.Skipped:
			etd = "Cancelled"
		case at.DelayKnown && at.Delay/time.Minute != 0:
			etd = at.Time.In(loc).Format("15:04")
		}

		found = append(found, candidate{
			scheduled: scheduled,
			dep: board.RawDeparture{
				Scheduled:    scheduled.Format("15:04"),
				Estimated:    etd,
				Destinations: []board.Location{{CRS: trip.Stops[len(trip.Stops)-1].StopID}},
			},
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].scheduled.Before(found[j].scheduled)
	})
	if q.Limit > 0 && len(found) > q.Limit {
		found = found[:q.Limit]
	}

	out := make([]board.RawDeparture, len(found))
	for i, c := range found {
		out[i] = c.dep
	}
	return out
}
