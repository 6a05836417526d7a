package clock

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"commuterbliss/internal/observability"
)

// OffsetStore persists the verified offset across restarts.
type OffsetStore interface {
	SaveClockOffset(ctx context.Context, ms int64, verified time.Time) error
}

// Corrector owns the process-wide clock offset: the milliseconds to add to
// local time to match the time reference. Only a successful verification
// changes it.
type Corrector struct {
	url     string
	client  *http.Client
	store   OffsetStore
	logger  *slog.Logger
	metrics *observability.Collector
	now     func() time.Time

	mu       sync.RWMutex
	offset   int64
	verified time.Time
}

// NewCorrector creates a Corrector that checks http://{host}/utc/now.
func NewCorrector(host string, timeout time.Duration, store OffsetStore, logger *slog.Logger, metrics *observability.Collector) *Corrector {
	return &Corrector{
		url:     "http://" + host + "/utc/now",
		client:  &http.Client{Timeout: timeout},
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Offset returns the current offset in milliseconds.
func (c *Corrector) Offset() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// LastVerified returns when the offset was last verified, zero if never.
func (c *Corrector) LastVerified() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.verified
}

// Restore seeds the offset from storage without persisting it again.
func (c *Corrector) Restore(ms int64, verified time.Time) {
	c.mu.Lock()
	c.offset = ms
	c.verified = verified
	c.mu.Unlock()
	c.metrics.SetClockOffset(ms)
}

// Verify asks the time reference for the current time and stores
// remote - local as the new offset. On failure the previous offset is kept
// and returned alongside the error.
func (c *Corrector) Verify(ctx context.Context) (int64, error) {
	start := time.Now()
	remote, local, err := c.remoteTime(ctx)
	c.metrics.ObserveUpstream(observability.UpstreamTime, time.Since(start), err)
	if err != nil {
		return c.Offset(), fmt.Errorf("verify clock: %w", err)
	}

	ms := remote.UnixMilli() - local.UnixMilli()
	c.mu.Lock()
	c.offset = ms
	c.verified = local
	c.mu.Unlock()
	c.metrics.SetClockOffset(ms)
	c.logger.Debug("clock offset verified", "offset_ms", ms)

	if c.store != nil {
		if err := c.store.SaveClockOffset(ctx, ms, local); err != nil {
			c.logger.Warn("persist clock offset", "error", err)
		}
	}
	return ms, nil
}

func (c *Corrector) remoteTime(ctx context.Context) (remote, local time.Time, err error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url, nil)
	if err != nil {
		return remote, local, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return remote, local, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return remote, local, fmt.Errorf("HTTP %d from %s", resp.StatusCode, c.url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return remote, local, fmt.Errorf("read time body: %w", err)
	}
	local = c.now()
	remote, err = ParseTimestamp(string(body))
	return remote, local, err
}

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999Z0700",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// ParseTimestamp reads the time reference's answer: an RFC 3339 or RFC 1123
// timestamp, optionally quoted, or Unix seconds. Timestamps without a zone
// are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
