package board

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"commuterbliss/internal/observability"
)

// Source supplies raw departures for a route.
type Source interface {
	Departures(ctx context.Context, q Query) ([]RawDeparture, error)
}

// Client is an HTTP client for the departure-board API.
type Client struct {
	host               string
	client             *http.Client
	fetchTimeout       time.Duration
	feasibilityTimeout time.Duration
	feasible           *cache.Cache
	logger             *slog.Logger
	metrics            *observability.Collector
}

// NewClient creates a departure-board client for host (no scheme).
func NewClient(host string, fetchTimeout, feasibilityTimeout time.Duration, logger *slog.Logger, metrics *observability.Collector) *Client {
	return &Client{
		host:               host,
		client:             &http.Client{},
		fetchTimeout:       fetchTimeout,
		feasibilityTimeout: feasibilityTimeout,
		feasible:           cache.New(feasibilityTTL, 5*time.Minute),
		logger:             logger,
		metrics:            metrics,
	}
}

// URL builds the departures URL for q.
func (c *Client) URL(q Query) string {
	scheme := "http"
	if q.HTTPS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/departures/%s/to/%s/%d", scheme, c.host, q.Origin, q.Destination, q.Limit)
}

// Departures fetches up to q.Limit services in feed order. A null or missing
// trainServices list yields an empty slice. Live departures are never cached.
func (c *Client) Departures(ctx context.Context, q Query) ([]RawDeparture, error) {
	b, err := c.fetch(ctx, q, c.fetchTimeout, observability.UpstreamBoard)
	if err != nil {
		return nil, fmt.Errorf("departures %s to %s: %w", q.Origin, q.Destination, err)
	}
	return b.TrainServices, nil
}

func (c *Client) fetch(ctx context.Context, q Query, timeout time.Duration, upstream string) (*Board, error) {
	ctx, span := observability.Tracer().Start(ctx, "board.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("origin", q.Origin),
		attribute.String("destination", q.Destination),
		attribute.Int("limit", q.Limit),
	)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	b, err := c.get(ctx, c.URL(q))
	c.metrics.ObserveUpstream(upstream, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("services", len(b.TrainServices)))
	return b, nil
}

func (c *Client) get(ctx context.Context, url string) (*Board, error) {
	resp, err := c.doGet(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var b Board
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}
	return &b, nil
}

func (c *Client) doGet(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, URL: url}
	}
	return resp, nil
}

// StatusError is a non-200 answer from the board.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.Code, e.URL)
}
