package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeFailed     = "failed"
	OutcomeStationary = "stationary"
)

// Upstream names used as the "upstream" label.
const (
	UpstreamBoard       = "board"
	UpstreamFeasibility = "feasibility"
	UpstreamTime        = "time"
	UpstreamGTFSRT      = "gtfsrt"
)

// Collector bundles the service's Prometheus metrics. All methods are safe
// on a nil *Collector so components can run without metrics in tests.
type Collector struct {
	gatherer prometheus.Gatherer

	Cycles            *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	UpstreamRequests  *prometheus.CounterVec
	UpstreamDuration  *prometheus.HistogramVec
	LocationFallbacks *prometheus.CounterVec
	ClockOffset       prometheus.Gauge
	DeviceSessions    prometheus.Gauge
	DroppedMessages   prometheus.Counter
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Collectors already registered under the same name are reused.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cycles, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "commuter_cycles_total",
		Help: "Update cycles run, labeled by outcome.",
	}, []string{"outcome"}), "commuter_cycles_total")
	if err != nil {
		return nil, err
	}

	cycleDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "commuter_cycle_duration_seconds",
		Help:    "Wall time of one update cycle.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}), "commuter_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	upstream, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "commuter_upstream_requests_total",
		Help: "Requests to upstream services, labeled by upstream and result.",
	}, []string{"upstream", "result"}), "commuter_upstream_requests_total")
	if err != nil {
		return nil, err
	}

	upstreamDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "commuter_upstream_duration_seconds",
		Help:    "Upstream request latency in seconds.",
		Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"upstream"}), "commuter_upstream_duration_seconds")
	if err != nil {
		return nil, err
	}

	fallbacks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "commuter_location_fallbacks_total",
		Help: "Geolocation attempts that fell back to the time-based route, labeled by reason.",
	}, []string{"reason"}), "commuter_location_fallbacks_total")
	if err != nil {
		return nil, err
	}

	offset, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "commuter_clock_offset_milliseconds",
		Help: "Last verified difference between the time reference and local time.",
	}), "commuter_clock_offset_milliseconds")
	if err != nil {
		return nil, err
	}

	sessions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "commuter_device_sessions",
		Help: "Connected device sessions.",
	}), "commuter_device_sessions")
	if err != nil {
		return nil, err
	}

	dropped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "commuter_dropped_messages_total",
		Help: "Outbound messages dropped because a device outbox was full.",
	}), "commuter_dropped_messages_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		Cycles:            cycles,
		CycleDuration:     cycleDuration,
		UpstreamRequests:  upstream,
		UpstreamDuration:  upstreamDuration,
		LocationFallbacks: fallbacks,
		ClockOffset:       offset,
		DeviceSessions:    sessions,
		DroppedMessages:   dropped,
	}, nil
}

// Handler exposes the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveCycle records one finished cycle.
func (c *Collector) ObserveCycle(outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.Cycles.WithLabelValues(outcome).Inc()
	c.CycleDuration.Observe(took.Seconds())
}

// ObserveUpstream records one upstream request. A nil err counts as "ok".
func (c *Collector) ObserveUpstream(upstream string, took time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.UpstreamRequests.WithLabelValues(upstream, result).Inc()
	c.UpstreamDuration.WithLabelValues(upstream).Observe(took.Seconds())
}

// LocationFallback counts a geolocation fallback.
func (c *Collector) LocationFallback(reason string) {
	if c == nil {
		return
	}
	c.LocationFallbacks.WithLabelValues(reason).Inc()
}

// SetClockOffset publishes the current offset.
func (c *Collector) SetClockOffset(ms int64) {
	if c == nil {
		return
	}
	c.ClockOffset.Set(float64(ms))
}

// SetSessions publishes the number of connected devices.
func (c *Collector) SetSessions(n int) {
	if c == nil {
		return
	}
	c.DeviceSessions.Set(float64(n))
}

// MessageDropped counts one dropped outbound message.
func (c *Collector) MessageDropped() {
	if c == nil {
		return
	}
	c.DroppedMessages.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
