// Package observability holds the Prometheus collectors of the BINOVA
// services.
package observability

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/binova/internal/model/entities"
)

// Result label values.
const (
	ResultOK          = "ok"
	ResultNotFound    = "not_found"
	ResultUnavailable = "unavailable"
	ResultError       = "error"
	ResultDuplicate   = "duplicate"
	ResultInvalid     = "invalid"
)

// Collector bundles the service metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	SnapshotReads *prometheus.CounterVec // result
	MarkCleaned   *prometheus.CounterVec // result
	DecodeErrors  prometheus.Counter
	BinsByTier    *prometheus.GaugeVec // tier
	EventsPushed  *prometheus.CounterVec // sink
	Telemetry     *prometheus.CounterVec // result
}

// NewCollector registers the metrics on reg, the default registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error
	if c.SnapshotReads, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "binova_snapshot_reads_total",
		Help: "Store snapshot reads, labeled by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.MarkCleaned, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "binova_mark_cleaned_total",
		Help: "Mark-cleaned actions, labeled by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.DecodeErrors, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "binova_decode_errors_total",
		Help: "Bin records rejected by validation.",
	})); err != nil {
		return nil, err
	}
	if c.BinsByTier, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "binova_bins",
		Help: "Bins in the last snapshot, labeled by tier.",
	}, []string{"tier"})); err != nil {
		return nil, err
	}
	if c.EventsPushed, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "binova_events_pushed_total",
		Help: "Bin changed events delivered, labeled by sink.",
	}, []string{"sink"})); err != nil {
		return nil, err
	}
	if c.Telemetry, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "binova_telemetry_messages_total",
		Help: "Hardware telemetry messages, labeled by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler serves /metrics for the collector's registry.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) Snapshot(result string, bins []entities.Bin, decodeErrors int) {
	if c == nil {
		return
	}
	c.SnapshotReads.WithLabelValues(result).Inc()
	if result != ResultOK {
		return
	}
	c.DecodeErrors.Add(float64(decodeErrors))
	counts := map[entities.Tier]int{entities.TierNormal: 0, entities.TierFilling: 0, entities.TierFull: 0}
	for _, b := range bins {
		counts[b.Tier()]++
	}
	for tier, n := range counts {
		c.BinsByTier.WithLabelValues(string(tier)).Set(float64(n))
	}
}

func (c *Collector) Cleaned(result string) {
	if c == nil {
		return
	}
	c.MarkCleaned.WithLabelValues(result).Inc()
}

func (c *Collector) Pushed(sink string) {
	if c == nil {
		return
	}
	c.EventsPushed.WithLabelValues(sink).Inc()
}

func (c *Collector) TelemetryResult(result string) {
	if c == nil {
		return
	}
	c.Telemetry.WithLabelValues(result).Inc()
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
