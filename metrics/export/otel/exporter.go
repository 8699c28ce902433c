package otel

import (
	"context"
	"errors"
	"fmt"

	credlock "github.com/credlock/credlock"
	"github.com/credlock/credlock/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() credlock.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter bridges engine snapshots onto an OpenTelemetry meter. All
// instruments are observable; a single callback reads one snapshot per
// collection cycle.
type Exporter struct {
	registration metric.Registration
}

// NewExporter registers instruments for an engine on the given meter.
func NewExporter(meter metric.Meter, engine *credlock.Engine) (*Exporter, error) {
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource registers instruments for any snapshot source.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	var (
		observables []metric.Observable
		observers   []func(metric.Observer, credlock.MetricsSnapshot)
	)

	for _, def := range internaldefs.CounterDefs {
		counter, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("observable counter %s: %w", def.Name, err)
		}
		observables = append(observables, counter)
		observers = append(observers, func(o metric.Observer, s credlock.MetricsSnapshot) {
			o.ObserveInt64(counter, int64(s.Counters[def.ID]))
		})
	}

	for _, def := range internaldefs.HistogramDefs {
		var bucketGauges [8]metric.Int64ObservableGauge
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			gauge, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("histogram bucket gauge %s: %w", name, err)
			}
			bucketGauges[i] = gauge
			observables = append(observables, gauge)
		}

		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("histogram count gauge %s_count: %w", def.Name, err)
		}
		observables = append(observables, count)

		observers = append(observers, func(o metric.Observer, s credlock.MetricsSnapshot) {
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(s.Histograms[def.ID]))
			for i, gauge := range bucketGauges {
				o.ObserveInt64(gauge, int64(cumulative[i]))
			}
			o.ObserveInt64(count, int64(cumulative[len(cumulative)-1]))
		})
	}

	dropped, err := meter.Int64ObservableCounter(
		"credlock_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("audit dropped counter: %w", err)
	}
	observables = append(observables, dropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		snapshot := source.MetricsSnapshot()
		for _, observe := range observers {
			observe(o, snapshot)
		}
		o.ObserveInt64(dropped, int64(source.AuditDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	return &Exporter{registration: registration}, nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
