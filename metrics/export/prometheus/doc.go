// Package prometheus renders engine metric snapshots in the Prometheus
// text exposition format, without importing the Prometheus client
// library.
//
// The exporter pulls a snapshot on every render, so scrapes never
// contend with the engine's hot-path counters. Mount Handler on any
// mux:
//
//	exp := prometheus.NewExporter(engine)
//	mux.Handle("/metrics", exp.Handler())
package prometheus
