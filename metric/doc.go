// Package metric exports build and validation metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	pc := metric.NewPrometheusCollector(reg)
//	idx, _ := sigtree.NewBuilder(st, scheme, sigtree.WithMetricsCollector(pc)).Build(ctx)
//	_ = prometheus.WriteToTextfile("sigtree.prom", reg)
package metric
