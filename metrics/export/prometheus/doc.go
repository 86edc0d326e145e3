// Package prometheus provides Prometheus collectors for ztgate metrics.
//
// [NewPrometheusExporter] accepts a [ztgate.Gateway] and exposes an [http.Handler]
// that renders all ztgate counters and histograms in Prometheus text exposition format.
// Counter names are prefixed ztgate_*_total; the single histogram is
// ztgate_process_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate gateway state.
package prometheus
