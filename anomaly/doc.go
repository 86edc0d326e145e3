// Package anomaly provides the online per-session traffic scorer used by the
// ztgate gateway.
//
// # Scoring semantics
//
// [Detector.Update] maintains an exponential moving average and Welford running
// mean/variance accumulators over a scalar observation stream (packets per
// second in the gateway hot path) and returns the deviation of the newest
// observation from the running mean, measured in sample standard deviations.
// Fewer than two observations, or a degenerate zero-variance stream, score 0.
//
// # What this package must NOT do
//
//   - Perform I/O or read clocks. Observations arrive fully formed.
//   - Synchronize. Callers serialize access per detector (the gateway's
//     registry lock does this for per-session detectors).
package anomaly
