package anomaly

import "math"

// DefaultAlpha is an exported constant or variable used by the tunnel gateway.
const DefaultAlpha = 0.3

// Detector defines a public type used by ztgate APIs.
//
// Detector instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Detector struct {
	alpha float64
	ema   float64

	count uint64
	mean  float64
	m2    float64
}

// Snapshot defines a public type used by ztgate APIs.
//
// Snapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Snapshot struct {
	Alpha  float64
	EMA    float64
	Count  uint64
	Mean   float64
	Stddev float64
}

// NewDetector describes the newdetector operation and its observable behavior.
//
// NewDetector may return an error when input validation, dependency calls, or security checks fail.
// NewDetector does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewDetector(alpha float64) *Detector {
	if alpha <= 0 || alpha >= 1 || math.IsNaN(alpha) {
		alpha = DefaultAlpha
	}
	return &Detector{alpha: alpha}
}

// Update feeds one observation and returns its deviation score: 0 until two
// observations exist or while the stream variance is zero, otherwise
// (value - mean) / stddev with mean/stddev taken after the update.
func (d *Detector) Update(value float64) float64 {
	if d.count == 0 {
		d.ema = value
	} else {
		d.ema = d.alpha*value + (1-d.alpha)*d.ema
	}

	d.count++
	delta := value - d.mean
	d.mean += delta / float64(d.count)
	d.m2 += delta * (value - d.mean)

	if d.count < 2 {
		return 0
	}
	std := d.Stddev()
	if std == 0 {
		return 0
	}
	return (value - d.mean) / std
}

// Stddev describes the stddev operation and its observable behavior.
//
// Stddev may return an error when input validation, dependency calls, or security checks fail.
// Stddev does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Detector) Stddev() float64 {
	if d.count < 2 {
		return 0
	}
	return math.Sqrt(d.m2 / float64(d.count-1))
}

// EMA describes the ema operation and its observable behavior.
//
// EMA may return an error when input validation, dependency calls, or security checks fail.
// EMA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Detector) EMA() float64 {
	return d.ema
}

// Count describes the count operation and its observable behavior.
//
// Count may return an error when input validation, dependency calls, or security checks fail.
// Count does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Detector) Count() uint64 {
	return d.count
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot may return an error when input validation, dependency calls, or security checks fail.
// Snapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Detector) Snapshot() Snapshot {
	return Snapshot{
		Alpha:  d.alpha,
		EMA:    d.ema,
		Count:  d.count,
		Mean:   d.mean,
		Stddev: d.Stddev(),
	}
}
