// Package stats implements Welford's online algorithm for running mean
// and variance, shared by the durable baseline store and the transient
// pipeline model.
package stats

import "math"

// RunningStat tracks count, mean, and the sum of squared deviations (m2)
// for a single metric using Welford's algorithm. The zero value is a
// valid, empty RunningStat.
type RunningStat struct {
	count uint64
	mean  float64
	m2    float64
}

// IsFinite reports whether value is safe to fold into a RunningStat — a
// NaN or +/-Inf reading would otherwise poison mean/m2 permanently,
// since Welford's delta-from-mean update never recovers from a NaN
// mean. Callers must gate Update with this check.
func IsFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

// Update folds value into the running statistics using the exact
// two-delta Welford form: naive sum/sum-of-squares accumulation loses
// precision over long-running processes and must not be substituted.
func (r *RunningStat) Update(value float64) {
	r.count++
	delta := value - r.mean
	r.mean += delta / float64(r.count)
	delta2 := value - r.mean
	r.m2 += delta * delta2
}

// Count returns the number of samples folded into the statistic.
func (r *RunningStat) Count() uint64 {
	return r.count
}

// Mean returns the running mean. Zero if no samples have been seen.
func (r *RunningStat) Mean() float64 {
	return r.mean
}

// M2 returns the raw sum-of-squared-deviations accumulator, exposed for
// serialization by pkg/baseline.
func (r *RunningStat) M2() float64 {
	return r.m2
}

// Variance returns the sample variance, or 0 if fewer than two samples
// have been observed.
func (r *RunningStat) Variance() float64 {
	if r.count < 2 {
		return 0
	}
	return r.m2 / float64(r.count-1)
}

// StdDev returns the sample standard deviation. Returns 0 if the
// variance is non-finite or non-positive.
func (r *RunningStat) StdDev() float64 {
	v := r.Variance()
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

// LoadFrom restores a RunningStat from previously persisted fields,
// used by pkg/baseline when reading a baseline file from disk.
func (r *RunningStat) LoadFrom(count uint64, mean, m2 float64) {
	r.count = count
	r.mean = mean
	r.m2 = m2
}

// Reset clears the statistic back to its zero value.
func (r *RunningStat) Reset() {
	r.count = 0
	r.mean = 0
	r.m2 = 0
}
