// Package pipeline implements the transient, in-process running-stats
// model used by the anomaly engine. Unlike pkg/baseline it is never
// persisted and it tracks instructions_per_sec in addition to the seven
// metrics the baseline keeps durable.
package pipeline

import (
	"sync"

	"github.com/jihwankim/aegis-agent/pkg/stats"
	"github.com/jihwankim/aegis-agent/pkg/telemetry"
)

const readyMinSamples = 300

// MetricView is a read-only snapshot of one metric's running
// statistics at a point in time.
type MetricView struct {
	Count  uint64
	Mean   float64
	StdDev float64
	Ready  bool
}

// ModelView is a snapshot of every tracked metric, taken atomically
// before the current sample is folded into the running statistics.
type ModelView struct {
	AESInstructionsPerSec MetricView
	CyclesPerSec          MetricView
	InstructionsPerSec    MetricView
	CacheMissRate         MetricView
	FilesModifiedPerSec   MetricView
	FilesRenamedPerSec    MetricView
	FilesDeletedPerSec    MetricView
	DiskWriteBytesPerSec  MetricView
}

// Model holds one RunningStat per tracked metric, guarded by a single
// mutex.
type Model struct {
	mu sync.Mutex

	aes            stats.RunningStat
	cycles         stats.RunningStat
	instructions   stats.RunningStat
	cacheMissRate  stats.RunningStat
	filesModified  stats.RunningStat
	filesRenamed   stats.RunningStat
	filesDeleted   stats.RunningStat
	diskWriteBytes stats.RunningStat
}

// New returns an empty Model.
func New() *Model {
	return &Model{}
}

func snapshot(r *stats.RunningStat) MetricView {
	return MetricView{
		Count:  r.Count(),
		Mean:   r.Mean(),
		StdDev: r.StdDev(),
		Ready:  r.Count() >= readyMinSamples,
	}
}

// SnapshotAndUpdate returns a ModelView reflecting the state of every
// metric BEFORE sample is folded in, then updates the running
// statistics with sample. This ordering — snapshot first, update
// second, both under the same lock — is the load-bearing contract that
// keeps z-scores computed against prior history only.
func (m *Model) SnapshotAndUpdate(sample telemetry.Sample) ModelView {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := ModelView{
		AESInstructionsPerSec: snapshot(&m.aes),
		CyclesPerSec:          snapshot(&m.cycles),
		InstructionsPerSec:    snapshot(&m.instructions),
		CacheMissRate:         snapshot(&m.cacheMissRate),
		FilesModifiedPerSec:   snapshot(&m.filesModified),
		FilesRenamedPerSec:    snapshot(&m.filesRenamed),
		FilesDeletedPerSec:    snapshot(&m.filesDeleted),
		DiskWriteBytesPerSec:  snapshot(&m.diskWriteBytes),
	}

	// Every metric is gated on stats.IsFinite: a NaN or +/-Inf reading
	// contributes to no statistic rather than permanently poisoning its
	// mean/m2.
	if sample.AESInstructionsPerSec >= 0 && stats.IsFinite(sample.AESInstructionsPerSec) {
		m.aes.Update(sample.AESInstructionsPerSec)
	}
	if stats.IsFinite(sample.CyclesPerSec) {
		m.cycles.Update(sample.CyclesPerSec)
	}
	if stats.IsFinite(sample.InstructionsPerSec) {
		m.instructions.Update(sample.InstructionsPerSec)
	}
	if stats.IsFinite(sample.CacheMissRate) {
		m.cacheMissRate.Update(sample.CacheMissRate)
	}
	if stats.IsFinite(sample.FilesModifiedPerSec) {
		m.filesModified.Update(sample.FilesModifiedPerSec)
	}
	if stats.IsFinite(sample.FilesRenamedPerSec) {
		m.filesRenamed.Update(sample.FilesRenamedPerSec)
	}
	if stats.IsFinite(sample.FilesDeletedPerSec) {
		m.filesDeleted.Update(sample.FilesDeletedPerSec)
	}
	if stats.IsFinite(sample.DiskWriteBytesPerSec) {
		m.diskWriteBytes.Update(sample.DiskWriteBytesPerSec)
	}

	return view
}

// Reset clears all tracked metrics back to their zero state.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.aes.Reset()
	m.cycles.Reset()
	m.instructions.Reset()
	m.cacheMissRate.Reset()
	m.filesModified.Reset()
	m.filesRenamed.Reset()
	m.filesDeleted.Reset()
	m.diskWriteBytes.Reset()
}
