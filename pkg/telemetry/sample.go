// Package telemetry defines the per-tick sample shape collected from
// the host and the Collector interface that produces it.
package telemetry

import "context"

// AESUnsupported is the sentinel value reported for AESInstructionsPerSec
// when the host has no usable AES-NI instruction counter.
const AESUnsupported = -1.0

// Sample is one tick's worth of host telemetry.
type Sample struct {
	TimestampNS uint64

	AESInstructionsPerSec float64 // AESUnsupported if unavailable
	CyclesPerSec          float64
	InstructionsPerSec    float64
	CacheMissRate         float64

	FilesModifiedPerSec float64
	FilesRenamedPerSec  float64
	FilesDeletedPerSec  float64

	DiskReadBytesPerSec  float64
	DiskWriteBytesPerSec float64

	TopPID  int64
	TopComm string // truncated to 63 bytes by the collector
}

// Collector produces telemetry samples. Implementations are expected to
// compute per-second rates from tick-over-tick deltas; the first sample
// after Init/construction may legitimately report zero rates since
// there is no prior tick to diff against.
type Collector interface {
	Collect(ctx context.Context) (Sample, error)
	Close() error
}
