// Package anomaly scores each telemetry sample against the transient
// pipeline model and derives a bitset of specific anomaly flags.
package anomaly

import (
	"math"

	"github.com/jihwankim/aegis-agent/pkg/pipeline"
	"github.com/jihwankim/aegis-agent/pkg/telemetry"
)

// Flag bits, combinable.
const (
	FlagCryptoSpike uint32 = 1 << iota
	FlagWriteStorm
	FlagRenameStorm
	FlagDeleteStorm
)

const (
	zThresholdFlag        = 3.0
	zStdDevEpsilon        = 1e-9
	anomalyScoreThreshold = 0.7
	anomalyScoreK         = 1.0

	hardFilesModifiedPerSec = 500.0
	hardFilesRenamedPerSec  = 200.0
	hardDiskWriteBPS        = 50.0 * 1024 * 1024
)

// Result is the outcome of evaluating one sample against the pipeline
// model.
type Result struct {
	AnomalyScore float64
	ZScore       float64 // max |z| across all tracked metrics
	Flags        uint32
	IsAnomalous  bool
}

// Engine evaluates telemetry samples for anomalies. It is stateless:
// all running state lives in the pipeline.Model passed to Evaluate.
type Engine struct{}

// New returns a ready-to-use Engine.
func New() *Engine {
	return &Engine{}
}

func absZ(value, mean, stddev float64, ready bool) float64 {
	if !ready || stddev <= zStdDevEpsilon {
		return 0
	}
	z := (value - mean) / stddev
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 0
	}
	return math.Abs(z)
}

// Evaluate scores sample against view, the pre-update snapshot returned
// by pipeline.Model.SnapshotAndUpdate for this same sample.
func (e *Engine) Evaluate(sample telemetry.Sample, view pipeline.ModelView) Result {
	zAES := 0.0
	if sample.AESInstructionsPerSec >= 0 {
		zAES = absZ(sample.AESInstructionsPerSec, view.AESInstructionsPerSec.Mean, view.AESInstructionsPerSec.StdDev, view.AESInstructionsPerSec.Ready)
	}
	zCycles := absZ(sample.CyclesPerSec, view.CyclesPerSec.Mean, view.CyclesPerSec.StdDev, view.CyclesPerSec.Ready)
	zInstructions := absZ(sample.InstructionsPerSec, view.InstructionsPerSec.Mean, view.InstructionsPerSec.StdDev, view.InstructionsPerSec.Ready)
	zCacheMiss := absZ(sample.CacheMissRate, view.CacheMissRate.Mean, view.CacheMissRate.StdDev, view.CacheMissRate.Ready)
	zFilesModified := absZ(sample.FilesModifiedPerSec, view.FilesModifiedPerSec.Mean, view.FilesModifiedPerSec.StdDev, view.FilesModifiedPerSec.Ready)
	zFilesRenamed := absZ(sample.FilesRenamedPerSec, view.FilesRenamedPerSec.Mean, view.FilesRenamedPerSec.StdDev, view.FilesRenamedPerSec.Ready)
	zFilesDeleted := absZ(sample.FilesDeletedPerSec, view.FilesDeletedPerSec.Mean, view.FilesDeletedPerSec.StdDev, view.FilesDeletedPerSec.Ready)
	zDiskWrite := absZ(sample.DiskWriteBytesPerSec, view.DiskWriteBytesPerSec.Mean, view.DiskWriteBytesPerSec.StdDev, view.DiskWriteBytesPerSec.Ready)

	maxZ := zAES
	for _, z := range []float64{zCycles, zInstructions, zCacheMiss, zFilesModified, zFilesRenamed, zFilesDeleted, zDiskWrite} {
		if z > maxZ {
			maxZ = z
		}
	}

	score := 0.0
	if maxZ > 0 {
		score = 1 - math.Exp(-anomalyScoreK*maxZ)
	}

	var flags uint32

	aesSupported := sample.AESInstructionsPerSec >= 0
	if aesSupported {
		if zAES >= zThresholdFlag {
			flags |= FlagCryptoSpike
		}
	} else if math.Max(zCycles, zInstructions) >= zThresholdFlag && zDiskWrite >= zThresholdFlag {
		// No AES counter available: fall back to a cycles/instructions
		// spike that also coincides with a disk-write spike.
		flags |= FlagCryptoSpike
	}

	if zFilesModified >= zThresholdFlag || zDiskWrite >= zThresholdFlag {
		flags |= FlagWriteStorm
	}
	if zFilesRenamed >= zThresholdFlag {
		flags |= FlagRenameStorm
	}
	if zFilesDeleted >= zThresholdFlag {
		flags |= FlagDeleteStorm
	}

	// Absolute hard-threshold fallbacks for metrics whose baseline may
	// not yet be established, or whose variance is naturally so low
	// that a z-score never trips: only WRITE_STORM and RENAME_STORM
	// have an absolute fallback, matching the reference detector.
	if sample.FilesModifiedPerSec > hardFilesModifiedPerSec {
		flags |= FlagWriteStorm
	}
	if sample.FilesRenamedPerSec > hardFilesRenamedPerSec {
		flags |= FlagRenameStorm
	}
	if sample.DiskWriteBytesPerSec > hardDiskWriteBPS {
		flags |= FlagWriteStorm
	}
	// DELETE_STORM has no absolute fallback.

	return Result{
		AnomalyScore: score,
		ZScore:       maxZ,
		Flags:        flags,
		IsAnomalous:  score >= anomalyScoreThreshold || flags != 0,
	}
}
