package anomaly_test

import (
	"testing"

	"github.com/jihwankim/aegis-agent/pkg/anomaly"
	"github.com/jihwankim/aegis-agent/pkg/pipeline"
	"github.com/jihwankim/aegis-agent/pkg/telemetry"
)

func readyView(mean, stddev float64) pipeline.MetricView {
	return pipeline.MetricView{Count: 300, Mean: mean, StdDev: stddev, Ready: true}
}

func TestEvaluateNotReadyYieldsZeroScore(t *testing.T) {
	e := anomaly.New()
	sample := telemetry.Sample{CyclesPerSec: 1000, AESInstructionsPerSec: telemetry.AESUnsupported}
	view := pipeline.ModelView{} // nothing ready

	result := e.Evaluate(sample, view)
	if result.AnomalyScore != 0 || result.Flags != 0 || result.IsAnomalous {
		t.Fatalf("expected no anomaly when model not ready, got %+v", result)
	}
}

func TestEvaluateWriteStormFlagged(t *testing.T) {
	e := anomaly.New()
	sample := telemetry.Sample{
		AESInstructionsPerSec: telemetry.AESUnsupported,
		FilesModifiedPerSec:   1000,
	}
	view := pipeline.ModelView{
		FilesModifiedPerSec: readyView(10, 2),
	}

	result := e.Evaluate(sample, view)
	if result.Flags&anomaly.FlagWriteStorm == 0 {
		t.Fatalf("expected WRITE_STORM flag, got flags=%d", result.Flags)
	}
	if !result.IsAnomalous {
		t.Fatalf("expected IsAnomalous true when flags are set")
	}
}

func TestEvaluateHardThresholdFallback(t *testing.T) {
	e := anomaly.New()
	// Model not ready (zero stddev everywhere), but the absolute
	// files-modified rate alone should still trip WRITE_STORM.
	sample := telemetry.Sample{
		AESInstructionsPerSec: telemetry.AESUnsupported,
		FilesModifiedPerSec:   600,
	}
	view := pipeline.ModelView{}

	result := e.Evaluate(sample, view)
	if result.Flags&anomaly.FlagWriteStorm == 0 {
		t.Fatalf("expected hard-threshold WRITE_STORM fallback, got flags=%d", result.Flags)
	}
}

func TestEvaluateCryptoSpikeRequiresBothClauses(t *testing.T) {
	e := anomaly.New()
	view := pipeline.ModelView{
		CyclesPerSec:         readyView(100, 10),
		InstructionsPerSec:   readyView(100, 10),
		DiskWriteBytesPerSec: readyView(100, 10),
	}

	// Cycles spike alone, disk write normal: no CRYPTO_SPIKE.
	sample := telemetry.Sample{
		AESInstructionsPerSec: telemetry.AESUnsupported,
		CyclesPerSec:          1000,
		InstructionsPerSec:    1000,
		DiskWriteBytesPerSec:  100,
	}
	result := e.Evaluate(sample, view)
	if result.Flags&anomaly.FlagCryptoSpike != 0 {
		t.Fatalf("CRYPTO_SPIKE should require a simultaneous disk-write spike, got flags=%d", result.Flags)
	}

	// Both cycles and disk write spike: CRYPTO_SPIKE should fire.
	sample.DiskWriteBytesPerSec = 1000
	result = e.Evaluate(sample, view)
	if result.Flags&anomaly.FlagCryptoSpike == 0 {
		t.Fatalf("expected CRYPTO_SPIKE when both clauses hold, got flags=%d", result.Flags)
	}
}

func TestEvaluateCryptoSpikeWithAESNeedsNoDiskWriteClause(t *testing.T) {
	e := anomaly.New()
	view := pipeline.ModelView{
		AESInstructionsPerSec: readyView(1e6, 1e5),
		DiskWriteBytesPerSec:  readyView(1e6, 1e5),
	}

	// AES spikes, disk write stays flat: CRYPTO_SPIKE should still fire
	// when an AES counter is available — the disk-write AND-clause is
	// only part of the no-AES fallback.
	sample := telemetry.Sample{
		AESInstructionsPerSec: 1e8,
		DiskWriteBytesPerSec:  1e6,
	}
	result := e.Evaluate(sample, view)
	if result.Flags&anomaly.FlagCryptoSpike == 0 {
		t.Fatalf("expected CRYPTO_SPIKE from an AES spike alone when AES is supported, got flags=%d", result.Flags)
	}
}

func TestEvaluateWriteStormFromDiskWriteSpikeAlone(t *testing.T) {
	e := anomaly.New()
	sample := telemetry.Sample{
		AESInstructionsPerSec: telemetry.AESUnsupported,
		DiskWriteBytesPerSec:  10000,
	}
	view := pipeline.ModelView{
		DiskWriteBytesPerSec: readyView(100, 10),
	}

	result := e.Evaluate(sample, view)
	if result.Flags&anomaly.FlagWriteStorm == 0 {
		t.Fatalf("expected WRITE_STORM from a disk-write z-spike alone, got flags=%d", result.Flags)
	}
}

func TestEvaluateHardThresholdsAreStrictlyGreaterThan(t *testing.T) {
	e := anomaly.New()

	atThreshold := telemetry.Sample{
		AESInstructionsPerSec: telemetry.AESUnsupported,
		FilesModifiedPerSec:   500,
		FilesRenamedPerSec:    200,
	}
	result := e.Evaluate(atThreshold, pipeline.ModelView{})
	if result.Flags&anomaly.FlagWriteStorm != 0 {
		t.Fatalf("files_modified_per_sec exactly at the hard threshold must not trip WRITE_STORM, got flags=%d", result.Flags)
	}
	if result.Flags&anomaly.FlagRenameStorm != 0 {
		t.Fatalf("files_renamed_per_sec exactly at the hard threshold must not trip RENAME_STORM, got flags=%d", result.Flags)
	}

	aboveThreshold := telemetry.Sample{
		AESInstructionsPerSec: telemetry.AESUnsupported,
		FilesModifiedPerSec:   500.0001,
		FilesRenamedPerSec:    200.0001,
	}
	result = e.Evaluate(aboveThreshold, pipeline.ModelView{})
	if result.Flags&anomaly.FlagWriteStorm == 0 {
		t.Fatalf("files_modified_per_sec just above the hard threshold should trip WRITE_STORM, got flags=%d", result.Flags)
	}
	if result.Flags&anomaly.FlagRenameStorm == 0 {
		t.Fatalf("files_renamed_per_sec just above the hard threshold should trip RENAME_STORM, got flags=%d", result.Flags)
	}
}
