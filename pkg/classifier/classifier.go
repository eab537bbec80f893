// Package classifier converts an anomaly result into a ransomware
// score and a discrete verdict.
package classifier

import "github.com/jihwankim/aegis-agent/pkg/anomaly"

// Verdict is the discrete classification outcome.
type Verdict int

const (
	VerdictSafe Verdict = iota
	VerdictSuspicious
	VerdictRansomware
)

func (v Verdict) String() string {
	switch v {
	case VerdictRansomware:
		return "RANSOMWARE"
	case VerdictSuspicious:
		return "SUSPICIOUS"
	default:
		return "SAFE"
	}
}

const (
	weightAnomalyScore = 0.5
	weightWriteStorm   = 0.20
	weightRenameStorm  = 0.15
	weightDeleteStorm  = 0.10
	weightCryptoSpike  = 0.25

	ransomwareThreshold = 0.85
	suspiciousThreshold = 0.55
)

// Result is the classifier's output for one sample.
type Result struct {
	RansomwareScore float64
	Verdict         Verdict
	Confidence      float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func flagWeight(flags uint32, flag uint32, weight float64) float64 {
	if flags&flag != 0 {
		return weight
	}
	return 0
}

// Classify computes the ransomware score and verdict for one anomaly
// result.
func Classify(a anomaly.Result) Result {
	score := weightAnomalyScore*clamp01(a.AnomalyScore) +
		flagWeight(a.Flags, anomaly.FlagWriteStorm, weightWriteStorm) +
		flagWeight(a.Flags, anomaly.FlagRenameStorm, weightRenameStorm) +
		flagWeight(a.Flags, anomaly.FlagDeleteStorm, weightDeleteStorm) +
		flagWeight(a.Flags, anomaly.FlagCryptoSpike, weightCryptoSpike)

	score = clamp01(score)

	return Result{
		RansomwareScore: score,
		Verdict:         scoreToVerdict(score),
		Confidence:      score,
	}
}

func scoreToVerdict(score float64) Verdict {
	switch {
	case score >= ransomwareThreshold:
		return VerdictRansomware
	case score >= suspiciousThreshold:
		return VerdictSuspicious
	default:
		return VerdictSafe
	}
}
