// Package transport emits telemetry and alert records as
// newline-delimited JSON. Dispatch is pluggable via the Sink interface,
// but the shipped Sink always writes to stdout regardless of the
// configured endpoint: wiring a real network dispatcher is future
// work, the wire shape is what's specified here.
package transport

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jihwankim/aegis-agent/pkg/anomaly"
	"github.com/jihwankim/aegis-agent/pkg/classifier"
	"github.com/jihwankim/aegis-agent/pkg/telemetry"
)

// Sink is the destination for emitted NDJSON records.
type Sink interface {
	io.Writer
	Flush() error
}

// stdoutSink is the only Sink shipped today. The endpoint URL passed to
// NewStdoutSink is accepted but neither stored nor dialed: every record
// is written to the sink's writer.
type stdoutSink struct {
	mu  sync.Mutex
	w   *bufio.Writer
	out io.Writer
}

// NewStdoutSink returns a Sink that writes to out (typically os.Stdout).
// endpointURL is accepted for interface symmetry with a future network
// sink and is otherwise unused.
func NewStdoutSink(out io.Writer, endpointURL string) Sink {
	return &stdoutSink{w: bufio.NewWriter(out), out: out}
}

func (s *stdoutSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *stdoutSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// Emitter writes telemetry and alert records to a Sink.
type Emitter struct {
	sink Sink
}

// NewEmitter returns an Emitter writing to sink.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

// escapeJSONString writes s to w as a double-quoted JSON string using
// the exact control-character escaping the wire format requires:
// backslash/quote escapes, the named short escapes for \b \f \n \r \t,
// and \uXXXX for any other control byte. This intentionally does not
// delegate to encoding/json, which would make different escaping
// choices (e.g. for '<', '>', '&') and offers no field-order guarantee.
func escapeJSONString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if c < 0x20 {
				fmt.Fprintf(sb, `\u%04x`, c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('"')
}

// EmitTelemetry writes one telemetry record. anomalyResult and
// classifierResult are optional: anomaly-derived fields are included
// only when anomalyResult is non-nil, and verdict fields only when
// classifierResult is non-nil, matching the tiered record shape of the
// wire format.
func (e *Emitter) EmitTelemetry(sample telemetry.Sample, anomalyResult *anomaly.Result, classifierResult *classifier.Result) error {
	var sb strings.Builder

	sb.WriteString(`{"type":"telemetry",`)
	fmt.Fprintf(&sb, `"timestamp_ns":%d,`, sample.TimestampNS)
	fmt.Fprintf(&sb, `"cycles_per_sec":%.6f,`, sample.CyclesPerSec)
	fmt.Fprintf(&sb, `"cache_miss_rate":%.6f,`, sample.CacheMissRate)
	fmt.Fprintf(&sb, `"files_modified_per_sec":%.6f,`, sample.FilesModifiedPerSec)
	fmt.Fprintf(&sb, `"disk_write_bytes_per_sec":%.6f,`, sample.DiskWriteBytesPerSec)
	fmt.Fprintf(&sb, `"top_pid":%d,`, sample.TopPID)
	sb.WriteString(`"top_comm":`)
	escapeJSONString(&sb, sample.TopComm)

	if anomalyResult != nil {
		fmt.Fprintf(&sb, `,"anomaly_score":%.6f,"z_score":%.6f,"flags":%d`,
			anomalyResult.AnomalyScore, anomalyResult.ZScore, anomalyResult.Flags)
	}

	if classifierResult != nil {
		fmt.Fprintf(&sb, `,"verdict":"%s","confidence":%.6f,"ransomware_score":%.6f`,
			classifierResult.Verdict.String(), classifierResult.Confidence, classifierResult.RansomwareScore)
	}

	sb.WriteString("}\n")

	if _, err := io.WriteString(e.sink, sb.String()); err != nil {
		return fmt.Errorf("transport: write telemetry record: %w", err)
	}
	return e.sink.Flush()
}

// EmitAlert writes one alert record, but only if classifierResult's
// verdict is RANSOMWARE; any other verdict is a silent no-op, matching
// the reference behavior.
func (e *Emitter) EmitAlert(sample *telemetry.Sample, anomalyResult *anomaly.Result, classifierResult classifier.Result) error {
	if classifierResult.Verdict != classifier.VerdictRansomware {
		return nil
	}

	var flags uint32
	if anomalyResult != nil {
		flags = anomalyResult.Flags
	}

	var sb strings.Builder
	sb.WriteString(`{"type":"alert",`)
	if sample != nil {
		fmt.Fprintf(&sb, `"timestamp_ns":%d,`, sample.TimestampNS)
	}
	fmt.Fprintf(&sb, `"ransomware_score":%.6f,"flags":%d,"confidence":%.6f}`,
		classifierResult.RansomwareScore, flags, classifierResult.Confidence)
	sb.WriteString("\n")

	if _, err := io.WriteString(e.sink, sb.String()); err != nil {
		return fmt.Errorf("transport: write alert record: %w", err)
	}
	return e.sink.Flush()
}
