// Package baseline implements the durable per-metric statistical
// baseline used to judge whether observed telemetry is anomalous. The
// baseline is persisted to disk in a fixed binary format and survives
// process restarts.
package baseline

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jihwankim/aegis-agent/pkg/stats"
	"github.com/jihwankim/aegis-agent/pkg/telemetry"
)

const (
	magic           = "AEGBL001"
	formatVersion   = uint32(1)
	endianMarker    = uint32(0x01020304)
	readyMinSamples = 300
)

// metricOrder fixes the on-disk block ordering. instructions_per_sec is
// deliberately excluded: it is tracked only by the transient pipeline
// model, never persisted.
var metricOrder = [7]string{
	"aes_instructions_per_sec",
	"cycles_per_sec",
	"cache_miss_rate",
	"files_modified_per_sec",
	"files_renamed_per_sec",
	"files_deleted_per_sec",
	"disk_write_bytes_per_sec",
}

// Store holds one RunningStat per persisted metric, guarded by a single
// mutex, with atomic save/load to a fixed binary file format.
type Store struct {
	mu    sync.Mutex
	stats map[string]*stats.RunningStat
}

// New returns an empty, initialized Store.
func New() *Store {
	s := &Store{stats: make(map[string]*stats.RunningStat, len(metricOrder))}
	for _, name := range metricOrder {
		s.stats[name] = &stats.RunningStat{}
	}
	return s
}

// Update folds one telemetry sample into every tracked metric's running
// statistics. AES instructions-per-second is folded in only when the
// sample reports the counter as supported (a non-negative value, so the
// -1.0 sentinel is excluded). Every metric, AES included, is further
// gated on stats.IsFinite: a NaN or +/-Inf reading contributes to no
// statistic rather than permanently poisoning its mean/m2.
func (s *Store) Update(sample telemetry.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sample.AESInstructionsPerSec >= 0 && stats.IsFinite(sample.AESInstructionsPerSec) {
		s.stats["aes_instructions_per_sec"].Update(sample.AESInstructionsPerSec)
	}
	if stats.IsFinite(sample.CyclesPerSec) {
		s.stats["cycles_per_sec"].Update(sample.CyclesPerSec)
	}
	if stats.IsFinite(sample.CacheMissRate) {
		s.stats["cache_miss_rate"].Update(sample.CacheMissRate)
	}
	if stats.IsFinite(sample.FilesModifiedPerSec) {
		s.stats["files_modified_per_sec"].Update(sample.FilesModifiedPerSec)
	}
	if stats.IsFinite(sample.FilesRenamedPerSec) {
		s.stats["files_renamed_per_sec"].Update(sample.FilesRenamedPerSec)
	}
	if stats.IsFinite(sample.FilesDeletedPerSec) {
		s.stats["files_deleted_per_sec"].Update(sample.FilesDeletedPerSec)
	}
	if stats.IsFinite(sample.DiskWriteBytesPerSec) {
		s.stats["disk_write_bytes_per_sec"].Update(sample.DiskWriteBytesPerSec)
	}
}

// Ready reports whether every tracked metric has accumulated at least
// readyMinSamples observations.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range metricOrder {
		if s.stats[name].Count() < readyMinSamples {
			return false
		}
	}
	return true
}

// View returns a named RunningStat snapshot, or nil if metric is not
// tracked by the baseline.
func (s *Store) View(metric string) *stats.RunningStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.stats[metric]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

// Save atomically persists the baseline to path: it writes to
// "path.tmp", flushes and fsyncs the file, then renames it over path.
// On any failure the temp file is removed and the original file at
// path, if any, is left untouched.
func (s *Store) Save(path string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("baseline: create temp file: %w", err)
	}

	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	buf := &bytes.Buffer{}
	buf.WriteString(magic)
	binary.Write(buf, binary.LittleEndian, formatVersion)
	binary.Write(buf, binary.LittleEndian, endianMarker)

	for _, name := range metricOrder {
		r := s.stats[name]
		binary.Write(buf, binary.LittleEndian, r.Count())
		binary.Write(buf, binary.LittleEndian, r.Mean())
		binary.Write(buf, binary.LittleEndian, r.M2())
		binary.Write(buf, binary.LittleEndian, r.Variance())
		binary.Write(buf, binary.LittleEndian, r.StdDev())
	}

	if _, err = f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("baseline: write temp file: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("baseline: fsync temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("baseline: close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("baseline: rename temp file over %s: %w", path, err)
	}

	if dir, derr := os.Open(filepath.Dir(path)); derr == nil {
		dir.Sync()
		dir.Close()
	}

	return nil
}

// Load clears all in-memory state and then reads a baseline file
// written by Save. A missing file is not an error: the Store is left
// empty, matching a fresh install. Any other read error, or a
// magic/version/endian mismatch, is returned.
func (s *Store) Load(path string) error {
	s.mu.Lock()
	for _, name := range metricOrder {
		s.stats[name].Reset()
	}
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("baseline: open %s: %w", path, err)
	}
	defer f.Close()

	var gotMagic [8]byte
	if _, err := io.ReadFull(f, gotMagic[:]); err != nil {
		return fmt.Errorf("baseline: read magic: %w", err)
	}
	if string(gotMagic[:]) != magic {
		return fmt.Errorf("baseline: bad magic %q", gotMagic)
	}

	var version, endian uint32
	if err := binary.Read(f, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("baseline: read version: %w", err)
	}
	if version != formatVersion {
		return fmt.Errorf("baseline: unsupported version %d", version)
	}
	if err := binary.Read(f, binary.LittleEndian, &endian); err != nil {
		return fmt.Errorf("baseline: read endian marker: %w", err)
	}
	if endian != endianMarker {
		return fmt.Errorf("baseline: endian mismatch 0x%08x", endian)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range metricOrder {
		var count uint64
		var mean, m2, variance, stddev float64

		if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
			return fmt.Errorf("baseline: read %s count: %w", name, err)
		}
		if err := binary.Read(f, binary.LittleEndian, &mean); err != nil {
			return fmt.Errorf("baseline: read %s mean: %w", name, err)
		}
		if err := binary.Read(f, binary.LittleEndian, &m2); err != nil {
			return fmt.Errorf("baseline: read %s m2: %w", name, err)
		}
		if err := binary.Read(f, binary.LittleEndian, &variance); err != nil {
			return fmt.Errorf("baseline: read %s variance: %w", name, err)
		}
		if err := binary.Read(f, binary.LittleEndian, &stddev); err != nil {
			return fmt.Errorf("baseline: read %s stddev: %w", name, err)
		}

		r := &stats.RunningStat{}
		r.LoadFrom(count, mean, m2)
		s.stats[name] = r
	}

	return nil
}

// Shutdown saves the baseline to path and then clears all in-memory
// state. A save failure is returned but the in-memory state is cleared
// regardless, matching the original agent's best-effort shutdown.
func (s *Store) Shutdown(path string) error {
	err := s.Save(path)

	s.mu.Lock()
	for _, name := range metricOrder {
		s.stats[name].Reset()
	}
	s.mu.Unlock()

	return err
}

// Metrics returns the fixed metric names tracked by the baseline, in
// on-disk order.
func Metrics() []string {
	out := make([]string, len(metricOrder))
	copy(out, metricOrder[:])
	return out
}
