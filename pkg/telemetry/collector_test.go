package telemetry_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jihwankim/aegis-agent/pkg/telemetry"
)

func TestNewHostCollectorRejectsEmptyRootPath(t *testing.T) {
	if _, err := telemetry.NewHostCollector(telemetry.HostCollectorConfig{}); err == nil {
		t.Fatalf("expected an error for an empty RootPath")
	}
}

func TestCollectFirstTickPrimesWithoutFileRates(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	c, err := telemetry.NewHostCollector(telemetry.HostCollectorConfig{RootPath: dir})
	if err != nil {
		t.Fatalf("NewHostCollector: %v", err)
	}

	sample, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if sample.AESInstructionsPerSec != telemetry.AESUnsupported {
		t.Fatalf("expected AES sentinel on first tick, got %v", sample.AESInstructionsPerSec)
	}
	if sample.FilesModifiedPerSec != 0 || sample.FilesRenamedPerSec != 0 || sample.FilesDeletedPerSec != 0 {
		t.Fatalf("expected zero file rates on the priming tick, got %+v", sample)
	}
}

func TestCollectDetectsModifiedAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.txt")
	if err := os.WriteFile(existing, []byte("v1"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	c, err := telemetry.NewHostCollector(telemetry.HostCollectorConfig{RootPath: dir})
	if err != nil {
		t.Fatalf("NewHostCollector: %v", err)
	}

	if _, err := c.Collect(context.Background()); err != nil {
		t.Fatalf("priming Collect: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if err := os.WriteFile(existing, []byte("v2 is a longer payload"), 0o600); err != nil {
		t.Fatalf("modify existing file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("new"), 0o600); err != nil {
		t.Fatalf("create new file: %v", err)
	}

	sample, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("second Collect: %v", err)
	}

	if sample.FilesModifiedPerSec <= 0 {
		t.Fatalf("expected a positive files_modified_per_sec after modifying an existing file, got %v", sample.FilesModifiedPerSec)
	}
	if sample.FilesRenamedPerSec <= 0 {
		t.Fatalf("expected a positive files_renamed_per_sec after a new path appeared, got %v", sample.FilesRenamedPerSec)
	}
}

func TestCollectDetectsDeletedFiles(t *testing.T) {
	dir := t.TempDir()
	doomed := filepath.Join(dir, "doomed.txt")
	if err := os.WriteFile(doomed, []byte("bye"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	c, err := telemetry.NewHostCollector(telemetry.HostCollectorConfig{RootPath: dir})
	if err != nil {
		t.Fatalf("NewHostCollector: %v", err)
	}
	if _, err := c.Collect(context.Background()); err != nil {
		t.Fatalf("priming Collect: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if err := os.Remove(doomed); err != nil {
		t.Fatalf("remove: %v", err)
	}

	sample, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("second Collect: %v", err)
	}
	if sample.FilesDeletedPerSec <= 0 {
		t.Fatalf("expected a positive files_deleted_per_sec after removing a file, got %v", sample.FilesDeletedPerSec)
	}
}

func TestCollectReportsMonotonicTimestamps(t *testing.T) {
	dir := t.TempDir()
	c, err := telemetry.NewHostCollector(telemetry.HostCollectorConfig{RootPath: dir})
	if err != nil {
		t.Fatalf("NewHostCollector: %v", err)
	}

	first, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("first Collect: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("second Collect: %v", err)
	}
	if second.TimestampNS <= first.TimestampNS {
		t.Fatalf("expected strictly increasing timestamps, got %d then %d", first.TimestampNS, second.TimestampNS)
	}
}

func TestCloseIsNoOp(t *testing.T) {
	c, err := telemetry.NewHostCollector(telemetry.HostCollectorConfig{RootPath: t.TempDir()})
	if err != nil {
		t.Fatalf("NewHostCollector: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
