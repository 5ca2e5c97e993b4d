package sim

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

func TestRun(t *testing.T) {
	log, _ := testLogger()
	capture := filepath.Join(t.TempDir(), "infile.stdout")
	spec := RunSpec{
		Executable:  "true",
		Infile:      "infile.yaml",
		CaptureFile: capture,
	}
	if err := Run(context.Background(), spec, log); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(capture); err != nil {
		t.Errorf("capture file not created: %v", err)
	}
}

func TestRunNonZeroExitIsFatal(t *testing.T) {
	log, _ := testLogger()
	spec := RunSpec{
		Executable:  "false",
		Infile:      "infile.yaml",
		CaptureFile: filepath.Join(t.TempDir(), "infile.stdout"),
	}
	if err := Run(context.Background(), spec, log); err == nil {
		t.Error("want error for non-zero simulation exit status")
	}
}

func TestBatchRun(t *testing.T) {
	log, _ := testLogger()
	dir := t.TempDir()
	members := []*Member{
		{ID: 1981, Spec: RunSpec{
			Executable:  "true",
			Infile:      "infile_8081.yaml",
			CaptureFile: filepath.Join(dir, "infile_8081.stdout"),
		}},
		{ID: 1982, Spec: RunSpec{
			Executable:  "true",
			Infile:      "infile_8182.yaml",
			CaptureFile: filepath.Join(dir, "infile_8182.stdout"),
		}},
		{ID: 1983, Spec: RunSpec{
			Executable:  "true",
			Infile:      "infile_8283.yaml",
			CaptureFile: filepath.Join(dir, "infile_8283.stdout"),
		}},
	}
	batch := NewBatch(members, 2, 10*time.Millisecond, log)
	if err := batch.Run(context.Background()); err != nil {
		t.Fatalf("Batch.Run: %v", err)
	}
	for _, member := range members {
		if member.State() != Completed {
			t.Errorf("member %d state = %v, want Completed", member.ID, member.State())
		}
		if member.Err() != nil {
			t.Errorf("member %d failed: %v", member.ID, member.Err())
		}
	}
}

func TestBatchRunMemberFailureDoesNotStopBatch(t *testing.T) {
	log, logs := testLogger()
	dir := t.TempDir()
	members := []*Member{
		{ID: 1981, Spec: RunSpec{
			Executable:  "false",
			Infile:      "infile_8081.yaml",
			CaptureFile: filepath.Join(dir, "infile_8081.stdout"),
		}},
		{ID: 1982, Spec: RunSpec{
			Executable:  "true",
			Infile:      "infile_8182.yaml",
			CaptureFile: filepath.Join(dir, "infile_8182.stdout"),
		}},
	}
	batch := NewBatch(members, 1, 10*time.Millisecond, log)
	if err := batch.Run(context.Background()); err != nil {
		t.Fatalf("Batch.Run: %v", err)
	}
	if members[0].Err() == nil {
		t.Error("failed member must retain its error")
	}
	if members[1].Err() != nil {
		t.Errorf("member 1982 failed: %v", members[1].Err())
	}
	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 1 {
		t.Error("member failure must be logged as an error")
	}
}

func TestBatchRunCancelled(t *testing.T) {
	log, _ := testLogger()
	members := []*Member{
		{ID: 1981, Spec: RunSpec{
			Executable:  "sleep",
			Infile:      "1",
			CaptureFile: filepath.Join(t.TempDir(), "infile.stdout"),
		}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batch := NewBatch(members, 1, 10*time.Millisecond, log)
	if err := batch.Run(ctx); err == nil {
		t.Error("want context error from cancelled batch")
	}
}
