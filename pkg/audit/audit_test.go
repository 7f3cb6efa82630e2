package audit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEvent_New(t *testing.T) {
	run := NewRunID()
	event := NewEvent(run, "alice", "https://gateway.local:8443")

	if event.RunID != run {
		t.Errorf("RunID = %q, want %q", event.RunID, run)
	}
	if event.User != "alice" {
		t.Errorf("User = %q, want %q", event.User, "alice")
	}
	if event.Controller != "https://gateway.local:8443" {
		t.Errorf("Controller = %q", event.Controller)
	}
	if event.ID == "" {
		t.Error("ID should not be empty")
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestEvent_Chaining(t *testing.T) {
	event := NewEvent(NewRunID(), "alice", "gw").
		WithSite("default").
		WithMode(ModeApply).
		WithOperation("create segment/30", "segment/30").
		WithOutcome(OutcomeSucceeded).
		WithSnapshot("snap-1").
		WithDuration(time.Second)

	if event.Site != "default" {
		t.Errorf("Site = %q", event.Site)
	}
	if event.Mode != ModeApply {
		t.Errorf("Mode = %q", event.Mode)
	}
	if event.Operation != "create segment/30" || event.Target != "segment/30" {
		t.Errorf("Operation = %q, Target = %q", event.Operation, event.Target)
	}
	if event.Outcome != OutcomeSucceeded {
		t.Errorf("Outcome = %q", event.Outcome)
	}
	if event.SnapshotID != "snap-1" {
		t.Errorf("SnapshotID = %q", event.SnapshotID)
	}
	if event.Duration != time.Second {
		t.Errorf("Duration = %v", event.Duration)
	}
}

func TestEvent_WithError(t *testing.T) {
	event := NewEvent(NewRunID(), "alice", "gw").
		WithError(errors.New("controller unreachable"))

	if event.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %q, want failed", event.Outcome)
	}
	if event.Error != "controller unreachable" {
		t.Errorf("Error = %q", event.Error)
	}

	event = NewEvent(NewRunID(), "alice", "gw").WithError(nil)
	if event.Error != "" {
		t.Errorf("Error = %q, want empty for nil error", event.Error)
	}
}

func TestFileLogger_LogAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileLogger(path, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	defer logger.Close()

	run := NewRunID()
	events := []*Event{
		NewEvent(run, "alice", "gw").WithMode(ModeApply).
			WithOperation("create segment/30", "segment/30").WithOutcome(OutcomeSucceeded),
		NewEvent(run, "alice", "gw").WithMode(ModeApply).
			WithOperation("create rule/LAN_IN/10", "rule/LAN_IN/10").
			WithError(errors.New("conflict")),
		NewEvent(NewRunID(), "bob", "gw").WithMode(ModeDryRun).
			WithOperation("delete segment/40", "segment/40").WithOutcome(OutcomePlanned),
	}
	for _, e := range events {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	all, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Query(all) = %d events, want 3", len(all))
	}

	byRun, err := logger.Query(Filter{RunID: run})
	if err != nil {
		t.Fatalf("Query(run) error = %v", err)
	}
	if len(byRun) != 2 {
		t.Errorf("Query(run) = %d events, want 2", len(byRun))
	}

	failures, err := logger.Query(Filter{FailureOnly: true})
	if err != nil {
		t.Fatalf("Query(failures) error = %v", err)
	}
	if len(failures) != 1 || failures[0].Operation != "create rule/LAN_IN/10" {
		t.Errorf("Query(failures) = %+v, want the failed rule create", failures)
	}

	byUser, err := logger.Query(Filter{User: "bob"})
	if err != nil {
		t.Fatalf("Query(user) error = %v", err)
	}
	if len(byUser) != 1 || byUser[0].Mode != ModeDryRun {
		t.Errorf("Query(user=bob) = %+v", byUser)
	}
}

func TestFileLogger_LimitAndOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileLogger(path, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	defer logger.Close()

	for i := 0; i < 5; i++ {
		if err := logger.Log(NewEvent(NewRunID(), "alice", "gw").WithOutcome(OutcomeSucceeded)); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	page, err := logger.Query(Filter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(page) != 2 {
		t.Errorf("len(page) = %d, want 2", len(page))
	}

	empty, err := logger.Query(Filter{Offset: 10})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Query(offset past end) = %d events, want 0", len(empty))
	}
}

func TestFileLogger_QueryMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileLogger(path, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	logger.Close()
	os.Remove(path)

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Query() = %d events, want 0 for missing file", len(events))
	}
}

func TestFileLogger_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileLogger(path, RotationConfig{MaxSize: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	defer logger.Close()

	for i := 0; i < 3; i++ {
		if err := logger.Log(NewEvent(NewRunID(), "alice", "gw")); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if len(matches) == 0 {
		t.Error("no rotated files found, rotation did not happen")
	}
}

func TestDefaultLogger_NilIsNoOp(t *testing.T) {
	if err := Log(NewEvent(NewRunID(), "alice", "gw")); err != nil {
		t.Errorf("Log() with no default logger = %v, want nil", err)
	}
	events, err := Query(Filter{})
	if err != nil {
		t.Errorf("Query() with no default logger = %v, want nil", err)
	}
	if len(events) != 0 {
		t.Errorf("Query() = %d events, want 0", len(events))
	}
}

func TestDefaultLogger_Set(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileLogger(path, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	defer func() {
		logger.Close()
		SetDefaultLogger(nil)
	}()
	SetDefaultLogger(logger)

	if err := Log(NewEvent(NewRunID(), "alice", "gw").WithOutcome(OutcomeSucceeded)); err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	events, err := Query(Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Query() = %d events, want 1", len(events))
	}
}
