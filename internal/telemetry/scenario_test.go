package telemetry_test

import (
	"errors"
	"testing"

	"groundstation/internal/telemetry"
)

func TestScenarioEvictedAltitudeHistory(t *testing.T) {
	buf := newTestBuffer(t, 3, "Time", "Altitude")
	for _, row := range []telemetry.Row{{0, 0}, {1, 5}, {2, 9}, {3, 12}} {
		mustPush(t, buf, row)
	}
	got, err := buf.Snapshot(1)
	if err != nil {
		t.Fatalf("Snapshot(1): %v", err)
	}
	if !equalFloats(got, []float64{5, 9, 12}) {
		t.Fatalf("Snapshot(1) = %v, want [5 9 12]", got)
	}
}

func TestScenarioRejectedWideRow(t *testing.T) {
	buf := newTestBuffer(t, 2, "A", "B")
	mustPush(t, buf, telemetry.Row{1, 2})
	if err := buf.Push(telemetry.Row{1, 2, 3}); !errors.Is(err, telemetry.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
	got, err := buf.Snapshot(0)
	if err != nil {
		t.Fatalf("Snapshot(0): %v", err)
	}
	if !equalFloats(got, []float64{1}) {
		t.Fatalf("Snapshot(0) = %v, want [1]", got)
	}
}

func TestScenarioEmptyBuffer(t *testing.T) {
	buf := newTestBuffer(t, 4, "A", "B")
	if _, ok := buf.Latest(); ok {
		t.Fatal("expected no latest row")
	}
	got, err := buf.Snapshot(0)
	if err != nil {
		t.Fatalf("Snapshot(0): %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty snapshot, got %v", got)
	}
	if rows := buf.Rows(); len(rows) != 0 {
		t.Fatalf("expected no rows, got %v", rows)
	}
}
