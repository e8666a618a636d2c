package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestJSONTraceTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)

	_ = observed(context.Background(), tracer, noopMetrics{}, "ok", func(context.Context) error { return nil })
	_ = observed(context.Background(), tracer, noopMetrics{}, "bad", func(context.Context) error { return errors.New("boom") })

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	if entries[1].Status != "error" || entries[1].Error != "boom" {
		t.Fatalf("unexpected error entry: %+v", entries[1])
	}

	dec := json.NewDecoder(&buf)
	var first JSONTraceEntry
	if err := dec.Decode(&first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Operation != "ok" || first.Status != "success" || first.EndedAt.Before(first.StartedAt) {
		t.Fatalf("unexpected serialized entry: %+v", first)
	}
}
