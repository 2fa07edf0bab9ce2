package emit

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*tracetest.InMemoryExporter, *OTelEmitter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, NewOTelEmitter(otel.Tracer("test"))
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

// TestOTelEmitter_Emit verifies each event becomes one ended span with the
// standard attributes.
func TestOTelEmitter_Emit(t *testing.T) {
	exporter, emitter := newTestTracer(t)

	emitter.Emit(Event{
		WorkflowID: "wf-001",
		TaskID:     "t-1",
		Step:       2,
		Name:       "refund.Charge",
		Msg:        "activity_run",
		Meta: map[string]interface{}{
			"retry_count": 1,
			"queue":       "tasks",
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]

	if span.Name != "activity_run" {
		t.Errorf("span name = %q, want %q", span.Name, "activity_run")
	}

	attrs := attributeMap(span.Attributes)
	if got := attrs["flowstate.workflow_id"]; got != "wf-001" {
		t.Errorf("workflow_id = %v, want wf-001", got)
	}
	if got := attrs["flowstate.task_id"]; got != "t-1" {
		t.Errorf("task_id = %v, want t-1", got)
	}
	if got := attrs["flowstate.step"]; got != int64(2) {
		t.Errorf("step = %v, want 2", got)
	}
	if got := attrs["flowstate.name"]; got != "refund.Charge" {
		t.Errorf("name = %v, want refund.Charge", got)
	}
	if got := attrs["retry_count"]; got != int64(1) {
		t.Errorf("retry_count = %v, want 1", got)
	}
	if got := attrs["queue"]; got != "tasks" {
		t.Errorf("queue = %v, want tasks", got)
	}

	if !span.EndTime.After(span.StartTime) {
		t.Error("span was not ended")
	}
}

// TestOTelEmitter_ErrorStatus verifies Meta["error"] sets the span status.
func TestOTelEmitter_ErrorStatus(t *testing.T) {
	exporter, emitter := newTestTracer(t)

	emitter.Emit(Event{
		WorkflowID: "wf-001",
		Name:       "refund.Flow",
		Msg:        "workflow_failed",
		Meta:       map[string]interface{}{"error": "charge declined"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status code = %v, want %v", spans[0].Status.Code, codes.Error)
	}
	if spans[0].Status.Description != "charge declined" {
		t.Errorf("status description = %q, want %q", spans[0].Status.Description, "charge declined")
	}
}

// TestOTelEmitter_EmitBatch verifies batches produce one span per event.
func TestOTelEmitter_EmitBatch(t *testing.T) {
	exporter, emitter := newTestTracer(t)

	events := []Event{
		{WorkflowID: "wf-001", Msg: "workflow_start"},
		{WorkflowID: "wf-001", Step: 1, Msg: "activity_run"},
		{WorkflowID: "wf-001", Msg: "workflow_complete"},
	}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch failed: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	if spans[0].Name != "workflow_start" || spans[2].Name != "workflow_complete" {
		t.Errorf("unexpected span order: %s ... %s", spans[0].Name, spans[2].Name)
	}
}

// TestOTelEmitter_Flush verifies Flush succeeds against the SDK provider.
func TestOTelEmitter_Flush(t *testing.T) {
	_, emitter := newTestTracer(t)
	if err := emitter.Flush(context.Background()); err != nil {
		t.Errorf("Flush failed: %v", err)
	}
}
