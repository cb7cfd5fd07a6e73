package telemetry_test

import (
	"context"
	"errors"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"arena-server/internal/telemetry"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := telemetry.Setup(context.Background(), "test-service", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupCreatesProviderWhenEndpointSet(t *testing.T) {
	// non-routable address, nothing is exported
	shutdown, err := telemetry.Setup(context.Background(), "test-service", "http://192.0.2.1:4318")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestNoopShutdownIgnoresCancelledContext(t *testing.T) {
	shutdown, _ := telemetry.Setup(context.Background(), "noop-test", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestLogFieldsFollowSpan(t *testing.T) {
	if f := telemetry.LogFields(context.Background()); f != nil {
		t.Errorf("fields without a span = %v", f)
	}

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	f := telemetry.LogFields(ctx)
	if f["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id = %v", f["trace_id"])
	}
	telemetry.End(span, errors.New("boom"))
	if span.IsRecording() {
		t.Error("span should be ended")
	}
}
