package telemetry

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracer_UsesGivenProvider(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	_, span := Tracer(tp).Start(context.Background(), "probe")
	span.End()

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans=%d, want 1", len(spans))
	}
	if got := spans[0].InstrumentationScope().Name; got != InstrumentationName {
		t.Fatalf("scope=%q", got)
	}
}

func TestTracer_NilFallsBackToGlobal(t *testing.T) {
	if Tracer(nil) == nil {
		t.Fatalf("Tracer(nil) returned nil")
	}
}

func TestNewTracerProvider(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), "http://127.0.0.1:4318", "omniguide-test")
	if err != nil {
		t.Fatalf("NewTracerProvider err=%v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Logf("shutdown: %v", err)
	}
}
