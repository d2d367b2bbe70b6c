package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tp, err := InitTracer(ctx, "realty-agent-test", "localhost:4318")
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	if err := Shutdown(ctx, tp); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := Shutdown(ctx, nil); err != nil {
		t.Errorf("Shutdown(nil) error = %v", err)
	}
}

func TestStartSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := StartSpan(context.Background(), "tool.schedule_visit", attribute.String("tool", "schedule_visit"))
	EndSpan(span, errors.New("slot taken"))

	_, ok := StartSpan(context.Background(), "turn")
	EndSpan(ok, nil)

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Name != "tool.schedule_visit" || spans[0].Status.Code != codes.Error {
		t.Errorf("first span = %s %v", spans[0].Name, spans[0].Status)
	}
	if spans[1].Status.Code == codes.Error {
		t.Error("second span should not be an error")
	}
}
