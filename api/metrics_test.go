package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"board-api/domain"
)

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	})
	return tp, exporter
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func observabilityEventOf(t *testing.T, span tracetest.SpanStub) map[string]any {
	t.Helper()
	for _, ev := range span.Events {
		if ev.Name == observabilityEvent {
			return attributesToMap(ev.Attributes)
		}
	}
	t.Fatalf("expected %s span event, got %#v", observabilityEvent, span.Events)
	return nil
}

func TestDragEndMetricsLogProducesObservabilityEvent(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetFormatter(&log.JSONFormatter{})
	tp, exporter := setupTestTracer(t)

	metrics, _ := newDragEndMetrics(context.Background(), logger)
	metrics.start = metrics.start.Add(-50 * time.Millisecond)
	metrics.SetProject("p1")
	metrics.ObserveAuth(2 * time.Millisecond)
	metrics.ObserveMove(30 * time.Millisecond)
	metrics.SetIdempotencyKeyProvided(true)
	metrics.SetResult(12, domain.MoveCommitted.String())

	metrics.Log(http.StatusOK, nil)
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Message != observabilityEvent {
		t.Fatalf("unexpected log entry: %#v", entry)
	}
	if entry.Level != log.InfoLevel || entry.Data["severity_text"] != "INFO" || entry.Data["severity_number"] != 9 {
		t.Fatalf("unexpected severity: %v %v %v", entry.Level, entry.Data["severity_text"], entry.Data["severity_number"])
	}
	if entry.Data["event.name"] != dragEndEventName || entry.Data["event.domain"] != dragEndEventDomain {
		t.Fatalf("unexpected event identity: %v", entry.Data)
	}
	attrs, ok := entry.Data["attributes"].(map[string]any)
	if !ok {
		t.Fatalf("attributes not logged as map: %#v", entry.Data["attributes"])
	}
	if attrs["http.route"] != dragEndRoute || attrs["board.drag_end.outcome"] != "committed" {
		t.Fatalf("unexpected attributes: %#v", attrs)
	}
	if attrs["board.issue_id"] != int64(12) || attrs["board.drag_end.idempotency_key_provided"] != true {
		t.Fatalf("unexpected issue attributes: %#v", attrs)
	}
	if total, ok := attrs["board.drag_end.total_ms"].(float64); !ok || total < 50 {
		t.Fatalf("expected total duration, got %#v", attrs["board.drag_end.total_ms"])
	}
	if traceID, ok := entry.Data["trace_id"].(string); !ok || traceID == "" {
		t.Fatalf("expected trace_id to be recorded, got %#v", entry.Data["trace_id"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != dragEndSpanName || span.Status.Code != codes.Ok {
		t.Fatalf("unexpected span: %s %v", span.Name, span.Status)
	}
	spanAttrs := attributesToMap(span.Attributes)
	if code, ok := spanAttrs["http.status_code"].(int64); !ok || code != http.StatusOK {
		t.Fatalf("unexpected http.status_code on span: %#v", spanAttrs["http.status_code"])
	}
	event := observabilityEventOf(t, span)
	if event["event.name"] != dragEndEventName || event["severity_text"] != "INFO" {
		t.Fatalf("unexpected span event: %#v", event)
	}
}

func TestDragEndMetricsRollbackIsError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter := setupTestTracer(t)

	metrics, _ := newDragEndMetrics(context.Background(), logger)
	cause := errors.New("failed to persist move: issue 1: storage down")
	metrics.SetResult(1, domain.MoveRolledBack.String())
	metrics.SetError("persist", cause)
	metrics.Log(http.StatusBadGateway, nil)
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	span := exporter.GetSpans()[0]
	if span.Status.Code != codes.Error || span.Status.Description != cause.Error() {
		t.Fatalf("unexpected span status: %#v", span.Status)
	}
	event := observabilityEventOf(t, span)
	if event["severity_text"] != "ERROR" || event["board.drag_end.error_stage"] != "persist" {
		t.Fatalf("unexpected span event: %#v", event)
	}
	if event["error.message"] != cause.Error() {
		t.Fatalf("expected error.message, got %#v", event["error.message"])
	}
	if entry := hook.LastEntry(); entry == nil || entry.Level != log.ErrorLevel {
		t.Fatalf("expected error level log entry, got %#v", entry)
	}
}

func TestDragEndMetricsConflictIsWarning(t *testing.T) {
	logger, hook := test.NewNullLogger()
	setupTestTracer(t)

	metrics, _ := newDragEndMetrics(context.Background(), logger)
	metrics.SetError("pending", domain.ErrMovePending)
	metrics.Log(http.StatusConflict, nil)

	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.WarnLevel || entry.Data["severity_number"] != 13 {
		t.Fatalf("expected warning entry, got %#v", entry)
	}
}

func TestSeverityForStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		err        error
		wantText   string
		wantNumber int
	}{
		{name: "ok", status: http.StatusOK, wantText: "INFO", wantNumber: 9},
		{name: "conflict", status: http.StatusConflict, wantText: "WARN", wantNumber: 13},
		{name: "invalid", status: http.StatusUnprocessableEntity, wantText: "WARN", wantNumber: 13},
		{name: "bad gateway", status: http.StatusBadGateway, wantText: "ERROR", wantNumber: 17},
		{name: "errorFromErr", status: 0, err: errors.New("boom"), wantText: "ERROR", wantNumber: 17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotText, gotNumber := severityForStatus(tt.status, tt.err)
			if gotText != tt.wantText || gotNumber != tt.wantNumber {
				t.Fatalf("severityForStatus(%d, %v) = %s/%d, want %s/%d", tt.status, tt.err, gotText, gotNumber, tt.wantText, tt.wantNumber)
			}
		})
	}
}
