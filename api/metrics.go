package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	dragEndRoute       = "/api/projects/:projectId/board/drag-end"
	dragEndSpanName    = "board.drag_end"
	dragEndEventName   = "board.drag_end.request"
	dragEndEventDomain = "board"
	observabilityEvent = "observability.event"
	tracerName         = "board-api/api"
)

// dragEndMetrics records one drag-end request as a server span and an
// observability.event log entry carrying the same attributes.
type dragEndMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	moveDuration   time.Duration
	encodeDuration time.Duration

	projectID   string
	issueID     int64
	outcome     string
	keyProvided bool
	errorStage  string
	cause       error
}

func newDragEndMetrics(ctx context.Context, logger *log.Logger) (*dragEndMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, dragEndSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &dragEndMetrics{logger: logger, span: span, start: time.Now()}, ctx
}

func (m *dragEndMetrics) ObserveAuth(d time.Duration)   { m.authDuration = d }
func (m *dragEndMetrics) ObserveMove(d time.Duration)   { m.moveDuration = d }
func (m *dragEndMetrics) ObserveEncode(d time.Duration) { m.encodeDuration = d }

func (m *dragEndMetrics) SetProject(projectID string) { m.projectID = projectID }

func (m *dragEndMetrics) SetIdempotencyKeyProvided(provided bool) { m.keyProvided = provided }

func (m *dragEndMetrics) SetResult(issueID int64, outcome string) {
	m.issueID = issueID
	m.outcome = outcome
}

// SetError marks the stage a request failed at. cause is reported when the
// handler itself returns no error, e.g. for a rolled back move.
func (m *dragEndMetrics) SetError(stage string, cause error) {
	if stage != "" {
		m.errorStage = stage
	}
	if cause != nil {
		m.cause = cause
	}
}

func (m *dragEndMetrics) attributes(status int, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", dragEndRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("board.drag_end.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Bool("board.drag_end.idempotency_key_provided", m.keyProvided),
	}
	if m.projectID != "" {
		attrs = append(attrs, attribute.String("board.project_id", m.projectID))
	}
	if m.issueID != 0 {
		attrs = append(attrs, attribute.Int64("board.issue_id", m.issueID))
	}
	if m.outcome != "" {
		attrs = append(attrs, attribute.String("board.drag_end.outcome", m.outcome))
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.drag_end.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.moveDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.drag_end.move_ms", durationToMillis(m.moveDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.drag_end.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("board.drag_end.error_stage", m.errorStage))
	}
	if err == nil {
		err = m.cause
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}
	return attrs
}

// Log ends the span and emits the observability event.
func (m *dragEndMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	attrs := m.attributes(status, err)
	sevText, sevNumber := severityForStatus(status, err)

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", dragEndEventName),
		attribute.String("event.domain", dragEndEventDomain),
		attribute.String("severity_text", sevText),
		attribute.Int("severity_number", sevNumber),
	}, attrs...)

	m.span.SetAttributes(attrs...)
	m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
	if sevText == "ERROR" {
		desc := http.StatusText(status)
		if err != nil {
			m.span.RecordError(err)
			desc = err.Error()
		} else if m.cause != nil {
			desc = m.cause.Error()
		}
		m.span.SetStatus(codes.Error, desc)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	sc := m.span.SpanContext()
	m.span.End()

	if m.logger == nil {
		return
	}
	logged := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		logged[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      dragEndEventName,
		"event.domain":    dragEndEventDomain,
		"severity_text":   sevText,
		"severity_number": sevNumber,
		"attributes":      logged,
	}
	if sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	if sc.HasSpanID() {
		fields["span_id"] = sc.SpanID().String()
	}
	level := log.InfoLevel
	switch sevText {
	case "WARN":
		level = log.WarnLevel
	case "ERROR":
		level = log.ErrorLevel
	}
	m.logger.WithFields(fields).Log(level, observabilityEvent)
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
