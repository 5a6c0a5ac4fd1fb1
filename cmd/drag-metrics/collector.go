package main

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	dragEndEventName   = "board.drag_end.request"
	dragEndEventDomain = "board"

	attrStatus     = "http.status_code"
	attrOutcome    = "board.drag_end.outcome"
	attrErrorStage = "board.drag_end.error_stage"
	attrKeyGiven   = "board.drag_end.idempotency_key_provided"
)

// durationAttrs maps summary keys to the logged millisecond attributes.
var durationAttrs = map[string]string{
	"total":  "board.drag_end.total_ms",
	"auth":   "board.drag_end.auth_ms",
	"move":   "board.drag_end.move_ms",
	"encode": "board.drag_end.encode_ms",
}

type logRecord struct {
	EventName    string         `json:"event.name"`
	EventDomain  string         `json:"event.domain"`
	SeverityText string         `json:"severity_text"`
	Attributes   map[string]any `json:"attributes"`
}

type stats struct {
	samples []float64
}

func (s *stats) add(v float64) { s.samples = append(s.samples, v) }

type durationSummary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min_ms"`
	Max   float64 `json:"max_ms"`
	Avg   float64 `json:"avg_ms"`
	P95   float64 `json:"p95_ms"`
}

func (s *stats) summary() durationSummary {
	if s == nil || len(s.samples) == 0 {
		return durationSummary{}
	}
	sorted := append([]float64(nil), s.samples...)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	idx := int(math.Ceil(0.95*float64(len(sorted)))) - 1
	return durationSummary{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Avg:   sum / float64(len(sorted)),
		P95:   sorted[idx],
	}
}

type summaryOutput struct {
	TotalEvents    int                        `json:"total_events"`
	Outcomes       map[string]int             `json:"outcomes"`
	SeverityCounts map[string]int             `json:"severity_counts"`
	StatusCounts   map[string]int             `json:"status_counts"`
	ErrorStages    map[string]int             `json:"error_stages,omitempty"`
	IdempotentReqs int                        `json:"idempotency_key_requests"`
	DurationMs     map[string]durationSummary `json:"duration_ms"`
	SkippedLines   int                        `json:"skipped_lines"`
}

// collector aggregates drag-end observability events from JSON log lines.
type collector struct {
	out       summaryOutput
	durations map[string]*stats
}

func newCollector() *collector {
	return &collector{
		out: summaryOutput{
			Outcomes:       map[string]int{},
			SeverityCounts: map[string]int{},
			StatusCounts:   map[string]int{},
			ErrorStages:    map[string]int{},
		},
		durations: map[string]*stats{},
	}
}

func (c *collector) ingest(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	// docker compose prefixes lines with "service | ".
	if pipe := strings.Index(line, "|"); pipe >= 0 && !strings.HasPrefix(line, "{") {
		line = strings.TrimSpace(line[pipe+1:])
	}
	var rec logRecord
	if err := sonic.UnmarshalString(line, &rec); err != nil {
		c.out.SkippedLines++
		return
	}
	if rec.EventName != dragEndEventName || rec.EventDomain != dragEndEventDomain {
		return
	}

	c.out.TotalEvents++
	sev := strings.ToUpper(rec.SeverityText)
	if sev == "" {
		sev = "UNSPECIFIED"
	}
	c.out.SeverityCounts[sev]++

	attrs := rec.Attributes
	if outcome, ok := attrs[attrOutcome].(string); ok && outcome != "" {
		c.out.Outcomes[outcome]++
	}
	if status, ok := asFloat(attrs[attrStatus]); ok {
		c.out.StatusCounts[strconv.Itoa(int(status))]++
	}
	if stage, ok := attrs[attrErrorStage].(string); ok && stage != "" {
		c.out.ErrorStages[stage]++
	}
	if given, ok := attrs[attrKeyGiven].(bool); ok && given {
		c.out.IdempotentReqs++
	}
	for key, attr := range durationAttrs {
		if v, ok := asFloat(attrs[attr]); ok {
			s := c.durations[key]
			if s == nil {
				s = &stats{}
				c.durations[key] = s
			}
			s.add(v)
		}
	}
}

func (c *collector) summary() summaryOutput {
	out := c.out
	out.DurationMs = make(map[string]durationSummary, len(c.durations))
	for key, s := range c.durations {
		out.DurationMs[key] = s.summary()
	}
	if len(out.ErrorStages) == 0 {
		out.ErrorStages = nil
	}
	return out
}

func (s summaryOutput) ShortString() string {
	total := s.DurationMs["total"]
	return strings.Join([]string{
		"event=" + dragEndEventName,
		"total=" + strconv.Itoa(s.TotalEvents),
		"committed=" + strconv.Itoa(s.Outcomes["committed"]),
		"rolled_back=" + strconv.Itoa(s.Outcomes["rolled_back"]),
		"noop=" + strconv.Itoa(s.Outcomes["noop"]),
		"avg_total_ms=" + strconv.FormatFloat(total.Avg, 'f', 2, 64),
		"p95_total_ms=" + strconv.FormatFloat(total.P95, 'f', 2, 64),
	}, " ")
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
