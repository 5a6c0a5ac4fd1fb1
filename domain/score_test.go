package domain

import (
	"math"
	"testing"
)

func TestScoreScenarios(t *testing.T) {
	tests := []struct {
		name  string
		issue Issue
		want  float64
	}{
		{
			name:  "high bug 8 points",
			issue: Issue{Priority: PriorityHigh, Type: TypeBug, EstimatedPoints: 8},
			want:  0.15 + 0.85*(0.4*0.5+0.4*0.45+0.2*(8.0/13)),
		},
		{
			name:  "low chore 1 point",
			issue: Issue{Priority: PriorityLow, Type: TypeChore, EstimatedPoints: 1},
			want:  0.15 + 0.85*(0.4*0.2+0.4*0.10+0.2*(1.0/13)),
		},
		{
			name:  "unknown priority uncategorized zero points",
			issue: Issue{Priority: PriorityUnknown, Type: TypeUncategorized},
			want:  0.15 + 0.85*(0.4*0.05),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.issue); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Score() = %v, want %v", got, tt.want)
			}
		})
	}

	a := Score(tests[0].issue)
	b := Score(tests[1].issue)
	if math.Abs(a-0.578) > 0.001 {
		t.Fatalf("expected scenario A ~0.578, got %v", a)
	}
	if math.Abs(b-0.265) > 0.001 {
		t.Fatalf("expected scenario B ~0.265, got %v", b)
	}
	if a <= b {
		t.Fatalf("expected scenario A to outrank B: %v <= %v", a, b)
	}
}

func TestScoreBounds(t *testing.T) {
	priorities := []Priority{PriorityUnknown, PriorityLow, PriorityMedium, PriorityHigh, Priority(42)}
	points := []float64{-3, 0, 1, 5, 13, 21, 1000, math.NaN()}
	for _, p := range priorities {
		for _, typ := range append(IssueTypes(), IssueType(99)) {
			for _, pts := range points {
				s := Score(Issue{Priority: p, Type: typ, EstimatedPoints: pts})
				if s < 0.15-1e-12 || s > 1 {
					t.Fatalf("score out of range for %v/%v/%v: %v", p, typ, pts, s)
				}
			}
		}
	}
}

func TestTypeWeightTableIsExhaustive(t *testing.T) {
	for _, typ := range IssueTypes() {
		w, ok := typeWeights[typ]
		if !ok {
			t.Fatalf("no weight for %s", typ)
		}
		if w <= 0 || w > 0.45 {
			t.Fatalf("weight for %s out of range: %v", typ, w)
		}
	}
	if got := TypeWeight(IssueType(99)); got != 0.05 {
		t.Fatalf("expected unknown type to fall back to 0.05, got %v", got)
	}
}

func TestPriorityWeightUnknownIsZero(t *testing.T) {
	if got := PriorityWeight(ParsePriority("URGENT")); got != 0 {
		t.Fatalf("expected 0 for unknown priority, got %v", got)
	}
	if got := PriorityWeight(ParsePriority("high")); got != 0.5 {
		t.Fatalf("expected 0.5 for high, got %v", got)
	}
}

func TestNormalizedPointsClamps(t *testing.T) {
	if got := NormalizedPoints(26); got != 1 {
		t.Fatalf("expected clamp to 1, got %v", got)
	}
	if got := NormalizedPoints(13); got != 1 {
		t.Fatalf("expected 1 at ceiling, got %v", got)
	}
	if got := NormalizedPoints(6.5); got != 0.5 {
		t.Fatalf("expected 0.5, got %v", got)
	}
}

func TestParseIssueTypeFallsBack(t *testing.T) {
	if got := ParseIssueType("ci_cd"); got != TypeCICD {
		t.Fatalf("expected CI_CD, got %s", got)
	}
	if got := ParseIssueType("EPIC"); got != TypeUncategorized {
		t.Fatalf("expected UNCATEGORIZED, got %s", got)
	}
	if got := ParseIssueType(""); got != TypeUncategorized {
		t.Fatalf("expected UNCATEGORIZED for empty, got %s", got)
	}
}
