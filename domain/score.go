package domain

import "math"

const (
	// DampingFactor scales the weighted signal; 1-DampingFactor is the score floor.
	DampingFactor = 0.85
	// MaxPoints is the estimate at which the points signal saturates.
	MaxPoints = 13

	priorityShare = 0.4
	typeShare     = 0.4
	pointsShare   = 0.2
)

var priorityWeights = map[Priority]float64{
	PriorityHigh:   0.5,
	PriorityMedium: 0.3,
	PriorityLow:    0.2,
}

var typeWeights = map[IssueType]float64{
	TypeBug:           0.45,
	TypeSecurity:      0.45,
	TypeFeature:       0.40,
	TypePerformance:   0.35,
	TypeUX:            0.30,
	TypeEnhancement:   0.30,
	TypeDeployment:    0.25,
	TypeCICD:          0.25,
	TypeTesting:       0.25,
	TypeRefactor:      0.20,
	TypeSupport:       0.15,
	TypeQuestion:      0.15,
	TypeDocumentation: 0.15,
	TypeTask:          0.10,
	TypeChore:         0.10,
	TypeUncategorized: 0.05,
}

// PriorityWeight returns the weight of p, or 0 for an unknown priority.
func PriorityWeight(p Priority) float64 {
	return priorityWeights[p]
}

// TypeWeight returns the weight of t. Types missing from the table fall back
// to the uncategorized weight.
func TypeWeight(t IssueType) float64 {
	if w, ok := typeWeights[t]; ok {
		return w
	}
	return typeWeights[TypeUncategorized]
}

// NormalizedPoints maps an estimate onto [0,1].
func NormalizedPoints(points float64) float64 {
	if math.IsNaN(points) || points <= 0 {
		return 0
	}
	return math.Min(points/MaxPoints, 1)
}

// Score computes the damped weighted rank of an issue. The result is always
// within [1-DampingFactor, 1].
func Score(issue Issue) float64 {
	signal := priorityShare*PriorityWeight(issue.Priority) +
		typeShare*TypeWeight(issue.Type) +
		pointsShare*NormalizedPoints(issue.EstimatedPoints)
	return (1 - DampingFactor) + DampingFactor*signal
}
