package domain

import "sort"

type scoredIssue struct {
	issue Issue
	score float64
}

// Rank returns a copy of issues ordered by descending Score. The sort is
// stable: issues with equal scores keep their relative order.
func Rank(issues []Issue) []Issue {
	scored := make([]scoredIssue, len(issues))
	for i, is := range issues {
		scored[i] = scoredIssue{issue: is, score: Score(is)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	out := make([]Issue, len(scored))
	for i, s := range scored {
		out[i] = s.issue
	}
	return out
}
