package domain

import (
	"fmt"
	"strings"
	"time"
)

// IssueID identifies an issue within a project.
type IssueID int64

// MemberID identifies a workspace member (the user-workspace id).
type MemberID int64

// ColumnID identifies a column within a board.
type ColumnID string

// IssueType is the closed set of issue categories.
type IssueType int

const (
	TypeUncategorized IssueType = iota
	TypeBug
	TypeSecurity
	TypeFeature
	TypePerformance
	TypeUX
	TypeEnhancement
	TypeDeployment
	TypeCICD
	TypeTesting
	TypeRefactor
	TypeSupport
	TypeQuestion
	TypeDocumentation
	TypeTask
	TypeChore
)

var issueTypeNames = [...]string{
	TypeUncategorized: "UNCATEGORIZED",
	TypeBug:           "BUG",
	TypeSecurity:      "SECURITY",
	TypeFeature:       "FEATURE",
	TypePerformance:   "PERFORMANCE",
	TypeUX:            "UX",
	TypeEnhancement:   "ENHANCEMENT",
	TypeDeployment:    "DEPLOYMENT",
	TypeCICD:          "CI_CD",
	TypeTesting:       "TESTING",
	TypeRefactor:      "REFACTOR",
	TypeSupport:       "SUPPORT",
	TypeQuestion:      "QUESTION",
	TypeDocumentation: "DOCUMENTATION",
	TypeTask:          "TASK",
	TypeChore:         "CHORE",
}

// IssueTypes lists every known issue type, fallback included.
func IssueTypes() []IssueType {
	out := make([]IssueType, len(issueTypeNames))
	for i := range issueTypeNames {
		out[i] = IssueType(i)
	}
	return out
}

// ParseIssueType maps a stored category name to its IssueType. Unknown or
// empty names map to TypeUncategorized.
func ParseIssueType(s string) IssueType {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range issueTypeNames {
		if name == s {
			return IssueType(i)
		}
	}
	return TypeUncategorized
}

func (t IssueType) String() string {
	if t < 0 || int(t) >= len(issueTypeNames) {
		return issueTypeNames[TypeUncategorized]
	}
	return issueTypeNames[t]
}

func (t IssueType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *IssueType) UnmarshalText(b []byte) error {
	*t = ParseIssueType(string(b))
	return nil
}

// Priority is the closed set of issue priorities. PriorityUnknown marks
// malformed data and carries no weight.
type Priority int

const (
	PriorityUnknown Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

// ParsePriority maps a stored priority name to a Priority.
func ParsePriority(s string) Priority {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return PriorityHigh
	case "MEDIUM":
		return PriorityMedium
	case "LOW":
		return PriorityLow
	default:
		return PriorityUnknown
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	default:
		return ""
	}
}

func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Priority) UnmarshalText(b []byte) error {
	*p = ParsePriority(string(b))
	return nil
}

// Issue is a unit of work shown on the board.
type Issue struct {
	ID              IssueID   `json:"id"`
	Title           string    `json:"title"`
	Description     *string   `json:"description"`
	Type            IssueType `json:"type"`
	Priority        Priority  `json:"priority"`
	EstimatedPoints float64   `json:"estimatedPoints"`
	ColumnID        *ColumnID `json:"columnId"`
	AssignedToID    *MemberID `json:"assignedToId"`
	IssueCount      int       `json:"issueCount,omitempty"`
}

// Key is the human readable issue key shown on board cards.
func (i Issue) Key() string {
	return fmt.Sprintf("SCRUM-%d", i.IssueCount)
}

// Column is a named bucket holding an ordered list of issues.
type Column struct {
	ID     ColumnID `json:"id"`
	Label  string   `json:"label"`
	Issues []Issue  `json:"issues"`
}

// User is the account behind a workspace member.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// WorkspaceMember is a filter key and assignment target.
type WorkspaceMember struct {
	ID   MemberID `json:"id"`
	User User     `json:"user"`
}

// Sprint is the active time box of a project together with its issues.
type Sprint struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"startDate"`
	DueDate   time.Time `json:"dueDate"`
	Issues    []Issue   `json:"issues,omitempty"`
}

// DaysLeft returns the whole days between the start and due dates,
// truncated toward zero.
func (s Sprint) DaysLeft() int {
	return int(s.DueDate.Sub(s.StartDate).Hours() / 24)
}

// SprintSummary is the sprint header shown above the board.
type SprintSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"startDate"`
	DueDate   time.Time `json:"dueDate"`
	DaysLeft  int       `json:"daysLeft"`
}

// Summary strips the issues from the sprint.
func (s Sprint) Summary() SprintSummary {
	return SprintSummary{ID: s.ID, Name: s.Name, StartDate: s.StartDate, DueDate: s.DueDate, DaysLeft: s.DaysLeft()}
}

func cloneColumns(cols []Column) []Column {
	out := make([]Column, len(cols))
	for i, c := range cols {
		out[i] = Column{ID: c.ID, Label: c.Label, Issues: append(make([]Issue, 0, len(c.Issues)), c.Issues...)}
	}
	return out
}
