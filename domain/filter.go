package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// SelectorKind enumerates the member filter modes.
type SelectorKind int

const (
	SelectAll SelectorKind = iota
	SelectMember
	SelectUnassigned
)

const (
	selectorAll        = "all"
	selectorUnassigned = "unassigned"
	// legacyUnassigned is the id the board UI historically sent for "Unassigned".
	legacyUnassigned = "-1"
)

// Selector picks which issues the filtered projection keeps.
type Selector struct {
	Kind   SelectorKind
	Member MemberID
}

// All keeps every issue.
func All() Selector { return Selector{Kind: SelectAll} }

// Member keeps issues assigned to id.
func Member(id MemberID) Selector { return Selector{Kind: SelectMember, Member: id} }

// Unassigned keeps issues without an assignee.
func Unassigned() Selector { return Selector{Kind: SelectUnassigned} }

// Matches reports whether issue passes the selector.
func (s Selector) Matches(issue Issue) bool {
	switch s.Kind {
	case SelectMember:
		return issue.AssignedToID != nil && *issue.AssignedToID == s.Member
	case SelectUnassigned:
		return issue.AssignedToID == nil
	default:
		return true
	}
}

func (s Selector) String() string {
	switch s.Kind {
	case SelectMember:
		return strconv.FormatInt(int64(s.Member), 10)
	case SelectUnassigned:
		return selectorUnassigned
	default:
		return selectorAll
	}
}

// Label is the text shown on the member filter control.
func (s Selector) Label(members []WorkspaceMember) string {
	switch s.Kind {
	case SelectUnassigned:
		return "Unassigned"
	case SelectMember:
		for _, m := range members {
			if m.ID == s.Member {
				return m.User.Name
			}
		}
	}
	return "Filter by member"
}

// ParseSelector decodes the wire form of a selector: "" or "all", a member
// id, or "unassigned" (also accepted as "-1").
func ParseSelector(raw string) (Selector, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", selectorAll:
		return All(), nil
	case selectorUnassigned, legacyUnassigned:
		return Unassigned(), nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return Selector{}, fmt.Errorf("invalid member selector %q", raw)
	}
	return Member(MemberID(id)), nil
}

func (s Selector) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Selector) UnmarshalText(b []byte) error {
	parsed, err := ParseSelector(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// UnmarshalJSON accepts the string form as well as a bare member id number,
// with -1 meaning unassigned.
func (s *Selector) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var text string
		if err := sonic.UnmarshalString(raw, &text); err != nil {
			return err
		}
		return s.UnmarshalText([]byte(text))
	}
	return s.UnmarshalText([]byte(raw))
}

// Filter projects columns through the selector. Column order and the order
// of the kept issues are preserved; nothing is re-ranked.
func Filter(columns []Column, s Selector) []Column {
	out := make([]Column, len(columns))
	for i, c := range columns {
		out[i] = filterColumn(c, s)
	}
	return out
}

func filterColumn(c Column, s Selector) Column {
	kept := make([]Issue, 0, len(c.Issues))
	for _, is := range c.Issues {
		if s.Matches(is) {
			kept = append(kept, is)
		}
	}
	return Column{ID: c.ID, Label: c.Label, Issues: kept}
}
