package domain

import (
	"fmt"
	"sync"
)

// Snapshot is a consistent read of both projections.
type Snapshot struct {
	Columns         []Column `json:"columns"`
	FilteredColumns []Column `json:"filteredColumns"`
	Selector        Selector `json:"selector"`
	Version         uint64   `json:"version"`
}

// BoardState owns the authoritative column set and the member-filtered
// projection derived from it. Every exported method is a single critical
// section, so readers never observe one projection updated without the other.
type BoardState struct {
	mu       sync.RWMutex
	columns  []Column
	filtered []Column
	selector Selector
	version  uint64
}

// NewBoardState returns an empty board with no filter applied.
func NewBoardState() *BoardState {
	return &BoardState{columns: []Column{}, filtered: []Column{}, selector: All()}
}

// Load partitions issues into columns by ColumnID and ranks every column.
// Issues without a column, or naming a column not on the board, are left
// off the board. The active selector is kept and the filtered projection is
// derived from the new columns.
func (b *BoardState) Load(columns []Column, issues []Issue) {
	byColumn := make(map[ColumnID][]Issue, len(columns))
	for _, is := range issues {
		if is.ColumnID == nil {
			continue
		}
		byColumn[*is.ColumnID] = append(byColumn[*is.ColumnID], is)
	}
	loaded := make([]Column, len(columns))
	for i, c := range columns {
		loaded[i] = Column{ID: c.ID, Label: c.Label, Issues: Rank(byColumn[c.ID])}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.columns = loaded
	b.filtered = Filter(loaded, b.selector)
	b.version++
}

// ApplyFilter replaces the selector and recomputes the filtered projection
// from the current columns.
func (b *BoardState) ApplyFilter(s Selector) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selector = s
	b.filtered = Filter(b.columns, s)
	b.version++
}

// Columns returns a copy of the unfiltered projection.
func (b *BoardState) Columns() []Column {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneColumns(b.columns)
}

// FilteredColumns returns a copy of the member-filtered projection.
func (b *BoardState) FilteredColumns() []Column {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneColumns(b.filtered)
}

// Selector returns the active member filter.
func (b *BoardState) Selector() Selector {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selector
}

// Snapshot returns both projections, the selector and the version together.
func (b *BoardState) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		Columns:         cloneColumns(b.columns),
		FilteredColumns: cloneColumns(b.filtered),
		Selector:        b.selector,
		Version:         b.version,
	}
}

// Version increases on every committed change.
func (b *BoardState) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// checkMove verifies that both columns exist and that the issue currently
// sits in the source column.
func (b *BoardState) checkMove(issueID IssueID, from, to ColumnID) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	src := b.columnIndex(from)
	if src < 0 {
		return fmt.Errorf("%w: unknown source column %q", ErrInvalidMove, from)
	}
	if b.columnIndex(to) < 0 {
		return fmt.Errorf("%w: unknown destination column %q", ErrInvalidMove, to)
	}
	if issueIndex(b.columns[src].Issues, issueID) < 0 {
		return fmt.Errorf("%w: issue %d is not in column %q", ErrInvalidMove, issueID, from)
	}
	return nil
}

// commitMove removes the issue from its current column, points it at the
// destination, inserts it at index and re-ranks the destination column. The
// filtered projection is re-derived for the two touched columns in the same
// critical section. It returns the column the issue was taken from.
func (b *BoardState) commitMove(issueID IssueID, to ColumnID, index int) (ColumnID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dst := b.columnIndex(to)
	if dst < 0 {
		return "", fmt.Errorf("%w: unknown destination column %q", ErrInvalidMove, to)
	}
	src, pos := -1, -1
	for i := range b.columns {
		if p := issueIndex(b.columns[i].Issues, issueID); p >= 0 {
			src, pos = i, p
			break
		}
	}
	if src < 0 {
		return "", fmt.Errorf("%w: %d", ErrIssueNotFound, issueID)
	}

	from := b.columns[src].ID
	srcIssues := b.columns[src].Issues
	moved := srcIssues[pos]
	remaining := make([]Issue, 0, len(srcIssues)-1)
	remaining = append(remaining, srcIssues[:pos]...)
	remaining = append(remaining, srcIssues[pos+1:]...)
	b.columns[src].Issues = remaining

	dest := to
	moved.ColumnID = &dest
	dstIssues := b.columns[dst].Issues
	if index < 0 {
		index = 0
	}
	if index > len(dstIssues) {
		index = len(dstIssues)
	}
	inserted := make([]Issue, 0, len(dstIssues)+1)
	inserted = append(inserted, dstIssues[:index]...)
	inserted = append(inserted, moved)
	inserted = append(inserted, dstIssues[index:]...)
	b.columns[dst].Issues = Rank(inserted)

	if len(b.filtered) != len(b.columns) {
		b.filtered = Filter(b.columns, b.selector)
	} else {
		b.filtered[src] = filterColumn(b.columns[src], b.selector)
		b.filtered[dst] = filterColumn(b.columns[dst], b.selector)
	}
	b.version++
	return from, nil
}

func (b *BoardState) columnIndex(id ColumnID) int {
	for i, c := range b.columns {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func issueIndex(issues []Issue, id IssueID) int {
	for i, is := range issues {
		if is.ID == id {
			return i
		}
	}
	return -1
}
