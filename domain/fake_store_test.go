package domain

import (
	"context"
	"sync"
)

type persistCall struct {
	projectID string
	issueID   IssueID
	columnID  ColumnID
}

type fakeStore struct {
	columns    []Column
	sprint     *Sprint
	members    []WorkspaceMember
	columnsErr error
	sprintErr  error
	membersErr error

	mu         sync.Mutex
	persistErr error
	calls      []persistCall
	// block, when set, holds PersistIssueColumn until it is closed or the
	// context ends.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeStore) FetchColumns(ctx context.Context, projectID string) ([]Column, error) {
	return f.columns, f.columnsErr
}

func (f *fakeStore) FetchActiveSprint(ctx context.Context, projectID string) (*Sprint, error) {
	return f.sprint, f.sprintErr
}

func (f *fakeStore) FetchWorkspaceMembers(ctx context.Context, workspaceID string) ([]WorkspaceMember, error) {
	return f.members, f.membersErr
}

func (f *fakeStore) PersistIssueColumn(ctx context.Context, projectID string, issueID IssueID, columnID ColumnID) error {
	f.mu.Lock()
	f.calls = append(f.calls, persistCall{projectID: projectID, issueID: issueID, columnID: columnID})
	block, entered, err := f.block, f.entered, f.persistErr
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeStore) Calls() []persistCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]persistCall(nil), f.calls...)
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) Notes() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []IssueMovedEvent
	err    error
}

func (r *recordingEvents) PublishIssueMoved(ctx context.Context, ev IssueMovedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func colPtr(id ColumnID) *ColumnID { return &id }

func memberPtr(id MemberID) *MemberID { return &id }

func newIssue(id IssueID, col ColumnID, p Priority, t IssueType, points float64, assignee *MemberID) Issue {
	return Issue{
		ID:              id,
		Title:           "issue",
		Type:            t,
		Priority:        p,
		EstimatedPoints: points,
		ColumnID:        colPtr(col),
		AssignedToID:    assignee,
	}
}

func issueIDs(issues []Issue) []IssueID {
	out := make([]IssueID, len(issues))
	for i, is := range issues {
		out[i] = is.ID
	}
	return out
}

func equalIDs(a, b []IssueID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
