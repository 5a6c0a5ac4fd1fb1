package domain

import "context"

const IssueMoved = "issue-moved"

// IssueMovedEvent is emitted after a move has been persisted and applied.
type IssueMovedEvent struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	ProjectID    string   `json:"projectId"`
	IssueID      IssueID  `json:"issueId"`
	FromColumnID ColumnID `json:"fromColumnId"`
	ToColumnID   ColumnID `json:"toColumnId"`
	UserID       string   `json:"userId,omitempty"`
	Timestamp    int64    `json:"timestamp"`
}

// EventPublisher forwards board events to downstream consumers.
type EventPublisher interface {
	PublishIssueMoved(ctx context.Context, ev IssueMovedEvent) error
}
