package domain

import "context"

// NotificationLevel classifies a user-visible notification.
type NotificationLevel string

const (
	NotifySuccess NotificationLevel = "success"
	NotifyError   NotificationLevel = "error"
	// NotifyBoardChanged tells other viewers of a project to reload.
	NotifyBoardChanged NotificationLevel = "board-changed"
)

const (
	msgMoveSucceeded = "Issue moved successfully!"
	msgMoveFailed    = "Failed to move issue"
)

// Notification is a transient message surfaced to the user who made a move.
type Notification struct {
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	IssueID   IssueID           `json:"issueId,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Notifier delivers notifications. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) {}
