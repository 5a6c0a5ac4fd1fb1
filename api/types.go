package api

import (
	"context"

	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// Boards loads and looks up board sessions.
type Boards interface {
	Load(ctx context.Context, userID, projectID, workspaceID string) (*domain.Session, error)
	Session(userID, projectID string) (*domain.Session, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate drag-end requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key so the caller may retry.
	Remove(ctx context.Context, userID, key string) error
}

// NotificationSource blocks until ctx is done, passing every notification
// raised for the user's project board to deliver.
type NotificationSource func(ctx context.Context, userID, projectID string, deliver func(domain.Notification))

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Deps groups what the HTTP handlers need. Deduper, Notifications and Health
// are optional.
type Deps struct {
	Boards        Boards
	Auth          Authenticator
	Deduper       Deduper
	Notifications NotificationSource
	Health        Pinger
	Logger        *log.Logger
}
