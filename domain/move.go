package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultPersistTimeout bounds a single PersistIssueColumn call.
const DefaultPersistTimeout = 10 * time.Second

// Persister writes an issue's column to the backing store. Implementations
// must be idempotent: repeating a call with the same arguments has no
// additional effect.
type Persister interface {
	PersistIssueColumn(ctx context.Context, projectID string, issueID IssueID, columnID ColumnID) error
}

// Location is a position within a column as reported by the drag surface.
type Location struct {
	ColumnID ColumnID `json:"droppableId"`
	Index    int      `json:"index"`
}

// DragResult describes a released drag gesture. Destination is nil when the
// issue was dropped outside any column.
type DragResult struct {
	Source      Location  `json:"source"`
	Destination *Location `json:"destination"`
	DraggableID string    `json:"draggableId"`
}

// MoveOutcome is the terminal state reached by a drag gesture.
type MoveOutcome int

const (
	MoveNoop MoveOutcome = iota
	MoveCommitted
	MoveRolledBack
)

func (o MoveOutcome) String() string {
	switch o {
	case MoveCommitted:
		return "committed"
	case MoveRolledBack:
		return "rolled_back"
	default:
		return "noop"
	}
}

func (o MoveOutcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// MoveResult reports what a drag gesture did to the board.
type MoveResult struct {
	Outcome MoveOutcome `json:"outcome"`
	IssueID IssueID     `json:"issueId,omitempty"`
	From    ColumnID    `json:"from,omitempty"`
	To      ColumnID    `json:"to,omitempty"`
	Version uint64      `json:"version"`
}

// MoveCoordinator drives drag gestures through Idle, Pending and then
// Committed or RolledBack. Moves of different issues may be pending at the
// same time; a second move of a pending issue is rejected.
type MoveCoordinator struct {
	projectID string
	userID    string
	board     *BoardState
	store     Persister
	notifier  Notifier
	events    EventPublisher
	timeout   time.Duration
	now       func() time.Time

	mu      sync.Mutex
	pending map[IssueID]ColumnID
}

// NewMoveCoordinator wires a coordinator for one board. notifier and events
// may be nil. A non-positive timeout selects DefaultPersistTimeout.
func NewMoveCoordinator(projectID, userID string, board *BoardState, store Persister, notifier Notifier, events EventPublisher, timeout time.Duration) *MoveCoordinator {
	if board == nil || store == nil {
		panic("domain.NewMoveCoordinator: board and store are required")
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}
	return &MoveCoordinator{
		projectID: projectID,
		userID:    userID,
		board:     board,
		store:     store,
		notifier:  notifier,
		events:    events,
		timeout:   timeout,
		now:       time.Now,
		pending:   make(map[IssueID]ColumnID),
	}
}

// Pending reports whether a move of issueID awaits confirmation.
func (m *MoveCoordinator) Pending(issueID IssueID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[issueID]
	return ok
}

// OnDragEnd handles a released drag gesture. The board is only mutated after
// the store confirms the new column; on failure the board is left untouched,
// a failure notification is raised and an error wrapping ErrPersistFailed is
// returned together with a MoveRolledBack result.
func (m *MoveCoordinator) OnDragEnd(ctx context.Context, drag DragResult) (MoveResult, error) {
	if drag.Destination == nil {
		return MoveResult{Outcome: MoveNoop, Version: m.board.Version()}, nil
	}
	dst := *drag.Destination
	if drag.Source.ColumnID == dst.ColumnID && drag.Source.Index == dst.Index {
		return MoveResult{Outcome: MoveNoop, Version: m.board.Version()}, nil
	}

	issueID, err := parseIssueID(drag.DraggableID)
	if err != nil {
		return MoveResult{}, err
	}
	if err := m.board.checkMove(issueID, drag.Source.ColumnID, dst.ColumnID); err != nil {
		return MoveResult{}, err
	}
	if !m.begin(issueID, dst.ColumnID) {
		return MoveResult{}, fmt.Errorf("%w: %d", ErrMovePending, issueID)
	}
	defer m.finish(issueID)

	logger := log.WithFields(log.Fields{
		"project": m.projectID,
		"issue":   issueID,
		"from":    drag.Source.ColumnID,
		"to":      dst.ColumnID,
	})

	persistCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err = m.store.PersistIssueColumn(persistCtx, m.projectID, issueID, dst.ColumnID)
	cancel()
	if err != nil {
		logger.WithError(err).Error("move rejected by store")
		m.notifier.Notify(ctx, Notification{Level: NotifyError, Message: msgMoveFailed, IssueID: issueID, Timestamp: m.now().UnixMilli()})
		return MoveResult{Outcome: MoveRolledBack, IssueID: issueID, From: drag.Source.ColumnID, To: dst.ColumnID, Version: m.board.Version()},
			fmt.Errorf("%w: issue %d: %w", ErrPersistFailed, issueID, err)
	}

	from, err := m.board.commitMove(issueID, dst.ColumnID, dst.Index)
	if err != nil {
		// The store accepted the move but the board changed underneath it,
		// typically because a reload already reflects the new column.
		logger.WithError(err).Warn("persisted move could not be applied to board")
		from = drag.Source.ColumnID
	} else {
		logger.Debug("move committed")
	}
	m.notifier.Notify(ctx, Notification{Level: NotifySuccess, Message: msgMoveSucceeded, IssueID: issueID, Timestamp: m.now().UnixMilli()})
	m.publish(ctx, issueID, from, dst.ColumnID)

	return MoveResult{Outcome: MoveCommitted, IssueID: issueID, From: from, To: dst.ColumnID, Version: m.board.Version()}, nil
}

func (m *MoveCoordinator) begin(issueID IssueID, to ColumnID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[issueID]; ok {
		return false
	}
	m.pending[issueID] = to
	return true
}

func (m *MoveCoordinator) finish(issueID IssueID) {
	m.mu.Lock()
	delete(m.pending, issueID)
	m.mu.Unlock()
}

func (m *MoveCoordinator) publish(ctx context.Context, issueID IssueID, from, to ColumnID) {
	if m.events == nil {
		return
	}
	ev := IssueMovedEvent{
		ID:           uuid.NewString(),
		Type:         IssueMoved,
		ProjectID:    m.projectID,
		IssueID:      issueID,
		FromColumnID: from,
		ToColumnID:   to,
		UserID:       m.userID,
		Timestamp:    m.now().UnixMilli(),
	}
	if err := m.events.PublishIssueMoved(ctx, ev); err != nil {
		log.WithError(err).WithFields(log.Fields{"project": m.projectID, "issue": issueID}).Error("failed to publish issue-moved event")
	}
}

func parseIssueID(raw string) (IssueID, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad draggable id %q", ErrInvalidMove, raw)
	}
	return IssueID(id), nil
}

// IsRejected reports whether err is the result of a rolled back move.
func IsRejected(err error) bool {
	return errors.Is(err, ErrPersistFailed)
}
