package domain

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultSessionTTL is how long an untouched board session is kept.
const DefaultSessionTTL = 30 * time.Minute

// Store is the external collaborator the board reads from and persists moves to.
type Store interface {
	FetchColumns(ctx context.Context, projectID string) ([]Column, error)
	// FetchActiveSprint returns nil when the project has no active sprint.
	FetchActiveSprint(ctx context.Context, projectID string) (*Sprint, error)
	FetchWorkspaceMembers(ctx context.Context, workspaceID string) ([]WorkspaceMember, error)
	Persister
}

// NotifierFactory returns the notifier for one user's view of a project.
type NotifierFactory func(userID, projectID string) Notifier

// Session is one user's live view of a project board.
type Session struct {
	UserID      string
	ProjectID   string
	WorkspaceID string
	Board       *BoardState
	Moves       *MoveCoordinator

	mu       sync.RWMutex
	sprint   *SprintSummary
	members  []WorkspaceMember
	lastSeen time.Time
}

// View is what the board screen renders.
type View struct {
	Snapshot
	SelectorLabel string            `json:"selectorLabel"`
	Sprint        *SprintSummary    `json:"sprint"`
	Members       []WorkspaceMember `json:"members"`
}

// View returns the current projections together with the sprint header and
// member list.
func (s *Session) View() View {
	snap := s.Board.Snapshot()
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := append([]WorkspaceMember{}, s.members...)
	return View{
		Snapshot:      snap,
		SelectorLabel: snap.Selector.Label(members),
		Sprint:        s.sprint,
		Members:       members,
	}
}

// OnFilterChange applies a new member selector to the session's board.
func (s *Session) OnFilterChange(sel Selector) View {
	s.Board.ApplyFilter(sel)
	return s.View()
}

// OnDragEnd forwards a drag gesture to the session's move coordinator.
func (s *Session) OnDragEnd(ctx context.Context, drag DragResult) (MoveResult, error) {
	return s.Moves.OnDragEnd(ctx, drag)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) expired(now time.Time, ttl time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.lastSeen) > ttl
}

type sessionKey struct {
	userID    string
	projectID string
}

// BoardService loads boards from the store and keeps one session per user
// and project.
type BoardService struct {
	store          Store
	notifiers      NotifierFactory
	events         EventPublisher
	persistTimeout time.Duration
	ttl            time.Duration
	now            func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

// NewBoardService creates a BoardService. notifiers and events may be nil.
func NewBoardService(store Store, notifiers NotifierFactory, events EventPublisher, persistTimeout, ttl time.Duration) *BoardService {
	if store == nil {
		panic("domain.NewBoardService: store is nil")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &BoardService{
		store:          store,
		notifiers:      notifiers,
		events:         events,
		persistTimeout: persistTimeout,
		ttl:            ttl,
		now:            time.Now,
		sessions:       make(map[sessionKey]*Session),
	}
}

// Load fetches columns, the active sprint and the workspace members and
// (re)loads the caller's session. An existing session keeps its selector.
// A project without an active sprint loads as a board with empty columns.
func (s *BoardService) Load(ctx context.Context, userID, projectID, workspaceID string) (*Session, error) {
	columns, err := s.store.FetchColumns(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("fetch columns: %w", err)
	}
	sprint, err := s.store.FetchActiveSprint(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("fetch active sprint: %w", err)
	}
	var members []WorkspaceMember
	if workspaceID != "" {
		members, err = s.store.FetchWorkspaceMembers(ctx, workspaceID)
		if err != nil {
			// The board is usable without the member list; only the filter
			// labels degrade.
			log.WithError(err).WithField("workspace", workspaceID).Error("failed to load workspace members")
			members = nil
		}
	}

	var issues []Issue
	var summary *SprintSummary
	if sprint != nil {
		issues = sprint.Issues
		sum := sprint.Summary()
		summary = &sum
	}

	now := s.now()
	sess := s.session(userID, projectID, now)
	sess.Board.Load(columns, issues)
	sess.mu.Lock()
	sess.WorkspaceID = workspaceID
	sess.sprint = summary
	sess.members = members
	sess.lastSeen = now
	sess.mu.Unlock()

	log.WithFields(log.Fields{
		"user":    userID,
		"project": projectID,
		"columns": len(columns),
		"issues":  len(issues),
	}).Debug("board loaded")
	return sess, nil
}

// Session returns the caller's loaded session or ErrBoardNotLoaded.
func (s *BoardService) Session(userID, projectID string) (*Session, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	sess, ok := s.sessions[sessionKey{userID: userID, projectID: projectID}]
	if !ok {
		return nil, ErrBoardNotLoaded
	}
	sess.touch(now)
	return sess, nil
}

// Drop removes the caller's session.
func (s *BoardService) Drop(userID, projectID string) {
	s.mu.Lock()
	delete(s.sessions, sessionKey{userID: userID, projectID: projectID})
	s.mu.Unlock()
}

func (s *BoardService) session(userID, projectID string, now time.Time) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	key := sessionKey{userID: userID, projectID: projectID}
	if sess, ok := s.sessions[key]; ok {
		return sess
	}
	var notifier Notifier
	if s.notifiers != nil {
		notifier = s.notifiers(userID, projectID)
	}
	board := NewBoardState()
	sess := &Session{
		UserID:    userID,
		ProjectID: projectID,
		Board:     board,
		Moves:     NewMoveCoordinator(projectID, userID, board, s.store, notifier, s.events, s.persistTimeout),
		lastSeen:  now,
	}
	s.sessions[key] = sess
	return sess
}

func (s *BoardService) sweepLocked(now time.Time) {
	for key, sess := range s.sessions {
		if sess.expired(now, s.ttl) {
			delete(s.sessions, key)
		}
	}
}
