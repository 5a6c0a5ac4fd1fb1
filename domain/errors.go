package domain

import "errors"

var (
	// ErrInvalidMove indicates a drag result that does not describe a move
	// on the current board.
	ErrInvalidMove = errors.New("invalid move")
	// ErrMovePending indicates the issue already has a move awaiting
	// confirmation from the store.
	ErrMovePending = errors.New("move already pending for issue")
	// ErrPersistFailed indicates the store rejected or did not confirm a move.
	ErrPersistFailed = errors.New("failed to persist move")
	// ErrIssueNotFound is returned by stores when the issue does not exist.
	ErrIssueNotFound = errors.New("issue not found")
	// ErrBoardNotLoaded indicates no board session exists for the caller.
	ErrBoardNotLoaded = errors.New("board not loaded")
	// ErrDuplicateRequest indicates a request whose idempotency key was
	// already seen.
	ErrDuplicateRequest = errors.New("duplicate request")
)
