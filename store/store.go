// Package store persists single-player puzzle sessions.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrInvalidID = errors.New("invalid session id")
)

// PieceState is one piece of a saved board. GroupID is the index of the
// first member of the piece's group.
type PieceState struct {
	Index    int     `json:"piece_index"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation int     `json:"rotation"`
	Locked   bool    `json:"is_locked"`
	GroupID  int     `json:"group_id"`
}

// Snapshot is the saved state of a board.
type Snapshot struct {
	Elapsed   int          `json:"elapsed_time"`
	Completed bool         `json:"is_completed"`
	Pieces    []PieceState `json:"pieces"`
}

// Session is a single-player puzzle and its latest snapshot.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ImageURL   string    `json:"image_url"`
	Title      string    `json:"title,omitempty"`
	Difficulty string    `json:"difficulty,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Snapshot
}

// Store is implemented by FS and HTTP.
type Store interface {
	Create(ctx context.Context, s Session) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	Save(ctx context.Context, id string, snap Snapshot) error
	Load(ctx context.Context, id string) (Snapshot, error)
	History(ctx context.Context, userID string) ([]Session, error)
}

// ValidID reports whether id is a session id this package would issue.
func ValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
