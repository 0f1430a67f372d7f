package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FS keeps one JSON file per session in a directory.
type FS struct {
	dir string
	mu  sync.Mutex

	// Now is the clock used for timestamps; tests replace it.
	Now func() time.Time
}

func NewFS(dir string) *FS {
	return &FS{dir: dir, Now: time.Now}
}

func (s *FS) pathFor(id string) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.dir, strings.ToLower(id)+".json"), nil
}

// Create assigns a new id and timestamps and writes the session.
func (s *FS) Create(ctx context.Context, sess Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now().UTC()
	sess.ID = uuid.NewString()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	if err := s.write(sess); err != nil {
		return Session{}, err
	}

	return sess, nil
}

func (s *FS) Get(ctx context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read(id)
}

// Save replaces the session's snapshot.
func (s *FS) Save(ctx context.Context, id string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.read(id)
	if err != nil {
		return err
	}

	sess.Snapshot = snap
	sess.UpdatedAt = s.Now().UTC()

	return s.write(sess)
}

func (s *FS) Load(ctx context.Context, id string) (Snapshot, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot, nil
}

// History lists a user's sessions, most recently updated first.
func (s *FS) History(ctx context.Context, userID string) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ents, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []Session
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		sess, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil || sess.UserID != userID {
			continue
		}
		out = append(out, sess)
	}

	slices.SortFunc(out, func(a, b Session) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	return out, nil
}

func (s *FS) read(id string) (Session, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return Session{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Session{}, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}

	return sess, nil
}

// write replaces the session file atomically.
func (s *FS) write(sess Session) error {
	path, err := s.pathFor(sess.ID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sess); err != nil {
		tmp.Close()
		return fmt.Errorf("write session %s: %w", sess.ID, err)
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
