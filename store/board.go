package store

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Seednode/partypuzzle/puzzle"
)

// Capture takes a snapshot of b.
func Capture(b *puzzle.Board) Snapshot {
	placements := b.Placements()

	snap := Snapshot{
		Elapsed:   b.Timer.Elapsed(),
		Completed: b.Completed(),
		Pieces:    make([]PieceState, 0, len(placements)),
	}

	for _, pl := range placements {
		ps := PieceState{
			Index:    pl.Index,
			X:        pl.X,
			Y:        pl.Y,
			Rotation: pl.Rotation,
			Locked:   pl.Locked,
			GroupID:  pl.Index,
		}
		if pl.GroupID != nil {
			ps.GroupID = *pl.GroupID
		}
		snap.Pieces = append(snap.Pieces, ps)
	}

	return snap
}

// Placements converts the saved pieces for Board.ApplyLayout.
func (s Snapshot) Placements() []puzzle.Placement {
	out := make([]puzzle.Placement, 0, len(s.Pieces))

	for _, p := range s.Pieces {
		id := p.GroupID
		out = append(out, puzzle.Placement{
			Index:    p.Index,
			X:        p.X,
			Y:        p.Y,
			Rotation: p.Rotation,
			Locked:   p.Locked,
			GroupID:  &id,
		})
	}

	return out
}

// Restore lays a snapshot onto b and resumes its timer. The timer keeps
// running unless the snapshot was completed.
func Restore(b *puzzle.Board, s Snapshot) {
	if len(s.Pieces) > 0 {
		b.ApplyLayout(s.Placements())
	}

	b.Timer.Resume(s.Elapsed)
	if !s.Completed && !b.Completed() {
		b.Timer.Start()
	}
}

// AutoSave is a board listener that saves the session after every drop and
// on completion. The snapshot is taken on the caller's goroutine and written
// by a background writer, which only ever keeps the latest unsaved one.
type AutoSave struct {
	puzzle.ListenerFuncs

	Store   Store
	ID      string
	Board   *puzzle.Board
	Timeout time.Duration
	Logger  *log.Logger

	queue chan Snapshot
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func NewAutoSave(st Store, id string, b *puzzle.Board, logger *log.Logger) *AutoSave {
	if logger == nil {
		logger = log.Default()
	}

	a := &AutoSave{
		Store:   st,
		ID:      id,
		Board:   b,
		Timeout: 5 * time.Second,
		Logger:  logger,
		queue:   make(chan Snapshot, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	a.Release = func(*puzzle.Piece) { a.Flush() }
	a.Complete = func(int) { a.Flush() }

	go a.run()

	return a
}

// Flush captures the board and queues it, replacing any snapshot still
// waiting to be written. It never blocks.
func (a *AutoSave) Flush() {
	snap := Capture(a.Board)

	for {
		select {
		case a.queue <- snap:
			return
		default:
		}

		select {
		case <-a.queue:
		default:
		}
	}
}

// Close writes the last queued snapshot, if any, and stops the writer.
func (a *AutoSave) Close() {
	a.once.Do(func() { close(a.quit) })
	<-a.done
}

func (a *AutoSave) run() {
	defer close(a.done)

	for {
		select {
		case snap := <-a.queue:
			a.save(snap)
		case <-a.quit:
			select {
			case snap := <-a.queue:
				a.save(snap)
			default:
			}
			return
		}
	}
}

// save writes one snapshot. Failures are logged; play goes on.
func (a *AutoSave) save(snap Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), a.Timeout)
	defer cancel()

	if err := a.Store.Save(ctx, a.ID, snap); err != nil {
		a.Logger.Printf("store: save session %s: %v", a.ID, err)
	}
}
