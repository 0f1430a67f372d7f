/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Seednode/partypuzzle/netsync"
	"github.com/Seednode/partypuzzle/protocol"
	"github.com/Seednode/partypuzzle/puzzle"
	"github.com/Seednode/partypuzzle/render"
	"github.com/Seednode/partypuzzle/slicer"
	"github.com/Seednode/partypuzzle/store"
)

// roomSocketURL turns a server base URL into the websocket URL of a room.
func roomSocketURL(server, room string, hc *HostConfig) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(server, "/"))
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}

	u.Path += "/room/" + room + "/ws"

	q := url.Values{}
	q.Set("user_id", hc.userID)
	if hc.username != "" {
		q.Set("username", hc.username)
	}
	q.Set("difficulty", hc.difficulty)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// headless is the observer of a host run. Every method runs on the loop
// goroutine.
type headless struct {
	netsync.NopObserver

	cfg    *Config
	hc     *HostConfig
	cancel context.CancelFunc
	logger *log.Logger
	store  store.Store

	sprites  *slicer.Set
	sets     map[*puzzle.Board]*slicer.Set
	autosave *store.AutoSave

	// err is the picture failure that ended the run, if any.
	err error
}

func (h *headless) OnHost(isHost bool) {
	logf(h.cfg, "HOST: Hosting room %s: %t", h.hc.room, isHost)
}

func (h *headless) OnPresence(p protocol.Presence) {
	logf(h.cfg, "HOST: %s %s (%d in room)", p.Type, p.Username, p.Count)
}

func (h *headless) OnRoomInfo(difficulty string) {
	logf(h.cfg, "HOST: Room difficulty is %s", difficulty)
}

func (h *headless) OnChat(c protocol.Chat) {
	logf(h.cfg, "HOST: <%s> %s", c.Username, c.Message)
}

func (h *headless) OnRoomClosed(message string) {
	logf(h.cfg, "HOST: Room closed: %s", message)
	h.cancel()
}

func (h *headless) OnBoard(b *puzzle.Board) {
	h.sprites = h.sets[b]

	logf(h.cfg, "HOST: New board, %dx%d pieces of %.0fpx", b.Cols, b.Rows, b.PieceSize)

	if h.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sess, err := h.store.Create(ctx, store.Session{
		UserID:     h.hc.userID,
		ImageURL:   h.hc.image,
		Title:      "Room " + h.hc.room,
		Difficulty: h.hc.difficulty,
	})
	if err != nil {
		h.logger.Printf("host: create session: %v", err)
		return
	}

	if old := h.autosave; old != nil {
		go old.Close()
	}
	h.autosave = store.NewAutoSave(h.store, sess.ID, b, h.logger)
	b.Subscribe(h.autosave)

	logf(h.cfg, "HOST: Saving to session %s", sess.ID)
}

// closeAutoSave writes out the last snapshot of the current board.
func (h *headless) closeAutoSave() {
	if h.autosave != nil {
		h.autosave.Close()
		h.autosave = nil
	}
}

func (h *headless) OnStarted(b *puzzle.Board) {
	logf(h.cfg, "HOST: Game started, %s elapsed", render.FormatElapsed(b.Timer.Elapsed()))
}

func (h *headless) OnComplete(elapsed int) {
	logf(h.cfg, "HOST: Puzzle completed in %s", render.FormatElapsed(elapsed))
}

func (h *headless) OnOffline(err error) {
	logf(h.cfg, "HOST: Connection lost: %v", err)
	h.cancel()
}

func (h *headless) OnError(err error) {
	h.logger.Printf("host: %v", err)
	if h.err == nil {
		h.err = err
	}
	h.cancel()
}

// factory cuts the picture at ref into a board and keeps its sprites for
// snapshots.
func (h *headless) factory(client *http.Client) netsync.BoardFactory {
	return func(ctx context.Context, ref, difficulty string) (*puzzle.Board, error) {
		d, err := slicer.ParseDifficulty(difficulty)
		if err != nil {
			d, _ = slicer.ParseDifficulty(h.hc.difficulty)
		}

		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		img, err := slicer.Open(ctx, client, ref)
		if err != nil {
			return nil, err
		}

		set, err := slicer.Slice(img, d)
		if err != nil {
			return nil, err
		}

		opts := puzzle.DefaultOptions()
		opts.MergeEnabled = !h.hc.noMerge
		opts.Logger = h.logger

		b, err := puzzle.NewBoard(set.Cols, set.Rows, set.PieceSize, opts)
		if err != nil {
			return nil, err
		}

		// Only the current board is ever looked up.
		clear(h.sets)
		h.sets[b] = set

		return b, nil
	}
}

func (h *headless) writeSnapshot(b *puzzle.Board) error {
	if h.hc.snapshot == "" || b == nil || h.sprites == nil {
		return nil
	}

	f, err := os.Create(h.hc.snapshot)
	if err != nil {
		return err
	}

	raster := render.NewRaster(h.sprites)
	if err := png.Encode(f, raster.Render(b)); err != nil {
		_ = f.Close()
		return err
	}

	logf(h.cfg, "HOST: Wrote snapshot to %s", h.hc.snapshot)

	return f.Close()
}

func runHost(ctx context.Context, cfg *Config, hc *HostConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if hc.userID == "" {
		hc.userID = uuid.NewString()
	}

	wsURL, err := roomSocketURL(hc.server, hc.room, hc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if hc.duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, hc.duration)
		defer cancel()
	}

	logger := log.New(os.Stderr, "", 0)
	client := &http.Client{Timeout: 30 * time.Second}

	h := &headless{
		cfg:    cfg,
		hc:     hc,
		cancel: cancel,
		logger: logger,
		sets:   make(map[*puzzle.Board]*slicer.Set),
	}
	if hc.saveSession {
		h.store = store.NewHTTP(hc.server, client)
	}

	logf(cfg, "HOST: Joining %s as %s", wsURL, hc.userID)

	conn, err := netsync.Dial(ctx, wsURL, logger)
	if err != nil {
		return fmt.Errorf("join room %s: %w", hc.room, err)
	}

	s := netsync.New(conn, netsync.Config{
		UserID:   hc.userID,
		Factory:  h.factory(client),
		Observer: h,
		Logger:   logger,
	})

	loop := netsync.NewLoop(s, conn)
	loop.Post(func(s *netsync.Sync) {
		s.Join()
		if hc.image != "" {
			s.SetImage(hc.image)
		}
	})

	completed := false
	loop.OnFrame = func(b *puzzle.Board, moving bool) {
		if completed || moving || !b.Completed() {
			return
		}
		completed = true
		if err := h.writeSnapshot(b); err != nil {
			logger.Printf("host: snapshot: %v", err)
		}
	}

	err = loop.Run(ctx)
	h.closeAutoSave()

	if err := h.writeSnapshot(s.Board()); err != nil {
		logger.Printf("host: snapshot: %v", err)
	}

	if h.err != nil {
		return h.err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	return err
}
