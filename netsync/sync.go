/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package netsync

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"slices"

	"github.com/Seednode/partypuzzle/protocol"
	"github.com/Seednode/partypuzzle/puzzle"
)

// BoardFactory cuts the picture at imageURL into a fresh board.
type BoardFactory func(ctx context.Context, imageURL, difficulty string) (*puzzle.Board, error)

type Config struct {
	UserID   string
	Factory  BoardFactory
	Observer Observer
	Logger   *log.Logger

	// Rand shuffles the board when this participant hosts.
	Rand *rand.Rand
}

// Sync is the board listener that turns each local mutation into one
// outbound message, and the handler that applies peers' messages to the
// same board. All of its methods must run on the goroutine that owns the
// board.
type Sync struct {
	userID  string
	t       Transport
	obs     Observer
	factory BoardFactory
	logger  *log.Logger
	rng     *rand.Rand

	board *puzzle.Board
	ctrl  *puzzle.Controller

	isHost     bool
	difficulty string
	imageURL   string
	pending    *protocol.Layout

	// mergedBy remembers peers whose current drop ended in a merge, so the
	// following UNLOCKED does not also snap.
	mergedBy map[string]bool

	// grabSent reports whether the last GRAB reached the transport.
	grabSent bool
	// awaiting holds turns waiting for the room to grant their group.
	awaiting []awaited
}

type awaited struct {
	index int
	then  func()
}

func New(t Transport, cfg Config) *Sync {
	obs := cfg.Observer
	if obs == nil {
		obs = NopObserver{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Sync{
		userID:   cfg.UserID,
		t:        t,
		obs:      obs,
		factory:  cfg.Factory,
		logger:   logger,
		rng:      rng,
		mergedBy: make(map[string]bool),
	}
}

func (s *Sync) UserID() string {
	return s.userID
}

func (s *Sync) IsHost() bool {
	return s.isHost
}

func (s *Sync) Difficulty() string {
	return s.difficulty
}

// Board returns the current board, or nil before a picture is set.
func (s *Sync) Board() *puzzle.Board {
	return s.board
}

// Controller returns the local input controller for the current board.
func (s *Sync) Controller() *puzzle.Controller {
	return s.ctrl
}

// Attach makes b the current board: a new controller is created for it
// and s subscribes to its mutations. The viewport carries over.
func (s *Sync) Attach(b *puzzle.Board) {
	view := puzzle.NewViewport()
	if s.ctrl != nil {
		s.ctrl.Cancel()
		view = s.ctrl.Viewport()
	}

	s.board = b
	s.ctrl = puzzle.NewController(b, view)
	s.ctrl.SetGate(s)
	s.awaiting = nil
	b.Subscribe(s)

	s.obs.OnBoard(b)
}

// Join announces this participant to the room.
func (s *Sync) Join() bool {
	return s.t.Send(protocol.Join{Type: protocol.TypeJoin})
}

// SetImage asks the room to switch pictures.
func (s *Sync) SetImage(url string) bool {
	return s.t.Send(protocol.Image{Type: protocol.TypeSetImage, ImageURL: url})
}

func (s *Sync) Chat(text string) bool {
	return s.t.Send(protocol.Chat{Type: protocol.TypeChat, Message: text})
}

// StartGame shuffles the board and sends the layout to the room.
func (s *Sync) StartGame() bool {
	if s.board == nil {
		return false
	}

	s.ctrl.Cancel()
	s.board.Shuffle(s.rng)

	placements := s.board.Placements()
	poses := make([]protocol.PiecePose, 0, len(placements))
	for _, pl := range placements {
		poses = append(poses, protocol.PiecePose{
			Index:    pl.Index,
			X:        pl.X,
			Y:        pl.Y,
			Rotation: pl.Rotation,
		})
	}

	return s.t.Send(protocol.Layout{Type: protocol.TypeStartGame, Pieces: poses})
}

func (s *Sync) OnGrab(p *puzzle.Piece) {
	s.grabSent = s.t.Send(protocol.Grab{Type: protocol.TypeGrab, Index: p.Index})
}

// Await holds a turn until our LOCKED for p comes back. If another
// participant's LOCKED for the group arrives first the turn is dropped.
// Offline, the turn applies at once.
func (s *Sync) Await(p *puzzle.Piece, then func()) {
	if !s.grabSent {
		then()
		return
	}

	s.awaiting = append(s.awaiting, awaited{index: p.Index, then: then})
}

func (s *Sync) granted(index int) {
	for i, a := range s.awaiting {
		if a.index == index {
			s.awaiting = slices.Delete(s.awaiting, i, i+1)
			a.then()
			return
		}
	}
}

// refused drops the turns waiting on p's group.
func (s *Sync) refused(p *puzzle.Piece) {
	s.awaiting = slices.DeleteFunc(s.awaiting, func(a awaited) bool {
		q, ok := s.board.Piece(a.index)
		return ok && s.board.SameGroup(p, q)
	})
}

func (s *Sync) OnMove(p *puzzle.Piece) {
	s.t.Send(pose(protocol.TypeMove, p))
}

func (s *Sync) OnRelease(p *puzzle.Piece) {
	s.t.Send(pose(protocol.TypeRelease, p))
}

func (s *Sync) OnMerge(dragged, stationary *puzzle.Piece) {
	s.t.Send(protocol.Merge{
		Type:   protocol.TypeMerge,
		Piece1: dragged.Index,
		Piece2: stationary.Index,
	})
}

func (s *Sync) OnComplete(elapsed int) {
	s.obs.OnComplete(elapsed)
}

func pose(kind string, p *puzzle.Piece) protocol.Pose {
	return protocol.Pose{
		Type:     kind,
		Index:    p.Index,
		X:        p.X,
		Y:        p.Y,
		Rotation: p.Rotation,
	}
}

// Handle applies one inbound message. Echoes of our own actions and
// messages for unknown pieces are dropped.
func (s *Sync) Handle(ctx context.Context, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.IsHost:
		s.isHost = m.IsHost
		s.obs.OnHost(m.IsHost)

	case protocol.Presence:
		s.obs.OnPresence(m)

	case protocol.RoomInfo:
		s.difficulty = m.Difficulty
		s.obs.OnRoomInfo(m.Difficulty)

	case protocol.Chat:
		s.obs.OnChat(m)

	case protocol.RoomClosed:
		s.obs.OnRoomClosed(m.Message)

	case protocol.Image:
		if m.Type == protocol.TypeImageSet {
			s.handleImageSet(ctx, m)
		}

	case protocol.Layout:
		if m.Type == protocol.TypeGameStarted {
			s.handleGameStarted(m)
		}

	case protocol.Grab:
		if m.Type != protocol.TypeLocked {
			return
		}
		if s.echo(m.UserID) {
			s.granted(m.Index)
		} else {
			s.handleLocked(m)
		}

	case protocol.Pose:
		if s.echo(m.UserID) {
			return
		}
		switch m.Type {
		case protocol.TypeMoved:
			s.handleMoved(m)
		case protocol.TypeUnlocked:
			s.handleUnlocked(m)
		}

	case protocol.Merge:
		if m.Type == protocol.TypeMerged && !s.echo(m.UserID) {
			s.handleMerged(m)
		}
	}
}

func (s *Sync) echo(userID string) bool {
	return userID != "" && userID == s.userID
}

func (s *Sync) piece(index int) (*puzzle.Piece, bool) {
	if s.board == nil {
		return nil, false
	}

	p, ok := s.board.Piece(index)
	if !ok {
		s.logger.Printf("netsync: no piece %d on this board", index)
	}

	return p, ok
}

func (s *Sync) handleImageSet(ctx context.Context, m protocol.Image) {
	if m.ImageURL == "" || (m.ImageURL == s.imageURL && s.board != nil) {
		return
	}

	if s.factory == nil {
		s.obs.OnError(fmt.Errorf("no board factory for %s", m.ImageURL))
		return
	}

	b, err := s.factory(ctx, m.ImageURL, s.difficulty)
	if err != nil {
		s.obs.OnError(fmt.Errorf("load %s: %w", m.ImageURL, err))
		return
	}

	s.imageURL = m.ImageURL
	s.Attach(b)

	if s.isHost {
		s.StartGame()
	}

	if s.pending != nil {
		layout := *s.pending
		s.pending = nil
		s.handleGameStarted(layout)
	}
}

func (s *Sync) handleGameStarted(m protocol.Layout) {
	if s.board == nil {
		s.pending = &m
		return
	}

	placements := make([]puzzle.Placement, 0, len(m.Pieces))
	for _, pp := range m.Pieces {
		placements = append(placements, puzzle.Placement{
			Index:    pp.Index,
			X:        pp.X,
			Y:        pp.Y,
			Rotation: pp.Rotation,
			Locked:   pp.Locked,
			GroupID:  pp.GroupID,
		})
	}

	s.ctrl.Cancel()
	s.board.ApplyLayout(placements)
	clear(s.mergedBy)
	s.awaiting = nil

	if m.StartTime > 0 {
		s.board.Timer.StartAt(m.StartTime)
	} else {
		s.board.Timer.Start()
	}
	if s.board.Completed() {
		s.board.Timer.Stop()
	}

	s.obs.OnStarted(s.board)
}

// handleLocked marks the group as held elsewhere. The server grants each
// group to one participant, so if we were dragging or turning it ourselves
// the grab went to someone else and our change is abandoned.
func (s *Sync) handleLocked(m protocol.Grab) {
	p, ok := s.piece(m.Index)
	if !ok {
		return
	}

	if s.ctrl.Holds(p) {
		s.ctrl.Cancel()
	}
	s.refused(p)

	s.board.SetHeldByOther(p, true)
}

func (s *Sync) handleMoved(m protocol.Pose) {
	p, ok := s.piece(m.Index)
	if !ok || s.ctrl.Holds(p) || s.board.GroupLocked(p) {
		return
	}

	s.applyPose(p, m)
	s.board.SetHeldByOther(p, true)
}

// applyPose moves a piece to a peer's pose. A changed rotation is part of a
// group turn, which arrives as one message per member, so only p moves.
// Otherwise the whole group follows p rigidly.
func (s *Sync) applyPose(p *puzzle.Piece, m protocol.Pose) {
	rot := puzzle.NormalizeRotation(m.Rotation)

	if rot != p.Rotation {
		p.X = m.X
		p.Y = m.Y
		p.Rotation = rot
		return
	}

	s.board.TranslateGroup(p, m.X-p.X, m.Y-p.Y)
}

func (s *Sync) handleUnlocked(m protocol.Pose) {
	p, ok := s.piece(m.Index)
	if !ok {
		return
	}

	merged := s.mergedBy[m.UserID]
	delete(s.mergedBy, m.UserID)

	if !s.board.GroupLocked(p) && !s.ctrl.Holds(p) {
		s.applyPose(p, m)
	}

	s.board.SetHeldByOther(p, false)

	if !merged && !s.board.GroupLocked(p) {
		s.board.SnapToBoard(p)
	}

	s.board.CheckCompletion()
}

func (s *Sync) handleMerged(m protocol.Merge) {
	a, ok := s.piece(m.Piece1)
	if !ok {
		return
	}
	c, ok := s.piece(m.Piece2)
	if !ok {
		return
	}

	// The peer merged against our group where our last MOVE put it, so the
	// drag ends there and the room gets our release.
	var held *puzzle.Piece
	if s.ctrl.Holds(a) || s.ctrl.Holds(c) {
		held = s.ctrl.Dragging()
		s.ctrl.Drop()
	}

	if err := s.board.Merge(a, c); err != nil {
		s.logger.Printf("netsync: merge of %d onto %d from %s: %v", a.Index, c.Index, m.UserID, err)
		return
	}

	// A merge can join a held group with an idle one.
	if s.board.GroupHeldByOther(a) {
		s.board.SetHeldByOther(a, true)
	}

	// Peers snap on our UNLOCKED, so do the same here.
	if held != nil && !s.board.GroupLocked(held) {
		s.board.SnapToBoard(held)
	}

	s.mergedBy[m.UserID] = true
	s.board.CheckCompletion()
}
