package netsync

import (
	"context"
	"io"
	"log"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/partypuzzle/protocol"
	"github.com/Seednode/partypuzzle/puzzle"
)

var quiet = log.New(io.Discard, "", 0)

type fakeTransport struct {
	mu   sync.Mutex
	sent []protocol.Message
	err  error

	in   chan protocol.Message
	done chan struct{}
	once sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:   make(chan protocol.Message, 16),
		done: make(chan struct{}),
	}
}

func (f *fakeTransport) Send(msg protocol.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return false
	}

	f.sent = append(f.sent, msg)
	return true
}

func (f *fakeTransport) Inbound() <-chan protocol.Message { return f.in }
func (f *fakeTransport) Done() <-chan struct{}            { return f.done }

func (f *fakeTransport) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.err
}

func (f *fakeTransport) Close() error {
	f.drop(ErrOffline)
	return nil
}

func (f *fakeTransport) drop(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		close(f.done)
	})
}

func (f *fakeTransport) messages() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]protocol.Message(nil), f.sent...)
}

func (f *fakeTransport) types() []string {
	var out []string
	for _, m := range f.messages() {
		out = append(out, m.MessageType())
	}
	return out
}

type observerLog struct {
	NopObserver

	mu        sync.Mutex
	events    []string
	boards    int
	started   int
	completed []int
	offline   chan error
}

func (o *observerLog) record(e string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *observerLog) OnHost(is bool) {
	if is {
		o.record("host")
	}
}

func (o *observerLog) OnPresence(p protocol.Presence) { o.record(p.Type + ":" + p.Username) }
func (o *observerLog) OnRoomInfo(d string)            { o.record("difficulty:" + d) }
func (o *observerLog) OnChat(c protocol.Chat)         { o.record("chat:" + c.Message) }
func (o *observerLog) OnRoomClosed(m string)          { o.record("closed:" + m) }
func (o *observerLog) OnBoard(*puzzle.Board)          { o.boards++ }
func (o *observerLog) OnStarted(*puzzle.Board)        { o.started++ }
func (o *observerLog) OnComplete(elapsed int)         { o.completed = append(o.completed, elapsed) }

func (o *observerLog) OnOffline(err error) {
	if o.offline != nil {
		o.offline <- err
	}
}

func newTestBoard(t *testing.T) *puzzle.Board {
	t.Helper()

	opts := puzzle.DefaultOptions()
	opts.Logger = quiet

	b, err := puzzle.NewBoard(3, 3, 80, opts)
	require.NoError(t, err)

	return b
}

type harness struct {
	sync      *Sync
	transport *fakeTransport
	observer  *observerLog

	factoryCalls int
	difficulty   string
}

func newHarness(t *testing.T, userID string) *harness {
	t.Helper()

	h := &harness{transport: newFakeTransport(), observer: &observerLog{}}
	h.sync = New(h.transport, Config{
		UserID: userID,
		Factory: func(_ context.Context, _ string, difficulty string) (*puzzle.Board, error) {
			h.factoryCalls++
			h.difficulty = difficulty
			return newTestBoard(t), nil
		},
		Observer: h.observer,
		Logger:   quiet,
		Rand:     rand.New(rand.NewPCG(1, 2)),
	})

	return h
}

// spread attaches a board with every piece in its own roomy cell, away from
// home.
func (h *harness) spread(t *testing.T) *puzzle.Board {
	t.Helper()

	b := newTestBoard(t)
	for _, p := range b.Pieces() {
		p.X = 50 + float64(p.Index%3)*180
		p.Y = 30 + float64(p.Index/3)*150
		p.SyncDraw()
	}
	h.sync.Attach(b)

	return b
}

func (h *harness) handle(msgs ...protocol.Message) {
	for _, m := range msgs {
		h.sync.Handle(context.Background(), m)
	}
}

func piece(t *testing.T, b *puzzle.Board, i int) *puzzle.Piece {
	t.Helper()

	p, ok := b.Piece(i)
	require.True(t, ok)

	return p
}

func center(p *puzzle.Piece) puzzle.Point {
	return puzzle.Point{X: p.X + 40, Y: p.Y + 40}
}

func moved(user string, i int, x, y float64, rot int) protocol.Pose {
	return protocol.Pose{Type: protocol.TypeMoved, Index: i, X: x, Y: y, Rotation: rot, UserID: user}
}

func unlocked(user string, i int, x, y float64, rot int) protocol.Pose {
	return protocol.Pose{Type: protocol.TypeUnlocked, Index: i, X: x, Y: y, Rotation: rot, UserID: user}
}

func TestHostCutsShufflesAndStarts(t *testing.T) {
	h := newHarness(t, "me")

	h.handle(
		protocol.IsHost{Type: protocol.TypeIsHost, IsHost: true},
		protocol.RoomInfo{Type: protocol.TypeRoomInfo, Difficulty: "hard"},
		protocol.Image{Type: protocol.TypeImageSet, ImageURL: "https://example.com/a.png"},
	)

	require.True(t, h.sync.IsHost())
	require.NotNil(t, h.sync.Board())
	assert.Equal(t, 1, h.factoryCalls)
	assert.Equal(t, "hard", h.difficulty)
	assert.Equal(t, 1, h.observer.boards)

	sent := h.transport.messages()
	require.Len(t, sent, 1)
	start, ok := sent[0].(protocol.Layout)
	require.True(t, ok)
	assert.Equal(t, protocol.TypeStartGame, start.Type)
	require.Len(t, start.Pieces, 9)

	b := h.sync.Board()
	for _, pp := range start.Pieces {
		p := piece(t, b, pp.Index)
		assert.Equal(t, p.X, pp.X)
		assert.Equal(t, p.Y, pp.Y)
		assert.Equal(t, p.Rotation, pp.Rotation)
		assert.Nil(t, pp.GroupID)
	}
	assert.False(t, b.Timer.Running())

	h.handle(protocol.Image{Type: protocol.TypeImageSet, ImageURL: "https://example.com/a.png"})
	assert.Equal(t, 1, h.factoryCalls)
	assert.Len(t, h.transport.messages(), 1)

	h.handle(protocol.Layout{
		Type:      protocol.TypeGameStarted,
		Pieces:    start.Pieces,
		StartTime: time.Now().Add(-30 * time.Second).Unix(),
	})
	assert.True(t, b.Timer.Running())
	assert.GreaterOrEqual(t, b.Timer.Elapsed(), 30)
	assert.Equal(t, 1, h.observer.started)
}

func TestGuestDefersLayoutUntilImage(t *testing.T) {
	h := newHarness(t, "me")
	zero := 0

	h.handle(protocol.Layout{
		Type: protocol.TypeGameStarted,
		Pieces: []protocol.PiecePose{
			{Index: 0, X: 300, Y: 100, GroupID: &zero},
			{Index: 1, X: 380, Y: 100, GroupID: &zero},
		},
	})
	assert.Nil(t, h.sync.Board())
	assert.Zero(t, h.observer.started)

	h.handle(protocol.Image{Type: protocol.TypeImageSet, ImageURL: "https://example.com/b.png"})

	b := h.sync.Board()
	require.NotNil(t, b)
	assert.Empty(t, h.transport.messages())
	assert.Equal(t, 1, h.observer.started)

	p0, p1 := piece(t, b, 0), piece(t, b, 1)
	assert.True(t, b.SameGroup(p0, p1))
	assert.Equal(t, puzzle.Point{X: 380, Y: 100}, p1.Pos())
	assert.True(t, b.Timer.Running())
}

func TestLocalDropGoesOutInOrder(t *testing.T) {
	h := newHarness(t, "me")
	b := h.spread(t)
	c := h.sync.Controller()

	p1 := piece(t, b, 1)
	grab := center(p1)
	require.True(t, c.PointerDown(grab))
	c.PointerMove(puzzle.Point{X: grab.X - 98, Y: grab.Y + 3})
	c.PointerUp()

	assert.Equal(t, []string{"GRAB", "MOVE", "MERGE", "RELEASE"}, h.transport.types())

	sent := h.transport.messages()
	assert.Equal(t, protocol.Grab{Type: protocol.TypeGrab, Index: 1}, sent[0])
	assert.Equal(t, protocol.Merge{Type: protocol.TypeMerge, Piece1: 1, Piece2: 0}, sent[2])
	assert.Equal(t, protocol.Pose{Type: protocol.TypeRelease, Index: 1, X: 130, Y: 30}, sent[3])
}

func TestOwnEchoesAreIgnored(t *testing.T) {
	h := newHarness(t, "me")
	b := h.spread(t)
	p4 := piece(t, b, 4)

	h.handle(
		protocol.Grab{Type: protocol.TypeLocked, Index: 4, UserID: "me"},
		moved("me", 4, 500, 400, 0),
		protocol.Merge{Type: protocol.TypeMerged, Piece1: 4, Piece2: 3, UserID: "me"},
	)

	assert.Equal(t, puzzle.Point{X: 230, Y: 180}, p4.Pos())
	assert.False(t, p4.HeldByOther)
	assert.False(t, b.SameGroup(p4, piece(t, b, 3)))
}

func TestRemoteMoveIgnoredWhileDraggingLocally(t *testing.T) {
	h := newHarness(t, "me")
	b := h.spread(t)
	c := h.sync.Controller()
	p4 := piece(t, b, 4)

	require.True(t, c.PointerDown(center(p4)))
	h.handle(moved("peer", 4, 10, 10, 0))

	assert.Equal(t, puzzle.Dragging, c.State())
	assert.Equal(t, puzzle.Point{X: 230, Y: 180}, p4.Pos())
	assert.False(t, p4.HeldByOther)
}

func TestLockedCancelsLocalDrag(t *testing.T) {
	h := newHarness(t, "me")
	b := h.spread(t)
	c := h.sync.Controller()
	p4 := piece(t, b, 4)

	start := center(p4)
	require.True(t, c.PointerDown(start))
	c.PointerMove(puzzle.Point{X: start.X + 30, Y: start.Y + 30})
	require.Equal(t, puzzle.Point{X: 260, Y: 210}, p4.Pos())

	h.handle(protocol.Grab{Type: protocol.TypeLocked, Index: 4, UserID: "peer"})

	assert.Equal(t, puzzle.Idle, c.State())
	assert.Equal(t, puzzle.Point{X: 230, Y: 180}, p4.Pos())
	assert.True(t, p4.HeldByOther)
	assert.False(t, c.PointerDown(center(p4)))
}

func TestMovedTranslatesGroupRigidly(t *testing.T) {
	h := newHarness(t, "me")
	b := h.spread(t)
	p0, p1 := piece(t, b, 0), piece(t, b, 1)
	require.NoError(t, b.Merge(p1, p0))

	h.handle(moved("peer", 1, 330, 130, 0))

	assert.Equal(t, puzzle.Point{X: 250, Y: 130}, p0.Pos())
	assert.Equal(t, puzzle.Point{X: 330, Y: 130}, p1.Pos())
	assert.True(t, p0.HeldByOther)
	assert.True(t, p1.HeldByOther)
	assert.Equal(t, 50.0, p0.DrawX, "drawn position is left to the animator")
}

func TestMovedRotationAppliesPerMember(t *testing.T) {
	h := newHarness(t, "me")
	b := h.spread(t)
	p0, p1 := piece(t, b, 0), piece(t, b, 1)
	require.NoError(t, b.Merge(p1, p0))

	// A clockwise turn about p0 arrives as one MOVED per member.
	h.handle(
		moved("peer", 0, 50, 30, 1),
		moved("peer", 1, 50, 110, 1),
	)

	assert.Equal(t, puzzle.Point{X: 50, Y: 30}, p0.Pos())
	assert.Equal(t, puzzle.Point{X: 50, Y: 110}, p1.Pos())
	assert.Equal(t, 1, p0.Rotation)
	assert.Equal(t, 1, p1.Rotation)

	h.handle(moved("peer", 0, 60, 40, 5))

	assert.Equal(t, puzzle.Point{X: 60, Y: 40}, p0.Pos())
	assert.Equal(t, puzzle.Point{X: 60, Y: 120}, p1.Pos())
}

func TestUnlockedSnapsAndCompletes(t *testing.T) {
	h := newHarness(t, "me")
	b := newTestBoard(t)
	h.sync.Attach(b)

	b.ApplyLayout([]puzzle.Placement{{Index: 8, X: 200, Y: 300}})
	p8 := piece(t, b, 8)
	require.False(t, b.Completed())

	h.handle(
		protocol.Grab{Type: protocol.TypeLocked, Index: 8, UserID: "peer"},
		moved("peer", 8, 180, 200, 0),
	)
	require.True(t, p8.HeldByOther)

	h.handle(unlocked("peer", 8, 165, 163, 0))

	assert.False(t, p8.HeldByOther)
	assert.True(t, p8.Locked)
	assert.Equal(t, puzzle.Point{X: 160, Y: 160}, p8.Pos())
	assert.True(t, b.Completed())
	assert.Len(t, h.observer.completed, 1)

	h.handle(unlocked("peer", 8, 160, 160, 0))
	assert.Len(t, h.observer.completed, 1)
}

func TestUnlockedAfterRemoteMergeDoesNotSnap(t *testing.T) {
	h := newHarness(t, "me")
	b := h.spread(t)
	p0, p1 := piece(t, b, 0), piece(t, b, 1)
	p0.X, p0.Y = 5, 5
	p0.SyncDraw()

	h.handle(
		protocol.Merge{Type: protocol.TypeMerged, Piece1: 1, Piece2: 0, UserID: "peer"},
		unlocked("peer", 1, 85, 5, 0),
	)

	assert.True(t, b.SameGroup(p0, p1))
	assert.Equal(t, puzzle.Point{X: 85, Y: 5}, p1.Pos())
	assert.False(t, p0.Locked)

	h.handle(unlocked("peer", 0, 5, 5, 0))
	assert.True(t, p0.Locked)
	assert.True(t, p1.Locked)
	assert.Equal(t, puzzle.Point{X: 80, Y: 0}, p1.Pos())
}

func TestPeerMergeOntoHeldGroupReleasesIt(t *testing.T) {
	h := newHarness(t, "me")
	b := h.spread(t)
	c := h.sync.Controller()
	p0, p1 := piece(t, b, 0), piece(t, b, 1)

	start := center(p0)
	require.True(t, c.PointerDown(start))
	c.PointerMove(puzzle.Point{X: start.X + 100, Y: start.Y})
	require.Equal(t, puzzle.Point{X: 150, Y: 30}, p0.Pos())

	h.handle(
		protocol.Grab{Type: protocol.TypeLocked, Index: 1, UserID: "peer"},
		protocol.Merge{Type: protocol.TypeMerged, Piece1: 1, Piece2: 0, UserID: "peer"},
	)

	assert.Equal(t, puzzle.Idle, c.State())
	assert.Equal(t, []string{"GRAB", "MOVE", "RELEASE"}, h.transport.types())
	assert.Equal(t, protocol.Pose{Type: protocol.TypeRelease, Index: 0, X: 150, Y: 30}, h.transport.messages()[2])

	assert.True(t, b.SameGroup(p0, p1))
	assert.Equal(t, puzzle.Point{X: 150, Y: 30}, p0.Pos())
	assert.Equal(t, puzzle.Point{X: 230, Y: 30}, p1.Pos())
	assert.Equal(t, 1.0, p0.Scale)
	assert.True(t, p0.HeldByOther)

	h.handle(unlocked("peer", 1, 230, 30, 0))

	assert.False(t, p0.HeldByOther)
	assert.False(t, p1.HeldByOther)
	assert.Equal(t, puzzle.Point{X: 150, Y: 30}, p0.Pos())
}

func TestPeerMergeOntoHeldGroupNearHomeSnaps(t *testing.T) {
	h := newHarness(t, "me")
	b := h.spread(t)
	c := h.sync.Controller()
	p0, p1 := piece(t, b, 0), piece(t, b, 1)

	start := center(p0)
	require.True(t, c.PointerDown(start))
	c.PointerMove(puzzle.Point{X: start.X - 45, Y: start.Y - 26})
	require.Equal(t, puzzle.Point{X: 5, Y: 4}, p0.Pos())

	h.handle(protocol.Merge{Type: protocol.TypeMerged, Piece1: 1, Piece2: 0, UserID: "peer"})

	assert.Equal(t, []string{"GRAB", "MOVE", "RELEASE"}, h.transport.types())
	assert.True(t, p0.Locked)
	assert.True(t, p1.Locked)
	assert.Equal(t, puzzle.Point{X: 80, Y: 0}, p1.Pos())
}

func TestPeerGrabWinsOverPendingTurn(t *testing.T) {
	h := newHarness(t, "me")
	b := h.spread(t)
	c := h.sync.Controller()
	p4 := piece(t, b, 4)

	require.True(t, c.DoubleClick(center(p4)))
	assert.Equal(t, 0, p4.Rotation)

	h.handle(protocol.Grab{Type: protocol.TypeLocked, Index: 4, UserID: "peer"})

	assert.Equal(t, 0, p4.Rotation)
	assert.True(t, p4.HeldByOther)
	assert.Equal(t, []string{"GRAB"}, h.transport.types())

	h.handle(moved("peer", 4, 300, 200, 0))
	assert.Equal(t, puzzle.Point{X: 300, Y: 200}, p4.Pos())
	assert.Equal(t, 0, p4.Rotation)
}

func TestGrantedTurnApplies(t *testing.T) {
	h := newHarness(t, "me")
	b := h.spread(t)
	c := h.sync.Controller()
	p4 := piece(t, b, 4)

	require.True(t, c.DoubleClick(center(p4)))
	h.handle(protocol.Grab{Type: protocol.TypeLocked, Index: 4, UserID: "me"})

	assert.Equal(t, 1, p4.Rotation)
	assert.Equal(t, puzzle.Idle, c.State())
	assert.Equal(t, []string{"GRAB", "MOVE", "RELEASE"}, h.transport.types())
	assert.Equal(t, protocol.Pose{Type: protocol.TypeRelease, Index: 4, X: 230, Y: 180, Rotation: 1}, h.transport.messages()[2])
}

func TestTurnAppliesAtOnceOffline(t *testing.T) {
	h := newHarness(t, "me")
	b := h.spread(t)
	c := h.sync.Controller()
	p4 := piece(t, b, 4)

	h.transport.drop(ErrOffline)

	require.True(t, c.DoubleClick(center(p4)))
	assert.Equal(t, 1, p4.Rotation)
	assert.Empty(t, h.transport.types())
}

func TestUnknownPiecesAreIgnored(t *testing.T) {
	h := newHarness(t, "me")

	h.handle(moved("peer", 2, 1, 1, 0))

	b := h.spread(t)
	h.handle(
		moved("peer", 99, 1, 1, 0),
		protocol.Grab{Type: protocol.TypeLocked, Index: -1, UserID: "peer"},
		protocol.Merge{Type: protocol.TypeMerged, Piece1: 0, Piece2: 42, UserID: "peer"},
	)

	for _, p := range b.Pieces() {
		assert.False(t, p.HeldByOther)
		assert.Len(t, b.Members(p), 1)
	}
}

func TestRoomEventsReachObserver(t *testing.T) {
	h := newHarness(t, "me")

	h.handle(
		protocol.IsHost{Type: protocol.TypeIsHost, IsHost: true},
		protocol.Presence{Type: protocol.TypePlayerJoined, Username: "ana", Count: 2},
		protocol.RoomInfo{Type: protocol.TypeRoomInfo, Difficulty: "easy"},
		protocol.Chat{Type: protocol.TypeChat, Message: "hi"},
		protocol.Presence{Type: protocol.TypePlayerLeft, Username: "ana", Count: 1},
		protocol.RoomClosed{Type: protocol.TypeRoomClosed, Message: "bye"},
	)

	assert.Equal(t, []string{
		"host",
		"PLAYER_JOINED:ana",
		"difficulty:easy",
		"chat:hi",
		"PLAYER_LEFT:ana",
		"closed:bye",
	}, h.observer.events)
	assert.Equal(t, "easy", h.sync.Difficulty())
}

func TestOutboundHelpers(t *testing.T) {
	h := newHarness(t, "me")

	assert.False(t, h.sync.StartGame())
	h.sync.Join()
	h.sync.SetImage("https://example.com/c.png")
	h.sync.Chat("ready")

	assert.Equal(t, []protocol.Message{
		protocol.Join{Type: protocol.TypeJoin},
		protocol.Image{Type: protocol.TypeSetImage, ImageURL: "https://example.com/c.png"},
		protocol.Chat{Type: protocol.TypeChat, Message: "ready"},
	}, h.transport.messages())
}
