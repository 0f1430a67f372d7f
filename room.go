// Partypuzzle Rooms
//
// A room relays the puzzle protocol between everyone connected to it and
// keeps just enough state to referee and to bring late joiners up to date.
//
// Features:
// - WebSockets per room ID: /room/:roomid and /room/:roomid/ws
// - First connection to a room becomes host; only the host may start a game
// - Grabbing a piece takes an exclusive lock on its whole group
// - Moves and releases are accepted only from the lock holder
// - Merges are tracked with union-find, so late joiners receive groups
// - Host leaving closes the room; a guest leaving frees its locks
// - Rooms auto-reaped after configurable idle timeout
// - Random 8-char room IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current room, backed by go-qrcode

package main

import (
	"crypto/rand"
	"encoding/hex"
	"html"
	"io"
	"log"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/partypuzzle/protocol"
	"github.com/Seednode/partypuzzle/puzzle"
	"github.com/Seednode/partypuzzle/slicer"
)

const (
	maxChatLength  = 200
	maxMessageSize = 1 << 20
	clientBuffer   = 256
)

const roomClosedMessage = "The host has left, so the room has been closed."

// roomPiece is the server's view of one piece.
type roomPiece struct {
	X        float64
	Y        float64
	Rotation int
	lockedBy string // user holding the piece's group, if any
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	userID   string
	username string
}

type request struct {
	client *Client
	msg    protocol.Message
}

type Hub struct {
	id      string
	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	requests chan request
	quit     chan struct{}
	stopOnce sync.Once

	// onClose is called once the room has shut itself down.
	onClose func(h *Hub)

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
	hostUserID string
	difficulty string

	imageURL  string
	started   bool
	startTime int64
	pieces    map[int]*roomPiece
	groups    map[int]int // union-find parent: piece index -> parent index
}

func newHub(roomID string) *Hub {
	now := time.Now()
	return &Hub{
		id:         roomID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		requests:   make(chan request),
		quit:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
		difficulty: string(slicer.Normal),
		pieces:     make(map[int]*roomPiece),
		groups:     make(map[int]int),
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()

			// First connection becomes host
			if h.hostUserID == "" {
				h.hostUserID = c.userID
			}
			h.clients[c] = true

			h.mu.Unlock()

		case c := <-h.unreg:
			if h.leave(cfg, c) {
				return
			}

		case req := <-h.requests:
			h.handle(cfg, req)

		case <-h.quit:
			return
		}
	}
}

// leave drops a client. It reports whether the room closed as a result.
func (h *Hub) leave(cfg *Config, c *Client) bool {
	h.mu.Lock()

	h.lastActive = time.Now()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}

	if c.userID == h.hostUserID && !h.userConnectedLocked(c.userID) {
		logf(cfg, "ROOMS: Host %q left %s, closing", c.username, h.id)

		h.broadcastLocked(protocol.RoomClosed{
			Type:    protocol.TypeRoomClosed,
			Message: roomClosedMessage,
		})
		h.mu.Unlock()

		h.shutdown()

		return true
	}

	h.broadcastLocked(protocol.Presence{
		Type:     protocol.TypePlayerLeft,
		UserID:   c.userID,
		Username: c.username,
		Count:    len(h.clients),
	})

	if !h.userConnectedLocked(c.userID) {
		h.releaseAllLocked(c.userID)
	}

	h.mu.Unlock()

	return false
}

func (h *Hub) userConnectedLocked(userID string) bool {
	for client := range h.clients {
		if client.userID == userID {
			return true
		}
	}
	return false
}

// sendLocked queues msg for one client, dropping clients that cannot keep up.
func (h *Hub) sendLocked(c *Client, msg any) {
	if !h.clients[c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcastLocked(msg any) {
	for client := range h.clients {
		h.sendLocked(client, msg)
	}
}

func (h *Hub) handle(cfg *Config, req request) {
	c := req.client

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	switch m := req.msg.(type) {
	case protocol.Join:
		h.handleJoinLocked(cfg, c)

	case protocol.Image:
		if m.Type != protocol.TypeSetImage || m.ImageURL == "" || m.ImageURL == h.imageURL {
			return
		}

		h.imageURL = m.ImageURL
		h.started = false
		clear(h.pieces)
		clear(h.groups)

		logf(cfg, "ROOMS: %q set the image of %s", c.username, h.id)

		h.broadcastLocked(protocol.Image{Type: protocol.TypeImageSet, ImageURL: m.ImageURL})

	case protocol.Layout:
		if m.Type != protocol.TypeStartGame || c.userID != h.hostUserID {
			return
		}

		h.startGameLocked(m.Pieces)

		logf(cfg, "ROOMS: Started %s with %d pieces", h.id, len(m.Pieces))

		h.broadcastLocked(protocol.Layout{
			Type:      protocol.TypeGameStarted,
			Pieces:    m.Pieces,
			StartTime: h.startTime,
		})

	case protocol.Grab:
		if m.Type != protocol.TypeGrab || !h.lockGroupLocked(m.Index, c.userID) {
			return
		}

		h.broadcastLocked(protocol.Grab{Type: protocol.TypeLocked, Index: m.Index, UserID: c.userID})

	case protocol.Pose:
		if m.Type != protocol.TypeMove && m.Type != protocol.TypeRelease {
			return
		}

		p, ok := h.pieces[m.Index]
		if !ok || p.lockedBy != c.userID {
			return
		}

		h.moveHeldLocked(m.Index, c.userID, m.X, m.Y, m.Rotation)

		kind := protocol.TypeMoved
		if m.Type == protocol.TypeRelease {
			kind = protocol.TypeUnlocked
			h.unlockGroupLocked(m.Index, c.userID)
		}

		h.broadcastLocked(protocol.Pose{
			Type:     kind,
			Index:    m.Index,
			X:        m.X,
			Y:        m.Y,
			Rotation: m.Rotation,
			UserID:   c.userID,
		})

	case protocol.Merge:
		if m.Type != protocol.TypeMerge {
			return
		}
		if _, ok := h.pieces[m.Piece1]; !ok {
			return
		}
		if _, ok := h.pieces[m.Piece2]; !ok {
			return
		}

		h.groupUnionLocked(m.Piece2, m.Piece1)

		h.broadcastLocked(protocol.Merge{
			Type:   protocol.TypeMerged,
			Piece1: m.Piece1,
			Piece2: m.Piece2,
			UserID: c.userID,
		})

	case protocol.Chat:
		text := strings.TrimSpace(m.Message)
		if text == "" || utf8.RuneCountInString(text) > maxChatLength {
			return
		}

		h.broadcastLocked(protocol.Chat{
			Type:      protocol.TypeChat,
			Message:   text,
			UserID:    c.userID,
			Username:  c.username,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// handleJoinLocked greets a participant and brings it up to date: host
// status and difficulty first, then the running layout, then the image.
func (h *Hub) handleJoinLocked(cfg *Config, c *Client) {
	h.sendLocked(c, protocol.IsHost{Type: protocol.TypeIsHost, IsHost: c.userID == h.hostUserID})
	h.sendLocked(c, protocol.RoomInfo{Type: protocol.TypeRoomInfo, Difficulty: h.difficulty})

	h.broadcastLocked(protocol.Presence{
		Type:     protocol.TypePlayerJoined,
		UserID:   c.userID,
		Username: c.username,
		Count:    len(h.clients),
	})

	logf(cfg, "ROOMS: Player %q joined %s", c.username, h.id)

	if h.started {
		h.sendLocked(c, protocol.Layout{
			Type:      protocol.TypeGameStarted,
			Pieces:    h.layoutLocked(),
			StartTime: h.startTime,
		})
	}

	if h.imageURL != "" {
		h.sendLocked(c, protocol.Image{Type: protocol.TypeImageSet, ImageURL: h.imageURL})
	}
}

func (h *Hub) startGameLocked(poses []protocol.PiecePose) {
	clear(h.pieces)
	clear(h.groups)

	for _, pp := range poses {
		h.pieces[pp.Index] = &roomPiece{
			X:        pp.X,
			Y:        pp.Y,
			Rotation: puzzle.NormalizeRotation(pp.Rotation),
		}
	}

	h.started = true
	h.startTime = time.Now().Unix()
}

// layoutLocked lists every piece with its group, for late joiners.
func (h *Hub) layoutLocked() []protocol.PiecePose {
	out := make([]protocol.PiecePose, 0, len(h.pieces))

	for _, i := range h.indicesLocked() {
		p := h.pieces[i]

		root := h.groupFindLocked(i)
		out = append(out, protocol.PiecePose{
			Index:    i,
			X:        p.X,
			Y:        p.Y,
			Rotation: p.Rotation,
			GroupID:  &root,
		})
	}

	return out
}

// indicesLocked lists the piece indices in ascending order. A layout need
// not number its pieces from zero without gaps.
func (h *Hub) indicesLocked() []int {
	return slices.Sorted(maps.Keys(h.pieces))
}

// Union-find helpers for piece groups
func (h *Hub) groupFindLocked(i int) int {
	parent, ok := h.groups[i]
	if !ok {
		h.groups[i] = i
		return i
	}
	if parent == i {
		return i
	}
	root := h.groupFindLocked(parent)
	h.groups[i] = root
	return root
}

func (h *Hub) groupUnionLocked(a, b int) {
	ra := h.groupFindLocked(a)
	rb := h.groupFindLocked(b)
	if ra == rb {
		return
	}
	h.groups[rb] = ra
}

func (h *Hub) membersLocked(i int) []int {
	root := h.groupFindLocked(i)

	var out []int
	for j := range h.pieces {
		if h.groupFindLocked(j) == root {
			out = append(out, j)
		}
	}
	return out
}

// lockGroupLocked grants i's group to userID unless someone else holds any
// of it.
func (h *Hub) lockGroupLocked(i int, userID string) bool {
	if _, ok := h.pieces[i]; !ok {
		return false
	}

	members := h.membersLocked(i)
	for _, j := range members {
		if by := h.pieces[j].lockedBy; by != "" && by != userID {
			return false
		}
	}

	for _, j := range members {
		h.pieces[j].lockedBy = userID
	}

	return true
}

func (h *Hub) unlockGroupLocked(i int, userID string) {
	for _, j := range h.membersLocked(i) {
		if h.pieces[j].lockedBy == userID {
			h.pieces[j].lockedBy = ""
		}
	}
}

// moveHeldLocked applies a holder's pose the way participants do: a turn
// arrives per member, otherwise the held pieces follow i rigidly. Pieces
// merged in during the drag were not grabbed and stay put.
func (h *Hub) moveHeldLocked(i int, userID string, x, y float64, rotation int) {
	p := h.pieces[i]
	rotation = puzzle.NormalizeRotation(rotation)

	if rotation != p.Rotation {
		p.X, p.Y, p.Rotation = x, y, rotation
		return
	}

	dx, dy := x-p.X, y-p.Y
	for _, j := range h.membersLocked(i) {
		q := h.pieces[j]
		if q.lockedBy == userID {
			q.X += dx
			q.Y += dy
		}
	}
}

// releaseAllLocked frees every group userID still holds and tells the room,
// so nobody waits on a participant who has gone.
func (h *Hub) releaseAllLocked(userID string) {
	for _, i := range h.indicesLocked() {
		p := h.pieces[i]
		if p.lockedBy != userID {
			continue
		}

		h.unlockGroupLocked(i, userID)
		h.broadcastLocked(protocol.Pose{
			Type:     protocol.TypeUnlocked,
			Index:    i,
			X:        p.X,
			Y:        p.Y,
			Rotation: p.Rotation,
			UserID:   userID,
		})
	}
}

// shutdown disconnects all clients of this hub and stops it (used by the
// reaper and when the host leaves).
func (h *Hub) shutdown() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
		h.mu.Unlock()

		close(h.quit)

		if h.onClose != nil {
			h.onClose(h)
		}
	})
}

func (h *Hub) submit(req request) bool {
	select {
	case h.requests <- req:
		return true
	case <-h.quit:
		return false
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "partypuzzle_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// RoomManager holds a set of hubs keyed by room ID, so each /room/:roomid
// is its own isolated session.
type RoomManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
	quit        chan struct{}
}

func newRoomManager(idleTimeout time.Duration) *RoomManager {
	rm := &RoomManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
		quit:        make(chan struct{}),
	}
	if idleTimeout > 0 {
		go rm.reaperLoop()
	}
	return rm
}

// getHub returns the room with roomID, creating it with difficulty if it
// does not exist yet.
func (rm *RoomManager) getHub(cfg *Config, roomID, difficulty string) *Hub {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if hub, ok := rm.hubs[roomID]; ok {
		return hub
	}

	hub := newHub(roomID)
	if d, err := slicer.ParseDifficulty(difficulty); err == nil {
		hub.difficulty = string(d)
	}
	hub.onClose = rm.remove

	rm.hubs[roomID] = hub
	go hub.run(cfg)

	logf(cfg, "ROOMS: Opened %s (%s)", roomID, hub.difficulty)

	return hub
}

func (rm *RoomManager) remove(h *Hub) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.hubs[h.id] == h {
		delete(rm.hubs, h.id)
	}
}

func (rm *RoomManager) count() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	return len(rm.hubs)
}

// roomStats is a point-in-time summary of one room.
type roomStats struct {
	ID         string
	Difficulty string
	Players    int
	Pieces     int
	Started    bool
	Idle       time.Duration
}

// stats summarizes every open room, ordered by id.
func (rm *RoomManager) stats() []roomStats {
	rm.mu.Lock()
	hubs := make([]*Hub, 0, len(rm.hubs))
	for _, hub := range rm.hubs {
		hubs = append(hubs, hub)
	}
	rm.mu.Unlock()

	now := time.Now()
	out := make([]roomStats, 0, len(hubs))

	for _, hub := range hubs {
		hub.mu.RLock()
		out = append(out, roomStats{
			ID:         hub.id,
			Difficulty: hub.difficulty,
			Players:    len(hub.clients),
			Pieces:     len(hub.pieces),
			Started:    hub.started,
			Idle:       now.Sub(hub.lastActive).Round(time.Second),
		})
		hub.mu.RUnlock()
	}

	slices.SortFunc(out, func(a, b roomStats) int { return strings.Compare(a.ID, b.ID) })

	return out
}

// newRoomID generates a crypto-random room ID and ensures it doesn't
// collide with existing rooms.
func (rm *RoomManager) newRoomID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		rm.mu.Lock()
		_, exists := rm.hubs[id]
		rm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (rm *RoomManager) reaperLoop() {
	ticker := time.NewTicker(rm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-rm.quit:
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-rm.idleTimeout)

		var idle []*Hub

		rm.mu.Lock()
		for _, hub := range rm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				idle = append(idle, hub)
			}
		}
		rm.mu.Unlock()

		for _, hub := range idle {
			go hub.shutdown()
		}
	}
}

// close stops the reaper and every room.
func (rm *RoomManager) close() {
	close(rm.quit)

	rm.mu.Lock()
	hubs := make([]*Hub, 0, len(rm.hubs))
	for _, hub := range rm.hubs {
		hubs = append(hubs, hub)
	}
	rm.mu.Unlock()

	for _, hub := range hubs {
		hub.shutdown()
	}
}

// WebSocket handler that picks the hub based on :roomid. Participants
// identify themselves with user_id and username query parameters; a
// cookie stands in for a missing user_id.
func serveWSForManager(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		q := r.URL.Query()

		userID := q.Get("user_id")
		if userID == "" {
			userID = getOrSetPlayerID(w, r)
		}
		if userID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		username := strings.TrimSpace(q.Get("username"))
		if username == "" {
			username = userID[:min(8, len(userID))]
		}

		hub := rm.getHub(cfg, roomID, q.Get("difficulty"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, clientBuffer),
			userID:   userID,
			username: username,
		}

		select {
		case hub.register <- client:
		case <-hub.quit:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.quit:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			// ignore unknown types and malformed frames
			continue
		}

		if !h.submit(request{client: c, msg: msg}) {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// QR handler: generates a PNG QR code for the current room URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("roomid")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	// We are at /.../:roomid/qr; strip trailing "/qr" to get the room URL.
	url := requestScheme(r) + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// requestScheme derives the scheme, respecting TLS and X-Forwarded-Proto
// if present.
func requestScheme(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme
}

func serveRoomPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		ws := "ws"
		if requestScheme(r) == "https" {
			ws = "wss"
		}
		base := cfg.prefix + "/room/" + html.EscapeString(roomID)

		var body strings.Builder
		body.WriteString(`<h1>Room ` + html.EscapeString(roomID) + `</h1>`)
		body.WriteString(`<p><img src="` + base + `/qr" alt="QR code for this room" width="320" height="320"></p>`)
		body.WriteString(`<p>Join headless with:</p><pre>partypuzzle host --server ` +
			ws + `://` + html.EscapeString(r.Host) + ` --room ` + html.EscapeString(roomID) + `</pre>`)

		_, _ = io.WriteString(w, htmlPage("Partypuzzle "+html.EscapeString(roomID), body.String()))
	}
}

// redirectNewRoom handles GET /room by generating a new random room ID
// (with server-side collision detection) and redirecting to /room/:roomid.
// The query string, which may carry the difficulty, is kept.
func redirectNewRoom(cfg *Config, path string, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		roomID := rm.newRoomID()
		logf(cfg, "ROOMS: Created room %s/%s", path, roomID)

		target := cfg.prefix + path + "/" + roomID
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusTemporaryRedirect)
	}
}

// registerRooms sets up routes so that:
//   - $path                  → redirects to new random room (8-char ID)
//   - $path/:roomid          → HTML room page
//   - $path/:roomid/ws       → WebSocket for that room
//   - $path/:roomid/qr       → PNG QR code for that room URL
func registerRooms(cfg *Config, path string, mux *httprouter.Router) *RoomManager {
	rm := newRoomManager(cfg.sessionTimeout)

	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, path, rm))
	mux.GET(cfg.prefix+path+"/:roomid", serveRoomPage(cfg))
	mux.GET(cfg.prefix+path+"/:roomid/ws", serveWSForManager(cfg, rm))
	mux.GET(cfg.prefix+path+"/:roomid/qr", qrHandler)

	return rm
}
