/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package protocol defines the JSON messages exchanged between puzzle room
// participants and the room server. Every websocket text frame carries one
// object whose "type" field selects the payload shape.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client intents.
const (
	TypeJoin      = "JOIN"
	TypeSetImage  = "SET_IMAGE"
	TypeStartGame = "START_GAME"
	TypeGrab      = "GRAB"
	TypeMove      = "MOVE"
	TypeRelease   = "RELEASE"
	TypeMerge     = "MERGE"
	TypeChat      = "CHAT"
)

// Server notifications.
const (
	TypeIsHost       = "IS_HOST"
	TypePlayerJoined = "PLAYER_JOINED"
	TypePlayerLeft   = "PLAYER_LEFT"
	TypeRoomInfo     = "ROOM_INFO"
	TypeGameStarted  = "GAME_STARTED"
	TypeImageSet     = "IMAGE_SET"
	TypeRoomClosed   = "ROOM_CLOSED"
)

// Rebroadcasts of a peer's GRAB/MOVE/RELEASE/MERGE, tagged with the
// originating user_id.
const (
	TypeMoved    = "MOVED"
	TypeLocked   = "LOCKED"
	TypeUnlocked = "UNLOCKED"
	TypeMerged   = "MERGED"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed message")
)

// Message is implemented by every payload type.
type Message interface {
	MessageType() string
}

// PiecePose is one entry of a START_GAME or GAME_STARTED layout.
// GroupID and Locked are only filled in for late joiners.
type PiecePose struct {
	Index    int     `json:"index"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation int     `json:"rotation"`
	GroupID  *int    `json:"group_id,omitempty"`
	Locked   bool    `json:"is_locked,omitempty"`
}

// Join announces a participant after the socket opens.
type Join struct {
	Type string `json:"type"` // "JOIN"
}

// Image carries SET_IMAGE and IMAGE_SET.
type Image struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
}

// Layout carries START_GAME and GAME_STARTED.
type Layout struct {
	Type      string      `json:"type"`
	Pieces    []PiecePose `json:"pieces"`
	StartTime int64       `json:"start_time,omitempty"` // unix seconds, GAME_STARTED only
}

// Grab carries GRAB and LOCKED.
type Grab struct {
	Type   string `json:"type"`
	Index  int    `json:"index"`
	UserID string `json:"user_id,omitempty"`
}

// Pose carries MOVE, RELEASE, MOVED and UNLOCKED.
type Pose struct {
	Type     string  `json:"type"`
	Index    int     `json:"index"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation int     `json:"rotation"`
	UserID   string  `json:"user_id,omitempty"`
}

// Merge carries MERGE and MERGED. Piece1 is the dragged piece, Piece2 the
// stationary one.
type Merge struct {
	Type   string `json:"type"`
	Piece1 int    `json:"piece1_index"`
	Piece2 int    `json:"piece2_index"`
	UserID string `json:"user_id,omitempty"`
}

// Chat is sent with only Message set; the server fills in the rest.
type Chat struct {
	Type      string `json:"type"` // "CHAT"
	Message   string `json:"message"`
	UserID    string `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"` // unix milliseconds
}

// IsHost tells a participant whether it owns the room.
type IsHost struct {
	Type   string `json:"type"` // "IS_HOST"
	IsHost bool   `json:"is_host"`
}

// Presence carries PLAYER_JOINED and PLAYER_LEFT.
type Presence struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username"`
	Count    int    `json:"count"`
}

// RoomInfo reports the room's difficulty setting.
type RoomInfo struct {
	Type       string `json:"type"` // "ROOM_INFO"
	Difficulty string `json:"difficulty"`
}

// RoomClosed is broadcast when the host leaves.
type RoomClosed struct {
	Type    string `json:"type"` // "ROOM_CLOSED"
	Message string `json:"message"`
}

func (m Join) MessageType() string       { return m.Type }
func (m Image) MessageType() string      { return m.Type }
func (m Layout) MessageType() string     { return m.Type }
func (m Grab) MessageType() string       { return m.Type }
func (m Pose) MessageType() string       { return m.Type }
func (m Merge) MessageType() string      { return m.Type }
func (m Chat) MessageType() string       { return m.Type }
func (m IsHost) MessageType() string     { return m.Type }
func (m Presence) MessageType() string   { return m.Type }
func (m RoomInfo) MessageType() string   { return m.Type }
func (m RoomClosed) MessageType() string { return m.Type }

type envelope struct {
	Type string `json:"type"`
}

// Decode parses a single frame. Unknown types return ErrUnknownType and
// undecodable frames ErrMalformed; callers drop both.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var msg Message
	var err error

	switch env.Type {
	case TypeJoin:
		var m Join
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeSetImage, TypeImageSet:
		var m Image
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeStartGame, TypeGameStarted:
		var m Layout
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeGrab, TypeLocked:
		var m Grab
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeMove, TypeRelease, TypeMoved, TypeUnlocked:
		var m Pose
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeMerge, TypeMerged:
		var m Merge
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeChat:
		var m Chat
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeIsHost:
		var m IsHost
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePlayerJoined, TypePlayerLeft:
		var m Presence
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeRoomInfo:
		var m RoomInfo
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeRoomClosed:
		var m RoomClosed
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}

	return msg, nil
}

// Encode renders a message as a single JSON frame.
func Encode(msg Message) ([]byte, error) {
	if msg == nil || msg.MessageType() == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return json.Marshal(msg)
}
