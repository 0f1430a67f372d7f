package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePicksPayloadByType(t *testing.T) {
	two := 2

	tests := []struct {
		name  string
		frame string
		want  Message
	}{
		{"join", `{"type":"JOIN"}`, Join{Type: TypeJoin}},
		{"image set", `{"type":"IMAGE_SET","image_url":"https://example.com/a.png"}`,
			Image{Type: TypeImageSet, ImageURL: "https://example.com/a.png"}},
		{"late join layout", `{"type":"GAME_STARTED","start_time":1700000000,"pieces":[{"index":3,"x":1.5,"y":2,"rotation":1,"group_id":2,"is_locked":true}]}`,
			Layout{Type: TypeGameStarted, StartTime: 1700000000, Pieces: []PiecePose{
				{Index: 3, X: 1.5, Y: 2, Rotation: 1, GroupID: &two, Locked: true},
			}}},
		{"locked", `{"type":"LOCKED","index":4,"user_id":"u1"}`,
			Grab{Type: TypeLocked, Index: 4, UserID: "u1"}},
		{"unlocked", `{"type":"UNLOCKED","index":4,"x":10,"y":20,"rotation":3,"user_id":"u1"}`,
			Pose{Type: TypeUnlocked, Index: 4, X: 10, Y: 20, Rotation: 3, UserID: "u1"}},
		{"merged", `{"type":"MERGED","piece1_index":1,"piece2_index":0,"user_id":"u1"}`,
			Merge{Type: TypeMerged, Piece1: 1, Piece2: 0, UserID: "u1"}},
		{"chat", `{"type":"CHAT","message":"hi","user_id":"u1","username":"ana","timestamp":1700000000123}`,
			Chat{Type: TypeChat, Message: "hi", UserID: "u1", Username: "ana", Timestamp: 1700000000123}},
		{"is host", `{"type":"IS_HOST","is_host":true}`, IsHost{Type: TypeIsHost, IsHost: true}},
		{"player left", `{"type":"PLAYER_LEFT","username":"ana","count":1}`,
			Presence{Type: TypePlayerLeft, Username: "ana", Count: 1}},
		{"room info", `{"type":"ROOM_INFO","difficulty":"hard"}`, RoomInfo{Type: TypeRoomInfo, Difficulty: "hard"}},
		{"room closed", `{"type":"ROOM_CLOSED","message":"host left"}`,
			RoomClosed{Type: TypeRoomClosed, Message: "host left"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	_, err := Decode([]byte(`{"type":"TELEPORT"}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode([]byte(`{"type":`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"type":"MOVE","x":"left"}`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestEncodeOmitsServerFields(t *testing.T) {
	data, err := Encode(Pose{Type: TypeMove, Index: 2, X: 3, Y: 4, Rotation: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"MOVE","index":2,"x":3,"y":4,"rotation":1}`, string(data))

	data, err = Encode(Layout{Type: TypeStartGame, Pieces: []PiecePose{{Index: 0, X: 1, Y: 2}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"START_GAME","pieces":[{"index":0,"x":1,"y":2,"rotation":0}]}`, string(data))

	_, err = Encode(Join{})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Encode(nil)
	assert.ErrorIs(t, err, ErrMalformed)
}
