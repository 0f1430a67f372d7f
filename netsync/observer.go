package netsync

import (
	"github.com/Seednode/partypuzzle/protocol"
	"github.com/Seednode/partypuzzle/puzzle"
)

// Observer is told about room events that do not change the board. Embed
// NopObserver to implement only some of them.
type Observer interface {
	OnHost(isHost bool)
	OnPresence(p protocol.Presence)
	OnRoomInfo(difficulty string)
	OnChat(c protocol.Chat)
	OnRoomClosed(message string)

	// OnBoard is called when a new picture has been cut into a board.
	OnBoard(b *puzzle.Board)
	// OnStarted is called after a room layout has been applied.
	OnStarted(b *puzzle.Board)
	OnComplete(elapsed int)

	// OnOffline is called once when the connection goes down. Local play
	// carries on.
	OnOffline(err error)
	OnError(err error)
}

type NopObserver struct{}

func (NopObserver) OnHost(bool)                  {}
func (NopObserver) OnPresence(protocol.Presence) {}
func (NopObserver) OnRoomInfo(string)            {}
func (NopObserver) OnChat(protocol.Chat)         {}
func (NopObserver) OnRoomClosed(string)          {}
func (NopObserver) OnBoard(*puzzle.Board)        {}
func (NopObserver) OnStarted(*puzzle.Board)      {}
func (NopObserver) OnComplete(int)               {}
func (NopObserver) OnOffline(error)              {}
func (NopObserver) OnError(error)                {}
