/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package puzzle

// Listener receives notifications of local piece mutations and of puzzle
// completion. Register one with Board.Subscribe.
type Listener interface {
	OnGrab(p *Piece)
	OnMove(p *Piece)
	OnRelease(p *Piece)
	OnMerge(dragged, stationary *Piece)
	OnComplete(elapsed int)
}

// ListenerFuncs adapts optional callbacks to a Listener. Nil fields are
// skipped.
type ListenerFuncs struct {
	Grab     func(p *Piece)
	Move     func(p *Piece)
	Release  func(p *Piece)
	Merge    func(dragged, stationary *Piece)
	Complete func(elapsed int)
}

func (f ListenerFuncs) OnGrab(p *Piece) {
	if f.Grab != nil {
		f.Grab(p)
	}
}

func (f ListenerFuncs) OnMove(p *Piece) {
	if f.Move != nil {
		f.Move(p)
	}
}

func (f ListenerFuncs) OnRelease(p *Piece) {
	if f.Release != nil {
		f.Release(p)
	}
}

func (f ListenerFuncs) OnMerge(dragged, stationary *Piece) {
	if f.Merge != nil {
		f.Merge(dragged, stationary)
	}
}

func (f ListenerFuncs) OnComplete(elapsed int) {
	if f.Complete != nil {
		f.Complete(elapsed)
	}
}
