package netsync

import (
	"context"
	"time"

	"github.com/Seednode/partypuzzle/puzzle"
	"github.com/Seednode/partypuzzle/render"
)

const defaultFrameRate = 60

// Loop owns the board. Inbound messages, local input and animation frames
// are all handled on the goroutine running Run, one at a time.
type Loop struct {
	Sync      *Sync
	Transport Transport
	Animator  render.Animator
	FrameRate int

	// OnFrame, if set, is called after each animation step with whether
	// anything was still moving.
	OnFrame func(b *puzzle.Board, moving bool)

	input chan func(*Sync)
}

func NewLoop(s *Sync, t Transport) *Loop {
	return &Loop{
		Sync:      s,
		Transport: t,
		FrameRate: defaultFrameRate,
		input:     make(chan func(*Sync), 64),
	}
}

// Post queues fn to run on the loop goroutine. It reports false when the
// queue is full.
func (l *Loop) Post(fn func(*Sync)) bool {
	select {
	case l.input <- fn:
		return true
	default:
		return false
	}
}

// Run processes events until ctx is cancelled. Losing the connection does
// not stop it: the observer is told once and local play continues.
func (l *Loop) Run(ctx context.Context) error {
	rate := l.FrameRate
	if rate <= 0 {
		rate = defaultFrameRate
	}

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	inbound := l.Transport.Inbound()
	done := l.Transport.Done()

	for {
		select {
		case <-ctx.Done():
			_ = l.Transport.Close()
			if b := l.Sync.Board(); b != nil {
				b.Timer.Stop()
			}
			return ctx.Err()

		case msg := <-inbound:
			l.Sync.Handle(ctx, msg)

		case <-done:
			done = nil
			l.Sync.obs.OnOffline(l.Transport.Err())

		case fn := <-l.input:
			fn(l.Sync)

		case <-ticker.C:
			b := l.Sync.Board()
			if b == nil {
				continue
			}
			moving := l.Animator.Step(b)
			if l.OnFrame != nil {
				l.OnFrame(b, moving)
			}
		}
	}
}
