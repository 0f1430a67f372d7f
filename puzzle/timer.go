package puzzle

import "time"

// Timer tracks elapsed play time in whole seconds, either counted locally
// or derived from a shared room start time.
type Timer struct {
	// Now is the clock; tests replace it.
	Now func() time.Time

	base    int
	started time.Time
	running bool
}

func NewTimer() *Timer {
	return &Timer{Now: time.Now}
}

// Start begins counting from the current elapsed value.
func (t *Timer) Start() {
	if t.running {
		return
	}
	t.started = t.Now()
	t.running = true
}

// StartAt follows a start time shared by the room, in unix seconds.
func (t *Timer) StartAt(unix int64) {
	t.base = 0
	t.started = time.Unix(unix, 0)
	t.running = true
}

// Resume sets the elapsed value restored from a saved session without
// starting the clock.
func (t *Timer) Resume(elapsed int) {
	t.Stop()
	t.base = max(elapsed, 0)
}

// Stop freezes the elapsed value.
func (t *Timer) Stop() {
	if !t.running {
		return
	}
	t.base = t.Elapsed()
	t.running = false
}

// Reset stops the timer and clears it to zero.
func (t *Timer) Reset() {
	t.running = false
	t.base = 0
}

func (t *Timer) Running() bool {
	return t.running
}

// Elapsed returns whole seconds played.
func (t *Timer) Elapsed() int {
	if !t.running {
		return t.base
	}

	d := int(t.Now().Sub(t.started) / time.Second)
	if d < 0 {
		d = 0
	}

	return t.base + d
}
