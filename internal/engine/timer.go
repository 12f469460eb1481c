package engine

import (
	"sync"
	"time"
)

// TimerController drives the one-second tick for a live session. The tick
// callback decides whether time actually advances (the machine ignores
// ticks outside the active phase), so the controller itself only has to
// start and stop cleanly without leaking its goroutine.
type TimerController struct {
	interval time.Duration
	tick     func()

	mu   sync.Mutex
	stop chan struct{}
}

func NewTimerController(tick func()) *TimerController {
	return &TimerController{interval: time.Second, tick: tick}
}

// Start begins ticking. A no-op while already running; a controller stopped
// for a pause can be started again on resume.
func (t *TimerController) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	go t.run(t.stop)
}

func (t *TimerController) run(stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.tick()
		case <-stop:
			return
		}
	}
}

// Stop terminates the tick loop. Safe to call more than once and after a
// session completes.
func (t *TimerController) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}
