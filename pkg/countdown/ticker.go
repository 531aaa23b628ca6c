package countdown

import (
	"sync"
	"time"
)

// Ticker decrements one counter on a fixed period. At most one repeating
// action runs per Ticker; Start replaces the running one.
type Ticker struct {
	lock sync.Mutex
	quit chan struct{}
	done chan struct{}
}

// Start stops the running action, if any, then decrements counter by step
// right away and once every period after that. The ticker keeps going
// past zero until Stop is called. A non-positive period is replaced by step
// milliseconds, or DefaultTickStep milliseconds if step is not positive
// either.
func (t *Ticker) Start(counter *Time, step int64, period time.Duration) {
	if period <= 0 {
		period = time.Duration(step) * time.Millisecond
		if period <= 0 {
			period = time.Duration(DefaultTickStep) * time.Millisecond
		}
		warn("Invalid tick period, using", period)
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	t.stop()

	quit := make(chan struct{})
	done := make(chan struct{})
	t.quit = quit
	t.done = done

	go func() {
		defer close(done)

		counter.DecrementBy(step)

		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				counter.DecrementBy(step)
			}
		}
	}()
}

// Stop cancels the repeating action and waits for it to exit, so no
// decrement happens after Stop returns. Stopping an idle Ticker is a no-op.
func (t *Ticker) Stop() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.stop()
}

func (t *Ticker) stop() {
	if t.quit == nil {
		return
	}
	close(t.quit)
	<-t.done
	t.quit = nil
	t.done = nil
}

func (t *Ticker) Running() bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.quit != nil
}
