package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/AndrewLester/countdown/internal/ntp"
)

const DefaultTickStep int64 = 10 // milliseconds

// TimeSource provides the current time in Unix milliseconds, e.g. an SNTP
// client.
type TimeSource interface {
	FetchCorrectedTime(ctx context.Context) (int64, error)
}

// Timer owns the running countdown. Starting a new countdown stops the
// previous ticker before the new counter is created.
type Timer struct {
	source TimeSource
	now    func() int64

	lock   sync.Mutex // serializes starts
	ticker Ticker

	current     *Time
	currentLock sync.RWMutex
}

// NewTimer returns a Timer that syncs target date countdowns with source.
// A nil source always uses the local clock.
func NewTimer(source TimeSource) *Timer {
	return &Timer{
		source: source,
		now:    ntp.UnixMillis,
	}
}

// StartWithDuration counts down durationMillis, decrementing by
// tickStepMillis every tickStepMillis.
func (timer *Timer) StartWithDuration(durationMillis, tickStepMillis int64) *Time {
	timer.lock.Lock()
	defer timer.lock.Unlock()

	timer.Stop()

	info("Starting a new timer with the time of", durationMillis, "milliseconds and a step of", tickStepMillis, "milliseconds")

	return timer.start(durationMillis, ModeDuration, tickStepMillis)
}

// StartWithTarget counts down to targetMillis (Unix milliseconds). The
// current time comes from the TimeSource; when it fails the local clock is
// used and the countdown is tagged ModeSystemTime.
func (timer *Timer) StartWithTarget(ctx context.Context, targetMillis, tickStepMillis int64) *Time {
	timer.lock.Lock()
	defer timer.lock.Unlock()

	timer.Stop()

	info("Starting a new timer with the date", time.UnixMilli(targetMillis), "and a step of", tickStepMillis, "milliseconds")

	now, mode := timer.currentTime(ctx)
	remaining := targetMillis - now

	debug("The countdown starts with", time.Duration(remaining)*time.Millisecond, "on the clock")

	return timer.start(remaining, mode, tickStepMillis)
}

func (timer *Timer) currentTime(ctx context.Context) (int64, Mode) {
	if timer.source == nil {
		return timer.now(), ModeSystemTime
	}

	now, err := timer.source.FetchCorrectedTime(ctx)
	if err != nil {
		logger.WithError(err).Error("Time server request failed, the timer uses the system time instead")
		return timer.now(), ModeSystemTime
	}
	return now, ModeNetworkTime
}

func (timer *Timer) start(initial int64, mode Mode, step int64) *Time {
	if step <= 0 {
		warn("Invalid tick step", step, "using", DefaultTickStep)
		step = DefaultTickStep
	}

	countdown := NewTime(initial, mode)

	timer.currentLock.Lock()
	timer.current = countdown
	timer.currentLock.Unlock()

	timer.ticker.Start(countdown, step, time.Duration(step)*time.Millisecond)
	startedMetric.WithLabelValues(mode.String()).Inc()

	info("Timer", countdown.ID(), "is running in mode", mode)

	return countdown
}

// Stop stops the running countdown. The counter stays readable.
func (timer *Timer) Stop() {
	if timer.ticker.Running() {
		info("Stopping the current timer")
	}
	timer.ticker.Stop()
}

// Current returns the most recently started countdown, or nil.
func (timer *Timer) Current() *Time {
	timer.currentLock.RLock()
	defer timer.currentLock.RUnlock()

	return timer.current
}

func (timer *Timer) Running() bool {
	return timer.ticker.Running()
}
