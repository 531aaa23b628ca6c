package countdown

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Mode records where the starting value of a countdown came from.
type Mode int

const (
	ModeDuration    Mode = iota + 1 // started from a duration
	ModeSystemTime                  // target date against the local clock
	ModeNetworkTime                 // target date against the SNTP corrected clock
)

func (m Mode) String() string {
	switch m {
	case ModeDuration:
		return "duration"
	case ModeSystemTime:
		return "system-time"
	case ModeNetworkTime:
		return "network-time"
	default:
		return "unknown"
	}
}

// Time is the remaining time of a countdown in milliseconds. It is safe for
// concurrent use; the value only changes through atomic operations.
type Time struct {
	id        uuid.UUID
	initial   int64
	mode      Mode
	remaining atomic.Int64
}

func NewTime(initialMillis int64, mode Mode) *Time {
	t := &Time{
		id:      uuid.New(),
		initial: initialMillis,
		mode:    mode,
	}
	t.remaining.Store(initialMillis)
	return t
}

// DecrementBy subtracts step and returns the new value.
func (t *Time) DecrementBy(step int64) int64 {
	return t.remaining.Add(-step)
}

// AddAndGet adds delta and returns the new value.
func (t *Time) AddAndGet(delta int64) int64 {
	return t.remaining.Add(delta)
}

// GetAndAdd adds delta and returns the previous value.
func (t *Time) GetAndAdd(delta int64) int64 {
	return t.remaining.Add(delta) - delta
}

func (t *Time) Get() int64 {
	return t.remaining.Load()
}

func (t *Time) Set(millis int64) {
	t.remaining.Store(millis)
}

func (t *Time) Expired() bool {
	return t.Get() <= 0
}

func (t *Time) Mode() Mode {
	return t.mode
}

func (t *Time) ID() uuid.UUID {
	return t.id
}

// Initial is the value the countdown started with.
func (t *Time) Initial() int64 {
	return t.initial
}
