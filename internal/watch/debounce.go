package watch

import (
	"context"
	"time"
)

// Debouncer converts a noisy stream of ChangeEvents into a rate-limited
// stream of ChangeSets.
//
// The first event opens a window and starts a quiet timer; every further
// event arriving before the timer fires resets it and joins the window. When
// the timer fires the window is emitted exactly once and the next event opens
// a fresh window. A window that never goes quiet is force-emitted after
// MaxWindow so a pathological event loop cannot starve downstream consumers.
type Debouncer struct {
	delay     time.Duration
	maxWindow time.Duration
}

// NewDebouncer creates a Debouncer. A non-positive maxWindow disables the
// force-emit cap.
func NewDebouncer(delay, maxWindow time.Duration) *Debouncer {
	return &Debouncer{delay: delay, maxWindow: maxWindow}
}

// Run consumes events from in until ctx is cancelled or in is closed and
// returns the channel coalesced change sets are delivered on. Windows are
// strictly sequential: a set is fully formed and handed off before the next
// window opens. A pending window is flushed when the input closes.
func (d *Debouncer) Run(ctx context.Context, in <-chan ChangeEvent) <-chan *ChangeSet {
	out := make(chan *ChangeSet)

	go func() {
		defer close(out)

		var (
			cur       *ChangeSet
			quietC    <-chan time.Time
			deadlineC <-chan time.Time
		)

		emit := func() {
			set := cur
			cur, quietC, deadlineC = nil, nil, nil
			if set == nil || set.Len() == 0 {
				return
			}
			set.WindowEnd = time.Now()
			select {
			case out <- set:
			case <-ctx.Done():
			}
		}

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-in:
				if !ok {
					emit()
					return
				}
				if cur == nil {
					cur = newChangeSet(ev.Timestamp)
					if d.maxWindow > 0 {
						deadlineC = time.After(d.maxWindow)
					}
				}
				cur.add(ev.Path)
				quietC = time.After(d.delay)

			case <-quietC:
				emit()

			case <-deadlineC:
				emit()
			}
		}
	}()

	return out
}
