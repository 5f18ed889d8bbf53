// Package firstwins provides a one-shot latch for races where several
// concurrent sources may deliver the same answer and only the first counts.
package firstwins

import (
	"sync"
	"sync/atomic"
)

// Latch flips from open to resolved exactly once. The zero value is ready
// to use and must not be copied after first use.
type Latch struct {
	resolved atomic.Bool
	once     sync.Once
	done     chan struct{}
}

func (l *Latch) ch() chan struct{} {
	l.once.Do(func() { l.done = make(chan struct{}) })
	return l.done
}

// Resolve claims the latch. It reports true only for the first caller;
// every later call is a no-op that returns false.
func (l *Latch) Resolve() bool {
	done := l.ch()
	if !l.resolved.CompareAndSwap(false, true) {
		return false
	}
	close(done)
	return true
}

// Resolved reports whether some caller has already won.
func (l *Latch) Resolved() bool {
	return l.resolved.Load()
}

// Done is closed once the latch resolves.
func (l *Latch) Done() <-chan struct{} {
	return l.ch()
}
