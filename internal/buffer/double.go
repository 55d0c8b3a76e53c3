// Package buffer provides the lock-protected hand-off between a realtime
// producer and a device pull callback.
package buffer

import "sync"

// DoubleBuffer is a two-slot byte accumulator. Writers always append to the
// active slot; a drain takes a prefix of the active slot, moves the rest into
// the other slot and flips. Both operations hold the same lock for a single
// bulk copy, so the producer never waits on the consumer's cadence.
type DoubleBuffer struct {
	mu     sync.Mutex
	slot   [2][]byte
	active int
}

// NewDoubleBuffer allocates both slots with room for capacity bytes.
func NewDoubleBuffer(capacity int) *DoubleBuffer {
	return &DoubleBuffer{
		slot: [2][]byte{
			make([]byte, 0, capacity),
			make([]byte, 0, capacity),
		},
	}
}

// Append copies p to the end of the active slot.
func (b *DoubleBuffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}

	b.mu.Lock()
	b.slot[b.active] = append(b.slot[b.active], p...)
	b.mu.Unlock()
}

// Drain removes and returns the first n bytes. It returns nil and leaves the
// buffer untouched when n is zero or the active slot does not hold more than
// n bytes: a short fill is reported as not ready rather than delivered.
func (b *DoubleBuffer) Drain(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.slot[b.active]
	if n <= 0 || len(cur) <= n {
		return nil
	}

	out := make([]byte, n)
	copy(out, cur[:n])

	next := 1 - b.active
	b.slot[next] = append(b.slot[next][:0], cur[n:]...)
	b.slot[b.active] = cur[:0]
	b.active = next

	return out
}

// DrainInto is Drain without the allocation: it copies exactly len(dst)
// bytes into dst and reports whether it did.
func (b *DoubleBuffer) DrainInto(dst []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(dst)
	cur := b.slot[b.active]
	if n == 0 || len(cur) <= n {
		return false
	}

	copy(dst, cur[:n])

	next := 1 - b.active
	b.slot[next] = append(b.slot[next][:0], cur[n:]...)
	b.slot[b.active] = cur[:0]
	b.active = next

	return true
}

// Len returns the number of buffered bytes.
func (b *DoubleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.slot[b.active])
}

// Clear drops buffered bytes but keeps both allocations.
func (b *DoubleBuffer) Clear() {
	b.mu.Lock()
	b.slot[0] = b.slot[0][:0]
	b.slot[1] = b.slot[1][:0]
	b.mu.Unlock()
}

// Release drops both allocations.
func (b *DoubleBuffer) Release() {
	b.mu.Lock()
	b.slot[0] = nil
	b.slot[1] = nil
	b.active = 0
	b.mu.Unlock()
}
