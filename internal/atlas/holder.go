package atlas

import (
	"sync"
	"sync/atomic"
)

// Holder owns the current atlas. Mesh builds hold it shared between Acquire
// and Release; Rebuild swaps in a new atlas only while no build holds it.
type Holder struct {
	mu     sync.RWMutex
	latest atomic.Pointer[Atlas]
	epoch  uint64 // guarded by mu

	// onSwap runs under the exclusive lock after a new atlas is installed.
	onSwap func(*Atlas)
}

// NewHolder creates an empty holder. onSwap may be nil.
func NewHolder(onSwap func(*Atlas)) *Holder {
	return &Holder{onSwap: onSwap}
}

// Current returns the installed atlas without blocking, or nil before the
// first successful Rebuild.
func (h *Holder) Current() *Atlas {
	return h.latest.Load()
}

// Acquire returns the installed atlas and blocks Rebuild from swapping it
// until Release is called.
func (h *Holder) Acquire() *Atlas {
	h.mu.RLock()
	return h.latest.Load()
}

// Release ends a shared hold taken by Acquire.
func (h *Holder) Release() {
	h.mu.RUnlock()
}

// Rebuild packs images into a new atlas and installs it. Packing happens
// before the exclusive lock is taken. On error the installed atlas is left
// untouched.
func (h *Holder) Rebuild(images []Image, opts Options) (*Atlas, error) {
	a, err := Build(images, opts)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.epoch++
	a.epoch = h.epoch
	h.latest.Store(a)
	if h.onSwap != nil {
		h.onSwap(a)
	}
	return a, nil
}

// Exclusive runs fn while no mesh build holds the atlas.
func (h *Holder) Exclusive(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
}
