// Package admission bounds how many client connections the proxy works on at once.
package admission

// Gate is a blocking counting semaphore over a fixed pool of slots.
// Acquire blocks while the pool is exhausted; Release must be called exactly
// once per successful Acquire.
type Gate struct {
	slots chan struct{}
}

// New creates a Gate admitting at most n concurrent holders.
func New(n int) *Gate {
	if n <= 0 {
		n = 1
	}
	return &Gate{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free, then takes it.
func (g *Gate) Acquire() {
	g.slots <- struct{}{}
}

// TryAcquire takes a slot if one is immediately free.
func (g *Gate) TryAcquire() bool {
	select {
	case g.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot to the pool. Releasing without a matching Acquire
// is a programming error and panics.
func (g *Gate) Release() {
	select {
	case <-g.slots:
	default:
		panic("admission: Release without matching Acquire")
	}
}

// InUse reports how many slots are currently held.
func (g *Gate) InUse() int {
	return len(g.slots)
}

// Capacity reports the total slot count.
func (g *Gate) Capacity() int {
	return cap(g.slots)
}
