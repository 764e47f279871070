package peer

import "sync/atomic"

// atomicBool is a tiny wrapper so Connection's dead flag reads/writes don't need a mutex.
type atomicBool struct {
	v atomic.Bool
}

func (b *atomicBool) set(value bool) { b.v.Store(value) }
func (b *atomicBool) get() bool      { return b.v.Load() }
