package parallel

import (
	"math"
	"runtime"
	"sync/atomic"
	"unsafe"
)

// AddFloat64 atomically adds delta to *addr with a compare-and-swap retry
// loop over the value's bit pattern.
func AddFloat64(addr *float64, delta float64) {
	bits := (*uint64)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint64(bits)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(bits, old, next) {
			return
		}
	}
}

// Float64 is a float64 that is safe for concurrent use.
// The zero value is 0.
type Float64 struct {
	bits atomic.Uint64
}

// Load returns the current value.
func (f *Float64) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

// Store sets the value.
func (f *Float64) Store(v float64) {
	f.bits.Store(math.Float64bits(v))
}

// Add atomically adds delta and returns the new value.
func (f *Float64) Add(delta float64) float64 {
	for {
		old := f.bits.Load()
		next := math.Float64frombits(old) + delta
		if f.bits.CompareAndSwap(old, math.Float64bits(next)) {
			return next
		}
	}
}

// SpinLock is a mutual exclusion lock that busy-waits instead of parking the
// goroutine. Critical sections must be short.
type SpinLock struct {
	locked atomic.Bool
}

// Lock acquires the lock, spinning until it is available.
func (l *SpinLock) Lock() {
	for spins := 0; !l.locked.CompareAndSwap(false, true); spins++ {
		if spins&63 == 63 {
			runtime.Gosched()
		}
	}
}

// Unlock releases the lock.
func (l *SpinLock) Unlock() {
	l.locked.Store(false)
}
