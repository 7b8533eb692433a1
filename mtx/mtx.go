/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package mtx implements component B: a process-shared, robust,
// re-entry-detecting mutex, plus a condition variable layered on it.
//
// A real robust futex (PTHREAD_MUTEX_ROBUST + FUTEX_WAIT/WAKE) needs a
// kernel registration step only reachable through cgo. Per spec Design
// Note (iv), when that isn't available the fallback is a
// correctness-equivalent user-space emulation with a heartbeat ping:
// ownership is a (generation, locked) token CASed in shared memory; a
// waiter that finds the token locked and the recorded owner process dead
// (missed heartbeat + the pid no longer exists) steals the lock by CASing
// a bumped generation in. This trades the kernel's immediate wake for a
// bounded poll interval — the added latency Design Note (iv) calls out.
package mtx

import (
	"os"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/alephzero-go/a0/a0err"
	"golang.org/x/sys/unix"
)

// Size is the number of bytes a Mtx occupies in an arena; callers
// laying out a TransportHeader or rwmtx reader-slot array reserve this
// many (already 8-byte aligned) bytes per mutex.
const Size = 32

// deadHeartbeat is how long a token can go without a heartbeat refresh
// before a waiter will consider the owner for death-detection. This is
// the "added latency" of the cgo-free emulation.
const deadHeartbeat = 250 * time.Millisecond

const spinBackoff = 200 * time.Microsecond

// raw is the on-arena layout of a Mtx. token's low bit is the locked
// flag; the remaining 63 bits are a generation counter that increments
// on every successful acquisition, normal or stolen. ownerPID/ownerTID
// and heartbeatNanos are advisory: they are read without synchronization
// by waiters performing death-detection, so a torn read can at worst
// cause one spurious steal attempt, which just loses its CAS and retries.
type raw struct {
	token         uint64
	ownerPID      int32
	ownerTID      int32
	heartbeatNanos int64
	_             [Size - 8 - 4 - 4 - 8]byte
}

// Mtx is a handle onto a process-shared mutex living inside an arena.
type Mtx struct {
	r         *raw
	heldGen   uint64
	heartbeat *time.Ticker
	stop      chan struct{}
}

// New overlays a Mtx onto buf[:Size]. buf must be at least Size bytes and
// 8-byte aligned within its backing arena.
func New(buf []byte) *Mtx {
	if len(buf) < Size {
		panic("mtx: buffer too small")
	}
	return &Mtx{r: (*raw)(unsafe.Pointer(&buf[0]))}
}

func nowNanos() int64 { return time.Now().UnixNano() }

func pidAlive(pid int32) bool {
	if pid == 0 {
		return false
	}
	err := unix.Kill(int(pid), 0)
	return err == nil || err == unix.EPERM
}

func (m *Mtx) isSelf() bool {
	return atomic.LoadInt32(&m.r.ownerPID) == int32(os.Getpid()) &&
		atomic.LoadInt32(&m.r.ownerTID) == int32(unix.Gettid())
}

func (m *Mtx) ownerDead() bool {
	hb := atomic.LoadInt64(&m.r.heartbeatNanos)
	if time.Duration(nowNanos()-hb) < deadHeartbeat {
		return false
	}
	return !pidAlive(atomic.LoadInt32(&m.r.ownerPID))
}

// claim records this goroutine's process/thread as the current owner and
// starts the heartbeat ticker. Called only by the winner of a token CAS.
// The goroutine stays pinned to its OS thread until Unlock, so the
// recorded thread id keeps naming this goroutine while it holds the lock.
func (m *Mtx) claim(gen uint64) {
	runtime.LockOSThread()
	atomic.StoreInt32(&m.r.ownerPID, int32(os.Getpid()))
	atomic.StoreInt32(&m.r.ownerTID, int32(unix.Gettid()))
	atomic.StoreInt64(&m.r.heartbeatNanos, nowNanos())
	m.heldGen = gen
	m.stop = make(chan struct{})
	m.heartbeat = time.NewTicker(deadHeartbeat / 3)
	go func() {
		for {
			select {
			case <-m.heartbeat.C:
				atomic.StoreInt64(&m.r.heartbeatNanos, nowNanos())
			case <-m.stop:
				return
			}
		}
	}()
}

// tryAcquire attempts one CAS of the token. ok reports whether the lock
// was acquired; died reports whether it was acquired by stealing from a
// dead owner (§7 PREV_OWNER_DIED).
func (m *Mtx) tryAcquire() (ok, died bool) {
	old := atomic.LoadUint64(&m.r.token)
	if old&1 == 0 {
		next := (((old >> 1) + 1) << 1) | 1
		if atomic.CompareAndSwapUint64(&m.r.token, old, next) {
			m.claim(next >> 1)
			return true, false
		}
		return false, false
	}
	if m.isSelf() {
		// re-entry: caller already owns this token.
		return false, false
	}
	if m.ownerDead() {
		gen := (old >> 1) + 1
		next := (gen << 1) | 1
		if atomic.CompareAndSwapUint64(&m.r.token, old, next) {
			m.claim(gen)
			return true, true
		}
	}
	return false, false
}

// Lock blocks until the mutex is acquired. died is true iff the prior
// owner was detected dead and ownership was recovered from it — the
// PREV_OWNER_DIED case: the caller owns the mutex either way but must
// treat protected state as possibly inconsistent and recover it.
func (m *Mtx) Lock() (died bool, err error) {
	for {
		if atomic.LoadUint64(&m.r.token)&1 == 1 && m.isSelf() {
			return false, a0err.Custom("mtx: re-entrant lock")
		}
		if ok, died := m.tryAcquire(); ok {
			return died, nil
		}
		time.Sleep(spinBackoff)
	}
}

// TryLock attempts to acquire the mutex without blocking. It returns
// a0err.Busy whenever the mutex is held, including by the caller itself.
func (m *Mtx) TryLock() (died bool, err error) {
	ok, died := m.tryAcquire()
	if !ok {
		return false, a0err.Busy
	}
	return died, nil
}

// TimedLock blocks until the mutex is acquired or the absolute monotonic
// deadline passes, in which case it returns a0err.Again.
func (m *Mtx) TimedLock(deadline time.Time) (died bool, err error) {
	for {
		if atomic.LoadUint64(&m.r.token)&1 == 1 && m.isSelf() {
			return false, a0err.Custom("mtx: re-entrant lock")
		}
		if ok, died := m.tryAcquire(); ok {
			return died, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false, a0err.Again
		}
		time.Sleep(spinBackoff)
	}
}

// Unlock releases the mutex. Unlock on a mutex not held by the caller is
// a programmer error and panics, matching the teacher's fail-fast style
// for internal invariant violations.
func (m *Mtx) Unlock() {
	if !m.isSelf() {
		panic("mtx: unlock of unheld mutex")
	}
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		close(m.stop)
		m.heartbeat = nil
	}
	atomic.StoreInt32(&m.r.ownerPID, 0)
	atomic.StoreInt32(&m.r.ownerTID, 0)
	old := atomic.LoadUint64(&m.r.token)
	atomic.StoreUint64(&m.r.token, old&^uint64(1))
	runtime.UnlockOSThread()
}

// PeekGeneration reads the mutex's current acquisition generation from
// shared memory without taking the lock, so non-owners can observe it.
func (m *Mtx) PeekGeneration() uint64 {
	return atomic.LoadUint64(&m.r.token) >> 1
}

// IsHeldByMe reports whether the calling process/thread currently holds
// this mutex.
func (m *Mtx) IsHeldByMe() bool { return m.isSelf() }

// IsLocked is a non-blocking, advisory peek at the lock bit, used by
// rwmtx for its writer-preference tie-break. It does not perform
// death-detection: a mutex held by a dead owner still reports locked
// until someone actually attempts to acquire it.
func (m *Mtx) IsLocked() bool {
	return atomic.LoadUint64(&m.r.token)&1 == 1
}

// Generation returns the acquisition generation recorded by this handle's
// most recent successful acquisition.
func (m *Mtx) Generation() uint64 { return m.heldGen }

// rawToken reads the whole token word (generation and lock bit) without
// taking ownership.
func (m *Mtx) rawToken() uint64 { return atomic.LoadUint64(&m.r.token) }
