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

package mtx

import (
	"sync/atomic"
	"time"
	"unsafe"
)

// CndSize is the number of bytes a Cnd occupies in an arena.
const CndSize = 8

type cndRaw struct {
	seq uint64
}

// Cnd is a condition variable layered on a process-shared Mtx. Since the
// emulation in this package has no kernel futex to wake waiters
// precisely, Signal and Broadcast are equivalent here: both bump a
// sequence counter and every waiter polling on it wakes. Spurious
// wakeups are therefore the common case, not an edge case — callers
// must always re-check their predicate, exactly as the spec requires.
type Cnd struct {
	r *cndRaw
}

// NewCnd overlays a Cnd onto buf[:CndSize].
func NewCnd(buf []byte) *Cnd {
	if len(buf) < CndSize {
		panic("cnd: buffer too small")
	}
	return &Cnd{r: (*cndRaw)(unsafe.Pointer(&buf[0]))}
}

// Signal wakes at least one waiter (in this emulation: all of them).
func (c *Cnd) Signal() { atomic.AddUint64(&c.r.seq, 1) }

// Broadcast wakes all waiters.
func (c *Cnd) Broadcast() { atomic.AddUint64(&c.r.seq, 1) }

// Wait atomically releases m and suspends until signaled, then
// reacquires m before returning. died mirrors Mtx.Lock's PREV_OWNER_DIED
// signal for the reacquisition.
func (c *Cnd) Wait(m *Mtx) (died bool, err error) {
	before := atomic.LoadUint64(&c.r.seq)
	m.Unlock()
	for atomic.LoadUint64(&c.r.seq) == before {
		time.Sleep(spinBackoff)
	}
	return m.Lock()
}

// WaitUntil is the timed variant of Wait. timedOut is true if deadline
// passed before a signal was observed; m is still reacquired either way.
func (c *Cnd) WaitUntil(m *Mtx, deadline time.Time) (died, timedOut bool, err error) {
	before := atomic.LoadUint64(&c.r.seq)
	m.Unlock()
	for atomic.LoadUint64(&c.r.seq) == before {
		if !deadline.IsZero() && time.Now().After(deadline) {
			timedOut = true
			break
		}
		time.Sleep(spinBackoff)
	}
	died, err = m.Lock()
	return died, timedOut, err
}
