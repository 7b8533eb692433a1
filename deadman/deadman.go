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

// Package deadman implements component D: a single-owner presence
// beacon for a named resource, with a generation token that lets
// observers detect both release and silent owner death.
package deadman

import (
	"errors"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/alephzero-go/a0/a0err"
	"github.com/alephzero-go/a0/mtx"
)

// deadOwnerPoll bounds how long WaitReleased waits between attempts to
// detect a silently dead owner via tok.TryLock — the same bounded-poll
// idiom reader's executor uses for its own waits (reader/async.go's
// pollQuantum).
const deadOwnerPoll = 50 * time.Millisecond

// StateSize is the number of arena bytes Deadman needs beyond its token,
// guard, and condvar (a generation counter and a locked flag).
const StateSize = 16

type state struct {
	generation uint64
	locked     uint32
	_          uint32
}

// Deadman is a named-resource ownership beacon. The token mutex is the
// ownership primitive proper — mtx's robust death-detection is what lets
// a dead owner's claim be reclaimed; guard/cnd coordinate observers
// waiting on generation/locked changes without contending on token.
type Deadman struct {
	tok   *mtx.Mtx
	guard *mtx.Mtx
	cnd   *mtx.Cnd
	s     *state
}

// New builds a Deadman from its constituent primitives and a state
// buffer of at least StateSize bytes.
func New(tok, guard *mtx.Mtx, cnd *mtx.Cnd, buf []byte) *Deadman {
	if len(buf) < StateSize {
		panic("deadman: buffer too small")
	}
	return &Deadman{tok: tok, guard: guard, cnd: cnd, s: (*state)(unsafe.Pointer(&buf[0]))}
}

func (d *Deadman) bumpLocked() uint64 {
	d.guard.Lock()
	defer d.guard.Unlock()
	gen := atomic.AddUint64(&d.s.generation, 1)
	atomic.StoreUint32(&d.s.locked, 1)
	d.cnd.Broadcast()
	return gen
}

// Take blocks until ownership is acquired.
func (d *Deadman) Take() (generation uint64, err error) {
	if _, err := d.tok.Lock(); err != nil {
		return 0, err
	}
	return d.bumpLocked(), nil
}

// TryTake attempts to acquire ownership without blocking, returning
// a0err.Busy if another owner currently holds it.
func (d *Deadman) TryTake() (generation uint64, err error) {
	if _, err := d.tok.TryLock(); err != nil {
		return 0, err
	}
	return d.bumpLocked(), nil
}

// TimedTake blocks until ownership is acquired or the absolute monotonic
// deadline passes.
func (d *Deadman) TimedTake(deadline time.Time) (generation uint64, err error) {
	if _, err := d.tok.TimedLock(deadline); err != nil {
		return 0, err
	}
	return d.bumpLocked(), nil
}

// Release gives up ownership.
func (d *Deadman) Release() error {
	if !d.tok.IsHeldByMe() {
		return a0err.Custom("deadman: release by non-owner")
	}
	d.guard.Lock()
	atomic.StoreUint32(&d.s.locked, 0)
	d.cnd.Broadcast()
	d.guard.Unlock()
	d.tok.Unlock()
	return nil
}

// WaitTaken blocks until the resource becomes taken by anyone, returning
// the generation of that acquisition.
func (d *Deadman) WaitTaken() (generation uint64, err error) {
	d.guard.Lock()
	defer d.guard.Unlock()
	for atomic.LoadUint32(&d.s.locked) == 0 {
		if _, err := d.cnd.Wait(d.guard); err != nil {
			return 0, err
		}
	}
	return atomic.LoadUint64(&d.s.generation), nil
}

// WaitReleased blocks until either the generation advances past tkn
// (someone else took over) or the resource becomes free — whether by an
// explicit Release or because the owner died without ever calling it.
// Nothing re-evaluates d.tok on its own, so this periodically attempts
// d.tok.TryLock(): success means the owner is gone (dead, or released
// without anyone observing it yet) and never cleared the shared state, so
// this clears it and hands the token straight back.
func (d *Deadman) WaitReleased(tkn uint64) error {
	d.guard.Lock()
	defer d.guard.Unlock()
	for atomic.LoadUint32(&d.s.locked) != 0 && atomic.LoadUint64(&d.s.generation) == tkn {
		if _, _, err := d.cnd.WaitUntil(d.guard, time.Now().Add(deadOwnerPoll)); err != nil {
			return err
		}
		if atomic.LoadUint32(&d.s.locked) == 0 || atomic.LoadUint64(&d.s.generation) != tkn {
			break
		}
		if _, err := d.tok.TryLock(); err == nil {
			d.tok.Unlock()
			atomic.StoreUint32(&d.s.locked, 0)
			d.cnd.Broadcast()
			break
		} else if !errors.Is(err, a0err.Busy) {
			return err
		}
	}
	return nil
}

// State is a point-in-time snapshot.
type State struct {
	IsTaken    bool
	IsOwner    bool
	Generation uint64
}

// StateOf atomically returns (is_taken, is_owner, generation).
func (d *Deadman) StateOf() State {
	d.guard.Lock()
	defer d.guard.Unlock()
	return State{
		IsTaken:    atomic.LoadUint32(&d.s.locked) != 0,
		IsOwner:    d.tok.IsHeldByMe(),
		Generation: atomic.LoadUint64(&d.s.generation),
	}
}
