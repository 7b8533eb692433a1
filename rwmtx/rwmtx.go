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

// Package rwmtx implements component C: a reader-writer lock shaped for
// shared memory without an unbounded reader counter. It is built purely
// from mtx.Mtx/mtx.Cnd: one writer mutex W, a guard mutex G, a condvar,
// and a fixed-size array of reader-slot mutexes R[0..k). A reader holds
// one R[i] for the lifetime of its read; because R[i] is itself a
// robust mtx, a reader that dies mid-read releases its slot for free —
// there is no reference count to get stuck.
package rwmtx

import (
	"errors"

	"github.com/alephzero-go/a0/a0err"
	"github.com/alephzero-go/a0/mtx"
)

// RWMtx is a reader-writer lock over a caller-supplied set of reader
// slots, all living in the same arena segment.
type RWMtx struct {
	g *mtx.Mtx
	w *mtx.Mtx
	c *mtx.Cnd
	r []*mtx.Mtx
}

// New builds an RWMtx from its three constituent mutexes and the fixed
// reader-slot array. All must already be initialized (e.g. via mtx.New
// over arena-backed storage).
func New(guard, writer *mtx.Mtx, cnd *mtx.Cnd, readers []*mtx.Mtx) *RWMtx {
	return &RWMtx{g: guard, w: writer, c: cnd, r: readers}
}

// Token is a held lock: either one reader slot or the writer mutex.
type Token struct {
	mu   *mtx.Mtx
	died bool
}

// Died reports whether acquiring this token recovered from a dead
// holder of the underlying slot mutex.
func (t *Token) Died() bool { return t.died }

// RLock acquires a free reader slot. Writer preference is enforced by
// checking W's lock bit before granting a slot: if a writer holds or is
// approaching ownership, new readers wait behind it.
func (rw *RWMtx) RLock() (*Token, error) {
	for {
		if _, err := rw.g.Lock(); err != nil {
			return nil, err
		}
		if rw.w.IsLocked() {
			if _, err := rw.c.Wait(rw.g); err != nil {
				rw.g.Unlock()
				return nil, err
			}
			rw.g.Unlock()
			continue
		}
		for _, slot := range rw.r {
			died, err := slot.TryLock()
			if err == nil {
				rw.g.Unlock()
				return &Token{mu: slot, died: died}, nil
			}
			if !errors.Is(err, a0err.Busy) {
				rw.g.Unlock()
				return nil, err
			}
		}
		// every slot taken: wait for one to free and retry.
		if _, err := rw.c.Wait(rw.g); err != nil {
			rw.g.Unlock()
			return nil, err
		}
		rw.g.Unlock()
	}
}

// WLock acquires exclusive access: the writer mutex plus confirmation
// that every reader slot is currently free.
func (rw *RWMtx) WLock() (*Token, error) {
	for {
		if _, err := rw.g.Lock(); err != nil {
			return nil, err
		}
		died, err := rw.w.TryLock()
		if errors.Is(err, a0err.Busy) {
			if _, err := rw.c.Wait(rw.g); err != nil {
				rw.g.Unlock()
				return nil, err
			}
			rw.g.Unlock()
			continue
		}
		if err != nil {
			rw.g.Unlock()
			return nil, err
		}
		// Confirm every reader slot is actually free, not merely
		// not-yet-noticed-dead: IsLocked is a non-death-detecting peek
		// (mtx.Mtx.IsLocked), so a slot held by a reader that died
		// mid-read would report locked forever. TryLock performs a real
		// acquisition attempt, which steals from a dead holder, so a
		// dead reader can never stall a writer.
		for _, slot := range rw.r {
			for {
				_, err := slot.TryLock()
				if err == nil {
					slot.Unlock()
					break
				}
				if !errors.Is(err, a0err.Busy) {
					rw.g.Unlock()
					return nil, err
				}
				if _, err := rw.c.Wait(rw.g); err != nil {
					rw.g.Unlock()
					return nil, err
				}
			}
		}
		rw.g.Unlock()
		return &Token{mu: rw.w, died: died}, nil
	}
}

// Unlock releases a token acquired by RLock or WLock and wakes anyone
// waiting on the guard condvar.
func (rw *RWMtx) Unlock(tok *Token) {
	tok.mu.Unlock()
	rw.c.Broadcast()
}
