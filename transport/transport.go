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

// Package transport implements component E: the circular log itself —
// arena layout, frame allocation with FIFO eviction, forward/backward
// iteration, and condition-predicate waiting. Every operation here
// requires the transport's mtx to be held; Lock/Unlock bracket a
// session during which a caller may stream many alloc/commit/iterate
// calls under one acquisition, per §4.E.
package transport

import (
	"time"
	"unsafe"

	"github.com/alephzero-go/a0/a0err"
	"github.com/alephzero-go/a0/arena"
	"github.com/alephzero-go/a0/mtx"
)

// Transport is a handle onto the ring log stored in an arena. Multiple
// Transport values (in this or other processes) may point at the same
// arena concurrently; all of them serialize through the same mtx.
type Transport struct {
	a   *arena.Arena
	buf []byte
	hdr *onArenaHeader
	m   *mtx.Mtx
	c   *mtx.Cnd
}

// Open attaches to the transport stored in a. It does not itself take
// the lock or touch the header; initialization happens lazily on the
// first Lock, per §4.E.
func Open(a *arena.Arena) (*Transport, error) {
	buf := a.Bytes()
	if len(buf) < headerEnd {
		return nil, a0err.InvalidArg
	}
	hdr := (*onArenaHeader)(unsafe.Pointer(&buf[0]))
	return &Transport{
		a:   a,
		buf: buf,
		hdr: hdr,
		m:   mtx.New(buf[mtxOffset : mtxOffset+mtx.Size]),
		c:   mtx.NewCnd(buf[cndOffset : cndOffset+mtx.CndSize]),
	}, nil
}

// Lock is the opaque token returned by acquiring the transport's mtx;
// alloc/commit/iteration verbs are methods on it.
type Lock struct {
	t            *Transport
	died         bool
	allocPending bool
	allocOff     uint64
	allocSize    uint64
}

// Died reports whether this acquisition recovered from a dead previous
// holder (§7 PREV_OWNER_DIED) — informational only, since recovery has
// already been applied by the time Lock returns.
func (lk *Lock) Died() bool { return lk.died }

// Lock acquires the transport's mtx, lazily initializes the header on
// first use, validates arena_size on subsequent opens, and restores
// working_state from committed_state if the prior holder died mid
// alloc/commit (§5 Death recovery).
func (t *Transport) Lock() (*Lock, error) {
	died, err := t.m.Lock()
	if err != nil {
		return nil, err
	}
	if err := t.afterAcquire(died); err != nil {
		t.m.Unlock()
		return nil, err
	}
	return &Lock{t: t, died: died}, nil
}

func (t *Transport) afterAcquire(died bool) error {
	if t.hdr.magic == 0 {
		t.hdr.arenaSize = uint64(len(t.buf))
		t.hdr.committed = onArenaState{highWaterMark: uint64(headerEnd)}
		t.hdr.working = t.hdr.committed
		t.hdr.magic = onArenaMagic
		return nil
	}
	if t.hdr.arenaSize != uint64(len(t.buf)) {
		return a0err.InvalidArg
	}
	if died {
		t.hdr.working = t.hdr.committed
		t.c.Broadcast()
	}
	return nil
}

// Unlock releases the transport's mtx.
func (lk *Lock) Unlock() { lk.t.m.Unlock() }

// Empty reports whether the committed log currently holds any frame.
func (lk *Lock) Empty() bool { return lk.t.hdr.committed.offHead == 0 }

// SeqLow returns the committed oldest live sequence number, or 0 if empty.
func (lk *Lock) SeqLow() uint64 { return lk.t.hdr.committed.seqLow }

// SeqHigh returns the committed newest live sequence number, or 0 if
// nothing has ever been committed.
func (lk *Lock) SeqHigh() uint64 { return lk.t.hdr.committed.seqHigh }

// Alloc reserves room for a size-byte frame body and returns a slice of
// the arena to write it into. Eviction of head-ward frames happens here,
// in FIFO order, as many as needed in this single call (§4.E). Only one
// uncommitted allocation may be outstanding per lock acquisition; a
// second Alloc silently replaces the first, per spec.
func (lk *Lock) Alloc(size int) ([]byte, error) {
	t := lk.t
	total := uint64(arena.AlignUp(frameHeaderSize + size))
	capacity := uint64(len(t.buf) - headerEnd)
	if total > capacity {
		return nil, a0err.FrameLarge
	}

	ws := &t.hdr.working
	var dst uint64
	if ws.offTail == 0 {
		dst = uint64(headerEnd)
	} else {
		tail := t.frameAt(ws.offTail)
		after := uint64(arena.AlignUp(int(ws.offTail) + frameHeaderSize + int(tail.dataSize)))
		if after+total > uint64(len(t.buf)) {
			dst = uint64(headerEnd)
		} else {
			dst = after
		}
	}

	for ws.offHead != 0 {
		head := t.frameAt(ws.offHead)
		headLen := uint64(arena.AlignUp(frameHeaderSize + int(head.dataSize)))
		if !regionsOverlap(dst, total, ws.offHead, headLen) {
			break
		}
		if head.nextOff == 0 {
			ws.offHead = 0
			ws.offTail = 0
			ws.seqLow = ws.seqHigh + 1
			break
		}
		ws.offHead = head.nextOff
		ws.seqLow = t.frameAt(ws.offHead).seq
	}

	if dst+total > ws.highWaterMark {
		ws.highWaterMark = dst + total
	}

	lk.allocOff = dst
	lk.allocSize = uint64(size)
	lk.allocPending = true

	start := dst + uint64(frameHeaderSize)
	return t.buf[start : start+uint64(size) : start+uint64(size)], nil
}

// Commit publishes the most recent Alloc to readers: links the new frame
// into the doubly linked list, advances seq_high, and atomically
// republishes working_state as committed_state before waking waiters.
func (lk *Lock) Commit() error {
	if !lk.allocPending {
		return a0err.InvalidArg
	}
	t := lk.t
	ws := &t.hdr.working
	dst := lk.allocOff

	wasEmpty := ws.offHead == 0
	newHdr := t.frameAt(dst)
	newHdr.seq = ws.seqHigh + 1
	newHdr.off = dst
	newHdr.prevOff = ws.offTail
	newHdr.nextOff = 0
	newHdr.dataSize = lk.allocSize

	if !wasEmpty {
		t.frameAt(ws.offTail).nextOff = dst
	} else {
		ws.offHead = dst
		ws.seqLow = newHdr.seq
	}
	if ws.offHead != dst {
		// The surviving head may still point back at an evicted frame.
		t.frameAt(ws.offHead).prevOff = 0
	}
	ws.offTail = dst
	ws.seqHigh = newHdr.seq

	t.hdr.committed = *ws
	lk.allocPending = false
	t.c.Broadcast()
	return nil
}

// Wait atomically releases the transport lock and suspends until
// signaled, reacquiring it and evaluating predicate each time it wakes;
// it returns once predicate(lk) is true.
func (lk *Lock) Wait(predicate func(*Lock) bool) error {
	for !predicate(lk) {
		died, err := lk.t.c.Wait(lk.t.m)
		if err != nil {
			return err
		}
		if err := lk.t.afterAcquire(died); err != nil {
			return err
		}
		lk.died = lk.died || died
	}
	return nil
}

// WaitUntil is Wait's timed variant; it returns a0err.Again if deadline
// passes before predicate becomes true.
func (lk *Lock) WaitUntil(predicate func(*Lock) bool, deadline time.Time) error {
	for !predicate(lk) {
		died, timedOut, err := lk.t.c.WaitUntil(lk.t.m, deadline)
		if err != nil {
			return err
		}
		if err := lk.t.afterAcquire(died); err != nil {
			return err
		}
		lk.died = lk.died || died
		if timedOut {
			if predicate(lk) {
				return nil
			}
			return a0err.Again
		}
	}
	return nil
}
