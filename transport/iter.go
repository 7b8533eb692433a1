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

package transport

import "github.com/alephzero-go/a0/a0err"

// FrameView is a read-only, zero-copy view of a committed frame.
type FrameView struct {
	Seq  uint64
	Data []byte
}

// Iter walks the committed frame list under a held Lock. It caches both
// an offset and the seq it observed there, because FIFO eviction can
// recycle that offset for a different frame entirely between one
// StepNext/StepPrev and the next within the same lock session — an
// offset match alone is not enough to know the iterator is still
// pointed at the frame it thinks it is (has-next monotonicity, §8).
type Iter struct {
	lk  *Lock
	off uint64
	seq uint64
	ok  bool
}

// Iterator builds a fresh Iter over lk's committed state, initially
// invalid until one of the Jump* methods is called.
func (lk *Lock) Iterator() *Iter {
	return &Iter{lk: lk}
}

func (it *Iter) frame() *onArenaFrameHeader {
	return it.lk.t.frameAt(it.off)
}

// valid reports whether it.off still names the frame it.seq expects;
// false means the frame at that offset was evicted and reallocated to
// something else since this iterator last looked.
func (it *Iter) valid() bool {
	return it.ok && it.off != 0 && it.frame().seq == it.seq
}

// Valid reports whether the iterator currently names a live frame.
func (it *Iter) Valid() bool { return it.valid() }

// JumpHead points the iterator at the oldest committed frame. It fails
// with a0err.NotFound if the log is empty.
func (it *Iter) JumpHead() error {
	off := it.lk.t.hdr.committed.offHead
	if off == 0 {
		it.ok = false
		return a0err.NotFound
	}
	it.off = off
	it.seq = it.frame().seq
	it.ok = true
	return nil
}

// JumpTail points the iterator at the newest committed frame. It fails
// with a0err.NotFound if the log is empty.
func (it *Iter) JumpTail() error {
	off := it.lk.t.hdr.committed.offTail
	if off == 0 {
		it.ok = false
		return a0err.NotFound
	}
	it.off = off
	it.seq = it.frame().seq
	it.ok = true
	return nil
}

// JumpSeq points the iterator at the frame with the given sequence
// number. It walks forward from offHead, which is O(n) in frame count
// but keeps the on-arena layout free of a seq index — acceptable given
// the log's bounded size (§4.E).
func (it *Iter) JumpSeq(seq uint64) error {
	cs := &it.lk.t.hdr.committed
	if cs.offHead == 0 || seq < cs.seqLow || seq > cs.seqHigh {
		it.ok = false
		return a0err.NotFound
	}
	off := cs.offHead
	for off != 0 {
		fh := it.lk.t.frameAt(off)
		if fh.seq == seq {
			it.off = off
			it.seq = seq
			it.ok = true
			return nil
		}
		off = fh.nextOff
	}
	it.ok = false
	return a0err.NotFound
}

// HasNext reports whether StepNext would succeed. If the iterator's
// current position was invalidated by eviction (or never positioned),
// StepNext recovers by repositioning to off_head, so HasNext reports
// that recovery rather than unconditionally false — otherwise a caller
// could see has_next flip true->false->stuck across an eviction, which
// breaks has-next monotonicity (§8).
func (it *Iter) HasNext() bool {
	if it.valid() {
		return it.frame().nextOff != 0
	}
	return it.lk.t.hdr.committed.offHead != 0
}

// HasPrev reports whether StepPrev would succeed.
func (it *Iter) HasPrev() bool {
	return it.valid() && it.frame().prevOff != 0
}

// StepNext advances to the next-newer frame. If the current position
// was invalidated by eviction, this is equivalent to JumpHead rather
// than an error, per §4.E's Invalid-state row.
func (it *Iter) StepNext() error {
	if !it.valid() {
		off := it.lk.t.hdr.committed.offHead
		if off == 0 {
			it.ok = false
			return a0err.NotFound
		}
		it.off = off
		it.seq = it.frame().seq
		it.ok = true
		return nil
	}
	next := it.frame().nextOff
	if next == 0 {
		return a0err.Range
	}
	it.off = next
	it.seq = it.frame().seq
	return nil
}

// StepPrev retreats to the next-older frame.
func (it *Iter) StepPrev() error {
	if !it.valid() {
		return a0err.NotFound
	}
	prev := it.frame().prevOff
	if prev == 0 {
		return a0err.Range
	}
	it.off = prev
	it.seq = it.frame().seq
	return nil
}

// Frame returns a zero-copy view of the frame the iterator currently
// names. It fails with a0err.NotFound if the iterator is Invalid, per
// §4.E's Invalid-state row.
func (it *Iter) Frame() (FrameView, error) {
	if !it.valid() {
		return FrameView{}, a0err.NotFound
	}
	fh := it.frame()
	start := it.off + uint64(frameHeaderSize)
	data := it.lk.t.buf[start : start+fh.dataSize : start+fh.dataSize]
	return FrameView{Seq: fh.seq, Data: data}, nil
}
