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

package reader

import (
	"github.com/alephzero-go/a0/a0err"
	"github.com/alephzero-go/a0/transport"
)

// InitPolicy decides where a freshly constructed reader's cursor starts.
type InitPolicy int

const (
	// Oldest starts the cursor at seq_low.
	Oldest InitPolicy = iota
	// MostRecent starts the cursor at seq_high.
	MostRecent
	// AwaitNew starts strictly after seq_high as observed at
	// construction time; only frames committed afterward are seen.
	AwaitNew
)

// IterPolicy decides how a reader advances after its first frame.
type IterPolicy int

const (
	// Next emits every subsequent frame in order.
	Next IterPolicy = iota
	// Newest, on wake, emits whichever frame is current seq_high,
	// possibly skipping intermediate frames.
	Newest
)

// cursor holds the policy-driven positioning logic shared by all four
// reader variants. It is not itself a Writer/Reader façade; it only
// knows how to move lk's iterator to the next frame to emit.
type cursor struct {
	initPolicy InitPolicy
	iterPolicy IterPolicy
	started    bool
	awaitSeq   uint64 // AwaitNew: the seq_high observed at construction
	lastSeq    uint64 // the seq of the last frame this cursor emitted
}

// newCursor builds a cursor for t. AwaitNew takes a short-lived lock
// here to snapshot seq_high at construction time, per §4.G.
func newCursor(t *transport.Transport, init InitPolicy, iter IterPolicy) (*cursor, error) {
	c := &cursor{initPolicy: init, iterPolicy: iter}
	if init == AwaitNew {
		lk, err := t.Lock()
		if err != nil {
			return nil, err
		}
		c.awaitSeq = lk.SeqHigh()
		lk.Unlock()
	}
	return c, nil
}

// ready reports whether advance would currently succeed without
// blocking, given lk held.
func (c *cursor) ready(lk *transport.Lock) bool {
	if !c.started {
		switch c.initPolicy {
		case Oldest, MostRecent:
			return !lk.Empty()
		case AwaitNew:
			return lk.SeqHigh() > c.awaitSeq
		}
	}
	return lk.SeqHigh() > c.lastSeq
}

// advance moves lk's iterator to the next frame this cursor should
// emit and returns its view.
func (c *cursor) advance(lk *transport.Lock) (transport.FrameView, error) {
	it := lk.Iterator()
	var err error
	if !c.started {
		c.started = true
		switch c.initPolicy {
		case Oldest:
			err = it.JumpHead()
		case MostRecent:
			err = it.JumpTail()
		case AwaitNew:
			if lk.SeqHigh() <= c.awaitSeq {
				return transport.FrameView{}, a0err.Again
			}
			err = it.JumpSeq(max(c.awaitSeq+1, lk.SeqLow()))
		default:
			err = a0err.InvalidArg
		}
	} else {
		switch c.iterPolicy {
		case Next:
			// Frames evicted since the last emit are skipped: resume at
			// the oldest surviving frame.
			err = it.JumpSeq(max(c.lastSeq+1, lk.SeqLow()))
		case Newest:
			err = it.JumpTail()
		default:
			err = a0err.InvalidArg
		}
	}
	if err != nil {
		return transport.FrameView{}, err
	}
	fv, err := it.Frame()
	if err != nil {
		return transport.FrameView{}, err
	}
	c.lastSeq = fv.Seq
	return fv, nil
}
