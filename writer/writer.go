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

// Package writer implements the write half of component G: a chain of
// middleware stages terminating in a transport append. A Write call
// either takes its own lock at the terminal stage, or, for middleware
// that needs the lock earlier (add_transport_seq_header,
// write_if_empty, json_mergepatch), takes it once and threads it down
// the rest of the chain via WriteLocked so no stage re-acquires it.
package writer

import (
	"github.com/alephzero-go/a0/packet"
	"github.com/alephzero-go/a0/transport"
)

// Writer is one stage of the chain.
type Writer interface {
	// Write appends pkt, acquiring whatever locks it needs.
	Write(pkt *packet.Packet) error
	// WriteLocked appends pkt using a transport lock the caller already
	// holds; implementations must not unlock or relock lk.
	WriteLocked(lk *transport.Lock, pkt *packet.Packet) error
	Close() error
}

// Middleware is a composable transform. Process runs without any
// transport lock held and forwards via chain.Write. ProcessLocked runs
// with lk already held (e.g. because this stage needs it) and forwards
// via chain.WriteLocked so the whole remaining chain shares one
// acquisition. Middleware may mutate pkt, short-circuit by not calling
// chain at all, or forward unchanged.
type Middleware interface {
	Process(pkt *packet.Packet, chain Writer) error
	ProcessLocked(lk *transport.Lock, pkt *packet.Packet, chain Writer) error
	Close() error
}

// terminal is the tail of every chain: it appends directly to a transport.
type terminal struct {
	t *transport.Transport
}

// NewTerminal builds the transport-writing tail stage of a chain.
func NewTerminal(t *transport.Transport) Writer { return &terminal{t: t} }

func (w *terminal) Write(pkt *packet.Packet) error {
	lk, err := w.t.Lock()
	if err != nil {
		return err
	}
	defer lk.Unlock()
	return w.WriteLocked(lk, pkt)
}

func (w *terminal) WriteLocked(lk *transport.Lock, pkt *packet.Packet) error {
	buf, err := lk.Alloc(len(pkt.Bytes()))
	if err != nil {
		return err
	}
	copy(buf, pkt.Bytes())
	return lk.Commit()
}

func (w *terminal) Close() error { return nil }

// stage wraps a lock-agnostic Middleware around a next Writer.
type stage struct {
	mw   Middleware
	next Writer
}

// Wrap composes mw in front of next.
func Wrap(mw Middleware, next Writer) Writer { return &stage{mw: mw, next: next} }

func (s *stage) Write(pkt *packet.Packet) error { return s.mw.Process(pkt, s.next) }

func (s *stage) WriteLocked(lk *transport.Lock, pkt *packet.Packet) error {
	return s.mw.ProcessLocked(lk, pkt, s.next)
}

// Close closes this stage, then the stage it wraps, in that order —
// reverse of composition order, per §4.G.
func (s *stage) Close() error {
	err := s.mw.Close()
	if nerr := s.next.Close(); err == nil {
		err = nerr
	}
	return err
}

// lockedStage wraps a Middleware that needs the transport lock for its
// own bookkeeping (write_if_empty, add_transport_seq_header,
// json_mergepatch). A top-level Write acquires the lock once here;
// everything downstream reuses it through WriteLocked.
type lockedStage struct {
	mw   Middleware
	t    *transport.Transport
	next Writer
}

// WrapLocked composes a lock-requiring mw in front of next.
func WrapLocked(mw Middleware, t *transport.Transport, next Writer) Writer {
	return &lockedStage{mw: mw, t: t, next: next}
}

func (s *lockedStage) Write(pkt *packet.Packet) error {
	lk, err := s.t.Lock()
	if err != nil {
		return err
	}
	defer lk.Unlock()
	return s.mw.ProcessLocked(lk, pkt, s.next)
}

func (s *lockedStage) WriteLocked(lk *transport.Lock, pkt *packet.Packet) error {
	return s.mw.ProcessLocked(lk, pkt, s.next)
}

func (s *lockedStage) Close() error {
	err := s.mw.Close()
	if nerr := s.next.Close(); err == nil {
		err = nerr
	}
	return err
}

// baseMiddleware gives a provided middleware plain pass-through
// behavior so implementations only override what they need.
type baseMiddleware struct{}

func (baseMiddleware) Close() error { return nil }

func (baseMiddleware) Process(pkt *packet.Packet, chain Writer) error {
	return chain.Write(pkt)
}

func (baseMiddleware) ProcessLocked(lk *transport.Lock, pkt *packet.Packet, chain Writer) error {
	return chain.WriteLocked(lk, pkt)
}
