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

// Package reader implements the read half of component G: four
// variants (sync/async x zero-copy/copying) sharing one transport
// iterator, parameterized by an InitPolicy and an IterPolicy.
package reader

import (
	"time"

	"github.com/alephzero-go/a0/transport"
)

// SyncZeroCopy is driven explicitly by the caller; frame views alias
// the arena only for the duration of the call that produced them.
type SyncZeroCopy struct {
	t *transport.Transport
	c *cursor
}

// NewSyncZeroCopy builds a synchronous zero-copy reader over t.
func NewSyncZeroCopy(t *transport.Transport, init InitPolicy, iter IterPolicy) (*SyncZeroCopy, error) {
	c, err := newCursor(t, init, iter)
	if err != nil {
		return nil, err
	}
	return &SyncZeroCopy{t: t, c: c}, nil
}

// HasNext reports, without blocking, whether Next would currently succeed.
func (r *SyncZeroCopy) HasNext() (bool, error) {
	lk, err := r.t.Lock()
	if err != nil {
		return false, err
	}
	defer lk.Unlock()
	return r.c.ready(lk), nil
}

// Next calls fn with the next frame view and the held lock; fn must not
// retain either past return.
func (r *SyncZeroCopy) Next(fn func(lk *transport.Lock, fv transport.FrameView) error) error {
	lk, err := r.t.Lock()
	if err != nil {
		return err
	}
	defer lk.Unlock()
	fv, err := r.c.advance(lk)
	if err != nil {
		return err
	}
	return fn(lk, fv)
}

// NextBlocking blocks until a frame is available or deadline passes.
func (r *SyncZeroCopy) NextBlocking(deadline time.Time, fn func(lk *transport.Lock, fv transport.FrameView) error) error {
	lk, err := r.t.Lock()
	if err != nil {
		return err
	}
	defer lk.Unlock()
	if err := lk.WaitUntil(func(lk *transport.Lock) bool { return r.c.ready(lk) }, deadline); err != nil {
		return err
	}
	fv, err := r.c.advance(lk)
	if err != nil {
		return err
	}
	return fn(lk, fv)
}

// Sync is the copying counterpart of SyncZeroCopy: frames are copied
// out of the arena before the lock is released, so the payload a
// caller receives has no lifetime tied to the lock.
type Sync struct {
	t *transport.Transport
	c *cursor
}

// NewSync builds a synchronous copying reader over t.
func NewSync(t *transport.Transport, init InitPolicy, iter IterPolicy) (*Sync, error) {
	c, err := newCursor(t, init, iter)
	if err != nil {
		return nil, err
	}
	return &Sync{t: t, c: c}, nil
}

// HasNext reports, without blocking, whether Next would currently succeed.
func (r *Sync) HasNext() (bool, error) {
	lk, err := r.t.Lock()
	if err != nil {
		return false, err
	}
	defer lk.Unlock()
	return r.c.ready(lk), nil
}

// Next returns a copy of the next frame's payload.
func (r *Sync) Next() ([]byte, error) {
	lk, err := r.t.Lock()
	if err != nil {
		return nil, err
	}
	defer lk.Unlock()
	fv, err := r.c.advance(lk)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(fv.Data))
	copy(out, fv.Data)
	return out, nil
}

// NextBlocking blocks until a frame is available or deadline passes,
// then returns a copy of its payload.
func (r *Sync) NextBlocking(deadline time.Time) ([]byte, error) {
	lk, err := r.t.Lock()
	if err != nil {
		return nil, err
	}
	defer lk.Unlock()
	if err := lk.WaitUntil(func(lk *transport.Lock) bool { return r.c.ready(lk) }, deadline); err != nil {
		return nil, err
	}
	fv, err := r.c.advance(lk)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(fv.Data))
	copy(out, fv.Data)
	return out, nil
}
