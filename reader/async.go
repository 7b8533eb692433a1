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
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alephzero-go/a0/a0err"
	"github.com/alephzero-go/a0/transport"
)

var errLog = log.New(os.Stderr, "[a0/reader] ", log.LstdFlags)

// pollQuantum bounds how long one executor wait iteration blocks before
// rechecking its stop flag, so Close never has to wait on an
// indefinite condvar wait to notice it should stop.
const pollQuantum = 50 * time.Millisecond

// executor is the one-background-thread-per-reader loop shared by
// ZeroCopy and Plain: it repeatedly waits for the next frame and
// dispatches it to a user callback, until stopped. Close and
// AsyncClose are both idempotent, per the "callback-style async close"
// design note: Close sets the stop flag and joins; AsyncClose marks a
// pending close the loop performs on its next turn, so a callback can
// trigger its own reader's shutdown without self-joining.
type executor struct {
	t        *transport.Transport
	stopOnce sync.Once
	stopped  int32
	done     chan struct{}
}

func newExecutor(t *transport.Transport) *executor {
	return &executor{t: t, done: make(chan struct{})}
}

// stoppedNow reports whether Close or AsyncClose has fired.
func (e *executor) stoppedNow() bool { return atomic.LoadInt32(&e.stopped) != 0 }

// waitReady blocks, in pollQuantum-sized slices, until ready(lk) is
// true or the executor is stopped, returning the still-locked lk on
// success.
func (e *executor) waitReady(ready func(*transport.Lock) bool) (*transport.Lock, error) {
	for {
		if e.stoppedNow() {
			return nil, errStop
		}
		lk, err := e.t.Lock()
		if err != nil {
			return nil, err
		}
		err = lk.WaitUntil(ready, time.Now().Add(pollQuantum))
		if err == nil {
			return lk, nil
		}
		lk.Unlock()
		if err != a0err.Again {
			return nil, err
		}
	}
}

// run dispatches to step until stopped. A panicking callback is
// treated as fatal, per §7: continuing could silently skip frames
// under a held lock.
func (e *executor) run(step func() error) {
	defer close(e.done)
	for !e.stoppedNow() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					errLog.Printf("callback panic, terminating reader loop: %v", r)
					os.Exit(1)
				}
			}()
			if err := step(); err != nil && err != errStop {
				errLog.Printf("reader step error: %v", err)
			}
		}()
	}
}

var errStop = &stopError{}

type stopError struct{}

func (*stopError) Error() string { return "a0/reader: stopped" }

// Close stops the background loop and waits for it to exit.
func (e *executor) Close() error {
	e.stopOnce.Do(func() { atomic.StoreInt32(&e.stopped, 1) })
	<-e.done
	return nil
}

// AsyncClose schedules the loop to stop after its current callback
// returns, avoiding a self-join deadlock when called from inside that
// callback.
func (e *executor) AsyncClose() {
	e.stopOnce.Do(func() { atomic.StoreInt32(&e.stopped, 1) })
}

// ZeroCopy is the callback, owning-background-executor variant whose
// callback receives the held lock and an arena-aliased frame view; the
// callback must not retain either past return.
type ZeroCopy struct {
	ex *executor
	c  *cursor
}

// NewZeroCopy builds a background reader that invokes fn for every
// frame selected by init/iter until Close or AsyncClose.
func NewZeroCopy(t *transport.Transport, init InitPolicy, iter IterPolicy, fn func(lk *transport.Lock, fv transport.FrameView)) (*ZeroCopy, error) {
	c, err := newCursor(t, init, iter)
	if err != nil {
		return nil, err
	}
	r := &ZeroCopy{ex: newExecutor(t), c: c}
	go r.ex.run(func() error {
		lk, err := r.ex.waitReady(r.c.ready)
		if err != nil {
			return err
		}
		defer lk.Unlock()
		fv, err := r.c.advance(lk)
		if err != nil {
			return err
		}
		fn(lk, fv)
		return nil
	})
	return r, nil
}

// Close stops the background executor and waits for it to exit.
func (r *ZeroCopy) Close() error { return r.ex.Close() }

// AsyncClose schedules the executor to stop after its in-flight
// callback returns.
func (r *ZeroCopy) AsyncClose() { r.ex.AsyncClose() }

// Plain is the callback, copying variant: payloads are copied into a
// caller-owned buffer and the callback runs without the lock held.
type Plain struct {
	ex *executor
	c  *cursor
}

// NewPlain builds a background reader whose callback receives a copy of
// each frame's payload, invoked without the transport lock held.
func NewPlain(t *transport.Transport, init InitPolicy, iter IterPolicy, fn func(payload []byte)) (*Plain, error) {
	c, err := newCursor(t, init, iter)
	if err != nil {
		return nil, err
	}
	r := &Plain{ex: newExecutor(t), c: c}
	go r.ex.run(func() error {
		lk, err := r.ex.waitReady(r.c.ready)
		if err != nil {
			return err
		}
		fv, err := r.c.advance(lk)
		var payload []byte
		if err == nil {
			payload = make([]byte, len(fv.Data))
			copy(payload, fv.Data)
		}
		lk.Unlock()
		if err != nil {
			return err
		}
		fn(payload)
		return nil
	})
	return r, nil
}

// Close stops the background executor and waits for it to exit.
func (r *Plain) Close() error { return r.ex.Close() }

// AsyncClose schedules the executor to stop after its in-flight
// callback returns.
func (r *Plain) AsyncClose() { r.ex.AsyncClose() }
