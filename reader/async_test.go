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
	"sync"
	"testing"
	"time"

	"github.com/alephzero-go/a0/transport"
)

func TestPlainDeliversCommittedFrames(t *testing.T) {
	tr := newTestTransport(t)
	writeFrame(t, tr, "msg #0")

	var mu sync.Mutex
	var got []string
	r, err := NewPlain(tr, Oldest, Next, func(payload []byte) {
		mu.Lock()
		got = append(got, string(payload))
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("NewPlain: %v", err)
	}
	defer r.Close()

	writeFrame(t, tr, "msg #1")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "msg #0" || got[1] != "msg #1" {
		t.Fatalf("delivered = %v, want [msg #0 msg #1]", got)
	}
}

func TestPlainCloseIsIdempotentAndJoins(t *testing.T) {
	tr := newTestTransport(t)
	r, err := NewPlain(tr, AwaitNew, Next, func([]byte) {})
	if err != nil {
		t.Fatalf("NewPlain: %v", err)
	}

	done := make(chan struct{})
	go func() {
		r.Close()
		r.Close() // idempotent: must not block or panic the second time
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close never returned")
	}
}

func TestZeroCopyCallbackSeesLockedFrame(t *testing.T) {
	tr := newTestTransport(t)
	writeFrame(t, tr, "zc")

	done := make(chan string, 1)
	r, err := NewZeroCopy(tr, Oldest, Next, func(lk *transport.Lock, fv transport.FrameView) {
		done <- string(fv.Data)
	})
	if err != nil {
		t.Fatalf("NewZeroCopy: %v", err)
	}
	defer r.Close()

	select {
	case got := <-done:
		if got != "zc" {
			t.Fatalf("callback payload = %q, want zc", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("ZeroCopy callback never fired")
	}
}
