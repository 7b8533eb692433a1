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
	"testing"
	"time"

	"github.com/alephzero-go/a0/a0err"
)

func newTestMtx() *Mtx {
	return New(make([]byte, Size))
}

func TestLockUnlockBasic(t *testing.T) {
	m := newTestMtx()
	died, err := m.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if died {
		t.Fatalf("fresh mutex should not report a dead prior owner")
	}
	if !m.IsHeldByMe() {
		t.Fatalf("IsHeldByMe() = false right after Lock")
	}
	m.Unlock()
	if m.IsHeldByMe() {
		t.Fatalf("IsHeldByMe() = true after Unlock")
	}
}

func TestTryLockBusy(t *testing.T) {
	m := newTestMtx()
	if _, err := m.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer m.Unlock()

	m2 := &Mtx{r: m.r} // a second handle onto the same shared word
	if _, err := m2.TryLock(); err != a0err.Busy {
		t.Fatalf("TryLock on held mutex = %v, want a0err.Busy", err)
	}
}

func TestReentrantLockErrors(t *testing.T) {
	m := newTestMtx()
	if _, err := m.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer m.Unlock()
	if _, err := m.Lock(); err == nil {
		t.Fatalf("expected error on re-entrant Lock")
	}
}

func TestUnlockOfUnheldPanics(t *testing.T) {
	m := newTestMtx()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic unlocking an unheld mutex")
		}
	}()
	m.Unlock()
}

func TestTimedLockTimesOut(t *testing.T) {
	m := newTestMtx()
	if _, err := m.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer m.Unlock()

	// A second handle used from another goroutine is a different owner; the
	// same goroutine would be detected as a re-entrant lock instead.
	m2 := &Mtx{r: m.r}
	errc := make(chan error, 1)
	go func() {
		_, err := m2.TimedLock(time.Now().Add(5 * time.Millisecond))
		errc <- err
	}()
	if err := <-errc; err != a0err.Again {
		t.Fatalf("TimedLock past deadline = %v, want a0err.Again", err)
	}
}

// TestDeathRecoverySteals simulates a dead owner (stale heartbeat, dead
// pid) and checks that a second handle can steal the lock and observes
// died=true, per §7 PREV_OWNER_DIED.
func TestDeathRecoverySteals(t *testing.T) {
	m := newTestMtx()
	if _, err := m.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// Simulate the owner dying without unlocking.
	KillOwnerForTest(m)

	m2 := &Mtx{r: m.r}
	died, err := m2.Lock()
	if err != nil {
		t.Fatalf("Lock after simulated death: %v", err)
	}
	if !died {
		t.Fatalf("expected died=true stealing from a dead owner")
	}
	m2.Unlock()
}

func TestGenerationAdvancesOnEachAcquire(t *testing.T) {
	m := newTestMtx()
	if _, err := m.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	g1 := m.Generation()
	m.Unlock()

	if _, err := m.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	g2 := m.Generation()
	m.Unlock()

	if g2 <= g1 {
		t.Fatalf("generation did not advance: g1=%d g2=%d", g1, g2)
	}
}
