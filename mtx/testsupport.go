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
	"runtime"
	"sync/atomic"
)

// deadPIDForTest is a pid essentially guaranteed not to be alive.
const deadPIDForTest = 1 << 30

// KillOwnerForTest simulates the current owner of m dying without calling
// Unlock: it stops the heartbeat goroutine, releases the caller's pin to its
// OS thread, and rewrites the recorded owner
// pid/heartbeat so the next death-detecting acquisition attempt (TryLock,
// Lock, TimedLock) steals the lock. It exists so packages built on top of
// mtx (rwmtx, deadman) can exercise their death-recovery paths without a
// real process exit. m must currently be held by the calling goroutine.
func KillOwnerForTest(m *Mtx) {
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		close(m.stop)
		m.heartbeat = nil
	}
	atomic.StoreInt32(&m.r.ownerPID, deadPIDForTest)
	atomic.StoreInt64(&m.r.heartbeatNanos, nowNanos()-int64(2*deadHeartbeat))
	runtime.UnlockOSThread()
}
