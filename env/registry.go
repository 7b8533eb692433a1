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

package env

import (
	"github.com/alephzero-go/a0/arena"
	NonLockingReadMap "github.com/launix-de/NonLockingReadMap"
)

// arenaHandle is the value type stored in the process-wide arena
// registry: a resolved path plus whatever the caller associated with
// having already opened it (OpenArena stores an *arena.Arena; the field
// is an interface{} so Register accepts any value).
type arenaHandle struct {
	path  string
	value interface{}
}

func (h *arenaHandle) GetKey() string { return h.path }

// ComputeSize reports an approximate footprint in bytes; the registry
// uses this only for its own bookkeeping (see NonLockingReadMap docs),
// not for any eviction policy here.
func (h *arenaHandle) ComputeSize() uint { return uint(len(h.path)) + 32 }

// registry is the one legitimate piece of process-wide mutable state
// beyond the env snapshot itself (design note "global mutable state"):
// a lock-free, read-optimized map from resolved arena path to whatever
// handle a caller registered for it, so two opens of the same topic
// within one process can share a single mapping instead of mmapping it
// twice. Reads (the common case: "have I already opened this path?")
// are O(log N) and never block; registering a newly opened arena is the
// rare write.
var registry = NonLockingReadMap.New[arenaHandle, string]()

// Lookup returns whatever was registered for path, or nil if nothing
// has been registered yet.
func Lookup(path string) interface{} {
	h := registry.Get(path)
	if h == nil {
		return nil
	}
	return h.value
}

// Register associates value (typically an *arena.Arena) with path so a
// later Lookup in this process can find it without reopening.
func Register(path string, value interface{}) {
	registry.Set(&arenaHandle{path: path, value: value})
}

// OpenArena resolves topic through tmpl (one of Snapshot's
// A0_TOPIC_TMPL_* templates) and returns the arena already open for
// that path in this process, if any, or opens and registers a new one.
// This is the one place the process-local registry is actually
// exercised: repeated OpenArena calls for the same topic within a
// process share a single mapping instead of mmapping it again.
func OpenArena(s Snapshot, tmpl, topic string, mode arena.Mode) (*arena.Arena, error) {
	path, err := TopicPath(s, tmpl, topic)
	if err != nil {
		return nil, err
	}
	if v := Lookup(path); v != nil {
		return v.(*arena.Arena), nil
	}
	a, err := arena.OpenFile(path, mode, s.ArenaSize)
	if err != nil {
		return nil, err
	}
	Register(path, a)
	return a, nil
}
