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

// Package arena implements component A: a contiguous byte region of fixed
// size, shared or exclusive-readonly, backed either by a memory-mapped
// file or by anonymous shared memory. The arena never resizes itself
// after creation; callers that need a bigger log create a bigger arena.
package arena

import (
	"os"

	"github.com/alephzero-go/a0/a0err"
	"golang.org/x/sys/unix"
)

// MaxAlign is the alignment every header field in the arena layout is
// padded to (§3), matching the widest scalar (uint64) used anywhere in a
// TransportHeader or FrameHeader.
const MaxAlign = 8

// AlignUp rounds n up to the next multiple of MaxAlign.
func AlignUp(n int) int {
	return (n + MaxAlign - 1) &^ (MaxAlign - 1)
}

// Mode is the arena's access mode.
type Mode int

const (
	// Shared grants read/write access; the standard mode for a transport
	// holder (reader or writer).
	Shared Mode = iota
	// ReadOnly maps the region PROT_READ only; used by strictly
	// read-only observers that must never mutate arena bytes.
	ReadOnly
)

// Arena is a contiguous byte region with shared semantics.
type Arena struct {
	buf     []byte
	mode    Mode
	fd      int // -1 for non-file-backed arenas
	ownsBuf bool
}

// Bytes returns the arena's backing slice. The slice aliases shared or
// anonymous memory and must not be resliced or appended to; any process
// with a writable mapping may mutate it concurrently.
func (a *Arena) Bytes() []byte { return a.buf }

// Size returns the fixed size of the arena in bytes.
func (a *Arena) Size() int64 { return int64(len(a.buf)) }

// ModeOf returns the arena's access mode.
func (a *Arena) ModeOf() Mode { return a.mode }

// Close unmaps the arena and, for file-backed arenas, closes the
// descriptor. The backing file (if any) persists; only the mapping in
// this process is released.
func (a *Arena) Close() error {
	if a.buf == nil {
		return nil
	}
	var err error
	if a.ownsBuf {
		err = unix.Munmap(a.buf)
	}
	a.buf = nil
	if a.fd >= 0 {
		if cerr := unix.Close(a.fd); err == nil {
			err = cerr
		}
		a.fd = -1
	}
	if err != nil {
		return a0err.Sys("munmap", err)
	}
	return nil
}

// OpenFile opens (creating if absent) a memory-mapped file-backed arena of
// exactly size bytes. A freshly created file is zero-filled by
// Ftruncate, matching the "entirely zero bytes on first creation"
// invariant in §3. Reopening an existing file of the same size attaches
// to its current contents (which may already hold committed transport
// state). In ReadOnly mode the file is opened O_RDONLY: an absent file is
// not created (the open fails), and its size is not checked against size.
//
// Grounded on the mmap lifecycle in other_examples' shmx.createMaster:
// O_CREAT|O_RDWR, Ftruncate to size, then PROT_READ|PROT_WRITE,
// MAP_SHARED.
func OpenFile(path string, mode Mode, size int64) (*Arena, error) {
	if size <= 0 || size%MaxAlign != 0 {
		return nil, a0err.InvalidArg
	}

	flags := os.O_RDWR | os.O_CREATE
	if mode == ReadOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, a0err.Sys("open", err)
	}
	defer f.Close()

	if mode != ReadOnly {
		fi, err := f.Stat()
		if err != nil {
			return nil, a0err.Sys("stat", err)
		}
		if fi.Size() == 0 {
			if err := f.Truncate(size); err != nil {
				return nil, a0err.Sys("ftruncate", err)
			}
		} else if fi.Size() != size {
			return nil, a0err.InvalidArg
		}
	}

	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, a0err.Sys("dup", err)
	}

	prot := unix.PROT_READ | unix.PROT_WRITE
	if mode == ReadOnly {
		prot = unix.PROT_READ
	}
	buf, err := unix.Mmap(fd, 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, a0err.Sys("mmap", err)
	}

	return &Arena{buf: buf, mode: mode, fd: fd, ownsBuf: true}, nil
}

// Anonymous creates a new anonymous shared-memory arena, usable across
// fork()'d processes or threads in the current process but not
// referenceable by path. Primarily used by tests and by same-process
// producer/consumer pairs that don't need cross-process discovery.
func Anonymous(size int64) (*Arena, error) {
	if size <= 0 || size%MaxAlign != 0 {
		return nil, a0err.InvalidArg
	}
	buf, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, a0err.Sys("mmap", err)
	}
	return &Arena{buf: buf, mode: Shared, fd: -1, ownsBuf: true}, nil
}

// FromBytes wraps an already-mapped byte region (e.g. a slice backed by a
// test harness's own allocation, or a region prepared by an external
// arena provider). The Arena does not own the memory and Close is a
// no-op for it.
func FromBytes(b []byte, mode Mode) *Arena {
	return &Arena{buf: b, mode: mode, fd: -1, ownsBuf: false}
}
