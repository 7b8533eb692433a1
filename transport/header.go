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

import (
	"unsafe"

	"github.com/alephzero-go/a0/arena"
	"github.com/alephzero-go/a0/mtx"
)

// onArenaMagic marks a TransportHeader that has already been initialized;
// a freshly created arena is all zero bytes (§3 invariant), so any
// nonzero value here works as the "already initialized" marker.
const onArenaMagic uint64 = 0x4130_5452_414e_5350 // "A0TRANSP" as bytes, reversed by LE layout

// onArenaState mirrors §3's committed_state/working_state pair.
type onArenaState struct {
	seqLow        uint64
	seqHigh       uint64
	offHead       uint64
	offTail       uint64
	highWaterMark uint64
}

// onArenaHeader is the TransportHeader of §3, laid out at arena offset 0.
type onArenaHeader struct {
	magic     uint64
	arenaSize uint64
	committed onArenaState
	working   onArenaState
	mtxBuf    [mtx.Size]byte
	cndBuf    [mtx.CndSize]byte
}

// onArenaFrameHeader mirrors §3's FrameHeader, preceding every frame body.
type onArenaFrameHeader struct {
	seq      uint64
	off      uint64
	nextOff  uint64
	prevOff  uint64
	dataSize uint64
}

const headerSize = int(unsafe.Sizeof(onArenaHeader{}))
const frameHeaderSize = int(unsafe.Sizeof(onArenaFrameHeader{}))

// headerEnd is the first max-aligned offset after the TransportHeader,
// where frame data begins.
var headerEnd = arena.AlignUp(headerSize)

var mtxOffset = int(unsafe.Offsetof(onArenaHeader{}.mtxBuf))
var cndOffset = int(unsafe.Offsetof(onArenaHeader{}.cndBuf))

func (t *Transport) frameAt(off uint64) *onArenaFrameHeader {
	return (*onArenaFrameHeader)(unsafe.Pointer(&t.buf[off]))
}

func regionsOverlap(aOff, aLen, bOff, bLen uint64) bool {
	return aOff < bOff+bLen && bOff < aOff+aLen
}
