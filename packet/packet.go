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

// Package packet implements component F: the frame body format — a
// UUID, an ordered multimap of string headers, and a payload, packed
// into one buffer with an offset index so every accessor is O(1)
// against the serialized bytes with no parsing pass.
package packet

import (
	"encoding/binary"

	"github.com/alephzero-go/a0/a0err"
	"github.com/google/uuid"
)

// UUIDSize is the on-wire size of the packet ID: a 36-character UUID
// string plus its trailing NUL.
const UUIDSize = 37

// wordSize is the width of every offset/count field in the index table.
const wordSize = 8

// Header is one (key, value) pair. Packets carry these as an ordered
// multimap: the same key may appear more than once.
type Header struct {
	Key   string
	Value string
}

// SerializedSize returns the exact buffer length Serialize will need for
// the given headers and payload, per §3's size formula.
func SerializedSize(headers []Header, payload []byte) int {
	n := UUIDSize + wordSize*(2*len(headers)+2)
	for _, h := range headers {
		n += len(h.Key) + 1 + len(h.Value) + 1
	}
	n += len(payload)
	return n
}

// Serialize packs id, headers, and payload into dst, which must be at
// least SerializedSize(headers, payload) bytes, and returns the number
// of bytes written.
func Serialize(id string, headers []Header, payload []byte, dst []byte) (int, error) {
	need := SerializedSize(headers, payload)
	if len(dst) < need {
		return 0, a0err.InvalidArg
	}
	if len(id) != UUIDSize-1 {
		return 0, a0err.InvalidArg
	}

	copy(dst[0:UUIDSize-1], id)
	dst[UUIDSize-1] = 0

	h := len(headers)
	binary.LittleEndian.PutUint64(dst[UUIDSize:], uint64(h))

	indexOff := UUIDSize + wordSize
	strOff := indexOff + wordSize*(2*h+1)

	for i, hdr := range headers {
		keyOff := strOff
		copy(dst[strOff:], hdr.Key)
		dst[strOff+len(hdr.Key)] = 0
		strOff += len(hdr.Key) + 1

		valOff := strOff
		copy(dst[strOff:], hdr.Value)
		dst[strOff+len(hdr.Value)] = 0
		strOff += len(hdr.Value) + 1

		entry := indexOff + wordSize*2*i
		binary.LittleEndian.PutUint64(dst[entry:], uint64(keyOff))
		binary.LittleEndian.PutUint64(dst[entry+wordSize:], uint64(valOff))
	}

	payloadOff := strOff
	binary.LittleEndian.PutUint64(dst[indexOff+wordSize*2*h:], uint64(payloadOff))
	copy(dst[payloadOff:], payload)

	return need, nil
}

// New serializes id/headers/payload into a freshly allocated buffer and
// wraps it as a Packet.
func New(id string, headers []Header, payload []byte) (*Packet, error) {
	buf := make([]byte, SerializedSize(headers, payload))
	if _, err := Serialize(id, headers, payload, buf); err != nil {
		return nil, err
	}
	return Open(buf)
}

// NewUUID mints a fresh random UUID string suitable as a packet ID.
func NewUUID() string { return uuid.NewString() }

// Packet is a zero-copy view over a serialized buffer: every accessor
// below returns a sub-slice of buf, never a copy.
type Packet struct {
	buf        []byte
	numHeaders int
	indexOff   int
	payloadOff int
}

// Open wraps an existing serialized buffer without copying it. The
// buffer must outlive the Packet.
func Open(buf []byte) (*Packet, error) {
	if len(buf) < UUIDSize+wordSize {
		return nil, a0err.InvalidArg
	}
	h := int(binary.LittleEndian.Uint64(buf[UUIDSize:]))
	indexOff := UUIDSize + wordSize
	need := indexOff + wordSize*(2*h+1)
	if len(buf) < need {
		return nil, a0err.InvalidArg
	}
	payloadOff := int(binary.LittleEndian.Uint64(buf[indexOff+wordSize*2*h:]))
	if payloadOff > len(buf) {
		return nil, a0err.InvalidArg
	}
	return &Packet{buf: buf, numHeaders: h, indexOff: indexOff, payloadOff: payloadOff}, nil
}

// Bytes returns the packet's underlying serialized buffer.
func (p *Packet) Bytes() []byte { return p.buf }

// ID returns the packet's UUID string, trimmed of its trailing NUL.
func (p *Packet) ID() string { return string(p.buf[:UUIDSize-1]) }

// NumHeaders is the packet's header count.
func (p *Packet) NumHeaders() int { return p.numHeaders }

// ContentSize is the combined byte length of the payload.
func (p *Packet) ContentSize() int { return len(p.buf) - p.payloadOff }

// SerialSize is the total serialized length of the packet.
func (p *Packet) SerialSize() int { return len(p.buf) }

func (p *Packet) headerBounds(i int) (keyStart, keyEnd, valStart, valEnd int) {
	entry := p.indexOff + wordSize*2*i
	keyStart = int(binary.LittleEndian.Uint64(p.buf[entry:]))
	valStart = int(binary.LittleEndian.Uint64(p.buf[entry+wordSize:]))
	// Each string ends one byte (its NUL) before the next offset in the
	// index; the last value ends just before the payload.
	keyEnd = valStart - 1
	if i+1 < p.numHeaders {
		valEnd = int(binary.LittleEndian.Uint64(p.buf[entry+2*wordSize:])) - 1
	} else {
		valEnd = p.payloadOff - 1
	}
	return
}

// HeaderAt returns the i'th header pair, 0-indexed in serialization
// order, using the offset index rather than strlen, per §3.
func (p *Packet) HeaderAt(i int) (Header, error) {
	if i < 0 || i >= p.numHeaders {
		return Header{}, a0err.Range
	}
	ks, ke, vs, ve := p.headerBounds(i)
	return Header{Key: string(p.buf[ks:ke]), Value: string(p.buf[vs:ve])}, nil
}

// Payload returns the packet's payload as a sub-slice of the underlying
// buffer.
func (p *Packet) Payload() []byte { return p.buf[p.payloadOff:] }

// HeaderIter walks every header in serialization order.
type HeaderIter struct {
	p *Packet
	i int
}

// Headers returns a fresh iterator over all of p's headers.
func (p *Packet) Headers() *HeaderIter { return &HeaderIter{p: p} }

// Next returns the next header pair, or a0err.IterDone once exhausted.
func (it *HeaderIter) Next() (Header, error) {
	if it.i >= it.p.numHeaders {
		return Header{}, a0err.IterDone
	}
	h, err := it.p.HeaderAt(it.i)
	it.i++
	return h, err
}

// MatchIter walks only the headers whose key equals a fixed string.
type MatchIter struct {
	p   *Packet
	key string
	i   int
}

// Match returns an iterator over headers whose key equals key.
func (p *Packet) Match(key string) *MatchIter { return &MatchIter{p: p, key: key} }

// Next returns the next matching header, or a0err.IterDone once
// exhausted.
func (it *MatchIter) Next() (Header, error) {
	for it.i < it.p.numHeaders {
		h, err := it.p.HeaderAt(it.i)
		it.i++
		if err != nil {
			return Header{}, err
		}
		if h.Key == it.key {
			return h, nil
		}
	}
	return Header{}, a0err.IterDone
}

// First returns the first header matching key, or a0err.NotFound.
func (p *Packet) First(key string) (Header, error) {
	it := p.Match(key)
	h, err := it.Next()
	if err == a0err.IterDone {
		return Header{}, a0err.NotFound
	}
	return h, err
}

// DeepCopy allocates a fresh buffer via alloc and copies this packet's
// bytes into it verbatim; since every accessor is offset-based rather
// than pointer-based, the copy needs no internal rebasing.
func (p *Packet) DeepCopy(alloc func(int) ([]byte, error)) (*Packet, error) {
	dst, err := alloc(len(p.buf))
	if err != nil {
		return nil, err
	}
	if len(dst) < len(p.buf) {
		return nil, a0err.InvalidArg
	}
	copy(dst, p.buf)
	return Open(dst[:len(p.buf)])
}

// HeaderList collects every header pair into a slice, in serialization
// order. Convenience for callers that don't need streaming iteration.
func (p *Packet) HeaderList() []Header {
	out := make([]Header, 0, p.numHeaders)
	it := p.Headers()
	for {
		h, err := it.Next()
		if err != nil {
			break
		}
		out = append(out, h)
	}
	return out
}
