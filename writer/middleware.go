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

package writer

import (
	"bytes"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/alephzero-go/a0/a0err"
	"github.com/alephzero-go/a0/packet"
	"github.com/alephzero-go/a0/transport"
	"github.com/pierrec/lz4/v4"
)

func withHeader(pkt *packet.Packet, key, value string) (*packet.Packet, error) {
	headers := append(pkt.HeaderList(), packet.Header{Key: key, Value: value})
	return packet.New(pkt.ID(), headers, pkt.Payload())
}

// monoEpoch is an arbitrary fixed point time.Now()'s monotonic reading
// is measured against; only deltas between readings are meaningful, and
// add_time_mono_header only needs a never-decreasing counter.
var monoEpoch = time.Now()

// timeMonoHeader implements add_time_mono_header: a monotonic,
// never-decreasing nanosecond counter.
type timeMonoHeader struct{ baseMiddleware }

// AddTimeMonoHeader inserts header a0_time_mono.
func AddTimeMonoHeader() Middleware { return timeMonoHeader{} }

func (timeMonoHeader) Process(pkt *packet.Packet, chain Writer) error {
	out, err := withHeader(pkt, "a0_time_mono", strconv.FormatInt(int64(time.Since(monoEpoch)), 10))
	if err != nil {
		return err
	}
	return chain.Write(out)
}

func (timeMonoHeader) ProcessLocked(lk *transport.Lock, pkt *packet.Packet, chain Writer) error {
	out, err := withHeader(pkt, "a0_time_mono", strconv.FormatInt(int64(time.Since(monoEpoch)), 10))
	if err != nil {
		return err
	}
	return chain.WriteLocked(lk, out)
}

// timeWallHeader implements add_time_wall_header.
type timeWallHeader struct{ baseMiddleware }

// AddTimeWallHeader inserts header a0_time_wall, an RFC-3339
// nanosecond-precision UTC timestamp.
func AddTimeWallHeader() Middleware { return timeWallHeader{} }

func (timeWallHeader) Process(pkt *packet.Packet, chain Writer) error {
	out, err := withHeader(pkt, "a0_time_wall", time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	return chain.Write(out)
}

func (timeWallHeader) ProcessLocked(lk *transport.Lock, pkt *packet.Packet, chain Writer) error {
	out, err := withHeader(pkt, "a0_time_wall", time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	return chain.WriteLocked(lk, out)
}

// writerIDHeader implements add_writer_id_header.
type writerIDHeader struct {
	baseMiddleware
	id string
}

// AddWriterIDHeader inserts header a0_writer_id with a UUID minted once
// at construction and reused for every packet this writer sends.
func AddWriterIDHeader() Middleware { return writerIDHeader{id: packet.NewUUID()} }

func (m writerIDHeader) Process(pkt *packet.Packet, chain Writer) error {
	out, err := withHeader(pkt, "a0_writer_id", m.id)
	if err != nil {
		return err
	}
	return chain.Write(out)
}

func (m writerIDHeader) ProcessLocked(lk *transport.Lock, pkt *packet.Packet, chain Writer) error {
	out, err := withHeader(pkt, "a0_writer_id", m.id)
	if err != nil {
		return err
	}
	return chain.WriteLocked(lk, out)
}

// writerSeqHeader implements add_writer_seq_header.
type writerSeqHeader struct {
	baseMiddleware
	seq *int64
}

// AddWriterSeqHeader inserts header a0_writer_seq, a 0-based counter of
// packets written through this middleware.
func AddWriterSeqHeader() Middleware {
	var seq int64 = -1
	return writerSeqHeader{seq: &seq}
}

func (m writerSeqHeader) Process(pkt *packet.Packet, chain Writer) error {
	n := atomic.AddInt64(m.seq, 1)
	out, err := withHeader(pkt, "a0_writer_seq", strconv.FormatInt(n, 10))
	if err != nil {
		return err
	}
	return chain.Write(out)
}

func (m writerSeqHeader) ProcessLocked(lk *transport.Lock, pkt *packet.Packet, chain Writer) error {
	n := atomic.AddInt64(m.seq, 1)
	out, err := withHeader(pkt, "a0_writer_seq", strconv.FormatInt(n, 10))
	if err != nil {
		return err
	}
	return chain.WriteLocked(lk, out)
}

// transportSeqHeader implements add_transport_seq_header. It must run
// under the transport lock, since the value it reads is working_state.
type transportSeqHeader struct{}

// AddTransportSeqHeader inserts header a0_transport_seq =
// working_state.seq_high + 1, the sequence the next commit will use.
func AddTransportSeqHeader() Middleware { return transportSeqHeader{} }

func (transportSeqHeader) Close() error { return nil }

func (transportSeqHeader) Process(pkt *packet.Packet, chain Writer) error {
	return a0err.Custom("writer: add_transport_seq_header requires a locked chain")
}

func (transportSeqHeader) ProcessLocked(lk *transport.Lock, pkt *packet.Packet, chain Writer) error {
	out, err := withHeader(pkt, "a0_transport_seq", strconv.FormatUint(lk.SeqHigh()+1, 10))
	if err != nil {
		return err
	}
	return chain.WriteLocked(lk, out)
}

// AddStandardHeaders composes all four unlocked standard-header stages
// plus add_transport_seq_header, in the order given in §4.G, wrapping
// terminal t.
func AddStandardHeaders(t *transport.Transport) Writer {
	var w Writer = NewTerminal(t)
	w = WrapLocked(AddTransportSeqHeader(), t, w)
	w = Wrap(AddWriterSeqHeader(), w)
	w = Wrap(AddWriterIDHeader(), w)
	w = Wrap(AddTimeWallHeader(), w)
	w = Wrap(AddTimeMonoHeader(), w)
	return w
}

// writeIfEmpty implements write_if_empty: the write proceeds only if
// the transport currently holds no frame.
type writeIfEmpty struct {
	wrote *bool
}

// WriteIfEmpty skips the write (without error) unless the transport is
// currently empty, recording into *out whether a write happened.
func WriteIfEmpty(out *bool) Middleware { return writeIfEmpty{wrote: out} }

func (writeIfEmpty) Close() error { return nil }

func (m writeIfEmpty) Process(pkt *packet.Packet, chain Writer) error {
	return a0err.Custom("writer: write_if_empty requires a locked chain")
}

func (m writeIfEmpty) ProcessLocked(lk *transport.Lock, pkt *packet.Packet, chain Writer) error {
	if !lk.Empty() {
		if m.wrote != nil {
			*m.wrote = false
		}
		return nil
	}
	if m.wrote != nil {
		*m.wrote = true
	}
	return chain.WriteLocked(lk, pkt)
}

// jsonMergePatch implements json_mergepatch: the newest frame's payload
// is parsed as JSON, merge-patched with the incoming payload (RFC 7396
// semantics: objects merge key-by-key, null deletes, anything else
// replaces), and the result becomes the new payload.
type jsonMergePatch struct{}

// JSONMergePatch wraps the JSON merge-patch middleware.
func JSONMergePatch() Middleware { return jsonMergePatch{} }

func (jsonMergePatch) Close() error { return nil }

func (jsonMergePatch) Process(pkt *packet.Packet, chain Writer) error {
	return a0err.Custom("writer: json_mergepatch requires a locked chain")
}

func (jsonMergePatch) ProcessLocked(lk *transport.Lock, pkt *packet.Packet, chain Writer) error {
	merged := map[string]interface{}{}
	if !lk.Empty() {
		it := lk.Iterator()
		if err := it.JumpTail(); err != nil {
			return err
		}
		fv, err := it.Frame()
		if err != nil {
			return err
		}
		prev, err := packet.Open(fv.Data)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(prev.Payload(), &merged); err != nil {
			return err
		}
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(pkt.Payload(), &patch); err != nil {
		return err
	}
	mergeInto(merged, patch)

	out, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	np, err := packet.New(pkt.ID(), pkt.HeaderList(), out)
	if err != nil {
		return err
	}
	return chain.WriteLocked(lk, np)
}

func mergeInto(dst, patch map[string]interface{}) {
	for k, v := range patch {
		if v == nil {
			delete(dst, k)
			continue
		}
		if sub, ok := v.(map[string]interface{}); ok {
			existing, _ := dst[k].(map[string]interface{})
			if existing == nil {
				existing = map[string]interface{}{}
			}
			mergeInto(existing, sub)
			dst[k] = existing
			continue
		}
		dst[k] = v
	}
}

// compressPayload is an additive, spec-compatible middleware (not named
// in §4.G) that LZ4-frames the payload before standard headers are
// added; harmless to omit on read since the frame decodes to whatever
// bytes were written, compressed or not.
type compressPayload struct{ baseMiddleware }

// CompressPayload forwards a new packet with the same ID and headers whose
// payload is the LZ4-compressed original payload.
func CompressPayload() Middleware { return compressPayload{} }

func (compressPayload) Process(pkt *packet.Packet, chain Writer) error {
	out, err := compressedPacket(pkt)
	if err != nil {
		return err
	}
	return chain.Write(out)
}

func (compressPayload) ProcessLocked(lk *transport.Lock, pkt *packet.Packet, chain Writer) error {
	out, err := compressedPacket(pkt)
	if err != nil {
		return err
	}
	return chain.WriteLocked(lk, out)
}

func compressedPacket(pkt *packet.Packet) (*packet.Packet, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(pkt.Payload()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return packet.New(pkt.ID(), pkt.HeaderList(), buf.Bytes())
}
