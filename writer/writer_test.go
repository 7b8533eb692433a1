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
	"testing"

	"github.com/alephzero-go/a0/arena"
	"github.com/alephzero-go/a0/packet"
	"github.com/alephzero-go/a0/transport"
)

func newTestTransport(t *testing.T) *transport.Transport {
	t.Helper()
	a, err := arena.Anonymous(1 << 16)
	if err != nil {
		t.Fatalf("arena.Anonymous: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	tr, err := transport.Open(a)
	if err != nil {
		t.Fatalf("transport.Open: %v", err)
	}
	return tr
}

func lastFramePacket(t *testing.T, tr *transport.Transport) *packet.Packet {
	t.Helper()
	lk, err := tr.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer lk.Unlock()
	it := lk.Iterator()
	if err := it.JumpTail(); err != nil {
		t.Fatalf("JumpTail: %v", err)
	}
	fv, err := it.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	pkt, err := packet.Open(fv.Data)
	if err != nil {
		t.Fatalf("packet.Open: %v", err)
	}
	return pkt
}

// TestS5StandardHeaders follows the literal S5 scenario: the first
// packet written through AddStandardHeaders carries a0_writer_seq="0",
// the second carries "1", and both carry a stable a0_writer_id.
func TestS5StandardHeaders(t *testing.T) {
	tr := newTestTransport(t)
	w := AddStandardHeaders(tr)
	defer w.Close()

	p1, err := packet.New(packet.NewUUID(), nil, []byte("first"))
	if err != nil {
		t.Fatalf("packet.New: %v", err)
	}
	if err := w.Write(p1); err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	p2, err := packet.New(packet.NewUUID(), nil, []byte("second"))
	if err != nil {
		t.Fatalf("packet.New: %v", err)
	}
	if err := w.Write(p2); err != nil {
		t.Fatalf("Write 2: %v", err)
	}

	lk, err := tr.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	it := lk.Iterator()
	if err := it.JumpHead(); err != nil {
		t.Fatalf("JumpHead: %v", err)
	}
	fv, err := it.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	first, err := packet.Open(fv.Data)
	if err != nil {
		t.Fatalf("packet.Open: %v", err)
	}
	seq0, err := first.First("a0_writer_seq")
	if err != nil || seq0.Value != "0" {
		t.Fatalf("first packet a0_writer_seq = %+v, %v, want 0", seq0, err)
	}
	if err := it.StepNext(); err != nil {
		t.Fatalf("StepNext: %v", err)
	}
	fv2, err := it.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	lk.Unlock()

	second, err := packet.Open(fv2.Data)
	if err != nil {
		t.Fatalf("packet.Open: %v", err)
	}
	seq1, err := second.First("a0_writer_seq")
	if err != nil || seq1.Value != "1" {
		t.Fatalf("second packet a0_writer_seq = %+v, %v, want 1", seq1, err)
	}

	id1, err := first.First("a0_writer_id")
	if err != nil {
		t.Fatalf("a0_writer_id on first packet: %v", err)
	}
	id2, err := second.First("a0_writer_id")
	if err != nil {
		t.Fatalf("a0_writer_id on second packet: %v", err)
	}
	if id1.Value != id2.Value {
		t.Fatalf("a0_writer_id changed between packets: %q vs %q", id1.Value, id2.Value)
	}

	for _, key := range []string{"a0_time_mono", "a0_time_wall", "a0_transport_seq"} {
		if _, err := first.First(key); err != nil {
			t.Fatalf("missing header %q on first packet: %v", key, err)
		}
	}
}

func TestWriteIfEmptySkipsWhenNonEmpty(t *testing.T) {
	tr := newTestTransport(t)

	var wrote1, wrote2 bool
	term := NewTerminal(tr)
	w1 := WrapLocked(WriteIfEmpty(&wrote1), tr, term)
	w2 := WrapLocked(WriteIfEmpty(&wrote2), tr, term)

	p1, _ := packet.New(packet.NewUUID(), nil, []byte("a"))
	if err := w1.Write(p1); err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	if !wrote1 {
		t.Fatalf("write_if_empty should have written to an empty transport")
	}

	p2, _ := packet.New(packet.NewUUID(), nil, []byte("b"))
	if err := w2.Write(p2); err != nil {
		t.Fatalf("Write 2: %v", err)
	}
	if wrote2 {
		t.Fatalf("write_if_empty should have skipped a non-empty transport")
	}

	pkt := lastFramePacket(t, tr)
	if string(pkt.Payload()) != "a" {
		t.Fatalf("transport holds %q, want the first write unmodified", pkt.Payload())
	}
}

func TestJSONMergePatchMergesFields(t *testing.T) {
	tr := newTestTransport(t)
	term := NewTerminal(tr)
	w := WrapLocked(JSONMergePatch(), tr, term)

	p1, _ := packet.New(packet.NewUUID(), nil, []byte(`{"a":1,"b":{"x":1}}`))
	if err := w.Write(p1); err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	p2, _ := packet.New(packet.NewUUID(), nil, []byte(`{"b":{"y":2},"a":null}`))
	if err := w.Write(p2); err != nil {
		t.Fatalf("Write 2: %v", err)
	}

	pkt := lastFramePacket(t, tr)
	got := string(pkt.Payload())
	want1 := `{"b":{"x":1,"y":2}}`
	want2 := `{"b":{"y":2,"x":1}}`
	if got != want1 && got != want2 {
		t.Fatalf("merged payload = %q, want a permutation of %q", got, want1)
	}
}

func TestCloseOrderIsOutermostFirst(t *testing.T) {
	tr := newTestTransport(t)
	var order []string
	w := Wrap(recordingMiddleware{name: "outer", order: &order}, Wrap(recordingMiddleware{name: "inner", order: &order}, NewTerminal(tr)))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Fatalf("close order = %v, want [outer inner]", order)
	}
}

type recordingMiddleware struct {
	baseMiddleware
	name  string
	order *[]string
}

func (m recordingMiddleware) Close() error {
	*m.order = append(*m.order, m.name)
	return nil
}
