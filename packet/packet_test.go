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

package packet

import (
	"testing"

	"github.com/alephzero-go/a0/a0err"
)

func TestRoundTripSerializeOpen(t *testing.T) {
	id := NewUUID()
	headers := []Header{
		{Key: "a0_time_mono", Value: "123"},
		{Key: "a0_writer_seq", Value: "0"},
	}
	payload := []byte("hello world")

	p, err := New(id, headers, payload)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if p.ID() != id {
		t.Fatalf("ID() = %q, want %q", p.ID(), id)
	}
	if p.NumHeaders() != len(headers) {
		t.Fatalf("NumHeaders() = %d, want %d", p.NumHeaders(), len(headers))
	}
	if string(p.Payload()) != string(payload) {
		t.Fatalf("Payload() = %q, want %q", p.Payload(), payload)
	}
	if p.SerialSize() != len(p.Bytes()) {
		t.Fatalf("SerialSize() = %d, want %d", p.SerialSize(), len(p.Bytes()))
	}

	for i, want := range headers {
		got, err := p.HeaderAt(i)
		if err != nil {
			t.Fatalf("HeaderAt(%d): %v", i, err)
		}
		if got != want {
			t.Fatalf("HeaderAt(%d) = %+v, want %+v", i, got, want)
		}
	}

	// Reopen from raw bytes, as a receiver on the other end of a frame would.
	reopened, err := Open(p.Bytes())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if reopened.ID() != id || string(reopened.Payload()) != string(payload) {
		t.Fatalf("reopened packet mismatch: id=%q payload=%q", reopened.ID(), reopened.Payload())
	}
}

func TestHeaderAtOutOfRange(t *testing.T) {
	p, err := New(NewUUID(), nil, []byte("x"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.HeaderAt(0); err != a0err.Range {
		t.Fatalf("HeaderAt(0) on a header-less packet = %v, want a0err.Range", err)
	}
}

func TestHeadersIterExhausts(t *testing.T) {
	headers := []Header{{Key: "k1", Value: "v1"}, {Key: "k2", Value: "v2"}}
	p, err := New(NewUUID(), headers, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	it := p.Headers()
	for i := range headers {
		h, err := it.Next()
		if err != nil {
			t.Fatalf("Next() at %d: %v", i, err)
		}
		if h != headers[i] {
			t.Fatalf("Next() at %d = %+v, want %+v", i, h, headers[i])
		}
	}
	if _, err := it.Next(); err != a0err.IterDone {
		t.Fatalf("Next() past the end = %v, want a0err.IterDone", err)
	}
}

func TestMatchIterAndFirst(t *testing.T) {
	headers := []Header{
		{Key: "tag", Value: "one"},
		{Key: "other", Value: "ignored"},
		{Key: "tag", Value: "two"},
	}
	p, err := New(NewUUID(), headers, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	it := p.Match("tag")
	h1, err := it.Next()
	if err != nil || h1.Value != "one" {
		t.Fatalf("first match = %+v, %v, want one", h1, err)
	}
	h2, err := it.Next()
	if err != nil || h2.Value != "two" {
		t.Fatalf("second match = %+v, %v, want two", h2, err)
	}
	if _, err := it.Next(); err != a0err.IterDone {
		t.Fatalf("Next() past last match = %v, want a0err.IterDone", err)
	}

	first, err := p.First("tag")
	if err != nil || first.Value != "one" {
		t.Fatalf("First(tag) = %+v, %v, want one", first, err)
	}
	if _, err := p.First("missing"); err != a0err.NotFound {
		t.Fatalf("First(missing) = %v, want a0err.NotFound", err)
	}
}

func TestHeaderListCollectsAll(t *testing.T) {
	headers := []Header{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}
	p, err := New(NewUUID(), headers, []byte("p"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := p.HeaderList()
	if len(got) != len(headers) {
		t.Fatalf("HeaderList() len = %d, want %d", len(got), len(headers))
	}
	for i := range headers {
		if got[i] != headers[i] {
			t.Fatalf("HeaderList()[%d] = %+v, want %+v", i, got[i], headers[i])
		}
	}
}

func TestDeepCopyIsIndependent(t *testing.T) {
	p, err := New(NewUUID(), []Header{{Key: "k", Value: "v"}}, []byte("payload"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var allocated []byte
	cp, err := p.DeepCopy(func(n int) ([]byte, error) {
		allocated = make([]byte, n)
		return allocated, nil
	})
	if err != nil {
		t.Fatalf("DeepCopy: %v", err)
	}
	if cp.ID() != p.ID() || string(cp.Payload()) != string(p.Payload()) {
		t.Fatalf("copy mismatch: id=%q payload=%q", cp.ID(), cp.Payload())
	}

	// Mutating the original's backing buffer must not affect the copy.
	p.Bytes()[0] = 'z'
	if cp.ID()[0] == 'z' {
		t.Fatalf("DeepCopy shares backing storage with the original")
	}
}

func TestOpenRejectsTruncatedBuffer(t *testing.T) {
	p, err := New(NewUUID(), []Header{{Key: "k", Value: "v"}}, []byte("payload"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// The payload carries no length of its own, so a cut inside it cannot
	// be detected; cut into the header strings instead, which leaves the
	// stored payload offset pointing past the end of the buffer.
	truncated := p.Bytes()[:len(p.Bytes())-len("payload")-1]
	if _, err := Open(truncated); err == nil {
		t.Fatalf("Open on a truncated buffer should fail")
	}
}

func TestSerializeRejectsUndersizedDst(t *testing.T) {
	headers := []Header{{Key: "k", Value: "v"}}
	payload := []byte("payload")
	need := SerializedSize(headers, payload)
	dst := make([]byte, need-1)
	if _, err := Serialize(NewUUID(), headers, payload, dst); err != a0err.InvalidArg {
		t.Fatalf("Serialize into undersized dst = %v, want a0err.InvalidArg", err)
	}
}
