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

// Command a0cat is a downstream debug REPL for inspecting a topic's
// pubsub log: dump existing frames, tail new ones, or print transport
// stats, without the caller needing to write any Go.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/alephzero-go/a0/arena"
	"github.com/alephzero-go/a0/env"
	"github.com/alephzero-go/a0/packet"
	"github.com/alephzero-go/a0/reader"
	"github.com/alephzero-go/a0/transport"
	"github.com/chzyer/readline"
)

func main() {
	topic := flag.String("topic", "", "topic name (required)")
	flag.Parse()
	if *topic == "" {
		fmt.Fprintln(os.Stderr, "usage: a0cat -topic=<name>")
		os.Exit(2)
	}

	s := env.Get()
	a, err := env.OpenArena(s, s.TmplPubsub, *topic, arena.Shared)
	if err != nil {
		log.Fatalf("a0cat: open arena: %v", err)
	}
	defer a.Close()

	t, err := transport.Open(a)
	if err != nil {
		log.Fatalf("a0cat: open transport: %v", err)
	}

	rl, err := readline.New(fmt.Sprintf("a0cat(%s)> ", *topic))
	if err != nil {
		log.Fatalf("a0cat: %v", err)
	}
	defer rl.Close()

	fmt.Fprintln(os.Stderr, "commands: dump | tail | stat | quit")
	repl(rl, t)
}

func repl(rl *readline.Instance, t *transport.Transport) {
	for {
		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return
		}
		if err != nil {
			log.Printf("a0cat: %v", err)
			return
		}
		switch strings.TrimSpace(line) {
		case "dump":
			cmdDump(t)
		case "tail":
			cmdTail(t)
		case "stat":
			cmdStat(t)
		case "quit", "exit":
			return
		case "":
		default:
			fmt.Fprintln(os.Stderr, "unknown command")
		}
	}
}

func cmdDump(t *transport.Transport) {
	r, err := reader.NewSync(t, reader.Oldest, reader.Next)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	for {
		ok, err := r.HasNext()
		if err != nil || !ok {
			return
		}
		buf, err := r.Next()
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return
		}
		printFrame(buf)
	}
}

func cmdTail(t *transport.Transport) {
	r, err := reader.NewSync(t, reader.AwaitNew, reader.Next)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	fmt.Fprintln(os.Stderr, "tailing, press Ctrl-C to stop")
	for {
		buf, err := r.NextBlocking(time.Now().Add(24 * time.Hour))
		if err != nil {
			return
		}
		printFrame(buf)
	}
}

func printFrame(buf []byte) {
	pkt, err := packet.Open(buf)
	if err != nil {
		fmt.Printf("<malformed frame: %v>\n", err)
		return
	}
	fmt.Printf("id=%s payload=%q\n", pkt.ID(), pkt.Payload())
	for _, h := range pkt.HeaderList() {
		fmt.Printf("  %s: %s\n", h.Key, h.Value)
	}
}

func cmdStat(t *transport.Transport) {
	lk, err := t.Lock()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	defer lk.Unlock()
	fmt.Printf("empty=%v seq_low=%d seq_high=%d\n", lk.Empty(), lk.SeqLow(), lk.SeqHigh())
}
