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

// Package env resolves the environment-variable surface of AlephZero
// (§6): the shared-memory root, the caller's topic self-identifier, the
// per-kind topic path templates, and topic-name validation. It is the one
// legitimate place for process-wide mutable state: the snapshot is read
// once and cached, per the "global mutable state" design note.
package env

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alephzero-go/a0/a0err"
	units "github.com/docker/go-units"
)

const (
	defaultRoot       = "/dev/shm/alephzero"
	defaultDirMode    = 0755
	defaultArenaSize  = 16 * 1024 * 1024 // 16 MiB
	defaultTmplCfg    = "{topic}.cfg.a0"
	defaultTmplLog    = "{topic}.log.a0"
	defaultTmplPrpc   = "{topic}.prpc.a0"
	defaultTmplPubsub = "{topic}.pubsub.a0"
	defaultTmplRpc    = "{topic}.rpc.a0"
	defaultTmplDeadman = "{topic}.deadman"
)

// Snapshot is the cached, one-time read of the A0_* environment variables.
type Snapshot struct {
	Root       string
	Topic      string
	ArenaSize  int64
	TmplCfg    string
	TmplLog    string
	TmplPrpc   string
	TmplPubsub string
	TmplRpc    string
	TmplDeadman string
}

var (
	once     sync.Once
	snapshot Snapshot
)

// Get returns the process-wide environment snapshot, reading os.Getenv
// exactly once and caching the result for the lifetime of the process.
func Get() Snapshot {
	once.Do(func() {
		snapshot = Snapshot{
			Root:        getenvDefault("A0_ROOT", defaultRoot),
			Topic:       os.Getenv("A0_TOPIC"),
			ArenaSize:   getenvSize("A0_ARENA_SIZE", defaultArenaSize),
			TmplCfg:     getenvDefault("A0_TOPIC_TMPL_CFG", defaultTmplCfg),
			TmplLog:     getenvDefault("A0_TOPIC_TMPL_LOG", defaultTmplLog),
			TmplPrpc:    getenvDefault("A0_TOPIC_TMPL_PRPC", defaultTmplPrpc),
			TmplPubsub:  getenvDefault("A0_TOPIC_TMPL_PUBSUB", defaultTmplPubsub),
			TmplRpc:     getenvDefault("A0_TOPIC_TMPL_RPC", defaultTmplRpc),
			TmplDeadman: getenvDefault("A0_TOPIC_TMPL_DEADMAN", defaultTmplDeadman),
		}
	})
	return snapshot
}

// reset is test-only: it clears the cached snapshot so tests can exercise
// Get under different environments.
func reset() {
	once = sync.Once{}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvSize(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := units.RAMInBytes(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// ValidateTopic enforces the topic name rules: nonempty, must not start
// with '/'.
func ValidateTopic(topic string) error {
	if topic == "" || strings.HasPrefix(topic, "/") {
		return a0err.BadTopic
	}
	return nil
}

// Substitute performs the purely textual {topic} substitution into a
// template path.
func Substitute(tmpl, topic string) (string, error) {
	if err := ValidateTopic(topic); err != nil {
		return "", err
	}
	return strings.ReplaceAll(tmpl, "{topic}", topic), nil
}

// Resolve maps a logical path to an absolute filesystem path: if it does
// not start with '/', it is resolved relative to the configured root.
// Missing directories are created with the configured mode.
func Resolve(s Snapshot, path string) (string, error) {
	full := path
	if !strings.HasPrefix(path, "/") {
		full = filepath.Join(s.Root, path)
	}
	if err := os.MkdirAll(filepath.Dir(full), defaultDirMode); err != nil {
		return "", a0err.Sys("mkdir", err)
	}
	return full, nil
}

// TopicPath resolves a topic name through one of the §6 templates
// (e.g. s.TmplPubsub) into an absolute, directory-created filesystem path.
func TopicPath(s Snapshot, tmpl, topic string) (string, error) {
	rel, err := Substitute(tmpl, topic)
	if err != nil {
		return "", err
	}
	return Resolve(s, rel)
}
