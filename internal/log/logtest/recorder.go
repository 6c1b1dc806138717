// Package logtest provides a log.Logger that records lines for assertions.
package logtest

import (
	"fmt"
	"strings"
	"sync"

	appLog "slawindow/internal/log"
)

type Entry struct {
	Level appLog.Level
	Msg   string
	Err   error
	KV    []any
}

// Recorder implements log.Logger and keeps every entry in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

var _ appLog.Logger = (*Recorder)(nil)

func (r *Recorder) record(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *Recorder) Debug(msg string, kv ...any) {
	r.record(Entry{Level: appLog.LevelDebug, Msg: msg, KV: kv})
}

func (r *Recorder) Info(msg string, kv ...any) {
	r.record(Entry{Level: appLog.LevelInfo, Msg: msg, KV: kv})
}

func (r *Recorder) Warn(msg string, kv ...any) {
	r.record(Entry{Level: appLog.LevelWarn, Msg: msg, KV: kv})
}

func (r *Recorder) Error(msg string, err error, kv ...any) {
	r.record(Entry{Level: appLog.LevelError, Msg: msg, Err: err, KV: kv})
}

func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Messages returns every entry rendered as "msg k=v ...".
func (r *Recorder) Messages() []string {
	entries := r.Entries()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		var b strings.Builder
		b.WriteString(e.Msg)
		for i := 0; i+1 < len(e.KV); i += 2 {
			fmt.Fprintf(&b, " %v=%v", e.KV[i], e.KV[i+1])
		}
		out = append(out, b.String())
	}
	return out
}

// Contains reports whether any rendered message contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, m := range r.Messages() {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}
