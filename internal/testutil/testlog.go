package testlog

import (
	"sync"

	"courier-dispatch/internal/logx"
)

// Entry is one recorded log call.
type Entry struct {
	Level  string
	Msg    string
	Fields []logx.Field
}

// Field returns the value of key in e, or nil.
func (e Entry) Field(key string) any {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

// Recorder is a logx sink for assertions. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func New() *Recorder { return &Recorder{} }

// Logger returns a logx.Logger writing into r.
func (r *Recorder) Logger() logx.Logger {
	return sink{r: r}
}

// Entries returns a snapshot of everything logged so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Has reports whether an entry with msg was recorded.
func (r *Recorder) Has(msg string) bool {
	for _, e := range r.Entries() {
		if e.Msg == msg {
			return true
		}
	}
	return false
}

// Events returns the "event" field of every entry that carries one, in order.
func (r *Recorder) Events() []string {
	var out []string
	for _, e := range r.Entries() {
		if ev, ok := e.Field("event").(string); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Recorder) record(level, msg string, base, fields []logx.Field) {
	all := make([]logx.Field, 0, len(base)+len(fields))
	all = append(all, base...)
	all = append(all, fields...)

	r.mu.Lock()
	r.entries = append(r.entries, Entry{Level: level, Msg: msg, Fields: all})
	r.mu.Unlock()
}

type sink struct {
	r    *Recorder
	base []logx.Field
}

var _ logx.Logger = sink{}

func (s sink) Debug(msg string, f ...logx.Field) { s.r.record("debug", msg, s.base, f) }
func (s sink) Info(msg string, f ...logx.Field)  { s.r.record("info", msg, s.base, f) }
func (s sink) Warn(msg string, f ...logx.Field)  { s.r.record("warn", msg, s.base, f) }
func (s sink) Error(msg string, f ...logx.Field) { s.r.record("error", msg, s.base, f) }

func (s sink) With(f ...logx.Field) logx.Logger {
	base := make([]logx.Field, 0, len(s.base)+len(f))
	base = append(base, s.base...)
	return sink{r: s.r, base: append(base, f...)}
}

func (s sink) Sync() error { return nil }
