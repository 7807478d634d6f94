package sync

import (
	"encoding/json"
	stdsync "sync"
	"time"
)

// Level is the severity of an Event.
type Level string

const (
	LevelLog   Level = "log"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Fields are the contextual fields of an Event.
type Fields map[string]any

// Event is one telemetry record. It encodes flat:
// {"run":..., "lvl":..., "msg":..., "ts":..., <fields>}.
type Event struct {
	Run    string
	Level  Level
	Msg    string
	Fields Fields
	Time   time.Time
}

// MarshalJSON flattens Fields next to the core keys. Fields never override
// run, lvl, msg or ts.
func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+4)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["run"] = e.Run
	m["lvl"] = e.Level
	m["msg"] = e.Msg
	if !e.Time.IsZero() {
		m["ts"] = e.Time.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(m)
}

// emitter delivers events to the sink. Safe for concurrent use; the
// heartbeat emits from its own goroutine.
type emitter struct {
	mu   stdsync.Mutex
	run  string
	sink func(Event)
	now  func() time.Time
}

func (e *emitter) emit(lvl Level, msg string, fields Fields) {
	if e.sink == nil {
		return
	}
	ev := Event{Run: e.run, Level: lvl, Msg: msg, Fields: fields, Time: e.now()}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink(ev)
}
