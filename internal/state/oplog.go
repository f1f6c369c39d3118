package state

import (
	"log/slog"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// Log is the ordered operation history of one whiteboard.
// Rendering order is insertion order, never timestamp order.
type Log struct {
	mu      sync.RWMutex
	entries []Operation
	ids     mapset.Set[string] // ids currently in entries
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{ids: mapset.NewThreadUnsafeSet[string]()}
}

// Apply folds op into the log and reports whether the log changed.
// Re-applying an id that is already present is a no-op. Operations without
// an id are never deduplicated.
func (l *Log) Apply(op Operation) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.apply(op)
}

func (l *Log) apply(op Operation) bool {
	if op == nil {
		return false
	}
	id := MetaOf(op).ID
	if id != "" && l.ids.Contains(id) {
		slog.Debug("duplicate operation ignored", "component", "oplog", "id", id)
		return false
	}

	switch o := op.(type) {
	case *Clear:
		l.entries = []Operation{o}
		l.ids = mapset.NewThreadUnsafeSet[string]()
		l.track(id)
		return true

	case *Erase:
		targets := mapset.NewThreadUnsafeSet(o.TargetIDs...)
		kept := l.entries[:0]
		for _, e := range l.entries {
			eid := MetaOf(e).ID
			if targets.Contains(eid) && e.Kind() != OpErase && e.Kind() != OpClear {
				l.ids.Remove(eid)
				continue
			}
			kept = append(kept, e)
		}
		l.entries = append(kept, o)
		l.track(id)
		return true

	default:
		l.entries = append(l.entries, op)
		l.track(id)
		return true
	}
}

func (l *Log) track(id string) {
	if id != "" {
		l.ids.Add(id)
	}
}

// Reset replaces the log with ops, folding them in order.
func (l *Log) Reset(ops []Operation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.ids = mapset.NewThreadUnsafeSet[string]()
	for _, op := range ops {
		l.apply(op)
	}
}

// Visible returns the drawn operations (Draw and Text) in render order.
func (l *Log) Visible() []Operation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Operation, 0, len(l.entries))
	for _, e := range l.entries {
		switch e.Kind() {
		case OpDraw, OpText:
			out = append(out, e)
		}
	}
	return out
}

// Operations returns a copy of the raw log, erase and clear markers included.
func (l *Log) Operations() []Operation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Operation, len(l.entries))
	copy(out, l.entries)
	return out
}

// Contains reports whether an operation with the given id is in the log.
func (l *Log) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ids.Contains(id)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
