package state

import (
	"time"

	"github.com/google/uuid"
)

// Clock stamps new local operations.
type Clock interface {
	NowMillis() int64
	NewID() string
}

// SystemClock uses wall time and random UUIDs.
type SystemClock struct{}

func (SystemClock) NowMillis() int64 { return time.Now().UnixMilli() }

func (SystemClock) NewID() string { return uuid.NewString() }

// Stamp fills in the id, author and timestamp of a locally created operation.
// An id that is already set is kept.
func Stamp(op Operation, clock Clock, userID string) Operation {
	m := Meta{ID: MetaOf(op).ID, UserID: userID, Timestamp: clock.NowMillis()}
	if m.ID == "" {
		m.ID = clock.NewID()
	}
	switch o := op.(type) {
	case *Draw:
		o.Meta = m
	case *Text:
		o.Meta = m
	case *Erase:
		o.Meta = m
	case *Clear:
		o.Meta = m
	}
	return op
}
