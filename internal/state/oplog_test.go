package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draw(id string) *Draw {
	return &Draw{
		Meta:        Meta{ID: id, UserID: "u1", Timestamp: 1},
		Points:      []Point{{X: 1, Y: 2}, {X: 3, Y: 4}},
		Color:       0xFFE53935,
		StrokeWidth: 5,
	}
}

func text(id string) *Text {
	return &Text{Meta: Meta{ID: id, UserID: "u1"}, Text: "hi", Position: Point{X: 10, Y: 20}, FontSize: 16, Color: DefaultColor}
}

func visibleIDs(l *Log) []string {
	var ids []string
	for _, op := range l.Visible() {
		ids = append(ids, MetaOf(op).ID)
	}
	return ids
}

func TestApplyIsIdempotent(t *testing.T) {
	once := NewLog()
	once.Apply(draw("a"))
	once.Apply(text("b"))

	twice := NewLog()
	assert.True(t, twice.Apply(draw("a")))
	assert.False(t, twice.Apply(draw("a")))
	assert.True(t, twice.Apply(text("b")))
	assert.False(t, twice.Apply(text("b")))

	assert.Equal(t, once.Visible(), twice.Visible())
	assert.Equal(t, 2, twice.Len())
}

func TestEraseRemovesOnlyTargets(t *testing.T) {
	l := NewLog()
	for _, id := range []string{"a", "b", "c", "d"} {
		l.Apply(draw(id))
	}

	changed := l.Apply(&Erase{Meta: Meta{ID: "e1"}, TargetIDs: []string{"b", "d", "missing"}})
	require.True(t, changed)

	assert.Equal(t, []string{"a", "c"}, visibleIDs(l))
	// The erase marker stays in the raw log but is never rendered.
	ops := l.Operations()
	require.Len(t, ops, 3)
	assert.Equal(t, OpErase, ops[2].Kind())
	assert.True(t, l.Contains("e1"))
	assert.False(t, l.Contains("b"))
}

func TestEraseOfUnseenIDIsNotRetroactive(t *testing.T) {
	l := NewLog()
	l.Apply(&Erase{Meta: Meta{ID: "e1"}, TargetIDs: []string{"late"}})
	l.Apply(draw("late"))

	assert.Equal(t, []string{"late"}, visibleIDs(l))
}

func TestEraseAppliedTwice(t *testing.T) {
	l := NewLog()
	l.Apply(draw("a"))
	er := &Erase{Meta: Meta{ID: "e1"}, TargetIDs: []string{"a"}}
	assert.True(t, l.Apply(er))
	assert.False(t, l.Apply(er))
	assert.Equal(t, 1, l.Len())
}

func TestClearEmptiesVisibleSet(t *testing.T) {
	l := NewLog()
	for _, id := range []string{"a", "b", "c"} {
		l.Apply(draw(id))
	}
	l.Apply(text("t"))

	l.Apply(&Clear{Meta: Meta{ID: "clr"}})

	assert.Empty(t, l.Visible())
	ops := l.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, OpClear, ops[0].Kind())

	l.Apply(draw("after"))
	assert.Equal(t, []string{"after"}, visibleIDs(l))
}

func TestClearAppliedTwiceKeepsLaterOperations(t *testing.T) {
	l := NewLog()
	clr := &Clear{Meta: Meta{ID: "c1"}}
	assert.True(t, l.Apply(clr))
	l.Apply(draw("d1"))

	assert.False(t, l.Apply(clr))
	assert.Equal(t, []string{"d1"}, visibleIDs(l))
	assert.Equal(t, 2, l.Len())
}

func TestOperationsWithoutIDAreKept(t *testing.T) {
	l := NewLog()
	assert.True(t, l.Apply(draw("")))
	assert.True(t, l.Apply(text("")))
	assert.True(t, l.Apply(draw("")))

	assert.Len(t, l.Visible(), 3)
	assert.False(t, l.Contains(""))
}

func TestRenderOrderIsInsertionOrder(t *testing.T) {
	l := NewLog()
	late := draw("late")
	late.Timestamp = 100
	early := draw("early")
	early.Timestamp = 1

	l.Apply(late)
	l.Apply(early)

	assert.Equal(t, []string{"late", "early"}, visibleIDs(l))
}

func TestReset(t *testing.T) {
	l := NewLog()
	l.Apply(draw("old"))

	l.Reset([]Operation{draw("a"), draw("b"), &Erase{Meta: Meta{ID: "e"}, TargetIDs: []string{"a"}}})

	assert.Equal(t, []string{"b"}, visibleIDs(l))
	assert.False(t, l.Contains("old"))
}

func TestApplyNil(t *testing.T) {
	l := NewLog()
	assert.False(t, l.Apply(nil))
	assert.Zero(t, l.Len())
}
