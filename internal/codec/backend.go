package codec

import (
	"log/slog"

	"StudyBoard/internal/state"
)

// WireOperation is the backend-sync encoding of one operation.
type WireOperation struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
	UserID    string         `json:"user_id"`
}

// EncodeBackend renders op with typed fields: numbers stay numbers, points
// are {x,y} objects and target ids a JSON array.
func EncodeBackend(op state.Operation) WireOperation {
	m := state.MetaOf(op)
	data := map[string]any{keyID: m.ID}

	switch o := op.(type) {
	case *state.Draw:
		pts := make([]any, len(o.Points))
		for i, p := range o.Points {
			pts[i] = map[string]any{keyX: wideFloat(p.X), keyY: wideFloat(p.Y)}
		}
		data[keyPoints] = pts
		data[keyColor] = int64(int32(o.Color))
		data[keyStrokeWidth] = wideFloat(o.StrokeWidth)
	case *state.Text:
		data[keyText] = o.Text
		data[keyPosition] = map[string]any{keyX: wideFloat(o.Position.X), keyY: wideFloat(o.Position.Y)}
		data[keyFontSize] = wideFloat(o.FontSize)
		data[keyColor] = int64(int32(o.Color))
	case *state.Erase:
		ids := make([]any, len(o.TargetIDs))
		for i, id := range o.TargetIDs {
			ids[i] = id
		}
		data[keyTargetIDs] = ids
	}

	return WireOperation{
		Type:      string(op.Kind()),
		Data:      data,
		Timestamp: m.Timestamp,
		UserID:    m.UserID,
	}
}

// DecodeBackend parses one stored operation. Data may also hold the
// stringified broadcast form.
func DecodeBackend(w WireOperation) (state.Operation, bool) {
	fields := make(map[string]any, len(w.Data)+1)
	for k, v := range w.Data {
		fields[k] = v
	}
	if _, ok := fields[keyUserID]; !ok {
		fields[keyUserID] = w.UserID
	}
	kind := w.Type
	if kind == "" {
		kind = asString(fields[keyType])
	}
	return decode(kind, fields, w.Timestamp)
}

// EncodeBatch encodes ops in order.
func EncodeBatch(ops []state.Operation) []WireOperation {
	out := make([]WireOperation, len(ops))
	for i, op := range ops {
		out[i] = EncodeBackend(op)
	}
	return out
}

// DecodeBatch decodes ops in order, skipping entries of unknown type.
func DecodeBatch(wire []WireOperation) []state.Operation {
	ops := make([]state.Operation, 0, len(wire))
	for _, w := range wire {
		op, ok := DecodeBackend(w)
		if !ok {
			slog.Warn("skipping operation of unknown type", "component", "codec", "type", w.Type)
			continue
		}
		ops = append(ops, op)
	}
	return ops
}
