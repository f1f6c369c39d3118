package codec

import (
	"strings"

	"StudyBoard/internal/state"
)

// EncodeBroadcast renders op as the flat string map shared by every client on
// the realtime channel. The layout is the cross-client contract:
// points "x,y;x,y", targetIds comma joined, color signed decimal ARGB,
// floats as decimals with at least one fractional digit.
func EncodeBroadcast(op state.Operation) map[string]string {
	m := state.MetaOf(op)
	out := map[string]string{
		keyType:   string(op.Kind()),
		keyID:     m.ID,
		keyUserID: m.UserID,
	}

	switch o := op.(type) {
	case *state.Draw:
		pairs := make([]string, len(o.Points))
		for i, p := range o.Points {
			pairs[i] = formatFloat(p.X) + "," + formatFloat(p.Y)
		}
		out[keyPoints] = strings.Join(pairs, ";")
		out[keyColor] = formatColor(o.Color)
		out[keyStrokeWidth] = formatFloat(o.StrokeWidth)
	case *state.Text:
		out[keyText] = o.Text
		out[keyX] = formatFloat(o.Position.X)
		out[keyY] = formatFloat(o.Position.Y)
		out[keyFontSize] = formatFloat(o.FontSize)
		out[keyColor] = formatColor(o.Color)
	case *state.Erase:
		out[keyTargetIDs] = strings.Join(o.TargetIDs, ",")
	}
	return out
}

// DecodeBroadcast parses a realtime payload. The timestamp travels beside the
// payload on the channel envelope. ok is false for an unknown or missing type.
func DecodeBroadcast(data map[string]string, timestamp int64) (op state.Operation, ok bool) {
	fields := make(map[string]any, len(data))
	for k, v := range data {
		fields[k] = v
	}
	return decode(data[keyType], fields, timestamp)
}
