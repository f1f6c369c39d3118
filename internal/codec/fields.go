// Package codec translates whiteboard operations to and from their two wire
// formats: the flat string map broadcast to peers and the structured batch
// format stored by the backend. Both decode through the same field policy so a
// value may arrive stringified or as a native JSON number, list or object.
package codec

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"StudyBoard/internal/state"
)

// Field names shared by both wire formats.
const (
	keyType        = "type"
	keyID          = "id"
	keyUserID      = "user_id"
	keyPoints      = "points"
	keyColor       = "color"
	keyStrokeWidth = "strokeWidth"
	keyText        = "text"
	keyX           = "x"
	keyY           = "y"
	keyPosition    = "position"
	keyFontSize    = "fontSize"
	keyTargetIDs   = "targetIds"
)

// decode builds an operation from loosely typed fields. Absent or unparsable
// fields take their default; an unknown kind yields ok == false.
func decode(kind string, fields map[string]any, timestamp int64) (state.Operation, bool) {
	m := state.Meta{
		ID:        asString(fields[keyID]),
		UserID:    asString(fields[keyUserID]),
		Timestamp: timestamp,
	}

	switch state.OpType(strings.ToLower(strings.TrimSpace(kind))) {
	case state.OpDraw:
		return &state.Draw{
			Meta:        m,
			Points:      asPoints(fields[keyPoints]),
			Color:       asColor(fields[keyColor]),
			StrokeWidth: asFloat(fields[keyStrokeWidth], state.DefaultStrokeWidth),
		}, true
	case state.OpText:
		pos := state.Point{X: asFloat(fields[keyX], 0), Y: asFloat(fields[keyY], 0)}
		if p, ok := asPoint(fields[keyPosition]); ok {
			pos = p
		}
		return &state.Text{
			Meta:     m,
			Text:     asString(fields[keyText]),
			Position: pos,
			FontSize: asFloat(fields[keyFontSize], state.DefaultFontSize),
			Color:    asColor(fields[keyColor]),
		}, true
	case state.OpErase:
		return &state.Erase{Meta: m, TargetIDs: asIDs(fields[keyTargetIDs])}, true
	case state.OpClear:
		return &state.Clear{Meta: m}, true
	}
	return nil, false
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	}
	return ""
}

func asNumber(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = n
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asFloat(v any, def float32) float32 {
	if f, ok := asNumber(v); ok {
		return float32(f)
	}
	return def
}

// asColor accepts a signed (Android Int) or unsigned decimal ARGB value.
func asColor(v any) state.Color {
	if s, ok := v.(string); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil || n < math.MinInt32 || n > math.MaxUint32 {
			return state.DefaultColor
		}
		return state.Color(uint32(n))
	}
	f, ok := asNumber(v)
	if !ok || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxUint32 {
		return state.DefaultColor
	}
	return state.Color(uint32(int64(f)))
}

// asPoints parses "x,y;x,y" or a list of {x,y} objects / [x,y] pairs.
// Malformed pairs are dropped one by one.
func asPoints(v any) []state.Point {
	var pts []state.Point
	switch x := v.(type) {
	case string:
		for _, pair := range strings.Split(x, ";") {
			if p, ok := asPoint(pair); ok {
				pts = append(pts, p)
			}
		}
	case []any:
		for _, item := range x {
			if p, ok := asPoint(item); ok {
				pts = append(pts, p)
			}
		}
	}
	return pts
}

func asPoint(v any) (state.Point, bool) {
	var xv, yv any
	switch p := v.(type) {
	case string:
		parts := strings.Split(p, ",")
		if len(parts) != 2 {
			return state.Point{}, false
		}
		xv, yv = parts[0], parts[1]
	case map[string]any:
		xv, yv = p[keyX], p[keyY]
	case []any:
		if len(p) != 2 {
			return state.Point{}, false
		}
		xv, yv = p[0], p[1]
	default:
		return state.Point{}, false
	}
	x, okx := asNumber(xv)
	y, oky := asNumber(yv)
	if !okx || !oky {
		return state.Point{}, false
	}
	return state.Point{X: float32(x), Y: float32(y)}, true
}

// asIDs parses a comma list or a JSON array, keeping first-seen order.
func asIDs(v any) []string {
	var raw []string
	switch x := v.(type) {
	case string:
		raw = strings.Split(x, ",")
	case []string:
		raw = x
	case []any:
		for _, item := range x {
			raw = append(raw, asString(item))
		}
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" || !seen.Add(id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// formatFloat renders a float the way both mobile and web clients print it:
// integral values keep a trailing ".0".
func formatFloat(f float32) string {
	s := strconv.FormatFloat(float64(f), 'f', -1, 32)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0"
	}
	return s
}

// wideFloat widens f without float32 noise (22.1 stays 22.1).
func wideFloat(f float32) float64 {
	n, _ := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'f', -1, 32), 64)
	return n
}

// formatColor renders the ARGB value as a signed 32-bit decimal.
func formatColor(c state.Color) string {
	return strconv.FormatInt(int64(int32(c)), 10)
}
