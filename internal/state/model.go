package state

import (
	"image/color"

	"fyne.io/fyne/v2"
)

// Point is a canvas coordinate.
type Point = fyne.Position

// Color is a 32-bit ARGB value.
type Color uint32

const (
	DefaultColor       Color   = 0xFF000000
	DefaultStrokeWidth float32 = 5.0
	DefaultFontSize    float32 = 16.0
)

// RGBA splits the color into 8-bit channels.
func (c Color) RGBA() (r, g, b, a uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c), uint8(c >> 24)
}

// NRGBA converts to the image/color form.
func (c Color) NRGBA() color.NRGBA {
	r, g, b, a := c.RGBA()
	return color.NRGBA{R: r, G: g, B: b, A: a}
}

// Palette is the set of named pen colors.
var Palette = map[string]Color{
	"black":  0xFF000000,
	"red":    0xFFFF0000,
	"green":  0xFF00FF00,
	"blue":   0xFF0000FF,
	"yellow": 0xFFFFFF00,
	"white":  0xFFFFFFFF,
}

type OpType string

const (
	OpDraw  OpType = "draw"
	OpText  OpType = "text"
	OpErase OpType = "erase"
	OpClear OpType = "clear"
)

// Meta is carried by every operation.
type Meta struct {
	ID        string
	UserID    string
	Timestamp int64 // unix millis, display only
}

func (m Meta) meta() Meta { return m }

// Operation is one whiteboard mutation: *Draw, *Text, *Erase or *Clear.
type Operation interface {
	Kind() OpType
	meta() Meta
}

// MetaOf returns the id, author and timestamp of op.
func MetaOf(op Operation) Meta { return op.meta() }

// Draw is one continuous stroke.
type Draw struct {
	Meta
	Points      []Point
	Color       Color
	StrokeWidth float32
}

type Text struct {
	Meta
	Text     string
	Position Point
	FontSize float32
	Color    Color
}

// Erase removes the operations named in TargetIDs from the visible set.
type Erase struct {
	Meta
	TargetIDs []string
}

// Clear wipes the canvas as of its position in the log.
type Clear struct {
	Meta
}

func (*Draw) Kind() OpType  { return OpDraw }
func (*Text) Kind() OpType  { return OpText }
func (*Erase) Kind() OpType { return OpErase }
func (*Clear) Kind() OpType { return OpClear }
