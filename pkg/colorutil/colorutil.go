// Package colorutil assigns display colors to annotation classes.
package colorutil

import (
	"fmt"
	"image/color"
	"math"
)

// Fixed colors for the first classes; later classes get generated hues.
var palette = []color.RGBA{
	{R: 255, G: 56, B: 56, A: 255},
	{R: 56, G: 168, B: 255, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 207, G: 56, B: 255, A: 255},
	{R: 0, G: 212, B: 187, A: 255},
	{R: 255, G: 112, B: 31, A: 255},
	{R: 255, G: 55, B: 199, A: 255},
}

// goldenAngle spaces generated hues so neighbouring class ids stay distinct.
const goldenAngle = 137.508

// ClassColor returns the display color for a class id. Negative ids are gray.
func ClassColor(id int) color.RGBA {
	if id < 0 {
		return color.RGBA{R: 128, G: 128, B: 128, A: 255}
	}
	if id < len(palette) {
		return palette[id]
	}
	h := math.Mod(float64(id)*goldenAngle, 360)
	r, g, b := HSVToRGB(h, 0.75, 0.95)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Hex formats c as #rrggbb.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// HSVToRGB converts hue in degrees and saturation/value in 0-1 to 8-bit RGB.
func HSVToRGB(h, s, v float64) (r, g, b uint8) {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var rf, gf, bf float64
	switch {
	case h < 60:
		rf, gf, bf = c, x, 0
	case h < 120:
		rf, gf, bf = x, c, 0
	case h < 180:
		rf, gf, bf = 0, c, x
	case h < 240:
		rf, gf, bf = 0, x, c
	case h < 300:
		rf, gf, bf = x, 0, c
	default:
		rf, gf, bf = c, 0, x
	}
	to8 := func(f float64) uint8 { return uint8(math.Round((f + m) * 255)) }
	return to8(rf), to8(gf), to8(bf)
}
