package colorutil

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHSVToRGB(t *testing.T) {
	tests := []struct {
		h, s, v float64
		r, g, b uint8
	}{
		{0, 1, 1, 255, 0, 0},
		{120, 1, 1, 0, 255, 0},
		{240, 1, 1, 0, 0, 255},
		{360, 1, 1, 255, 0, 0},
		{0, 0, 1, 255, 255, 255},
		{0, 0, 0, 0, 0, 0},
	}
	for _, tt := range tests {
		r, g, b := HSVToRGB(tt.h, tt.s, tt.v)
		assert.Equal(t, []uint8{tt.r, tt.g, tt.b}, []uint8{r, g, b}, "h=%v s=%v v=%v", tt.h, tt.s, tt.v)
	}
}

func TestClassColor(t *testing.T) {
	assert.Equal(t, palette[0], ClassColor(0))
	assert.Equal(t, color.RGBA{R: 128, G: 128, B: 128, A: 255}, ClassColor(-1))
	assert.Equal(t, ClassColor(20), ClassColor(20))
	assert.NotEqual(t, ClassColor(20), ClassColor(21))
	assert.Equal(t, uint8(255), ClassColor(99).A)
}

func TestHex(t *testing.T) {
	assert.Equal(t, "#ff3838", Hex(ClassColor(0)))
	assert.Equal(t, "#000000", Hex(color.RGBA{}))
}
