package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tensor is a [rows][cols] model output.
type tensor [][]float32

func (t tensor) at(r, c int) float32 { return t[r][c] }

func TestDecodeYOLOv8(t *testing.T) {
	// Two classes, three anchors.
	out := tensor{
		{100, 200, 300}, // cx
		{100, 50, 300},  // cy
		{40, 20, 10},    // w
		{20, 10, 10},    // h
		{0.9, 0.1, 0.2}, // class 0
		{0.2, 0.6, 0.3}, // class 1
	}
	dets := DecodeYOLOv8(out.at, len(out), 3, 2, 0.5, 0.5)
	require.Len(t, dets, 2)

	assert.Equal(t, Detection{X1: 160, Y1: 45, X2: 240, Y2: 55, Confidence: float64(float32(0.9)), Class: 0}, dets[0])
	assert.Equal(t, 1, dets[1].Class)
	assert.InDelta(t, 380, dets[1].X1, 1e-6)
	assert.InDelta(t, 22.5, dets[1].Y1, 1e-6)

	assert.Nil(t, DecodeYOLOv8(out.at, 4, 3, 1, 1, 0))
}

func TestNMSPerClass(t *testing.T) {
	dets := []Detection{
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.6, Class: 0},
		{X1: 1, Y1: 1, X2: 11, Y2: 11, Confidence: 0.9, Class: 0},
		{X1: 1, Y1: 1, X2: 11, Y2: 11, Confidence: 0.8, Class: 1},
		{X1: 50, Y1: 50, X2: 60, Y2: 60, Confidence: 0.5, Class: 0},
	}
	kept := NMS(dets, 0.45)
	require.Len(t, kept, 3)
	assert.Equal(t, 0.9, kept[0].Confidence)
	assert.Equal(t, 0.8, kept[1].Confidence)
	assert.Equal(t, 0.5, kept[2].Confidence)
}
