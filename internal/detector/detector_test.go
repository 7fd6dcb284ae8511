package detector

import (
	"context"
	"errors"
	"math"
	"testing"

	"ai-labeller/internal/session"
	"ai-labeller/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(dets ...Detection) Factory {
	return func(string) (Detector, error) {
		return Func(func(context.Context, Request) ([]Detection, error) {
			return dets, nil
		}), nil
	}
}

func TestToBoxesFiltersAndClamps(t *testing.T) {
	dets := []Detection{
		{X1: 10, Y1: 10, X2: 50, Y2: 50, Confidence: 0.9},
		{X1: 20, Y1: 20, X2: 30, Y2: 30, Confidence: 0.49},
		{X1: 60, Y1: 60, X2: 140, Y2: 90, Confidence: 0.5},
		{X1: 120, Y1: 0, X2: 130, Y2: 10, Confidence: 0.99},
	}
	boxes := ToBoxes(dets, Options{Confidence: 0.5, DefaultClass: 3}, 100, 80)
	require.Len(t, boxes, 2)
	assert.Equal(t, geometry.NewBox(10, 10, 50, 50, 3), boxes[0])
	assert.Equal(t, geometry.NewBox(60, 60, 100, 80, 3), boxes[1])
}

func TestToBoxesDropsNonFinite(t *testing.T) {
	dets := []Detection{
		{X1: 10, Y1: 10, X2: 50, Y2: 50, Confidence: math.NaN()},
		{X1: math.NaN(), Y1: 10, X2: 50, Y2: 50, Confidence: 0.9},
		{X1: 10, Y1: 10, X2: math.Inf(1), Y2: 50, Confidence: 0.9},
		{X1: 5, Y1: 5, X2: 15, Y2: 15, Confidence: 0.9},
	}
	boxes := ToBoxes(dets, Options{Confidence: 0.5}, 100, 80)
	assert.Equal(t, []geometry.Box{geometry.NewBox(5, 5, 15, 15, 0)}, boxes)
}

func TestApplyAppendsUnderOneSnapshot(t *testing.T) {
	s := session.New("img.png", 100, 80)
	s.Load([]geometry.Box{geometry.NewBox(0, 0, 5, 5, 0)})

	a := NewAdapter(NewLibrary("m.onnx"), fixed(
		Detection{X1: 10, Y1: 10, X2: 20, Y2: 20, Confidence: 0.8},
		Detection{X1: 30, Y1: 30, X2: 40, Y2: 40, Confidence: 0.7},
		Detection{X1: 50, Y1: 50, X2: 60, Y2: 60, Confidence: 0.1},
	))
	res, err := a.Apply(context.Background(), s, Options{Confidence: 0.5, DefaultClass: 2})
	require.NoError(t, err)
	assert.Equal(t, "m.onnx", res.Model)
	assert.Equal(t, 3, res.Raw)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 3, s.Len())
	for _, b := range s.Boxes()[1:] {
		assert.Equal(t, 2, b.ClassID)
	}

	require.True(t, s.Undo())
	assert.Equal(t, 1, s.Len())
	assert.False(t, s.CanUndo())
}

func TestApplyNothingSurvivingRecordsNothing(t *testing.T) {
	s := session.New("img.png", 100, 80)
	a := NewAdapter(NewLibrary("m.onnx"), fixed(Detection{X1: 1, Y1: 1, X2: 9, Y2: 9, Confidence: 0.2}))
	res, err := a.Apply(context.Background(), s, Options{Confidence: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)
	assert.False(t, s.CanUndo())
	assert.False(t, s.Dirty())
}

func TestApplyErrorLeavesSessionUntouched(t *testing.T) {
	boom := errors.New("boom")
	a := NewAdapter(NewLibrary("m.onnx"), func(string) (Detector, error) {
		return Func(func(context.Context, Request) ([]Detection, error) {
			return nil, boom
		}), nil
	})
	s := session.New("img.png", 100, 80)
	s.Load([]geometry.Box{geometry.NewBox(0, 0, 5, 5, 0)})

	_, err := a.Apply(context.Background(), s, Options{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.Len())
	assert.False(t, s.CanUndo())
}

func TestApplyCancelledLeavesSessionUntouched(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := NewAdapter(NewLibrary("m.onnx"), func(string) (Detector, error) {
		return Func(func(context.Context, Request) ([]Detection, error) {
			cancel()
			return []Detection{{X1: 1, Y1: 1, X2: 9, Y2: 9, Confidence: 1}}, nil
		}), nil
	})
	s := session.New("img.png", 100, 80)
	_, err := a.Apply(ctx, s, Options{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.Len())
}

func TestApplyRefusedWhileDragging(t *testing.T) {
	calls := 0
	a := NewAdapter(NewLibrary("m.onnx"), func(string) (Detector, error) {
		calls++
		return Func(func(context.Context, Request) ([]Detection, error) { return nil, nil }), nil
	})
	s := session.New("img.png", 100, 80)
	s.Press(geometry.NewPoint2D(10, 10))
	_, err := a.Apply(context.Background(), s, Options{})
	require.ErrorIs(t, err, session.ErrDragInProgress)
	assert.Equal(t, 0, calls)
}

type closingDetector struct {
	Func
	closed bool
}

func (c *closingDetector) Close() error {
	c.closed = true
	return nil
}

func TestDetectorCachePerModel(t *testing.T) {
	built := map[string]int{}
	var made []*closingDetector
	a := NewAdapter(NewLibrary("a.onnx", "b.onnx"), func(model string) (Detector, error) {
		built[model]++
		d := &closingDetector{Func: func(context.Context, Request) ([]Detection, error) { return nil, nil }}
		made = append(made, d)
		return d, nil
	})

	for i := 0; i < 3; i++ {
		_, id, err := a.Detector("")
		require.NoError(t, err)
		assert.Equal(t, "a.onnx", id)
	}
	_, _, err := a.Detector("b.onnx")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a.onnx": 1, "b.onnx": 1}, built)

	require.NoError(t, a.Close())
	for _, d := range made {
		assert.True(t, d.closed)
	}
}

func TestDetectorFactoryError(t *testing.T) {
	a := NewAdapter(NewLibrary(), func(string) (Detector, error) {
		return nil, errors.New("unsupported")
	})
	_, id, err := a.Detector("")
	require.Error(t, err)
	assert.Equal(t, fallbackModel, id)
}
