package labels

import (
	"bytes"
	"strings"
	"testing"

	"ai-labeller/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertBoxesNear(t *testing.T, want, got []geometry.Box, delta float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i].X1, got[i].X1, delta, "box %d x1", i)
		assert.InDelta(t, want[i].Y1, got[i].Y1, delta, "box %d y1", i)
		assert.InDelta(t, want[i].X2, got[i].X2, delta, "box %d x2", i)
		assert.InDelta(t, want[i].Y2, got[i].Y2, delta, "box %d y2", i)
		assert.Equal(t, want[i].ClassID, got[i].ClassID, "box %d class", i)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	boxes := []geometry.Box{
		geometry.NewBox(10, 10, 50, 40, 2),
		geometry.NewBox(0, 0, 640, 480, 0),
		geometry.NewBox(123.456, 78.9, 300.1, 200.2, 11),
	}
	for _, codec := range []Codec{YOLOCodec{}, JSONCodec{}} {
		t.Run(codec.Ext(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, codec.Encode(&buf, boxes, 640, 480))
			got, err := codec.Decode(&buf, 640, 480)
			require.NoError(t, err)
			// %.6f of a value normalized by 640 is accurate to well under a pixel.
			assertBoxesNear(t, boxes, got, 0.01)
		})
	}
}

func TestYOLOEncodeFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, YOLOCodec{}.Encode(&buf, []geometry.Box{geometry.NewBox(10, 20, 50, 60, 3)}, 200, 100))
	assert.Equal(t, "3 0.150000 0.400000 0.200000 0.400000\n", buf.String())
}

func TestYOLODecodeSkipsBlankLinesAndClamps(t *testing.T) {
	in := "\n0 0.5 0.5 0.2 0.2\n\n1 0.95 0.5 0.2 0.2\n"
	got, err := YOLOCodec{}.Decode(strings.NewReader(in), 100, 100)
	require.NoError(t, err)
	assertBoxesNear(t, []geometry.Box{
		geometry.NewBox(40, 40, 60, 60, 0),
		geometry.NewBox(85, 40, 100, 60, 1),
	}, got, 1e-9)
}

func TestYOLODecodeMalformed(t *testing.T) {
	for _, in := range []string{
		"0 0.5 0.5 0.2\n",
		"a 0.5 0.5 0.2 0.2\n",
		"0 0.5 x 0.2 0.2\n",
		"-1 0.5 0.5 0.2 0.2\n",
		"0 nan 0.5 0.2 0.2\n",
		"0 0.5 0.5 +Inf 0.2\n",
		"NaN 0.5 0.5 0.2 0.2\n",
		"1.7 0.5 0.5 0.2 0.2\n",
	} {
		_, err := YOLOCodec{}.Decode(strings.NewReader(in), 100, 100)
		assert.ErrorIs(t, err, ErrMalformed, "input %q", in)
	}
}

func TestYOLODecodeIntegralClassFloat(t *testing.T) {
	boxes, err := YOLOCodec{}.Decode(strings.NewReader("2.0 0.5 0.5 0.2 0.2\n"), 100, 100)
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, 2, boxes[0].ClassID)
}

func TestJSONDecode(t *testing.T) {
	got, err := JSONCodec{}.Decode(strings.NewReader(""), 100, 100)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = JSONCodec{}.Decode(strings.NewReader("{not json"), 100, 100)
	assert.ErrorIs(t, err, ErrMalformed)

	got, err = JSONCodec{}.Decode(strings.NewReader(`{"boxes":[{"x1":0.5,"y1":0.6,"x2":0.1,"y2":0.2,"class_id":4}]}`), 100, 50)
	require.NoError(t, err)
	assertBoxesNear(t, []geometry.Box{geometry.NewBox(10, 10, 50, 30, 4)}, got, 1e-9)
}
