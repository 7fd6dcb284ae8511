package labels

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"ai-labeller/pkg/geometry"
)

// ErrMalformed is returned by codecs for label data they cannot parse.
var ErrMalformed = errors.New("malformed label file")

// Codec reads and writes the label file of one image. Coordinates in the file
// are normalized to [0,1] by the image dimensions.
type Codec interface {
	// Ext is the label file extension, including the dot.
	Ext() string
	Encode(w io.Writer, boxes []geometry.Box, width, height int) error
	Decode(r io.Reader, width, height int) ([]geometry.Box, error)
}

// YOLOCodec is the "class cx cy w h" text format, one box per line.
type YOLOCodec struct{}

func (YOLOCodec) Ext() string { return ".txt" }

func (YOLOCodec) Encode(w io.Writer, boxes []geometry.Box, width, height int) error {
	bw := bufio.NewWriter(w)
	for _, b := range boxes {
		cx, cy, bwid, bhgt := b.ToYOLO(float64(width), float64(height))
		if _, err := fmt.Fprintf(bw, "%d %.6f %.6f %.6f %.6f\n", b.ClassID, cx, cy, bwid, bhgt); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (YOLOCodec) Decode(r io.Reader, width, height int) ([]geometry.Box, error) {
	boxes := []geometry.Box{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 5 {
			return nil, fmt.Errorf("line %d: expected 5 fields, got %d: %w", lineNo, len(fields), ErrMalformed)
		}
		var vals [5]float64
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %v: %w", lineNo, err, ErrMalformed)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("line %d: non-finite value %q: %w", lineNo, f, ErrMalformed)
			}
			vals[i] = v
		}
		if vals[0] != math.Trunc(vals[0]) {
			return nil, fmt.Errorf("line %d: class id %q is not an integer: %w", lineNo, fields[0], ErrMalformed)
		}
		classID := int(vals[0])
		if classID < 0 {
			return nil, fmt.Errorf("line %d: negative class id: %w", lineNo, ErrMalformed)
		}
		b := geometry.FromYOLO(classID, vals[1], vals[2], vals[3], vals[4], float64(width), float64(height))
		boxes = append(boxes, geometry.Clamp(b, float64(width), float64(height)))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return boxes, nil
}

// JSONCodec stores boxes in corner form.
type JSONCodec struct{}

type jsonBox struct {
	X1      float64 `json:"x1"`
	Y1      float64 `json:"y1"`
	X2      float64 `json:"x2"`
	Y2      float64 `json:"y2"`
	ClassID int     `json:"class_id"`
}

type jsonLabelFile struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Boxes  []jsonBox `json:"boxes"`
}

func (JSONCodec) Ext() string { return ".json" }

func (JSONCodec) Encode(w io.Writer, boxes []geometry.Box, width, height int) error {
	file := jsonLabelFile{Width: width, Height: height, Boxes: make([]jsonBox, 0, len(boxes))}
	fw, fh := float64(width), float64(height)
	for _, b := range boxes {
		n := b.Normalize()
		file.Boxes = append(file.Boxes, jsonBox{
			X1:      n.X1 / fw,
			Y1:      n.Y1 / fh,
			X2:      n.X2 / fw,
			Y2:      n.Y2 / fh,
			ClassID: n.ClassID,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(file)
}

func (JSONCodec) Decode(r io.Reader, width, height int) ([]geometry.Box, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	boxes := []geometry.Box{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return boxes, nil
	}
	var file jsonLabelFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrMalformed)
	}
	fw, fh := float64(width), float64(height)
	for i, jb := range file.Boxes {
		if jb.ClassID < 0 {
			return nil, fmt.Errorf("box %d: negative class id: %w", i, ErrMalformed)
		}
		b := geometry.NewBox(jb.X1*fw, jb.Y1*fh, jb.X2*fw, jb.Y2*fh, jb.ClassID)
		boxes = append(boxes, geometry.Clamp(b, fw, fh))
	}
	return boxes, nil
}
