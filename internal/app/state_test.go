package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ai-labeller/internal/config"
	"ai-labeller/internal/detector"
	"ai-labeller/internal/export"
	"ai-labeller/internal/image/imagetest"
	"ai-labeller/internal/labels"
	"ai-labeller/internal/project"
	"ai-labeller/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDataset creates images/train/{a,b,c}.png with a labeled and returns the root.
func newDataset(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	var a string
	for _, name := range []string{"a", "b", "c"} {
		p := imagetest.WritePNG(t, filepath.Join(root, "images", "train", name+".png"), 100, 80)
		if name == "a" {
			a = p
		}
	}
	store := labels.NewStore(root, labels.ModeYOLO)
	require.NoError(t, store.EnsureLabelDirs())
	require.NoError(t, store.Save("train", a, []geometry.Box{geometry.NewBox(10, 10, 30, 30, 1)}))
	return root
}

func openNavigator(t *testing.T, cfg *config.Config, adapter *detector.Adapter) (*Navigator, string) {
	t.Helper()
	root := newDataset(t)
	n := New(cfg, adapter)
	require.NoError(t, n.OpenProject(context.Background(), root, labels.ModeYOLO))
	return n, root
}

func loadLabels(t *testing.T, root, name string) *labels.Labels {
	t.Helper()
	store := labels.NewStore(root, labels.ModeYOLO)
	lbl, err := store.Load("train", filepath.ToSlash(filepath.Join(root, "images", "train", name+".png")))
	require.NoError(t, err)
	return lbl
}

func assertBoxesNear(t *testing.T, want, got []geometry.Box) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ClassID, got[i].ClassID)
		assert.InDelta(t, want[i].X1, got[i].X1, 1e-3)
		assert.InDelta(t, want[i].Y1, got[i].Y1, 1e-3)
		assert.InDelta(t, want[i].X2, got[i].X2, 1e-3)
		assert.InDelta(t, want[i].Y2, got[i].Y2, 1e-3)
	}
}

func TestOpenProjectLoadsFirstImage(t *testing.T) {
	n, root := openNavigator(t, nil, nil)

	info, err := n.Info()
	require.NoError(t, err)
	assert.Equal(t, root, info.Root)
	assert.Equal(t, "train", info.Split)
	assert.Equal(t, 3, info.Count)
	assert.Equal(t, 0, info.Index)
	assert.Equal(t, 1, info.Boxes)
	assert.False(t, info.Dirty)
	assert.Equal(t, "a.png", filepath.Base(n.Image()))
	assert.Equal(t, project.DefaultClassNames(), n.Classes())
}

func TestPropagationCopiesByValue(t *testing.T) {
	n, _ := openNavigator(t, nil, nil)
	ctx := context.Background()

	var loaded []ImageLoaded
	n.On(EventImageLoaded, func(data interface{}) {
		loaded = append(loaded, data.(ImageLoaded))
	})

	moved, err := n.Next(ctx)
	require.NoError(t, err)
	require.True(t, moved)
	require.Len(t, loaded, 1)
	assert.Equal(t, "propagated", loaded[0].Source)

	sess := n.Session()
	want := []geometry.Box{geometry.NewBox(10, 10, 30, 30, 1)}
	assertBoxesNear(t, want, sess.Boxes())
	assert.True(t, sess.Dirty())
	assert.False(t, sess.CanUndo())

	require.True(t, sess.Select(0))
	require.True(t, sess.ResizeSelected(geometry.NewBox(0, 0, 90, 70, 0)))
	require.True(t, sess.SetSelectedClass(4))
	assertBoxesNear(t, want, n.previous)
}

func TestOpenProjectAtStartsWithoutPropagation(t *testing.T) {
	root := newDataset(t)
	n := New(nil, nil)
	var loaded []ImageLoaded
	n.On(EventImageLoaded, func(data interface{}) {
		loaded = append(loaded, data.(ImageLoaded))
	})

	require.NoError(t, n.OpenProjectAt(context.Background(), root, labels.ModeYOLO, 1))
	require.Len(t, loaded, 1, "image 0 is never loaded")
	assert.Equal(t, 1, loaded[0].Index)
	assert.Equal(t, "empty", loaded[0].Source)
	assert.Zero(t, n.Session().Len())
	assert.False(t, n.Session().Dirty())

	require.NoError(t, n.Close())
	assert.False(t, loadLabels(t, root, "b").HasLabelFile)

	assert.Error(t, New(nil, nil).OpenProjectAt(context.Background(), root, labels.ModeYOLO, 5))
}

func TestPropagationDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Propagate = false
	n, _ := openNavigator(t, cfg, nil)

	_, err := n.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n.Session().Len())
	assert.False(t, n.Session().Dirty())
}

func TestTransitionSavesBeforeLoading(t *testing.T) {
	n, root := openNavigator(t, nil, nil)
	ctx := context.Background()

	var saved []string
	n.On(EventLabelsSaved, func(data interface{}) { saved = append(saved, data.(string)) })

	sess := n.Session()
	sess.Press(geometry.NewPoint2D(50, 40))
	require.True(t, sess.Release(geometry.NewPoint2D(70, 60)))
	require.Equal(t, 2, sess.Len())

	_, err := n.Next(ctx)
	require.NoError(t, err)
	lbl := loadLabels(t, root, "a")
	assert.True(t, lbl.HasLabelFile)
	assert.Len(t, lbl.Boxes, 2)

	// b was propagated from both boxes of a; clearing it and leaving writes
	// an empty label file that blocks later propagation.
	assert.Equal(t, 2, n.Session().Len())
	require.True(t, n.Session().ClearAll())
	_, err = n.Next(ctx)
	require.NoError(t, err)
	lbl = loadLabels(t, root, "b")
	assert.True(t, lbl.HasLabelFile)
	assert.Empty(t, lbl.Boxes)

	// previous (b) is empty so c starts empty and is not written.
	assert.Equal(t, 0, n.Session().Len())
	_, err = n.Prev(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n.Session().Len())
	assert.NoFileExists(t, filepath.Join(root, "labels", "train", "c.txt"))

	moved, err := n.Prev(ctx)
	require.NoError(t, err)
	require.True(t, moved)
	assert.Equal(t, 2, n.Session().Len())
	moved, err = n.Prev(ctx)
	require.NoError(t, err)
	assert.False(t, moved)

	assert.Empty(t, saved, "implicit saves do not emit")
	require.NoError(t, n.Save())
	assert.Len(t, saved, 1)
}

func TestTransitionRefusedWhileDragging(t *testing.T) {
	n, _ := openNavigator(t, nil, nil)
	n.Session().Press(geometry.NewPoint2D(90, 70))
	_, err := n.Next(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, n.Index())
}

func TestOpenOutOfRange(t *testing.T) {
	n, _ := openNavigator(t, nil, nil)
	assert.Error(t, n.Open(context.Background(), 3))
	assert.Error(t, n.Open(context.Background(), -1))
	assert.Equal(t, 0, n.Index())
}

func TestNoProject(t *testing.T) {
	n := New(nil, nil)
	ctx := context.Background()
	_, err := n.Next(ctx)
	assert.ErrorIs(t, err, ErrNoProject)
	assert.ErrorIs(t, n.Save(), ErrNoProject)
	_, err = n.Info()
	assert.ErrorIs(t, err, ErrNoProject)
	_, err = n.Export(ctx, export.Options{OutputDir: t.TempDir()})
	assert.ErrorIs(t, err, ErrNoProject)
	assert.NoError(t, n.Close())
}

func TestSetClassesKeepsPreviousOnError(t *testing.T) {
	n, root := openNavigator(t, nil, nil)

	var changed []string
	n.On(EventClassesChanged, func(data interface{}) { changed = data.([]string) })

	require.NoError(t, n.SetClasses([]string{" cat ", "dog", ""}))
	assert.Equal(t, []string{"cat", "dog"}, n.Classes())
	assert.Equal(t, []string{"cat", "dog"}, changed)
	assert.FileExists(t, filepath.Join(root, project.ClassNamesFile))

	err := n.SetClasses([]string{" ", ""})
	assert.ErrorIs(t, err, project.ErrEmptyClassNames)
	assert.Equal(t, []string{"cat", "dog"}, n.Classes())
}

func TestRemoveAndRestore(t *testing.T) {
	n, root := openNavigator(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, n.Remove(ctx))
	assert.Equal(t, "b.png", filepath.Base(n.Image()))
	assert.Equal(t, 2, len(n.Project().Images))
	assert.FileExists(t, filepath.Join(root, "removed", "train", "images", "a.png"))
	assert.FileExists(t, filepath.Join(root, "removed", "train", "labels", "a.txt"))

	removed, err := n.Removed()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png"}, removed)

	removed, err = n.Restore("a.png")
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, 3, len(n.Project().Images))
	assert.Equal(t, 1, n.Index(), "current image keeps its place in the refreshed list")
	assert.True(t, loadLabels(t, root, "a").HasLabelFile)

	_, err = n.Restore("a.png")
	assert.ErrorIs(t, err, labels.ErrNotFound)
}

func TestRemoveKeepsUnsavedEdits(t *testing.T) {
	n, root := openNavigator(t, nil, nil)
	ctx := context.Background()

	sess := n.Session()
	sess.Press(geometry.NewPoint2D(50, 40))
	require.True(t, sess.Release(geometry.NewPoint2D(70, 60)))
	require.True(t, sess.Dirty())

	require.NoError(t, n.Remove(ctx))
	_, err := n.Restore("a.png")
	require.NoError(t, err)

	assertBoxesNear(t, []geometry.Box{
		geometry.NewBox(10, 10, 30, 30, 1),
		geometry.NewBox(50, 40, 70, 60, 0),
	}, loadLabels(t, root, "a").Boxes)
}

func TestExportFlushesSession(t *testing.T) {
	n, _ := openNavigator(t, nil, nil)
	sess := n.Session()
	require.True(t, sess.Select(0))
	require.True(t, sess.SetSelectedClass(2))

	var done *export.Summary
	n.On(EventExportComplete, func(data interface{}) { done = data.(*export.Summary) })

	out := t.TempDir()
	summary, err := n.Export(context.Background(), export.Options{OutputDir: out, Format: export.FormatYOLO})
	require.NoError(t, err)
	assert.Same(t, summary, done)
	assert.Equal(t, 3, summary.Exported)
	assert.False(t, sess.Dirty())

	data, err := os.ReadFile(filepath.Join(out, "labels", "train", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "2 0.200000 0.250000 0.200000 0.250000\n", string(data))
}

func fakeAdapter(dets []detector.Detection, err error) *detector.Adapter {
	return detector.NewAdapter(detector.NewLibrary("fake.onnx"), func(string) (detector.Detector, error) {
		return detector.Func(func(context.Context, detector.Request) ([]detector.Detection, error) {
			return dets, err
		}), nil
	})
}

func TestDetectUsesActiveClass(t *testing.T) {
	n, _ := openNavigator(t, nil, fakeAdapter([]detector.Detection{
		{X1: 40, Y1: 40, X2: 60, Y2: 60, Confidence: 0.9},
		{X1: 0, Y1: 0, X2: 5, Y2: 5, Confidence: 0.1},
	}, nil))
	sess := n.Session()
	sess.SetActiveClass(2)

	res, err := n.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	require.Equal(t, 2, sess.Len())
	b, _ := sess.Box(1)
	assert.Equal(t, geometry.NewBox(40, 40, 60, 60, 2), b)
	assert.True(t, sess.CanUndo())
}

func TestDetectErrors(t *testing.T) {
	n, _ := openNavigator(t, nil, nil)
	_, err := n.Detect(context.Background())
	assert.ErrorIs(t, err, ErrNoDetector)

	boom := errors.New("inference failed")
	n, _ = openNavigator(t, nil, fakeAdapter(nil, boom))
	_, err = n.Detect(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n.Session().Len())
	assert.False(t, n.Session().CanUndo())
}

func TestAutoDetectOnUnlabeledImage(t *testing.T) {
	cfg := config.Default()
	cfg.Propagate = false
	cfg.AutoDetect = true
	cfg.DefaultClass = 1
	n, _ := openNavigator(t, cfg, fakeAdapter([]detector.Detection{
		{X1: 5, Y1: 5, X2: 25, Y2: 25, Confidence: 0.8},
	}, nil))

	assert.Equal(t, 1, n.Session().Len(), "labeled image keeps its labels")

	_, err := n.Next(context.Background())
	require.NoError(t, err)
	sess := n.Session()
	require.Equal(t, 1, sess.Len())
	b, _ := sess.Box(0)
	assert.Equal(t, geometry.NewBox(5, 5, 25, 25, 1), b)
	assert.True(t, sess.Dirty())
	assert.False(t, sess.CanUndo())
}

func TestSetSplitAndClose(t *testing.T) {
	n, root := openNavigator(t, nil, nil)
	imagetest.WritePNG(t, filepath.Join(root, "images", "val", "v.png"), 40, 40)
	ctx := context.Background()

	assert.ErrorIs(t, n.SetSplit(ctx, "test"), project.ErrUnknownSplit)
	require.NoError(t, n.SetSplit(ctx, "val"))
	assert.Equal(t, "v.png", filepath.Base(n.Image()))
	assert.Equal(t, 0, n.Session().Len(), "propagation does not cross splits")

	require.NoError(t, n.Close())
	assert.Nil(t, n.Project())
	assert.Nil(t, n.Session())
}
