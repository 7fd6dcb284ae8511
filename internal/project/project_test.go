package project

import (
	"os"
	"path/filepath"
	"testing"

	"ai-labeller/internal/image/imagetest"
	"ai-labeller/internal/labels"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFlatFolder(t *testing.T) {
	root := t.TempDir()
	imagetest.WritePNG(t, filepath.Join(root, "a.png"), 8, 8)
	imagetest.WritePNG(t, filepath.Join(root, "b.png"), 8, 8)

	p, err := Open(root, labels.ModeImages)
	require.NoError(t, err)
	assert.Equal(t, "train", p.Split)
	assert.Len(t, p.Images, 2)
	assert.Equal(t, DefaultClassNames(), p.Classes)
	assert.DirExists(t, filepath.Join(root, "labels", "train"))
	assert.Equal(t, 1, p.IndexOf(filepath.Join(root, "b.png")))
	assert.Equal(t, -1, p.IndexOf(filepath.Join(root, "c.png")))
}

func TestOpenDetectsTreeFromSubfolder(t *testing.T) {
	root := t.TempDir()
	imagetest.WritePNG(t, filepath.Join(root, "images", "val", "v.png"), 8, 8)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "images", "train"), 0o755))

	p, err := Open(filepath.Join(root, "images", "val"), labels.ModeYOLO)
	require.NoError(t, err)
	assert.Equal(t, root, p.Root)
	assert.Equal(t, "val", p.Split, "train has no images")
	assert.Equal(t, []string{"train", "val"}, p.Splits())
	assert.DirExists(t, filepath.Join(root, "labels", "train"))

	require.NoError(t, p.SetSplit("train"))
	assert.Empty(t, p.Images)
	assert.ErrorIs(t, p.SetSplit("test"), ErrUnknownSplit)
	assert.Equal(t, "train", p.Split)

	info := p.Info()
	assert.Equal(t, 0, info.Count)
	assert.Equal(t, labels.ModeYOLO, info.Mode)
}

func TestOpenMissingFolder(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), labels.ModeImages)
	assert.ErrorIs(t, err, labels.ErrNotFound)
}

func TestSetClassesKeepsPreviousOnError(t *testing.T) {
	root := t.TempDir()
	p, err := Open(root, labels.ModeImages)
	require.NoError(t, err)

	require.NoError(t, p.SetClasses([]string{" cat ", "", "dog"}))
	assert.Equal(t, []string{"cat", "dog"}, p.Classes)
	assert.Equal(t, "dog", p.ClassName(1))
	assert.Equal(t, "class7", p.ClassName(7))

	assert.ErrorIs(t, p.SetClasses([]string{" ", ""}), ErrEmptyClassNames)
	assert.Equal(t, []string{"cat", "dog"}, p.Classes)

	reopened, err := Open(root, labels.ModeImages)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, reopened.Classes)
}
