// Package imagetest provides helpers for tests that need image files on disk.
package imagetest

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WritePNG writes a blank w x h PNG to path, creating parent directories.
func WritePNG(t testing.TB, path string, w, h int) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
	return filepath.ToSlash(path)
}

// WriteFile writes text content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
