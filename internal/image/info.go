// Package image provides image discovery and dimension probing for datasets.
package image

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Extensions lists the file extensions treated as images, lower case.
var Extensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp"}

// IsImage reports whether path has an image extension.
func IsImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// List returns the image files directly inside dir, sorted by path.
// A missing directory yields an empty list.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list images in %s: %w", dir, err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		files = append(files, filepath.ToSlash(filepath.Join(dir, e.Name())))
	}
	sort.Strings(files)
	return files, nil
}

// Info describes an image file without its pixel data.
type Info struct {
	Path   string
	Format string
	Width  int
	Height int
}

// Probe reads only the image header to get its format and dimensions.
func Probe(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	cfg, format, err := image.DecodeConfig(file)
	if err != nil {
		return Info{}, fmt.Errorf("failed to decode image header %s: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, fmt.Errorf("image %s has invalid size %dx%d", path, cfg.Width, cfg.Height)
	}
	return Info{Path: path, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Size returns the image dimensions in pixels.
func Size(path string) (int, int, error) {
	info, err := Probe(path)
	if err != nil {
		return 0, 0, err
	}
	return info.Width, info.Height, nil
}

// BaseName returns the file name of path without its extension.
func BaseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
