package labels

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	labimage "ai-labeller/internal/image"

	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"
)

// labelExts are the label files moved along with an image, whatever the mode.
var labelExts = []string{".txt", ".json"}

// RemovedImageDir returns the holding directory for images removed from split.
func (s *Store) RemovedImageDir(split string) string {
	return filepath.Join(s.root, "removed", split, "images")
}

// RemovedLabelDir returns the holding directory for labels of removed images.
func (s *Store) RemovedLabelDir(split string) string {
	return filepath.Join(s.root, "removed", split, "labels")
}

// Remove moves an image and its label files out of split into the removed
// holding area. It returns the updated image list of split.
func (s *Store) Remove(split, imagePath string) ([]string, error) {
	if !isFile(imagePath) {
		return nil, fmt.Errorf("image %s: %w", imagePath, ErrNotFound)
	}
	filename := filepath.Base(imagePath)
	base := labimage.BaseName(filename)

	if err := moveFile(imagePath, filepath.Join(s.RemovedImageDir(split), filename)); err != nil {
		return nil, fmt.Errorf("failed to remove image %s: %w", filename, err)
	}
	for _, ext := range labelExts {
		src := filepath.Join(s.LabelDir(split), base+ext)
		if !isFile(src) {
			continue
		}
		if err := moveFile(src, filepath.Join(s.RemovedLabelDir(split), base+ext)); err != nil {
			return nil, fmt.Errorf("failed to move label %s: %w", src, err)
		}
	}
	logger.Infof("Removed %s from split %s", filename, split)
	return s.Images(split)
}

// Removed lists the filenames currently removed from split, sorted.
func (s *Store) Removed(split string) ([]string, error) {
	files, err := labimage.List(s.RemovedImageDir(split))
	if err != nil {
		return nil, err
	}
	return lo.Map(files, func(p string, _ int) string { return filepath.Base(p) }), nil
}

// Restore moves a removed image and its labels back into split. It returns the
// updated image list and the filenames still removed.
func (s *Store) Restore(split, filename string) ([]string, []string, error) {
	if filename == "" || filepath.Base(filename) != filename {
		return nil, nil, fmt.Errorf("invalid filename %q", filename)
	}
	src := filepath.Join(s.RemovedImageDir(split), filename)
	if !isFile(src) {
		return nil, nil, fmt.Errorf("removed file %s: %w", filename, ErrNotFound)
	}
	base := labimage.BaseName(filename)

	if err := moveFile(src, filepath.Join(s.ImageDir(split), filename)); err != nil {
		return nil, nil, fmt.Errorf("failed to restore image %s: %w", filename, err)
	}
	if err := os.MkdirAll(s.LabelDir(split), 0o755); err != nil {
		return nil, nil, err
	}
	for _, ext := range labelExts {
		lbl := filepath.Join(s.RemovedLabelDir(split), base+ext)
		if !isFile(lbl) {
			continue
		}
		if err := moveFile(lbl, filepath.Join(s.LabelDir(split), base+ext)); err != nil {
			return nil, nil, fmt.Errorf("failed to restore label %s: %w", lbl, err)
		}
	}
	logger.Infof("Restored %s to split %s", filename, split)

	images, err := s.Images(split)
	if err != nil {
		return nil, nil, err
	}
	removed, err := s.Removed(split)
	if err != nil {
		return nil, nil, err
	}
	return images, removed, nil
}

// moveFile renames src to dst, creating dst's directory, and falls back to
// copy and delete when a rename is not possible.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		in.Close()
		return err
	}
	_, err = io.Copy(out, in)
	in.Close()
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
