package detector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// ErrModelNotFound is returned when a model path does not exist.
var ErrModelNotFound = errors.New("model not found")

// fallbackModel is used when the library is empty and no model is given.
const fallbackModel = "yolo26m.pt"

// Library is the ordered list of known model ids: bare model names the
// backend can fetch by itself, or absolute paths of imported model files.
type Library struct {
	mu     sync.RWMutex
	models []string
}

// NewLibrary creates a Library with the given models.
func NewLibrary(models ...string) *Library {
	return &Library{models: lo.Uniq(lo.Compact(models))}
}

// Models returns the known model ids in order.
func (l *Library) Models() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.models...)
}

// Import adds a model file to the library and returns its id.
func (l *Library) Import(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.ToSlash(abs)
	if info, err := os.Stat(abs); err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s: %w", path, ErrModelNotFound)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !lo.Contains(l.models, abs) {
		l.models = append(l.models, abs)
	}
	return abs, nil
}

// Resolve maps a user-supplied model reference to a model id. An existing file
// resolves to its absolute path, a bare file name is passed through for the
// backend to locate, and an empty reference selects the first library model.
// Any other path is ErrModelNotFound.
func (l *Library) Resolve(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		l.mu.RLock()
		defer l.mu.RUnlock()
		if len(l.models) > 0 {
			return l.models[0], nil
		}
		return fallbackModel, nil
	}
	if abs, err := filepath.Abs(raw); err == nil {
		if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
			return filepath.ToSlash(abs), nil
		}
	}
	if !strings.ContainsAny(raw, `/\`) {
		return raw, nil
	}
	return "", fmt.Errorf("%s: %w", raw, ErrModelNotFound)
}
