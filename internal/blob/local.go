package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps blobs under Root; they are served by the /media/ route.
type LocalStore struct {
	Root      string
	URLPrefix string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{Root: root, URLPrefix: "/media/"}
}

func (s *LocalStore) path(name string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(name))
	if name == "" || clean == string(filepath.Separator) || strings.Contains(name, "..") {
		return "", ErrInvalidName
	}
	return filepath.Join(s.Root, clean), nil
}

func (s *LocalStore) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	p, err := s.path(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("blob mkdir: %w", err)
	}
	// write then rename so readers never see a partial file
	tmp := p + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("blob write: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("blob rename: %w", err)
	}
	return s.URLPrefix + strings.TrimPrefix(filepath.ToSlash(name), "/"), nil
}

// Delete removes the blob behind ref. A missing blob is not an error.
func (s *LocalStore) Delete(_ context.Context, ref string) error {
	name, ok := strings.CutPrefix(ref, s.URLPrefix)
	if !ok {
		return ErrInvalidName
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blob delete: %w", err)
	}
	return nil
}
