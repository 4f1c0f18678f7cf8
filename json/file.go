package json

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fwojciec/margin"
)

// FileName is the registry file name inside the data directory.
const FileName = "sessions.json"

// Interface compliance check.
var _ margin.Backend = (*File)(nil)

// File is a margin.Backend that rewrites the whole registry on every
// change.
type File struct {
	path string
}

// NewFile returns a File backend storing the registry at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the registry file path.
func (f *File) Path() string { return f.path }

// ReadRegistry implements margin.Backend. A missing file is an empty
// registry.
func (f *File) ReadRegistry(ctx context.Context) (*margin.Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reg, err := Load(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return margin.NewRegistry(), nil
	}
	return reg, err
}

// WriteRegistry implements margin.Backend. The change is ignored; the
// whole registry is written.
func (f *File) WriteRegistry(ctx context.Context, reg *margin.Registry, _ margin.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return Save(f.path, reg)
}

// Save writes a Registry to a JSON file, creating parent directories as
// needed.
func Save(path string, reg *margin.Registry) error {
	data, err := MarshalRegistry(reg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads a Registry from a JSON file.
func Load(path string) (*margin.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalRegistry(data)
}
