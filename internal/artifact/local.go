package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore keeps artifacts as files in one directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("artifact directory is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Root returns the backing directory.
func (s *LocalStore) Root() string {
	return s.root
}

// Put writes body to a temporary file and renames it into place so readers
// never see a partial artifact.
func (s *LocalStore) Put(ctx context.Context, name string, body io.Reader, size int64, contentType string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.root, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod artifact %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.root, name)); err != nil {
		return fmt.Errorf("store artifact %s: %w", name, err)
	}
	return nil
}

// Open returns the artifact contents.
func (s *LocalStore) Open(ctx context.Context, name string) (io.ReadCloser, Info, error) {
	if err := ValidName(name); err != nil {
		return nil, Info{}, err
	}
	f, err := os.Open(filepath.Join(s.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Info{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, Info{}, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Info{}, err
	}
	if st.IsDir() {
		f.Close()
		return nil, Info{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, Info{
		Name:        name,
		Size:        st.Size(),
		ContentType: ContentType(name),
		ModTime:     st.ModTime(),
	}, nil
}

// Check verifies the directory exists.
func (s *LocalStore) Check(ctx context.Context) error {
	st, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("artifact directory: %w", err)
	}
	if !st.IsDir() {
		return fmt.Errorf("artifact directory %s is not a directory", s.root)
	}
	return nil
}

var _ Store = (*LocalStore)(nil)
