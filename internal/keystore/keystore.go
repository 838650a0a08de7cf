// Package keystore writes and reads the generated certificates, keys and
// profiles. Names are slash separated and relative to the store root.
package keystore

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const (
	// CertMode is used for certificates, DH parameters and profiles.
	CertMode os.FileMode = 0o644

	// KeyMode is used for private keys.
	KeyMode os.FileMode = 0o600
)

// Store is where a run writes its artifacts.
type Store interface {
	WriteFile(name string, data []byte, perm os.FileMode) error
	ReadFile(name string) ([]byte, error)
}

// ErrNotExist is returned when a file is missing from a store.
var ErrNotExist = fs.ErrNotExist

func cleanName(name string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))[1:]
	if clean == "" || clean == "." {
		return "", errors.Errorf("invalid file name %q", name)
	}
	return clean, nil
}

// FS stores files below a directory on disk.
type FS struct {
	Root string
}

// NewFS returns a store rooted at dir. The directory is created on first
// write.
func NewFS(dir string) *FS {
	return &FS{Root: dir}
}

// WriteFile writes data to name, creating parent directories.
func (s *FS) WriteFile(name string, data []byte, perm os.FileMode) error {
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	p := filepath.Join(s.Root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrapf(err, "could not create directory for %q", p)
	}
	if err := os.WriteFile(p, data, perm); err != nil {
		return errors.Wrapf(err, "could not write %q", p)
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(p, perm); err != nil {
		return errors.Wrapf(err, "could not set mode of %q", p)
	}
	return nil
}

// ReadFile reads name.
func (s *FS) ReadFile(name string) ([]byte, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	p := filepath.Join(s.Root, filepath.FromSlash(clean))
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %q", p)
	}
	return data, nil
}

// Path returns the on-disk path of name, for messages shown to the user.
func (s *FS) Path(name string) string {
	return filepath.Join(s.Root, filepath.FromSlash(name))
}

// Memory is an in-memory Store.
type Memory struct {
	mu    sync.Mutex
	files map[string]memFile
}

type memFile struct {
	data []byte
	perm os.FileMode
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{files: make(map[string]memFile)}
}

// WriteFile stores a copy of data.
func (m *Memory) WriteFile(name string, data []byte, perm os.FileMode) error {
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[clean] = memFile{data: append([]byte(nil), data...), perm: perm}
	return nil
}

// ReadFile returns a copy of the stored data.
func (m *Memory) ReadFile(name string) ([]byte, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[clean]
	if !ok {
		return nil, errors.Wrapf(ErrNotExist, "could not read %q", clean)
	}
	return append([]byte(nil), f.data...), nil
}

// Names lists the stored files in lexical order.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.files))
	for n := range m.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Mode returns the permissions name was written with.
func (m *Memory) Mode(name string) (os.FileMode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[name]
	return f.perm, ok
}
