package keystore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFSWriteRead(t *testing.T) {
	dir := t.TempDir()
	s := NewFS(filepath.Join(dir, "output"))

	if err := s.WriteFile("alice/alice.key", []byte("key"), KeyMode); err != nil {
		t.Fatal(err)
	}
	data, err := s.ReadFile("alice/alice.key")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte("key"), data); diff != "" {
		t.Fatal(diff)
	}
	info, err := os.Stat(s.Path("alice/alice.key"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != KeyMode {
		t.Fatalf("unexpected mode %v", info.Mode().Perm())
	}
}

func TestFSRewriteChangesMode(t *testing.T) {
	s := NewFS(t.TempDir())
	if err := s.WriteFile("ca.key", []byte("a"), CertMode); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteFile("ca.key", []byte("b"), KeyMode); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(s.Path("ca.key"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != KeyMode {
		t.Fatalf("unexpected mode %v", info.Mode().Perm())
	}
}

func TestFSReadMissing(t *testing.T) {
	s := NewFS(t.TempDir())
	if _, err := s.ReadFile("ca.crt"); !errors.Is(err, ErrNotExist) {
		t.Fatal("expected ErrNotExist, got", err)
	}
}

func TestNamesStayInsideRoot(t *testing.T) {
	dir := t.TempDir()
	s := NewFS(filepath.Join(dir, "root"))
	if err := s.WriteFile("../escape.crt", []byte("x"), CertMode); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "root", "escape.crt")); err != nil {
		t.Fatal("expected the file inside the root:", err)
	}
	if err := s.WriteFile("..", nil, CertMode); err == nil {
		t.Fatal("expected an error for an empty name")
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	if err := m.WriteFile("b/b.crt", []byte("cert"), CertMode); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteFile("a.key", []byte("key"), KeyMode); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a.key", "b/b.crt"}, m.Names()); diff != "" {
		t.Fatal(diff)
	}
	mode, ok := m.Mode("a.key")
	if !ok || mode != KeyMode {
		t.Fatal("unexpected mode", mode, ok)
	}
	if _, err := m.ReadFile("missing"); !errors.Is(err, ErrNotExist) {
		t.Fatal("expected ErrNotExist, got", err)
	}
}
