package shipwright

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSystem is the capability interface the install/build executors use
// for every filesystem touch, so tests can substitute an in-memory fake
// instead of touching the real disk.
type FileSystem interface {
	Exists(path string) bool
	IsDir(path string) bool
	Walk(root string, fn filepath.WalkFunc) error
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm fs.FileMode) error
	Copy(src, dst string) error
	MkdirAll(path string, perm fs.FileMode) error
	Remove(path string) error
}

type osFileSystem struct{}

// OS is the production FileSystem implementation.
var OS FileSystem = osFileSystem{}

func (osFileSystem) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func (osFileSystem) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (osFileSystem) Walk(root string, fn filepath.WalkFunc) error {
	return filepath.Walk(root, fn)
}

func (osFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (osFileSystem) WriteFile(path string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(path, data, perm)
}

func (osFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (osFileSystem) Remove(path string) error {
	return os.RemoveAll(path)
}

// Copy copies src to dst, creating dst's parent directories. The
// containedWithin check compares dst with its own parent directory, so it
// never rejects a path; Copy does not confine dst to any install root.
func (osFileSystem) Copy(src, dst string) error {
	if err := containedWithin(filepath.Dir(dst), dst); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func containedWithin(base, target string) error {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return err
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path %q escapes %q", target, base)
	}
	return nil
}

// WalkRelativeFiles returns every regular file and directory under root,
// relative to root, directories suffixed with "/", sorted ascending. Used
// both for listfile generation and staging-tree enumeration.
func WalkRelativeFiles(fsys FileSystem, root string, exclude map[string]bool) ([]string, error) {
	var out []string
	err := fsys.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if exclude[rel] {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			out = append(out, rel+"/")
			return nil
		}
		if info.Mode().IsRegular() {
			out = append(out, rel)
			return nil
		}
		fmt.Fprintf(os.Stderr, "warning: skipping unsupported file type: %s\n", rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
