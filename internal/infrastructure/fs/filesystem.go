// Package fs provides file system access and the on-disk deployment history.
package fs

import (
	"io"
	"os"
)

// FileSystem abstracts OS file operations
type FileSystem interface {
	Stat(name string) (os.FileInfo, error)
	Open(name string) (io.ReadCloser, error)
	ReadDir(name string) ([]os.DirEntry, error)
	Create(name string, perm os.FileMode) (io.WriteCloser, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	MkdirTemp(dir, pattern string) (string, error)
	RemoveAll(path string) error
}

// DefaultFileSystem implements FileSystem using OS calls
type DefaultFileSystem struct{}

// NewFileSystem creates a new default file system implementation
func NewFileSystem() FileSystem {
	return &DefaultFileSystem{}
}

// Stat returns file info, following symbolic links
func (fs *DefaultFileSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

// Open opens a file for reading
func (fs *DefaultFileSystem) Open(name string) (io.ReadCloser, error) {
	return os.Open(name)
}

// ReadDir lists a directory sorted by file name
func (fs *DefaultFileSystem) ReadDir(name string) ([]os.DirEntry, error) {
	return os.ReadDir(name)
}

// Create creates or truncates a file with the given permissions
func (fs *DefaultFileSystem) Create(name string, perm os.FileMode) (io.WriteCloser, error) {
	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, perm)
}

// ReadFile reads a whole file
func (fs *DefaultFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile writes a whole file
func (fs *DefaultFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// MkdirAll creates a directory and any missing parents
func (fs *DefaultFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// MkdirTemp creates a new temporary directory
func (fs *DefaultFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

// RemoveAll removes a path and its children
func (fs *DefaultFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}
