package fs

import (
	"io"
	"os"
)

// MockFileSystem implements FileSystem for testing. Every method without a
// configured func delegates to the real file system, so tests only stub the
// call they want to fail.
type MockFileSystem struct {
	StatFunc      func(name string) (os.FileInfo, error)
	OpenFunc      func(name string) (io.ReadCloser, error)
	ReadDirFunc   func(name string) ([]os.DirEntry, error)
	CreateFunc    func(name string, perm os.FileMode) (io.WriteCloser, error)
	ReadFileFunc  func(name string) ([]byte, error)
	WriteFileFunc func(name string, data []byte, perm os.FileMode) error
	MkdirAllFunc  func(path string, perm os.FileMode) error
	MkdirTempFunc func(dir, pattern string) (string, error)
	RemoveAllFunc func(path string) error

	real DefaultFileSystem
}

// Stat mocks the Stat method of FileSystem interface
func (m *MockFileSystem) Stat(name string) (os.FileInfo, error) {
	if m.StatFunc != nil {
		return m.StatFunc(name)
	}
	return m.real.Stat(name)
}

// Open mocks the Open method of FileSystem interface
func (m *MockFileSystem) Open(name string) (io.ReadCloser, error) {
	if m.OpenFunc != nil {
		return m.OpenFunc(name)
	}
	return m.real.Open(name)
}

// ReadDir mocks the ReadDir method of FileSystem interface
func (m *MockFileSystem) ReadDir(name string) ([]os.DirEntry, error) {
	if m.ReadDirFunc != nil {
		return m.ReadDirFunc(name)
	}
	return m.real.ReadDir(name)
}

// Create mocks the Create method of FileSystem interface
func (m *MockFileSystem) Create(name string, perm os.FileMode) (io.WriteCloser, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(name, perm)
	}
	return m.real.Create(name, perm)
}

// ReadFile mocks the ReadFile method of FileSystem interface
func (m *MockFileSystem) ReadFile(name string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(name)
	}
	return m.real.ReadFile(name)
}

// WriteFile mocks the WriteFile method of FileSystem interface
func (m *MockFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	if m.WriteFileFunc != nil {
		return m.WriteFileFunc(name, data, perm)
	}
	return m.real.WriteFile(name, data, perm)
}

// MkdirAll mocks the MkdirAll method of FileSystem interface
func (m *MockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	if m.MkdirAllFunc != nil {
		return m.MkdirAllFunc(path, perm)
	}
	return m.real.MkdirAll(path, perm)
}

// MkdirTemp mocks the MkdirTemp method of FileSystem interface
func (m *MockFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	if m.MkdirTempFunc != nil {
		return m.MkdirTempFunc(dir, pattern)
	}
	return m.real.MkdirTemp(dir, pattern)
}

// RemoveAll mocks the RemoveAll method of FileSystem interface
func (m *MockFileSystem) RemoveAll(path string) error {
	if m.RemoveAllFunc != nil {
		return m.RemoveAllFunc(path)
	}
	return m.real.RemoveAll(path)
}

// MockWriteCloser implements io.WriteCloser for testing
type MockWriteCloser struct {
	WriteFunc func(p []byte) (n int, err error)
	CloseFunc func() error
}

// Write implements io.Writer for MockWriteCloser
func (m *MockWriteCloser) Write(p []byte) (n int, err error) {
	if m.WriteFunc != nil {
		return m.WriteFunc(p)
	}
	return len(p), nil
}

// Close implements io.Closer for MockWriteCloser
func (m *MockWriteCloser) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

var _ FileSystem = (*MockFileSystem)(nil)
