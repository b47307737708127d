package ssh

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"
)

// MockRemoteSession for testing
type MockRemoteSession struct {
	StartFunc      func(string) error
	WaitFunc       func() error
	StdinPipeFunc  func() (io.WriteCloser, error)
	StdoutPipeFunc func() (io.Reader, error)
	StderrPipeFunc func() (io.Reader, error)
	CloseFunc      func() error

	started []string
	closed  int
}

func (m *MockRemoteSession) Start(cmd string) error {
	m.started = append(m.started, cmd)
	if m.StartFunc != nil {
		return m.StartFunc(cmd)
	}
	return nil
}

func (m *MockRemoteSession) Wait() error {
	if m.WaitFunc != nil {
		return m.WaitFunc()
	}
	return nil
}

func (m *MockRemoteSession) StdinPipe() (io.WriteCloser, error) {
	if m.StdinPipeFunc != nil {
		return m.StdinPipeFunc()
	}
	return &bufferCloser{}, nil
}

func (m *MockRemoteSession) StdoutPipe() (io.Reader, error) {
	if m.StdoutPipeFunc != nil {
		return m.StdoutPipeFunc()
	}
	return &MockReader{}, nil
}

func (m *MockRemoteSession) StderrPipe() (io.Reader, error) {
	if m.StderrPipeFunc != nil {
		return m.StderrPipeFunc()
	}
	return &MockReader{}, nil
}

func (m *MockRemoteSession) Close() error {
	m.closed++
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// MockSSHClient for testing
type MockSSHClient struct {
	NewSessionFunc func() (RemoteSession, error)
	CloseFunc      func() error
	closed         bool
}

func (m *MockSSHClient) NewSession() (RemoteSession, error) {
	if m.NewSessionFunc != nil {
		return m.NewSessionFunc()
	}
	return &MockRemoteSession{}, nil
}

func (m *MockSSHClient) Close() error {
	m.closed = true
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// MockSFTPClient for testing
type MockSFTPClient struct {
	StatFunc  func(path string) (os.FileInfo, error)
	CloseFunc func() error
	closed    bool
}

func (m *MockSFTPClient) Stat(path string) (os.FileInfo, error) {
	if m.StatFunc != nil {
		return m.StatFunc(path)
	}
	return nil, errors.New("not implemented")
}

func (m *MockSFTPClient) Close() error {
	m.closed = true
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// MockReader implements io.Reader for testing
type MockReader struct {
	ReadFunc func(p []byte) (n int, err error)
}

func (m *MockReader) Read(p []byte) (n int, err error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(p)
	}
	return 0, io.EOF
}

// bufferCloser records what was written to a stdin pipe
type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

// fileInfo is a minimal os.FileInfo carrying a size
type fileInfo struct {
	size int64
}

func (f fileInfo) Name() string       { return "file" }
func (f fileInfo) Size() int64        { return f.size }
func (f fileInfo) Mode() os.FileMode  { return 0o644 }
func (f fileInfo) ModTime() time.Time { return time.Time{} }
func (f fileInfo) IsDir() bool        { return false }
func (f fileInfo) Sys() interface{}   { return nil }

// exitErr mimics *ssh.ExitError
type exitErr struct {
	code int
}

func (e *exitErr) Error() string   { return "Process exited with status" }
func (e *exitErr) ExitStatus() int { return e.code }
