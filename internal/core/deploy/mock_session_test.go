package deploy

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/stretchr/testify/mock"

	"github.com/nickalie/ddc/internal/core/target"
)

// fakeSession implements Session, recording commands and uploaded bytes
type fakeSession struct {
	RunFunc        func(command string) (StepResult, error)
	OpenUploadErr  error
	RemoteSizeFunc func(path string) (int64, error)
	CloseFunc      func() error

	commands     []string
	channel      *recordingChannel
	declaredPath string
	declaredSize int64
	declaredMode os.FileMode
	closed       int
}

func (f *fakeSession) Run(command string, stdout io.Writer) (StepResult, error) {
	f.commands = append(f.commands, command)
	if f.RunFunc != nil {
		return f.RunFunc(command)
	}
	return StepResult{}, nil
}

func (f *fakeSession) OpenUpload(remotePath string, size int64, mode os.FileMode) (io.WriteCloser, error) {
	if f.OpenUploadErr != nil {
		return nil, f.OpenUploadErr
	}
	f.declaredPath = remotePath
	f.declaredSize = size
	f.declaredMode = mode
	if f.channel == nil {
		f.channel = &recordingChannel{}
	}
	return f.channel, nil
}

func (f *fakeSession) RemoteSize(path string) (int64, error) {
	if f.RemoteSizeFunc != nil {
		return f.RemoteSizeFunc(path)
	}
	if f.channel == nil {
		return 0, errors.New("no upload")
	}
	return int64(f.channel.buf.Len()), nil
}

func (f *fakeSession) Close() error {
	f.closed++
	if f.CloseFunc != nil {
		return f.CloseFunc()
	}
	return nil
}

// recordingChannel captures every Write call made by the transfer engine
type recordingChannel struct {
	buf        bytes.Buffer
	writes     int
	WriteErrAt int
	CloseErr   error
	closed     bool
}

func (c *recordingChannel) Write(p []byte) (int, error) {
	c.writes++
	if c.WriteErrAt > 0 && c.writes == c.WriteErrAt {
		return 0, errors.New("channel write failed")
	}
	return c.buf.Write(p)
}

func (c *recordingChannel) Close() error {
	c.closed = true
	return c.CloseErr
}

// MockSessionFactory mocks the SessionFactory interface for testing
type MockSessionFactory struct {
	mock.Mock
}

// Open implements the SessionFactory.Open method
func (m *MockSessionFactory) Open(tgt *target.Target) (Session, error) {
	args := m.Called(tgt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Session), args.Error(1)
}

// MockPackager mocks the Packager interface for testing
type MockPackager struct {
	mock.Mock
}

// Package implements the Packager.Package method
func (m *MockPackager) Package(settings Settings) (*Artifact, error) {
	args := m.Called(settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Artifact), args.Error(1)
}

// MockRunner mocks the ProcessRunner interface for testing
type MockRunner struct {
	mock.Mock
}

// Run implements the ProcessRunner.Run method
func (m *MockRunner) Run(name string, args ...string) (bool, error) {
	callArgs := m.Called(name, args)
	return callArgs.Bool(0), callArgs.Error(1)
}

// MockHistoryStorage implements HistoryStorage for testing
type MockHistoryStorage struct {
	RecordFunc func(entry HistoryEntry) error
	LastFunc   func(targetName string) (*HistoryEntry, error)
	recorded   []HistoryEntry
}

func (m *MockHistoryStorage) Record(entry HistoryEntry) error {
	m.recorded = append(m.recorded, entry)
	if m.RecordFunc != nil {
		return m.RecordFunc(entry)
	}
	return nil
}

func (m *MockHistoryStorage) Last(targetName string) (*HistoryEntry, error) {
	if m.LastFunc != nil {
		return m.LastFunc(targetName)
	}
	return nil, nil
}

func (m *MockHistoryStorage) List() ([]HistoryEntry, error) {
	return m.recorded, nil
}

func (m *MockHistoryStorage) Clear() error {
	m.recorded = nil
	return nil
}

// Ensure the fakes implement the interfaces
var (
	_ Session        = (*fakeSession)(nil)
	_ HistoryStorage = (*MockHistoryStorage)(nil)
)
