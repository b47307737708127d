package deploy

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nickalie/ddc/internal/core/target"
)

type serviceFixture struct {
	factory  *MockSessionFactory
	packager *MockPackager
	runner   *MockRunner
	history  *MockHistoryStorage
	session  *fakeSession
	out      *bytes.Buffer
	target   *target.Target
	artifact *Artifact
	service  *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		factory:  new(MockSessionFactory),
		packager: new(MockPackager),
		runner:   new(MockRunner),
		history:  &MockHistoryStorage{},
		session:  &fakeSession{},
		out:      &bytes.Buffer{},
		target:   &target.Target{Name: "staging", Host: "10.0.0.5", User: "ubuntu"},
		artifact: writeArchive(t, 2500),
	}
	f.artifact.Digest = "sha256:abc"
	f.artifact.Files = 3

	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.service = NewService(f.factory, f.packager, f.runner,
		WithOutput(f.out),
		WithHistory(f.history),
		WithClock(func() time.Time { return clock }),
	)
	return f
}

func (f *serviceFixture) expectCleanup() {
	f.runner.On("Run", "rm", []string{"-f", f.artifact.Path}).Return(true, nil).Once()
}

func TestService_Deploy_Success(t *testing.T) {
	f := newServiceFixture(t)
	f.packager.On("Package", mock.AnythingOfType("deploy.Settings")).Return(f.artifact, nil)
	f.factory.On("Open", f.target).Return(f.session, nil)
	f.expectCleanup()

	run, err := f.service.Deploy(f.target, Settings{ProjectDir: ".", ChunkSize: 1000})

	require.NoError(t, err)
	assert.False(t, run.Skipped)
	assert.Equal(t, 3, run.Transfer.Chunks)
	assert.Len(t, run.Results, 6)
	assert.Equal(t, 1, f.session.closed, "session must be closed exactly once")
	assert.Equal(t, "/tmp/ddc-test.tar.gz", f.session.declaredPath)
	assert.Contains(t, f.out.String(), "Deployment to 'staging' completed")

	require.Len(t, f.history.recorded, 1)
	entry := f.history.recorded[0]
	assert.Equal(t, "staging", entry.Target)
	assert.Equal(t, "sha256:abc", entry.Digest)
	assert.Equal(t, 3, entry.Files)

	f.packager.AssertExpectations(t)
	f.factory.AssertExpectations(t)
	f.runner.AssertExpectations(t)
}

func TestService_Deploy_PackagingFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.packager.On("Package", mock.Anything).Return(nil, &PatternError{Pattern: "[", Cause: errors.New("syntax error in pattern")})

	_, err := f.service.Deploy(f.target, Settings{ProjectDir: "."})

	var patternErr *PatternError
	require.True(t, errors.As(err, &patternErr))
	f.factory.AssertNotCalled(t, "Open", mock.Anything)
	f.runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestService_Deploy_SessionFailureCleansUpOnce(t *testing.T) {
	f := newServiceFixture(t)
	f.packager.On("Package", mock.Anything).Return(f.artifact, nil)
	f.factory.On("Open", f.target).Return(nil, &AuthenticationError{User: "ubuntu", Method: "private key", Cause: errors.New("no such file")})
	f.expectCleanup()

	run, err := f.service.Deploy(f.target, Settings{ProjectDir: "."})

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Nil(t, run.Transfer)
	assert.Empty(t, f.history.recorded)
	f.runner.AssertNumberOfCalls(t, "Run", 1)
}

func TestService_Deploy_StepFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.session.RunFunc = func(command string) (StepResult, error) {
		if command == "cd /home/ubuntu/web && docker-compose -f docker-compose.yml up -d --build" {
			return StepResult{Output: "build failed", ExitCode: 1}, nil
		}
		return StepResult{}, nil
	}
	f.packager.On("Package", mock.Anything).Return(f.artifact, nil)
	f.factory.On("Open", f.target).Return(f.session, nil)
	f.expectCleanup()

	run, err := f.service.Deploy(f.target, Settings{ProjectDir: "."})

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "Build and start services", stepErr.Description)
	assert.Len(t, run.Results, 5)
	assert.Len(t, f.session.commands, 5)
	assert.Equal(t, 1, f.session.closed)
	assert.Empty(t, f.history.recorded, "failed runs are not recorded")
	f.runner.AssertNumberOfCalls(t, "Run", 1)
}

func TestService_Deploy_UploadFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.session.OpenUploadErr = errors.New("scp: /tmp: read-only file system")
	f.packager.On("Package", mock.Anything).Return(f.artifact, nil)
	f.factory.On("Open", f.target).Return(f.session, nil)
	f.expectCleanup()

	_, err := f.service.Deploy(f.target, Settings{ProjectDir: "."})

	var sessErr *SessionError
	require.True(t, errors.As(err, &sessErr))
	assert.Empty(t, f.session.commands, "no remote step may run after a failed upload")
	assert.Equal(t, 1, f.session.closed)
	f.runner.AssertNumberOfCalls(t, "Run", 1)
}

func TestService_Deploy_CleanupFailureIsNotFatal(t *testing.T) {
	f := newServiceFixture(t)
	f.packager.On("Package", mock.Anything).Return(f.artifact, nil)
	f.factory.On("Open", f.target).Return(f.session, nil)
	f.runner.On("Run", "rm", []string{"-f", f.artifact.Path}).Return(false, errors.New("exec: rm not found"))

	_, err := f.service.Deploy(f.target, Settings{ProjectDir: "."})

	assert.NoError(t, err)
}

func TestService_Deploy_SkipUnchanged(t *testing.T) {
	f := newServiceFixture(t)
	f.history.LastFunc = func(name string) (*HistoryEntry, error) {
		assert.Equal(t, "staging", name)
		return &HistoryEntry{Target: name, Digest: "sha256:abc"}, nil
	}
	f.packager.On("Package", mock.Anything).Return(f.artifact, nil)
	f.expectCleanup()

	run, err := f.service.Deploy(f.target, Settings{ProjectDir: ".", SkipUnchanged: true})

	require.NoError(t, err)
	assert.True(t, run.Skipped)
	assert.Contains(t, f.out.String(), "No changes since last deployment to 'staging'")
	f.factory.AssertNotCalled(t, "Open", mock.Anything)
	f.runner.AssertExpectations(t)
}

func TestService_Deploy_ChangedDigestIsDeployed(t *testing.T) {
	f := newServiceFixture(t)
	f.history.LastFunc = func(name string) (*HistoryEntry, error) {
		return &HistoryEntry{Target: name, Digest: "sha256:old"}, nil
	}
	f.packager.On("Package", mock.Anything).Return(f.artifact, nil)
	f.factory.On("Open", f.target).Return(f.session, nil)
	f.expectCleanup()

	run, err := f.service.Deploy(f.target, Settings{ProjectDir: ".", SkipUnchanged: true})

	require.NoError(t, err)
	assert.False(t, run.Skipped)
	assert.Len(t, f.history.recorded, 1)
}

func TestService_Deploy_HistoryWriteFailureWarns(t *testing.T) {
	f := newServiceFixture(t)
	f.history.RecordFunc = func(HistoryEntry) error { return errors.New("disk full") }
	f.packager.On("Package", mock.Anything).Return(f.artifact, nil)
	f.factory.On("Open", f.target).Return(f.session, nil)
	f.expectCleanup()

	_, err := f.service.Deploy(f.target, Settings{ProjectDir: "."})

	require.NoError(t, err)
	assert.Contains(t, f.out.String(), "Warning: failed to record deployment: disk full")
}
