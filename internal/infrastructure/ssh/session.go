package ssh

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/nickalie/ddc/internal/core/deploy"
)

// RemoteSession is a single channel on an SSH connection
type RemoteSession interface {
	Start(cmd string) error
	Wait() error
	StdinPipe() (io.WriteCloser, error)
	StdoutPipe() (io.Reader, error)
	StderrPipe() (io.Reader, error)
	Close() error
}

// ClientInterface represents SSH client functionality
type ClientInterface interface {
	NewSession() (RemoteSession, error)
	Close() error
}

// SFTPClientInterface represents the SFTP functionality used to inspect uploads
type SFTPClientInterface interface {
	Stat(path string) (os.FileInfo, error)
	Close() error
}

// SSHAdapter adapts ssh.Client to our ClientInterface
type SSHAdapter struct {
	*ssh.Client
}

// NewSSHAdapter creates a new SSHAdapter instance
func NewSSHAdapter(client *ssh.Client) ClientInterface {
	return &SSHAdapter{Client: client}
}

// NewSession opens a new session channel on the underlying connection
func (a *SSHAdapter) NewSession() (RemoteSession, error) {
	return a.Client.NewSession()
}

// SFTPAdapter adapts sftp.Client to our SFTPClientInterface
type SFTPAdapter struct {
	*sftp.Client
}

// NewSFTPAdapter creates a new SFTPAdapter instance wrapping the provided sftp.Client
func NewSFTPAdapter(client *sftp.Client) SFTPClientInterface {
	return &SFTPAdapter{Client: client}
}

// exitStatus is implemented by *ssh.ExitError
type exitStatus interface {
	ExitStatus() int
}

// Session implements deploy.Session over one SSH connection. It opens a
// fresh channel per command or upload and never runs two at once.
type Session struct {
	client     ClientInterface
	newSFTP    func() (SFTPClientInterface, error)
	sftpClient SFTPClientInterface
	closers    []io.Closer
	uploading  bool
	closed     bool
}

// NewSession wraps an authenticated client. newSFTP is called lazily the
// first time a remote file has to be inspected.
func NewSession(client ClientInterface, newSFTP func() (SFTPClientInterface, error)) *Session {
	return &Session{client: client, newSFTP: newSFTP}
}

// Run executes command on the remote host. Stdout is streamed to the writer
// while it arrives; stderr is collected concurrently so that a chatty
// command cannot stall the channel. A non-zero exit is reported through the
// result, not as an error.
func (s *Session) Run(command string, stdout io.Writer) (deploy.StepResult, error) {
	if s.closed {
		return deploy.StepResult{}, errors.New("session is closed")
	}
	if s.uploading {
		return deploy.StepResult{}, errors.New("an upload is in progress on this session")
	}

	session, err := s.client.NewSession()
	if err != nil {
		return deploy.StepResult{}, fmt.Errorf("failed to open channel: %w", err)
	}
	defer session.Close()

	stdoutPipe, err := session.StdoutPipe()
	if err != nil {
		return deploy.StepResult{}, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	stderrPipe, err := session.StderrPipe()
	if err != nil {
		return deploy.StepResult{}, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := session.Start(command); err != nil {
		return deploy.StepResult{}, fmt.Errorf("failed to start command: %w", err)
	}

	var stderrBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&stderrBuf, stderrPipe)
	}()

	var stdoutBuf bytes.Buffer
	if stdout == nil {
		stdout = io.Discard
	}
	_, copyErr := io.Copy(io.MultiWriter(&stdoutBuf, stdout), stdoutPipe)
	wg.Wait()

	waitErr := session.Wait()

	result := deploy.StepResult{Output: stdoutBuf.String() + stderrBuf.String()}
	if waitErr != nil {
		var status exitStatus
		if !errors.As(waitErr, &status) {
			return result, fmt.Errorf("failed to wait for command: %w", waitErr)
		}
		result.ExitCode = status.ExitStatus()
	}
	if copyErr != nil {
		return result, fmt.Errorf("failed to read command output: %w", copyErr)
	}

	return result, nil
}

// RemoteSize returns the size of a remote file as reported over SFTP
func (s *Session) RemoteSize(remotePath string) (int64, error) {
	if s.sftpClient == nil {
		if s.newSFTP == nil {
			return 0, errors.New("sftp is not available")
		}
		client, err := s.newSFTP()
		if err != nil {
			return 0, fmt.Errorf("failed to start sftp: %w", err)
		}
		s.sftpClient = client
	}

	info, err := s.sftpClient.Stat(remotePath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", remotePath, err)
	}
	return info.Size(), nil
}

// Close releases the SFTP client, the connection and anything tied to it
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.sftpClient != nil {
		if err := s.sftpClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.client.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ deploy.Session = (*Session)(nil)
