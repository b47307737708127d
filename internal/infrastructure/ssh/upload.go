package ssh

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// scp sink protocol status bytes
const (
	scpOK      = 0
	scpWarning = 1
	scpFatal   = 2
)

// OpenUpload starts an scp sink for remotePath and announces the file with
// its exact size. The returned channel refuses to write past size and fails
// to close unless exactly size bytes were written.
func (s *Session) OpenUpload(remotePath string, size int64, mode os.FileMode) (io.WriteCloser, error) {
	if s.closed {
		return nil, errors.New("session is closed")
	}
	if s.uploading {
		return nil, errors.New("an upload is already in progress on this session")
	}
	if size < 0 {
		return nil, fmt.Errorf("invalid upload size %d", size)
	}

	session, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	channel, err := startSink(session, remotePath, size, mode)
	if err != nil {
		_ = session.Close()
		return nil, err
	}

	s.uploading = true
	channel.done = func() { s.uploading = false }
	return channel, nil
}

func startSink(session RemoteSession, remotePath string, size int64, mode os.FileMode) (*uploadChannel, error) {
	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	dir, name := path.Split(remotePath)
	if dir == "" {
		dir = "."
	}
	if err := session.Start("scp -qt " + dir); err != nil {
		return nil, fmt.Errorf("failed to start scp: %w", err)
	}

	acks := bufio.NewReader(stdout)
	if err := readAck(acks); err != nil {
		return nil, err
	}

	if _, err := fmt.Fprintf(stdin, "C%04o %d %s\n", mode.Perm(), size, name); err != nil {
		return nil, fmt.Errorf("failed to send file header: %w", err)
	}
	if err := readAck(acks); err != nil {
		return nil, err
	}

	return &uploadChannel{
		session: session,
		stdin:   stdin,
		acks:    acks,
		size:    size,
	}, nil
}

// uploadChannel carries the body of one scp transfer
type uploadChannel struct {
	session RemoteSession
	stdin   io.WriteCloser
	acks    *bufio.Reader
	size    int64
	written int64
	closed  bool
	done    func()
}

func (c *uploadChannel) Write(p []byte) (int, error) {
	if c.closed {
		return 0, errors.New("upload channel is closed")
	}
	if c.written+int64(len(p)) > c.size {
		return 0, fmt.Errorf("write of %d bytes exceeds declared size %d (already written %d)", len(p), c.size, c.written)
	}

	n, err := c.stdin.Write(p)
	c.written += int64(n)
	return n, err
}

// Close completes the transfer and waits for the remote scp to exit.
func (c *uploadChannel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	defer func() {
		_ = c.session.Close()
		if c.done != nil {
			c.done()
		}
	}()

	if c.written != c.size {
		_ = c.stdin.Close()
		return fmt.Errorf("upload incomplete: wrote %d of %d declared bytes", c.written, c.size)
	}

	if _, err := c.stdin.Write([]byte{scpOK}); err != nil {
		return fmt.Errorf("failed to finish upload: %w", err)
	}
	if err := readAck(c.acks); err != nil {
		return err
	}
	if err := c.stdin.Close(); err != nil {
		return fmt.Errorf("failed to close upload stream: %w", err)
	}
	if err := c.session.Wait(); err != nil {
		return fmt.Errorf("remote scp failed: %w", err)
	}
	return nil
}

// readAck reads one scp status byte and, for errors, the message after it
func readAck(r *bufio.Reader) error {
	status, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read scp acknowledgement: %w", err)
	}

	switch status {
	case scpOK:
		return nil
	case scpWarning, scpFatal:
		msg, _ := r.ReadString('\n')
		return fmt.Errorf("scp: %s", strings.TrimSpace(msg))
	default:
		return fmt.Errorf("unexpected scp acknowledgement %q", status)
	}
}
