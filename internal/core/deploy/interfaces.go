package deploy

import (
	"io"
	"os"

	"github.com/nickalie/ddc/internal/core/target"
)

// Session is an authenticated connection to one remote host.
// It is not safe for concurrent use.
type Session interface {
	// Run executes a command, streams its stdout to the writer and waits for the exit status.
	Run(command string, stdout io.Writer) (StepResult, error)
	// OpenUpload opens a channel that accepts exactly size bytes for remotePath.
	OpenUpload(remotePath string, size int64, mode os.FileMode) (io.WriteCloser, error)
	// RemoteSize returns the size of a remote file.
	RemoteSize(remotePath string) (int64, error)
	// Close releases the connection.
	Close() error
}

// SessionFactory opens sessions to targets.
type SessionFactory interface {
	Open(tgt *target.Target) (Session, error)
}

// Packager produces the deployment archive.
type Packager interface {
	Package(settings Settings) (*Artifact, error)
}

// ProcessRunner executes local commands, streaming their output to the terminal.
type ProcessRunner interface {
	Run(name string, args ...string) (bool, error)
}

// FileSystem is the subset of file operations the core needs.
type FileSystem interface {
	Open(name string) (io.ReadCloser, error)
}
