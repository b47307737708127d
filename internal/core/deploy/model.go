package deploy

import (
	"path"
	"strings"
	"time"

	"github.com/nickalie/ddc/internal/core/target"
)

const (
	// MB is the chunk size unit used by the transfer engine.
	MB = 1_000_000
	// DefaultChunkSize is how many bytes are read and written per upload chunk.
	DefaultChunkSize = 1 * MB
	// DefaultRemoteRoot is the deployment directory template; {{user}} is the login user.
	DefaultRemoteRoot = "/home/{{user}}/web"
	// DefaultRemoteTmpDir is where the archive is uploaded before extraction.
	DefaultRemoteTmpDir = "/tmp"
	// DefaultArchiveFolder is the single top-level folder inside every archive.
	DefaultArchiveFolder = "deployment"
	// DefaultIgnoreFile is the project ignore file consulted by the packager.
	DefaultIgnoreFile = ".ddcignore"
	// DefaultComposeCommand runs the orchestration tool on the remote host.
	DefaultComposeCommand = "docker-compose"
	// DefaultComposeFile is the compose file name expected in the project root.
	DefaultComposeFile = "docker-compose.yml"

	// ArchiveMode is the permission the uploaded archive is created with.
	ArchiveMode = 0o644
)

// Settings is the explicit configuration of one deployment run.
type Settings struct {
	// ProjectDir is the local tree that gets packaged.
	ProjectDir string
	// RemoteRoot is the target deployment directory; may contain {{user}}.
	RemoteRoot     string
	RemoteTmpDir   string
	ComposeCommand string
	ComposeFile    string
	ChunkSize      int
	ArchiveFolder  string
	// Exclude overrides both the ignore file and the built-in defaults.
	Exclude    []string
	IgnoreFile string
	// OutputDir is where the local archive is written; empty means the OS temp dir.
	OutputDir     string
	SkipUnchanged bool
}

// DefaultSettings returns settings with every field at its default.
func DefaultSettings() Settings {
	return Settings{
		ProjectDir:     ".",
		RemoteRoot:     DefaultRemoteRoot,
		RemoteTmpDir:   DefaultRemoteTmpDir,
		ComposeCommand: DefaultComposeCommand,
		ComposeFile:    DefaultComposeFile,
		ChunkSize:      DefaultChunkSize,
		ArchiveFolder:  DefaultArchiveFolder,
		IgnoreFile:     DefaultIgnoreFile,
	}
}

// WithDefaults fills empty fields with their defaults.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.ProjectDir == "" {
		s.ProjectDir = d.ProjectDir
	}
	if s.RemoteRoot == "" {
		s.RemoteRoot = d.RemoteRoot
	}
	if s.RemoteTmpDir == "" {
		s.RemoteTmpDir = d.RemoteTmpDir
	}
	if s.ComposeCommand == "" {
		s.ComposeCommand = d.ComposeCommand
	}
	if s.ComposeFile == "" {
		s.ComposeFile = d.ComposeFile
	}
	if s.ChunkSize <= 0 {
		s.ChunkSize = d.ChunkSize
	}
	if s.ArchiveFolder == "" {
		s.ArchiveFolder = d.ArchiveFolder
	}
	if s.IgnoreFile == "" {
		s.IgnoreFile = d.IgnoreFile
	}
	return s
}

// RootFor resolves the remote deployment directory for a login user.
func (s Settings) RootFor(user string) string {
	return strings.ReplaceAll(s.RemoteRoot, "{{user}}", user)
}

// UploadPath is the remote temporary path of an archive.
func (s Settings) UploadPath(archiveName string) string {
	return path.Join(s.RemoteTmpDir, archiveName)
}

// Artifact is the packaged deployable unit.
type Artifact struct {
	Path   string
	Name   string
	Size   int64
	Files  int
	Digest string
}

// RemoteStep is one command of the remote redeploy sequence.
type RemoteStep struct {
	Command     string
	Description string
	// Fatal steps stop the sequence when they exit non-zero.
	Fatal bool
}

// StepResult is what a remote command produced.
type StepResult struct {
	// Output holds stdout followed by stderr.
	Output   string
	ExitCode int
}

// Success reports whether the command exited with code zero.
func (r StepResult) Success() bool {
	return r.ExitCode == 0
}

// TransferReport describes a completed upload.
type TransferReport struct {
	RemotePath string
	Bytes      int64
	Chunks     int
}

// Run is the aggregate of a single deploy invocation.
type Run struct {
	Target    *target.Target
	Settings  Settings
	Artifact  *Artifact
	Transfer  *TransferReport
	Results   []StepResult
	Skipped   bool
	StartedAt time.Time
	Duration  time.Duration
}
