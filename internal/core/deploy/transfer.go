package deploy

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Transferer streams an archive to the remote host in fixed-size chunks.
type Transferer struct {
	fileSystem FileSystem
	chunkSize  int
	out        io.Writer
	logger     *zap.Logger
}

// NewTransferer creates a Transferer reading chunkSize bytes per write.
func NewTransferer(fileSystem FileSystem, chunkSize int, out io.Writer, logger *zap.Logger) *Transferer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transferer{fileSystem: fileSystem, chunkSize: chunkSize, out: out, logger: logger}
}

// Upload declares the artifact size up front, writes it chunk by chunk and
// verifies that the remote file ends up with exactly the same size.
// Nothing is retried; a partial upload fails the whole run.
func (t *Transferer) Upload(session Session, artifact *Artifact, remotePath string) (*TransferReport, error) {
	local, err := t.fileSystem.Open(artifact.Path)
	if err != nil {
		return nil, &IOError{Op: "open archive", Path: artifact.Path, Cause: err}
	}
	defer local.Close()

	channel, err := session.OpenUpload(remotePath, artifact.Size, ArchiveMode)
	if err != nil {
		return nil, asSessionError("open upload channel", err)
	}

	report := &TransferReport{RemotePath: remotePath}
	if err := t.copyChunks(local, channel, artifact, report); err != nil {
		_ = channel.Close()
		return report, err
	}

	if report.Bytes != artifact.Size {
		_ = channel.Close()
		return report, &SessionError{
			Op:    "upload",
			Cause: fmt.Errorf("transferred %d bytes, archive is %d bytes", report.Bytes, artifact.Size),
		}
	}

	if err := channel.Close(); err != nil {
		return report, asSessionError("close upload channel", err)
	}

	remoteSize, err := session.RemoteSize(remotePath)
	if err != nil {
		return report, asSessionError("stat uploaded archive", err)
	}
	if remoteSize != artifact.Size {
		return report, &SessionError{
			Op:    "verify upload",
			Cause: fmt.Errorf("remote file %s has %d bytes, expected %d", remotePath, remoteSize, artifact.Size),
		}
	}

	fmt.Fprintf(t.out, "Uploaded %s in %d chunks to %s\n",
		humanize.Bytes(uint64(report.Bytes)), report.Chunks, remotePath)
	return report, nil
}

func (t *Transferer) copyChunks(src io.Reader, dst io.Writer, artifact *Artifact, report *TransferReport) error {
	buf := make([]byte, t.chunkSize)
	for {
		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			written, err := dst.Write(buf[:n])
			report.Bytes += int64(written)
			if err != nil {
				return asSessionError("upload chunk", err)
			}
			report.Chunks++
			t.logger.Debug("uploaded chunk",
				zap.Int("chunk", report.Chunks),
				zap.Int64("bytes", report.Bytes),
				zap.Int64("total", artifact.Size))
		}

		switch {
		case readErr == nil:
			continue
		case errors.Is(readErr, io.EOF), errors.Is(readErr, io.ErrUnexpectedEOF):
			return nil
		default:
			return &IOError{Op: "read archive", Path: artifact.Path, Cause: readErr}
		}
	}
}

func asSessionError(op string, err error) error {
	var kind Error
	if errors.As(err, &kind) {
		return err
	}
	return &SessionError{Op: op, Cause: err}
}
