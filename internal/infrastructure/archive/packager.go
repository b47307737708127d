// Package archive packages a project tree into the tar.gz deployment artifact.
package archive

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/nickalie/ddc/internal/core/deploy"
	"github.com/nickalie/ddc/internal/infrastructure/fs"
	"github.com/nickalie/ddc/internal/infrastructure/ignore"
)

// NamePrefix starts the file name of every generated archive.
const NamePrefix = "ddc-"

type sourceFile struct {
	rel     string
	path    string
	mode    os.FileMode
	modTime time.Time
}

// Packager implements deploy.Packager.
type Packager struct {
	fileSystem fs.FileSystem
	tempDir    string
	logger     *zap.Logger
}

// Option configures a Packager
type Option func(*Packager)

// WithFileSystem sets the file system used for staging and archive output
func WithFileSystem(fileSystem fs.FileSystem) Option {
	return func(p *Packager) {
		p.fileSystem = fileSystem
	}
}

// WithTempDir sets the directory holding the staging tree and, unless the
// settings name an output directory, the archive itself
func WithTempDir(dir string) Option {
	return func(p *Packager) {
		p.tempDir = dir
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Packager) {
		p.logger = logger
	}
}

// NewPackager creates a Packager with OS defaults.
func NewPackager(opts ...Option) *Packager {
	p := &Packager{
		fileSystem: fs.NewFileSystem(),
		tempDir:    os.TempDir(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Package builds the ignore set, stages every surviving regular file under
// settings.ArchiveFolder and compresses the staging tree into a uniquely
// named tar.gz. On error a partially written archive is left in place.
func (p *Packager) Package(settings deploy.Settings) (*deploy.Artifact, error) {
	settings = settings.WithDefaults()

	root, err := filepath.Abs(settings.ProjectDir)
	if err != nil {
		return nil, &deploy.IOError{Op: "resolve project dir", Path: settings.ProjectDir, Cause: err}
	}
	info, err := p.fileSystem.Stat(root)
	if err != nil {
		return nil, &deploy.IOError{Op: "stat project dir", Path: root, Cause: err}
	}
	if !info.IsDir() {
		return nil, &deploy.IOError{Op: "stat project dir", Path: root, Cause: fmt.Errorf("not a directory")}
	}

	set, err := ignore.Load(root, settings.IgnoreFile, settings.Exclude)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("ignore set built", zap.Strings("patterns", set.Patterns()))

	files, err := p.collect(root, set)
	if err != nil {
		return nil, err
	}

	stage, err := p.fileSystem.MkdirTemp(p.tempDir, "ddc-stage-*")
	if err != nil {
		return nil, &deploy.IOError{Op: "create staging dir", Path: p.tempDir, Cause: err}
	}
	defer func() {
		if err := p.fileSystem.RemoveAll(stage); err != nil {
			p.logger.Warn("failed to remove staging dir", zap.String("path", stage), zap.Error(err))
		}
	}()

	digest, err := p.stage(files, filepath.Join(stage, settings.ArchiveFolder))
	if err != nil {
		return nil, err
	}

	outDir := settings.OutputDir
	if outDir == "" {
		outDir = p.tempDir
	}
	name := NamePrefix + uuid.NewString() + ".tar.gz"
	archivePath := filepath.Join(outDir, name)

	if err := p.compress(stage, settings.ArchiveFolder, archivePath, files); err != nil {
		return nil, err
	}

	archiveInfo, err := p.fileSystem.Stat(archivePath)
	if err != nil {
		return nil, &deploy.IOError{Op: "stat archive", Path: archivePath, Cause: err}
	}

	p.logger.Debug("archive written",
		zap.String("path", archivePath),
		zap.Int("files", len(files)),
		zap.Int64("size", archiveInfo.Size()))

	return &deploy.Artifact{
		Path:   archivePath,
		Name:   name,
		Size:   archiveInfo.Size(),
		Files:  len(files),
		Digest: "sha256:" + digest,
	}, nil
}

// collect enumerates regular files under root, following symbolic links.
// A link back to a directory on the current path is not descended into.
func (p *Packager) collect(root string, set *ignore.Set) ([]sourceFile, error) {
	var files []sourceFile
	ancestors := make(map[string]bool)

	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return &deploy.IOError{Op: "resolve", Path: dir, Cause: err}
		}
		if ancestors[resolved] {
			p.logger.Debug("skipping symlink loop", zap.String("path", dir))
			return nil
		}
		ancestors[resolved] = true
		defer delete(ancestors, resolved)

		entries, err := p.fileSystem.ReadDir(dir)
		if err != nil {
			return &deploy.IOError{Op: "read dir", Path: dir, Cause: err}
		}

		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			entryRel := filepath.ToSlash(filepath.Join(rel, entry.Name()))

			info, err := p.fileSystem.Stat(full)
			if err != nil {
				return &deploy.IOError{Op: "stat", Path: full, Cause: err}
			}

			switch {
			case info.IsDir():
				if err := walk(full, entryRel); err != nil {
					return err
				}
			case info.Mode().IsRegular():
				ignored, err := set.Matches(entryRel)
				if err != nil {
					return err
				}
				if ignored {
					continue
				}
				files = append(files, sourceFile{
					rel:     entryRel,
					path:    full,
					mode:    info.Mode().Perm(),
					modTime: info.ModTime(),
				})
			}
		}
		return nil
	}

	if err := walk(root, ""); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })
	return files, nil
}

// stage copies files below dst and returns the hex SHA-256 over every
// relative path and its content.
func (p *Packager) stage(files []sourceFile, dst string) (string, error) {
	if err := p.fileSystem.MkdirAll(dst, 0o755); err != nil {
		return "", &deploy.IOError{Op: "create staging dir", Path: dst, Cause: err}
	}

	hash := sha256.New()
	for _, f := range files {
		target := filepath.Join(dst, filepath.FromSlash(f.rel))
		if err := p.fileSystem.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", &deploy.IOError{Op: "create dir", Path: filepath.Dir(target), Cause: err}
		}

		_, _ = hash.Write([]byte(f.rel))
		_, _ = hash.Write([]byte{0})
		if err := p.copyFile(f, target, hash); err != nil {
			return "", err
		}
		_, _ = hash.Write([]byte{0})
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

func (p *Packager) copyFile(f sourceFile, target string, hash io.Writer) error {
	src, err := p.fileSystem.Open(f.path)
	if err != nil {
		return &deploy.IOError{Op: "open", Path: f.path, Cause: err}
	}
	defer src.Close()

	dst, err := p.fileSystem.Create(target, f.mode)
	if err != nil {
		return &deploy.IOError{Op: "create", Path: target, Cause: err}
	}

	if _, err := io.Copy(io.MultiWriter(dst, hash), src); err != nil {
		_ = dst.Close()
		return &deploy.IOError{Op: "copy", Path: f.path, Cause: err}
	}
	if err := dst.Close(); err != nil {
		return &deploy.IOError{Op: "write", Path: target, Cause: err}
	}
	return nil
}

// compress writes stage/folder as a gzip tar with folder as its single
// top-level entry. File entries carry the modification time of their source.
func (p *Packager) compress(stage, folder, archivePath string, files []sourceFile) error {
	modTimes := make(map[string]time.Time, len(files))
	for _, f := range files {
		modTimes[folder+"/"+f.rel] = f.modTime
	}

	out, err := p.fileSystem.Create(archivePath, deploy.ArchiveMode)
	if err != nil {
		return &deploy.IOError{Op: "create archive", Path: archivePath, Cause: err}
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	gw.Name = filepath.Base(archivePath)
	tw := tar.NewWriter(gw)

	if err := p.addTree(tw, stage, folder, modTimes); err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return &deploy.IOError{Op: "write archive", Path: archivePath, Cause: err}
	}
	if err := gw.Close(); err != nil {
		return &deploy.IOError{Op: "write archive", Path: archivePath, Cause: err}
	}
	if err := out.Close(); err != nil {
		return &deploy.IOError{Op: "write archive", Path: archivePath, Cause: err}
	}
	return nil
}

// addTree writes the directory stage/rel and everything below it in name order.
func (p *Packager) addTree(tw *tar.Writer, stage, rel string, modTimes map[string]time.Time) error {
	dir := filepath.Join(stage, filepath.FromSlash(rel))

	info, err := p.fileSystem.Stat(dir)
	if err != nil {
		return &deploy.IOError{Op: "stat", Path: dir, Cause: err}
	}
	if err := p.writeHeader(tw, info, rel+"/", time.Time{}); err != nil {
		return err
	}

	entries, err := p.fileSystem.ReadDir(dir)
	if err != nil {
		return &deploy.IOError{Op: "read dir", Path: dir, Cause: err}
	}

	for _, entry := range entries {
		entryRel := rel + "/" + entry.Name()
		if entry.IsDir() {
			if err := p.addTree(tw, stage, entryRel, modTimes); err != nil {
				return err
			}
			continue
		}
		if err := p.addFile(tw, filepath.Join(dir, entry.Name()), entryRel, modTimes[entryRel]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Packager) addFile(tw *tar.Writer, path, name string, modTime time.Time) error {
	info, err := p.fileSystem.Stat(path)
	if err != nil {
		return &deploy.IOError{Op: "stat", Path: path, Cause: err}
	}
	if err := p.writeHeader(tw, info, name, modTime); err != nil {
		return err
	}

	src, err := p.fileSystem.Open(path)
	if err != nil {
		return &deploy.IOError{Op: "open", Path: path, Cause: err}
	}
	defer src.Close()

	if _, err := io.Copy(tw, src); err != nil {
		return &deploy.IOError{Op: "archive", Path: path, Cause: err}
	}
	return nil
}

// writeHeader writes the header for info under name. A non-zero modTime
// replaces the staged copy's modification time.
func (p *Packager) writeHeader(tw *tar.Writer, info os.FileInfo, name string, modTime time.Time) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return &deploy.IOError{Op: "archive", Path: name, Cause: err}
	}
	hdr.Name = strings.TrimPrefix(name, "/")
	if !modTime.IsZero() {
		hdr.ModTime = modTime
	}
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""

	if err := tw.WriteHeader(hdr); err != nil {
		return &deploy.IOError{Op: "archive", Path: name, Cause: err}
	}
	return nil
}

var _ deploy.Packager = (*Packager)(nil)
