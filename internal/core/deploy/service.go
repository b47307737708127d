package deploy

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/nickalie/ddc/internal/core/target"
)

// Service runs deployments: package, upload, remote redeploy, cleanup.
type Service struct {
	sessionFactory SessionFactory
	packager       Packager
	runner         ProcessRunner
	fileSystem     FileSystem
	history        HistoryStorage
	out            io.Writer
	logger         *zap.Logger
	now            func() time.Time
}

// ServiceOption defines functional options for Service
type ServiceOption func(*Service)

// WithLogger sets the diagnostic logger
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithOutput sets where progress and remote output are written
func WithOutput(out io.Writer) ServiceOption {
	return func(s *Service) {
		s.out = out
	}
}

// WithHistory enables recording of successful deployments
func WithHistory(history HistoryStorage) ServiceOption {
	return func(s *Service) {
		s.history = history
	}
}

// WithFileSystem sets the filesystem used to read the archive during upload
func WithFileSystem(fs FileSystem) ServiceOption {
	return func(s *Service) {
		s.fileSystem = fs
	}
}

// WithClock overrides the time source used for history entries
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a deployment service.
func NewService(factory SessionFactory, packager Packager, runner ProcessRunner, opts ...ServiceOption) *Service {
	service := &Service{
		sessionFactory: factory,
		packager:       packager,
		runner:         runner,
		fileSystem:     osFileSystem{},
		out:            os.Stdout,
		logger:         zap.NewNop(),
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// Deploy performs one deployment run against tgt. The returned Run is
// populated as far as the run progressed, also when an error is returned.
//
// Any failure aborts the rest of the run; remote state already changed is
// left as is. The local archive is removed once the remote part concludes.
func (s *Service) Deploy(tgt *target.Target, settings Settings) (*Run, error) {
	settings = settings.WithDefaults()
	run := &Run{Target: tgt, Settings: settings, StartedAt: s.now()}
	defer func() { run.Duration = s.now().Sub(run.StartedAt) }()

	fmt.Fprintf(s.out, "Packaging %s\n", settings.ProjectDir)
	artifact, err := s.packager.Package(settings)
	if err != nil {
		return run, err
	}
	run.Artifact = artifact
	defer s.cleanup(artifact)

	s.logger.Info("package created",
		zap.String("archive", artifact.Path),
		zap.Int64("size", artifact.Size),
		zap.Int("files", artifact.Files),
		zap.String("digest", artifact.Digest))

	if s.unchanged(tgt, settings, artifact) {
		fmt.Fprintf(s.out, "No changes since last deployment to '%s', skipping\n", tgt.GetName())
		run.Skipped = true
		return run, nil
	}

	if err := s.ship(run); err != nil {
		return run, err
	}

	s.record(tgt, artifact)
	fmt.Fprintf(s.out, "Deployment to '%s' completed\n", tgt.GetName())
	return run, nil
}

// ship owns the session for the remote part of the run.
func (s *Service) ship(run *Run) error {
	tgt, settings, artifact := run.Target, run.Settings, run.Artifact

	fmt.Fprintf(s.out, "Connecting to %s@%s\n", tgt.User, tgt.Address())
	session, err := s.sessionFactory.Open(tgt)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Warn("failed to close session", zap.Error(err))
		}
	}()

	transferer := NewTransferer(s.fileSystem, settings.ChunkSize, s.out, s.logger)
	report, err := transferer.Upload(session, artifact, settings.UploadPath(artifact.Name))
	run.Transfer = report
	if err != nil {
		return err
	}

	steps := BuildSteps(settings, tgt.User, artifact.Name)
	results, err := NewSequencer(session, s.out, s.logger).Execute(steps)
	run.Results = results
	return err
}

func (s *Service) unchanged(tgt *target.Target, settings Settings, artifact *Artifact) bool {
	if !settings.SkipUnchanged || s.history == nil {
		return false
	}

	last, err := s.history.Last(tgt.GetName())
	if err != nil {
		s.logger.Warn("failed to read deployment history", zap.Error(err))
		return false
	}

	return last != nil && last.Digest == artifact.Digest
}

func (s *Service) record(tgt *target.Target, artifact *Artifact) {
	if s.history == nil {
		return
	}

	entry := HistoryEntry{
		Target:     tgt.GetName(),
		Digest:     artifact.Digest,
		Archive:    artifact.Name,
		Size:       artifact.Size,
		Files:      artifact.Files,
		DeployedAt: s.now().UTC(),
	}
	if err := s.history.Record(entry); err != nil {
		fmt.Fprintf(s.out, "Warning: failed to record deployment: %v\n", err)
	}
}

// cleanup removes the local archive through the process runner.
func (s *Service) cleanup(artifact *Artifact) {
	ok, err := s.runner.Run("rm", "-f", artifact.Path)
	switch {
	case err != nil:
		s.logger.Warn("failed to remove local archive", zap.String("path", artifact.Path), zap.Error(err))
	case !ok:
		s.logger.Warn("removing local archive exited non-zero", zap.String("path", artifact.Path))
	}
}

type osFileSystem struct{}

func (osFileSystem) Open(name string) (io.ReadCloser, error) {
	return os.Open(name)
}
