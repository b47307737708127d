package deploy

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Sequencer runs remote steps one after another over a single session.
type Sequencer struct {
	session Session
	out     io.Writer
	logger  *zap.Logger
}

// NewSequencer creates a Sequencer writing progress and command output to out.
func NewSequencer(session Session, out io.Writer, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{session: session, out: out, logger: logger}
}

// Execute runs the steps in order. It stops at the first fatal step that exits
// non-zero and returns a *StepError for it; later steps are not started.
// The results of every step that ran are returned in both cases.
func (s *Sequencer) Execute(steps []RemoteStep) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))

	for i, step := range steps {
		num := i + 1
		fmt.Fprintf(s.out, "[%d/%d] %s...\n", num, len(steps), step.Description)
		s.logger.Debug("running remote step", zap.Int("step", num), zap.String("command", step.Command))

		result, err := s.session.Run(step.Command, s.out)
		if err != nil {
			return results, asRemoteCmdError(step.Command, err)
		}
		results = append(results, result)

		if result.Success() {
			continue
		}

		if !step.Fatal {
			s.logger.Warn("non-fatal remote step failed",
				zap.String("step", step.Description),
				zap.Int("exit_code", result.ExitCode),
				zap.String("output", result.Output))
			fmt.Fprintf(s.out, "Warning: '%s' exited with code %d, continuing\n", step.Description, result.ExitCode)
			continue
		}

		s.logger.Error("remote step failed",
			zap.String("step", step.Description),
			zap.Int("exit_code", result.ExitCode),
			zap.String("output", result.Output))
		return results, &StepError{
			Description: step.Description,
			Num:         num,
			Total:       len(steps),
			Result:      result,
		}
	}

	return results, nil
}

func asRemoteCmdError(command string, err error) error {
	var kind Error
	if errors.As(err, &kind) {
		return err
	}
	return &RemoteCmdError{Command: command, Cause: err}
}
