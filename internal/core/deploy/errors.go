// Package deploy packages a project, ships it to a remote host over SSH and
// drives the remote redeploy sequence.
package deploy

import "fmt"

// Error is implemented by every error kind the deployment core returns.
// The set is closed: only types in this package implement it.
type Error interface {
	error
	deployError()
}

// ConnectionError represents a transport-level connect failure.
type ConnectionError struct {
	Addr  string
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Addr, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

func (e *ConnectionError) deployError() {}

// AuthenticationError is the authentication-failed kind: credentials could not
// be loaded before dialing, or the server rejected them during the handshake.
type AuthenticationError struct {
	User   string
	Method string
	Cause  error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication of user '%s' via %s failed: %v", e.User, e.Method, e.Cause)
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

func (e *AuthenticationError) deployError() {}

// SessionError represents a protocol handshake or channel failure.
type SessionError struct {
	Op    string
	Cause error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("ssh %s failed: %v", e.Op, e.Cause)
}

func (e *SessionError) Unwrap() error { return e.Cause }

func (e *SessionError) deployError() {}

// PatternError represents an ignore pattern with invalid syntax.
type PatternError struct {
	Pattern string
	Cause   error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid ignore pattern '%s': %v", e.Pattern, e.Cause)
}

func (e *PatternError) Unwrap() error { return e.Cause }

func (e *PatternError) deployError() {}

// IOError represents a local filesystem failure.
type IOError struct {
	Op    string
	Path  string
	Cause error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s '%s' failed: %v", e.Op, e.Path, e.Cause)
}

func (e *IOError) Unwrap() error { return e.Cause }

func (e *IOError) deployError() {}

// RemoteCmdError represents a failure of the command infrastructure itself,
// as opposed to a command that ran and exited non-zero.
type RemoteCmdError struct {
	Command string
	Cause   error
}

func (e *RemoteCmdError) Error() string {
	return fmt.Sprintf("remote command '%s' failed: %v", e.Command, e.Cause)
}

func (e *RemoteCmdError) Unwrap() error { return e.Cause }

func (e *RemoteCmdError) deployError() {}

// StepError reports a remote step that exited with a non-zero code.
type StepError struct {
	Description string
	Num         int
	Total       int
	Result      StepResult
}

func (e *StepError) Error() string {
	if e.Result.Output != "" {
		return fmt.Sprintf("step %d/%d '%s' exited with code %d\nOutput: %s",
			e.Num, e.Total, e.Description, e.Result.ExitCode, e.Result.Output)
	}
	return fmt.Sprintf("step %d/%d '%s' exited with code %d", e.Num, e.Total, e.Description, e.Result.ExitCode)
}

func (e *StepError) deployError() {}
