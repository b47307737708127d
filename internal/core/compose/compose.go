// Package compose maps the local lifecycle commands onto docker-compose and
// Django management invocations executed through a process runner.
package compose

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/nickalie/ddc/internal/core/deploy"
)

// DefaultService is the compose service most commands operate on
const DefaultService = "api"

// DefaultLogLines is how many log lines are shown after start, restart and rebuild
const DefaultLogLines = 10

// CommandFailedError reports a command that ran and exited non-zero
type CommandFailedError struct {
	Command string
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command '%s' failed", e.Command)
}

// Compose drives docker-compose for one compose file.
type Compose struct {
	runner deploy.ProcessRunner
	name   string
	args   []string
}

// New creates a Compose. command may contain arguments, e.g. "docker compose".
func New(runner deploy.ProcessRunner, command, file string) (*Compose, error) {
	if command == "" {
		command = deploy.DefaultComposeCommand
	}

	words, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("invalid compose command %q: %w", command, err)
	}
	if len(words) == 0 {
		return nil, errors.New("compose command is empty")
	}

	args := append([]string(nil), words[1:]...)
	if file != "" {
		args = append(args, "-f", file)
	}

	return &Compose{runner: runner, name: words[0], args: args}, nil
}

// Start starts all containers detached, building images first when build is set
func (c *Compose) Start(build bool) error {
	if build {
		if err := c.run("build", "--force-rm", "--parallel"); err != nil {
			return err
		}
	}
	return c.Up()
}

// Up starts all containers detached
func (c *Compose) Up() error {
	return c.run("up", "-d")
}

// Stop stops and removes containers with their anonymous volumes. An empty
// service means all of them.
func (c *Compose) Stop(service string) error {
	args := []string{"rm", "--stop", "--force", "-v"}
	if service != "" {
		args = append(args, service)
	}
	return c.run(args...)
}

// Restart restarts either every container or only service
func (c *Compose) Restart(all bool, service string) error {
	if all {
		return c.run("restart")
	}
	return c.run("restart", service)
}

// Rebuild stops service, rebuilds its image and starts the stack again
func (c *Compose) Rebuild(service string) error {
	if err := c.Stop(service); err != nil {
		return err
	}
	if err := c.run("build", "--force-rm", service); err != nil {
		return err
	}
	return c.Up()
}

// Status lists the containers
func (c *Compose) Status() error {
	return c.run("ps")
}

// Logs prints the last lines of service logs, optionally following them
func (c *Compose) Logs(service string, lines int, follow bool) error {
	args := []string{"logs", "--timestamps", "--tail=" + strconv.Itoa(lines)}
	if follow {
		args = append(args, "--follow")
	}
	args = append(args, service)
	return c.run(args...)
}

// Exec runs a command inside the running service container
func (c *Compose) Exec(service string, command ...string) error {
	return c.run(append([]string{"exec", service}, command...)...)
}

// RemoveAll stops and removes every container, keeping volumes
func (c *Compose) RemoveAll() error {
	return c.run("rm", "--stop", "--force")
}

// PruneSystem removes unused docker data
func (c *Compose) PruneSystem() error {
	return runChecked(c.runner, "docker", "system", "prune")
}

func (c *Compose) run(args ...string) error {
	return runChecked(c.runner, c.name, append(append([]string(nil), c.args...), args...)...)
}

func runChecked(runner deploy.ProcessRunner, name string, args ...string) error {
	ok, err := runner.Run(name, args...)
	if err != nil {
		return err
	}
	if !ok {
		return &CommandFailedError{Command: strings.TrimSpace(name + " " + strings.Join(args, " "))}
	}
	return nil
}
