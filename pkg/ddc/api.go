// Package ddc is the public API of ddc. Go config files use its Builder to
// print their configuration, and programs can run deployments directly.
package ddc

import (
	"os"

	"github.com/nickalie/ddc/internal/config"
	"github.com/nickalie/ddc/internal/core/deploy"
	"github.com/nickalie/ddc/internal/core/target"
	"github.com/nickalie/ddc/internal/infrastructure/archive"
	"github.com/nickalie/ddc/internal/infrastructure/fs"
	"github.com/nickalie/ddc/internal/infrastructure/process"
	"github.com/nickalie/ddc/internal/infrastructure/ssh"
	"github.com/nickalie/ddc/internal/platform/cli"
)

// Config is the project configuration
type Config = config.Config

// DeployConfig is the deploy section of the configuration
type DeployConfig = config.Deploy

// Target is a remote host
type Target = target.Target

// Settings configures one deployment run
type Settings = deploy.Settings

// Run describes a finished deployment run
type Run = deploy.Run

// Builder builds a configuration
type Builder = config.Builder

// NewBuilder creates a new configuration builder
func NewBuilder() *Builder {
	return config.NewBuilder()
}

// LoadConfig loads a configuration file
func LoadConfig(configPath string) (*Config, error) {
	return config.NewLoader().Load(configPath)
}

// Execute runs the ddc command line with args
func Execute(args []string) error {
	return cli.NewApp().Execute(args)
}

// Deploy packages and deploys the project described by cfg, recording the
// run in the history of the current directory.
func Deploy(cfg *Config) (*Run, error) {
	runner := process.NewRunner()
	service := deploy.NewService(
		ssh.NewSessionFactory(),
		archive.NewPackager(),
		runner,
		deploy.WithOutput(os.Stdout),
		deploy.WithHistory(fs.NewFileHistoryStorage()),
	)
	return service.Deploy(cfg.Target(), cfg.Settings())
}
