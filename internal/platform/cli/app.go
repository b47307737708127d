// Package cli wires configuration, environment loading, the deploy core and
// the local compose commands into the ddc command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nickalie/ddc/internal/config"
	"github.com/nickalie/ddc/internal/core/deploy"
	"github.com/nickalie/ddc/internal/core/target"
	"github.com/nickalie/ddc/internal/infrastructure/archive"
	"github.com/nickalie/ddc/internal/infrastructure/env"
	"github.com/nickalie/ddc/internal/infrastructure/fs"
	"github.com/nickalie/ddc/internal/infrastructure/process"
	"github.com/nickalie/ddc/internal/infrastructure/ssh"
)

// Version is reported by --version
var Version = "dev"

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// EnvLoader defines the interface for loading environment variables
type EnvLoader interface {
	Load(path, vaultPassword string) error
}

// ConfigLoader defines the interface for loading configuration
type ConfigLoader interface {
	Load(configPath string) (*config.Config, error)
}

// Deployer runs one remote deployment
type Deployer interface {
	Deploy(tgt *target.Target, settings deploy.Settings) (*deploy.Run, error)
}

// LoggerFactory builds the diagnostic logger once --verbose is known
type LoggerFactory func(verbose bool) (*zap.Logger, error)

// App holds the dependencies of every command. Dependencies that are not
// injected are created after flag parsing.
type App struct {
	envLoader     EnvLoader
	configLoader  ConfigLoader
	deployer      Deployer
	history       deploy.HistoryStorage
	runner        deploy.ProcessRunner
	newLogger     LoggerFactory
	logger        *zap.Logger
	out           io.Writer
	errOut        io.Writer
	composeExists func(path string) bool

	globals globalOptions
	cfg     *config.Config
}

type globalOptions struct {
	configPath    string
	envPaths      []string
	vaultPassword string
	service       string
	composeFile   string
	verbose       bool
}

// AppOption configures an App
type AppOption func(*App)

// WithEnvLoader replaces the environment loader
func WithEnvLoader(loader EnvLoader) AppOption {
	return func(a *App) {
		a.envLoader = loader
	}
}

// WithConfigLoader replaces the configuration loader
func WithConfigLoader(loader ConfigLoader) AppOption {
	return func(a *App) {
		a.configLoader = loader
	}
}

// WithDeployer replaces the deployment service
func WithDeployer(deployer Deployer) AppOption {
	return func(a *App) {
		a.deployer = deployer
	}
}

// WithHistory replaces the deployment history storage
func WithHistory(history deploy.HistoryStorage) AppOption {
	return func(a *App) {
		a.history = history
	}
}

// WithRunner replaces the local process runner
func WithRunner(runner deploy.ProcessRunner) AppOption {
	return func(a *App) {
		a.runner = runner
	}
}

// WithLoggerFactory sets how the logger is built
func WithLoggerFactory(factory LoggerFactory) AppOption {
	return func(a *App) {
		a.newLogger = factory
	}
}

// WithOutput redirects progress output and warnings
func WithOutput(out, errOut io.Writer) AppOption {
	return func(a *App) {
		a.out = out
		a.errOut = errOut
	}
}

// NewApp creates an App.
func NewApp(opts ...AppOption) *App {
	a := &App{
		newLogger: func(bool) (*zap.Logger, error) { return zap.NewNop(), nil },
		out:       os.Stdout,
		errOut:    os.Stderr,
		composeExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Execute runs the command line with args and returns the first error.
func (a *App) Execute(args []string) error {
	root := a.Command()
	root.SetArgs(args)
	return root.Execute()
}

// Command builds the root command with every subcommand attached.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "ddc",
		Short: "Django + docker-compose tools: local lifecycle commands and remote deployment",
		Long: fmt.Sprintf(`%s

Controls the local docker-compose stack, runs Django management commands in
the service container and deploys the project to a remote host over SSH.`,
			bold("ddc")),
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.globals.configPath, "config", "c", config.DefaultPath, "Path to the configuration file")
	flags.StringSliceVarP(&a.globals.envPaths, "env", "e", nil, "Environment files to load, may be Ansible Vault encrypted")
	flags.StringVar(&a.globals.vaultPassword, "vault-password", "", "Password for Ansible Vault encrypted env files")
	flags.StringVarP(&a.globals.service, "service", "s", "", "Docker compose service to operate on (default \"api\")")
	flags.StringVar(&a.globals.composeFile, "compose-file", "", "Docker compose file (default \"docker-compose.yml\")")
	flags.BoolVarP(&a.globals.verbose, "verbose", "v", false, "Enable diagnostic logging")

	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.AddCommand(a.deployCommand(), a.historyCommand())
	root.AddCommand(a.localCommands()...)

	return root
}

// setup loads env files and configuration and creates missing dependencies
func (a *App) setup(cmd *cobra.Command, _ []string) error {
	logger, err := a.newLogger(a.globals.verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.logger = logger

	if a.envLoader == nil {
		a.envLoader = env.NewLoader(env.WithLogger(logger))
	}
	if a.configLoader == nil {
		a.configLoader = config.NewLoader(config.WithLogger(logger))
	}

	if err := a.loadEnvironments(); err != nil {
		return fmt.Errorf("environment loading failed: %w", err)
	}

	cfg, err := config.LoadOrDefault(a.configLoader, a.globals.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return fmt.Errorf("config loading failed: %w", err)
	}
	if a.globals.service != "" {
		cfg.Service = a.globals.service
	}
	if a.globals.composeFile != "" {
		cfg.ComposeFile = a.globals.composeFile
	}
	a.cfg = cfg

	if a.runner == nil {
		a.runner = process.NewRunner(process.WithLogger(logger))
	}
	if a.history == nil {
		a.history = fs.NewFileHistoryStorage()
	}
	if a.deployer == nil {
		a.deployer = deploy.NewService(
			ssh.NewSessionFactory(ssh.WithLogger(logger)),
			archive.NewPackager(archive.WithLogger(logger)),
			a.runner,
			deploy.WithLogger(logger),
			deploy.WithOutput(a.out),
			deploy.WithHistory(a.history),
		)
	}

	return nil
}

func (a *App) loadEnvironments() error {
	for _, path := range a.globals.envPaths {
		if err := a.envLoader.Load(path, a.globals.vaultPassword); err != nil {
			return fmt.Errorf("failed to load environment file %s: %w", path, err)
		}
	}
	return nil
}

// Config returns the configuration resolved for the last executed command
func (a *App) Config() *config.Config {
	return a.cfg
}

// PrintError writes err to w in the failure colour.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", red("Error:"), err)
}
