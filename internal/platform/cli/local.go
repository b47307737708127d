package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickalie/ddc/internal/core/compose"
)

// alternateComposeFile is also accepted by docker-compose when the default is missing
const alternateComposeFile = "docker-compose.yaml"

// localCommands are the docker-compose and Django commands run on this machine
func (a *App) localCommands() []*cobra.Command {
	return []*cobra.Command{
		a.startCommand(),
		a.stopCommand(),
		a.restartCommand(),
		a.rebuildCommand(),
		a.statusCommand(),
		a.logsCommand(),
		a.purgeDockerCommand(),
		a.purgeDBCommand(),
		a.migrateCommand(),
		a.showURLsCommand(),
		a.addAppCommand(),
		a.pytestCommand(),
		a.lintCommand(),
		a.shellPlusCommand(),
	}
}

func (a *App) compose() (*compose.Compose, error) {
	if !a.composeExists(a.cfg.ComposeFile) && !a.composeExists(alternateComposeFile) {
		fmt.Fprintln(a.errOut, yellow("No docker compose file found. There might be errors executing commands"))
	}
	return compose.New(a.runner, a.cfg.ComposeCommand, a.cfg.ComposeFile)
}

func (a *App) django() (*compose.Django, error) {
	c, err := a.compose()
	if err != nil {
		return nil, err
	}
	return compose.NewDjango(c, a.cfg.Service), nil
}

// withCompose adapts a compose action to a cobra RunE
func (a *App) withCompose(action func(c *compose.Compose, args []string) error) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		c, err := a.compose()
		if err != nil {
			return err
		}
		return action(c, args)
	}
}

// withDjango adapts a Django action to a cobra RunE
func (a *App) withDjango(action func(d *compose.Django, args []string) error) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		d, err := a.django()
		if err != nil {
			return err
		}
		return action(d, args)
	}
}

// thenLogs shows the recent service logs after a successful action
func (a *App) thenLogs(c *compose.Compose, err error) error {
	if err != nil {
		return err
	}
	return c.Logs(a.cfg.Service, compose.DefaultLogLines, false)
}

func (a *App) startCommand() *cobra.Command {
	var build bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start all containers in the background",
		Args:  cobra.NoArgs,
		RunE: a.withCompose(func(c *compose.Compose, _ []string) error {
			return a.thenLogs(c, c.Start(build))
		}),
	}
	cmd.Flags().BoolVarP(&build, "build", "b", false, "Build images before starting")
	return cmd
}

func (a *App) stopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop and remove all containers",
		Args:  cobra.NoArgs,
		RunE: a.withCompose(func(c *compose.Compose, _ []string) error {
			return c.Stop("")
		}),
	}
}

func (a *App) restartCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the service container",
		Args:  cobra.NoArgs,
		RunE: a.withCompose(func(c *compose.Compose, _ []string) error {
			return a.thenLogs(c, c.Restart(all, a.cfg.Service))
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "Restart all containers")
	return cmd
}

func (a *App) rebuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild and restart the service container",
		Args:  cobra.NoArgs,
		RunE: a.withCompose(func(c *compose.Compose, _ []string) error {
			return a.thenLogs(c, c.Rebuild(a.cfg.Service))
		}),
	}
}

func (a *App) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show container status",
		Args:  cobra.NoArgs,
		RunE: a.withCompose(func(c *compose.Compose, _ []string) error {
			return c.Status()
		}),
	}
}

func (a *App) logsCommand() *cobra.Command {
	var lines int
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show service container logs",
		Args:  cobra.NoArgs,
		RunE: a.withCompose(func(c *compose.Compose, _ []string) error {
			return c.Logs(a.cfg.Service, lines, follow)
		}),
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", compose.DefaultLogLines, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new log lines")
	return cmd
}

func (a *App) purgeDockerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-docker",
		Short: "Remove unused docker data",
		Args:  cobra.NoArgs,
		RunE: a.withCompose(func(c *compose.Compose, _ []string) error {
			return c.PruneSystem()
		}),
	}
}

func (a *App) purgeDBCommand() *cobra.Command {
	var volume string
	cmd := &cobra.Command{
		Use:   "purge-db [db_folder]",
		Short: "Delete the local database storage and start the stack again",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.withDjango(func(d *compose.Django, args []string) error {
			return d.PurgeDB(optionalArg(args, 0, compose.DefaultDBFolder), volume)
		}),
	}
	cmd.Flags().StringVar(&volume, "volume", "", "Docker volume holding the database, removed instead of db_folder")
	return cmd
}

func (a *App) migrateCommand() *cobra.Command {
	var opts compose.MigrateOptions
	cmd := &cobra.Command{
		Use:   "migrate [application] [migration]",
		Short: "Create migrations and apply them",
		Long: `Without arguments creates and applies migrations for all applications.
With an application only that application is migrated. With a migration the
application is migrated to it, rolling back when it is older than the
current state. --empty creates an empty migration for a data migration.`,
		Args: cobra.MaximumNArgs(2),
		RunE: a.withDjango(func(d *compose.Django, args []string) error {
			opts.Application = optionalArg(args, 0, "")
			opts.Migration = optionalArg(args, 1, "")
			return d.Migrate(opts)
		}),
	}
	cmd.Flags().BoolVar(&opts.Empty, "empty", false, "Create an empty migration")
	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "Migration name")
	return cmd
}

func (a *App) showURLsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show-urls",
		Short: "Print all URL routes",
		Args:  cobra.NoArgs,
		RunE: a.withDjango(func(d *compose.Django, _ []string) error {
			return d.ShowURLs()
		}),
	}
}

func (a *App) addAppCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add-app <name>",
		Short: "Create a new Django application",
		Args:  cobra.ExactArgs(1),
		RunE: a.withDjango(func(d *compose.Django, args []string) error {
			return d.AddApp(args[0])
		}),
	}
}

func (a *App) pytestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pytest [path]",
		Short: "Run the tests in the service container",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.withDjango(func(d *compose.Django, args []string) error {
			return d.Pytest(optionalArg(args, 0, ""))
		}),
	}
}

func (a *App) shellPlusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell-plus",
		Short: "Open the django-extensions shell",
		Args:  cobra.NoArgs,
		RunE: a.withDjango(func(d *compose.Django, _ []string) error {
			return d.ShellPlus()
		}),
	}
}

func (a *App) lintCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint [path]",
		Short: "Run black, flake8 and prospector in the service container",
		Long: `Runs every linter, or a single one through a subcommand. Paths are inside
the container, e.g. /app/mypackage/module.py.`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.withDjango(func(d *compose.Django, args []string) error {
			return d.Lint(lintPath(args))
		}),
	}

	var convention, level string
	pydocstyle := &cobra.Command{
		Use:   "pydocstyle [path]",
		Short: "Check docstrings, skipping migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.withDjango(func(d *compose.Django, args []string) error {
			return d.Pydocstyle(lintPath(args), convention)
		}),
	}
	pydocstyle.Flags().StringVar(&convention, "convention", compose.DefaultPydocstyleConvention, "Docstring convention")

	mypy := &cobra.Command{
		Use:   "mypy [path]",
		Short: "Type check with mypy",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.withDjango(func(d *compose.Django, args []string) error {
			return d.Mypy(lintPath(args), level)
		}),
	}
	mypy.Flags().StringVar(&level, "level", compose.DefaultMypyLevel, "Strictness level")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "black [path]",
			Short: "Format with black",
			Args:  cobra.MaximumNArgs(1),
			RunE: a.withDjango(func(d *compose.Django, args []string) error {
				return d.Black(lintPath(args))
			}),
		},
		&cobra.Command{
			Use:   "flake8 [path]",
			Short: "Check with flake8, skipping migrations",
			Args:  cobra.MaximumNArgs(1),
			RunE: a.withDjango(func(d *compose.Django, args []string) error {
				return d.Flake8(lintPath(args))
			}),
		},
		&cobra.Command{
			Use:   "prospector [path]",
			Short: "Analyze with prospector",
			Args:  cobra.MaximumNArgs(1),
			RunE: a.withDjango(func(d *compose.Django, args []string) error {
				return d.Prospector(lintPath(args))
			}),
		},
		pydocstyle,
		mypy,
	)
	return cmd
}

func lintPath(args []string) string {
	return optionalArg(args, 0, compose.DefaultLintPath)
}

func optionalArg(args []string, i int, fallback string) string {
	if i < len(args) {
		return args[i]
	}
	return fallback
}
