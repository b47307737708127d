package compose

import (
	"errors"
)

// Defaults of the Django helpers
const (
	DefaultDBFolder             = "pg"
	DefaultLintPath             = "/app"
	DefaultPydocstyleConvention = "numpy"
	DefaultMypyLevel            = "strict"
)

// ErrApplicationRequired is returned for an empty migration without an application
var ErrApplicationRequired = errors.New("must provide application name")

// MigrateOptions selects what Migrate does
type MigrateOptions struct {
	// Application limits makemigrations and migrate to one app
	Application string
	// Migration migrates Application to this migration without creating new ones
	Migration string
	// Empty creates an empty migration for a data migration instead of migrating
	Empty bool
	// Name is passed to makemigrations
	Name string
}

// Django runs manage.py and the Python tooling inside a compose service.
type Django struct {
	compose *Compose
	service string
}

// NewDjango creates Django helpers for service
func NewDjango(compose *Compose, service string) *Django {
	if service == "" {
		service = DefaultService
	}
	return &Django{compose: compose, service: service}
}

// Migrate creates and applies migrations. With a target migration it only
// migrates, which rolls back when the target is older than the current state.
func (d *Django) Migrate(opts MigrateOptions) error {
	makeMigrations := []string{"makemigrations"}

	if opts.Empty {
		if opts.Application == "" {
			return ErrApplicationRequired
		}
		makeMigrations = append(makeMigrations, "--empty")
		if opts.Name != "" {
			makeMigrations = append(makeMigrations, "--name", opts.Name)
		}
		return d.manage(append(makeMigrations, opts.Application)...)
	}

	migrate := []string{"migrate"}
	if opts.Application != "" {
		migrate = append(migrate, opts.Application)
		if opts.Migration != "" {
			return d.manage(append(migrate, opts.Migration)...)
		}
		makeMigrations = append(makeMigrations, opts.Application)
		if opts.Name != "" {
			makeMigrations = append(makeMigrations, "--name", opts.Name)
		}
	}

	if err := d.manage(makeMigrations...); err != nil {
		return err
	}
	return d.manage(migrate...)
}

// PurgeDB stops all containers, deletes the database storage and starts the
// stack again. The storage is the docker volume when one is named, otherwise
// the local dbFolder.
func (d *Django) PurgeDB(dbFolder, volume string) error {
	if err := d.compose.RemoveAll(); err != nil {
		return err
	}

	if volume != "" {
		if err := runChecked(d.compose.runner, "docker", "volume", "rm", volume); err != nil {
			return err
		}
	} else {
		if dbFolder == "" {
			dbFolder = DefaultDBFolder
		}
		if err := runChecked(d.compose.runner, "rm", "-rf", dbFolder); err != nil {
			return err
		}
	}

	return d.compose.Up()
}

// ShowURLs prints every URL route via django-extensions
func (d *Django) ShowURLs() error {
	return d.manage("show_urls")
}

// AddApp creates a new Django application
func (d *Django) AddApp(name string) error {
	return d.manage("startapp", name)
}

// ShellPlus opens the django-extensions shell
func (d *Django) ShellPlus() error {
	return d.manage("shell_plus")
}

// Pytest runs the test suite, or only the tests under path
func (d *Django) Pytest(path string) error {
	if path == "" {
		return d.compose.Exec(d.service, "pytest")
	}
	return d.compose.Exec(d.service, "pytest", path)
}

// Black formats path
func (d *Django) Black(path string) error {
	return d.compose.Exec(d.service, "black", path)
}

// Flake8 checks path, skipping migrations
func (d *Django) Flake8(path string) error {
	return d.compose.Exec(d.service, "flake8", path, "--exclude=migrations")
}

// Prospector analyzes path
func (d *Django) Prospector(path string) error {
	return d.compose.Exec(d.service, "prospector", path)
}

// Pydocstyle checks docstrings under path, skipping migrations folders
func (d *Django) Pydocstyle(path, convention string) error {
	if convention == "" {
		convention = DefaultPydocstyleConvention
	}
	return d.compose.Exec(d.service, "pydocstyle", "--convention", convention, path, "--match-dir=^(?!migrations).*")
}

// Mypy type checks path at the given strictness level
func (d *Django) Mypy(path, level string) error {
	if level == "" {
		level = DefaultMypyLevel
	}
	return d.compose.Exec(d.service, "mypy", path, "--"+level)
}

// Lint runs black, flake8 and prospector, stopping at the first failure
func (d *Django) Lint(path string) error {
	if err := d.Black(path); err != nil {
		return err
	}
	if err := d.Flake8(path); err != nil {
		return err
	}
	return d.Prospector(path)
}

func (d *Django) manage(args ...string) error {
	return d.compose.Exec(d.service, append([]string{"python", "manage.py"}, args...)...)
}
