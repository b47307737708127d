// Package config loads the optional ddc project configuration file.
package config

import (
	"github.com/nickalie/ddc/internal/core/compose"
	"github.com/nickalie/ddc/internal/core/deploy"
	"github.com/nickalie/ddc/internal/core/target"
)

// DefaultPath is the config file looked up when none is given
const DefaultPath = "ddc.yaml"

// DefaultDeployUser is the login user when neither the config nor the CLI names one
const DefaultDeployUser = "ubuntu"

// Config is the project configuration. Every field is optional.
type Config struct {
	// Service is the compose service the Django and log commands target.
	Service        string `yaml:"service" json:"service" toml:"service"`
	ComposeFile    string `yaml:"compose_file" json:"compose_file" toml:"compose_file"`
	ComposeCommand string `yaml:"compose_command" json:"compose_command" toml:"compose_command"`
	Deploy         Deploy `yaml:"deploy" json:"deploy" toml:"deploy"`
}

// Deploy holds the defaults of `ddc deploy`.
type Deploy struct {
	Host       string `yaml:"host" json:"host" toml:"host" validate:"omitempty,hostname|ip"`
	User       string `yaml:"user" json:"user" toml:"user"`
	PrivateKey string `yaml:"private_key" json:"private_key" toml:"private_key"`
	Port       int    `yaml:"port" json:"port" toml:"port" validate:"omitempty,min=1,max=65535"`
	KnownHosts string `yaml:"known_hosts" json:"known_hosts" toml:"known_hosts"`
	// Dir is the local project directory that gets packaged.
	Dir string `yaml:"dir" json:"dir" toml:"dir"`
	// Root is the remote deployment directory, {{user}} is replaced by the login user.
	Root          string   `yaml:"root" json:"root" toml:"root"`
	TmpDir        string   `yaml:"tmp_dir" json:"tmp_dir" toml:"tmp_dir" validate:"omitempty,startswith=/"`
	ArchiveFolder string   `yaml:"archive_folder" json:"archive_folder" toml:"archive_folder" validate:"omitempty,excludesall=/"`
	Exclude       []string `yaml:"exclude" json:"exclude" toml:"exclude" validate:"omitempty,dive,required"`
	IgnoreFile    string   `yaml:"ignore_file" json:"ignore_file" toml:"ignore_file"`
	ChunkSize     int      `yaml:"chunk_size" json:"chunk_size" toml:"chunk_size" validate:"omitempty,min=1"`
	SkipUnchanged bool     `yaml:"skip_unchanged" json:"skip_unchanged" toml:"skip_unchanged"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Service == "" {
		c.Service = compose.DefaultService
	}
	if c.ComposeFile == "" {
		c.ComposeFile = deploy.DefaultComposeFile
	}
	if c.ComposeCommand == "" {
		c.ComposeCommand = deploy.DefaultComposeCommand
	}
	if c.Deploy.User == "" {
		c.Deploy.User = DefaultDeployUser
	}
}

// Settings converts the deploy section into run settings.
func (c *Config) Settings() deploy.Settings {
	return deploy.Settings{
		ProjectDir:     c.Deploy.Dir,
		RemoteRoot:     c.Deploy.Root,
		RemoteTmpDir:   c.Deploy.TmpDir,
		ComposeCommand: c.ComposeCommand,
		ComposeFile:    c.ComposeFile,
		ChunkSize:      c.Deploy.ChunkSize,
		ArchiveFolder:  c.Deploy.ArchiveFolder,
		Exclude:        append([]string(nil), c.Deploy.Exclude...),
		IgnoreFile:     c.Deploy.IgnoreFile,
		SkipUnchanged:  c.Deploy.SkipUnchanged,
	}.WithDefaults()
}

// Target builds the remote target from the deploy section.
func (c *Config) Target() *target.Target {
	return &target.Target{
		Host:       c.Deploy.Host,
		User:       c.Deploy.User,
		PrivateKey: c.Deploy.PrivateKey,
		Port:       c.Deploy.Port,
		KnownHosts: c.Deploy.KnownHosts,
	}
}
