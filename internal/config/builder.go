package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Builder constructs a configuration with a fluent interface. Go config
// files use it and print the result, which the loader reads back.
type Builder struct {
	config *Config
}

// NewBuilder creates a Builder with an empty configuration.
func NewBuilder() *Builder {
	return &Builder{
		config: &Config{},
	}
}

// Service sets the compose service used by the Django and log commands.
func (b *Builder) Service(name string) *Builder {
	b.config.Service = name
	return b
}

// Compose sets the compose command and file.
func (b *Builder) Compose(command, file string) *Builder {
	b.config.ComposeCommand = command
	b.config.ComposeFile = file
	return b
}

// DeployTo sets the remote host and login user.
func (b *Builder) DeployTo(host, user string) *Builder {
	b.config.Deploy.Host = host
	b.config.Deploy.User = user
	return b
}

// PrivateKey sets the key used instead of the SSH agent.
func (b *Builder) PrivateKey(path string) *Builder {
	b.config.Deploy.PrivateKey = path
	return b
}

// Port sets the SSH port.
func (b *Builder) Port(port int) *Builder {
	b.config.Deploy.Port = port
	return b
}

// Root sets the remote deployment directory.
func (b *Builder) Root(root string) *Builder {
	b.config.Deploy.Root = root
	return b
}

// Exclude appends ignore patterns that replace the ignore file and the defaults.
func (b *Builder) Exclude(patterns ...string) *Builder {
	b.config.Deploy.Exclude = append(b.config.Deploy.Exclude, patterns...)
	return b
}

// ChunkSize sets the upload chunk size in bytes.
func (b *Builder) ChunkSize(size int) *Builder {
	b.config.Deploy.ChunkSize = size
	return b
}

// SkipUnchanged enables skipping deployments whose archive digest is unchanged.
func (b *Builder) SkipUnchanged(skip bool) *Builder {
	b.config.Deploy.SkipUnchanged = skip
	return b
}

// GetConfig returns the built configuration.
func (b *Builder) GetConfig() *Config {
	return b.config
}

// Print writes the configuration as a single JSON line to stdout.
func (b *Builder) Print() error {
	return b.Fprint(os.Stdout)
}

// Fprint writes the configuration as a single JSON line to w.
func (b *Builder) Fprint(w io.Writer) error {
	d, err := json.Marshal(b.config)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(d))
	return err
}
