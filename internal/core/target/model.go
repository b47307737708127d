// Package target defines the remote host a deployment is shipped to.
package target

import (
	"net"
	"strconv"
)

// DefaultPort is the SSH port used when a target does not set one.
const DefaultPort = 22

// Target identifies where to connect and how to authenticate.
// When PrivateKey is empty the caller's SSH agent is used.
type Target struct {
	Name       string `yaml:"name" json:"name" toml:"name" validate:"omitempty"`
	Host       string `yaml:"host" json:"host" toml:"host" validate:"required,hostname|ip"`
	User       string `yaml:"user" json:"user" toml:"user" validate:"required"`
	PrivateKey string `yaml:"private_key,omitempty" json:"private_key,omitempty" toml:"private_key,omitempty" validate:"omitempty"`
	Port       int    `yaml:"port,omitempty" json:"port,omitempty" toml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	KnownHosts string `yaml:"known_hosts,omitempty" json:"known_hosts,omitempty" toml:"known_hosts,omitempty" validate:"omitempty"`
}

// GetPort returns the SSH port to use, defaulting to 22 if not specified.
func (t *Target) GetPort() int {
	if t.Port == 0 {
		return DefaultPort
	}
	return t.Port
}

// GetName returns the target name, defaulting to host if not specified.
func (t *Target) GetName() string {
	if t.Name == "" {
		return t.Host
	}
	return t.Name
}

// Address returns the host:port pair to dial.
func (t *Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.GetPort()))
}

// AuthMethod describes which credential source will be used.
func (t *Target) AuthMethod() string {
	if t.PrivateKey != "" {
		return "private key"
	}
	return "ssh agent"
}
