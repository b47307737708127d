// Package env loads environment variables from dotenv files, optionally
// encrypted with Ansible Vault, so config files can reference them as ${VAR}.
package env

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// VaultPasswordEnv is consulted when no vault password flag is given
const VaultPasswordEnv = "DDC_VAULT_PASSWORD"

// Loader loads environment variables from a file.
type Loader interface {
	Load(path, vaultPassword string) error
}

// PasswordPrompt asks the user for the vault password.
type PasswordPrompt func() (string, error)

// DefaultLoader implements Loader using godotenv.
type DefaultLoader struct {
	vaultDecrypter VaultDecrypter
	prompt         PasswordPrompt
	logger         *zap.Logger
}

// Option configures a DefaultLoader
type Option func(*DefaultLoader)

// WithVaultDecrypter replaces the vault decrypter
func WithVaultDecrypter(decrypter VaultDecrypter) Option {
	return func(l *DefaultLoader) {
		l.vaultDecrypter = decrypter
	}
}

// WithPasswordPrompt replaces the interactive password prompt
func WithPasswordPrompt(prompt PasswordPrompt) Option {
	return func(l *DefaultLoader) {
		l.prompt = prompt
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *DefaultLoader) {
		l.logger = logger
	}
}

// NewLoader creates an environment loader prompting on the terminal.
func NewLoader(opts ...Option) Loader {
	l := &DefaultLoader{
		vaultDecrypter: NewVaultDecrypter(),
		prompt:         TerminalPrompt(os.Stdin, os.Stderr),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load sets the variables found in path. Variables already present in the
// process environment are not overridden.
func (l *DefaultLoader) Load(path, vaultPassword string) error {
	if path == "" {
		return nil
	}

	encrypted, err := isVaultFile(path)
	if err != nil {
		return err
	}
	if encrypted {
		return l.loadVaultFile(path, vaultPassword)
	}

	l.logger.Debug("loading env file", zap.String("path", path))
	return godotenv.Load(path)
}

func (l *DefaultLoader) loadVaultFile(path, password string) error {
	password, err := l.resolveVaultPassword(password)
	if err != nil {
		return err
	}

	l.logger.Debug("loading vault env file", zap.String("path", path))
	decrypted, err := LoadVaultFile(path, password, l.vaultDecrypter)
	if err != nil {
		return err
	}

	return setEnvironmentVariables(decrypted)
}

// resolveVaultPassword prefers the given password, then the environment, then the prompt
func (l *DefaultLoader) resolveVaultPassword(password string) (string, error) {
	if password != "" {
		return password, nil
	}

	if envPwd := os.Getenv(VaultPasswordEnv); envPwd != "" {
		return envPwd, nil
	}

	prompted, err := l.prompt()
	if err != nil {
		return "", fmt.Errorf("failed to get vault password: %w", err)
	}
	return prompted, nil
}

func setEnvironmentVariables(decrypted string) error {
	envMap, err := godotenv.Unmarshal(decrypted)
	if err != nil {
		return fmt.Errorf("environment unmarshaling failed: %w", err)
	}

	for k, v := range envMap {
		if _, exists := os.LookupEnv(k); exists {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("failed to set environment variable %s: %w", k, err)
		}
	}

	return nil
}

// TerminalPrompt reads the password without echo when in is a terminal and
// falls back to reading a plain line otherwise.
func TerminalPrompt(in *os.File, out io.Writer) PasswordPrompt {
	return func() (string, error) {
		fmt.Fprint(out, "Enter vault password: ")

		if term.IsTerminal(int(in.Fd())) {
			password, err := term.ReadPassword(int(in.Fd()))
			fmt.Fprintln(out)
			if err != nil {
				return "", fmt.Errorf("failed to read password: %w", err)
			}
			return string(password), nil
		}

		password, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && (err != io.EOF || password == "") {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(password), nil
	}
}
