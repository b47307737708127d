package env

import (
	"errors"
	"fmt"
	"os"
	"strings"

	vault "github.com/sosedoff/ansible-vault-go"
)

// vaultHeader starts every Ansible Vault encrypted file
const vaultHeader = "$ANSIBLE_VAULT;"

// ErrVaultPasswordRequired is returned when an encrypted file is loaded without a password
var ErrVaultPasswordRequired = errors.New("vault password is required")

// VaultDecrypter decrypts Ansible Vault content.
type VaultDecrypter interface {
	Decrypt(content, password string) (string, error)
}

// DefaultVaultDecrypter implements VaultDecrypter using ansible-vault-go.
type DefaultVaultDecrypter struct{}

// NewVaultDecrypter creates the default vault decrypter.
func NewVaultDecrypter() VaultDecrypter {
	return &DefaultVaultDecrypter{}
}

// Decrypt decrypts content encrypted with Ansible Vault.
func (d *DefaultVaultDecrypter) Decrypt(content, password string) (string, error) {
	return vault.Decrypt(content, password)
}

// LoadVaultFile reads and decrypts an Ansible Vault file.
func LoadVaultFile(path, password string, decrypter VaultDecrypter) (string, error) {
	if password == "" {
		return "", ErrVaultPasswordRequired
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read vault file: %w", err)
	}

	decrypted, err := decrypter.Decrypt(string(data), password)
	if err != nil {
		return "", fmt.Errorf("vault decryption failed: %w", err)
	}

	return decrypted, nil
}

// isVaultFile reports whether path holds vault encrypted content, either by
// its .vault suffix or by the vault header on its first line.
func isVaultFile(path string) (bool, error) {
	if strings.HasSuffix(path, ".vault") {
		return true, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read env file: %w", err)
	}
	return strings.HasPrefix(strings.TrimSpace(string(data)), vaultHeader), nil
}
