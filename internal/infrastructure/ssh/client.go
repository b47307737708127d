// Package ssh opens authenticated SSH sessions to deployment targets. It runs
// remote commands, uploads archives over the scp sink protocol and verifies
// uploads through SFTP, adapting all of it to the deploy.Session interface.
package ssh

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/nickalie/ddc/internal/core/deploy"
	"github.com/nickalie/ddc/internal/core/target"
)

// AgentSocketEnv names the variable holding the SSH agent socket path
const AgentSocketEnv = "SSH_AUTH_SOCK"

// SessionFactory implements deploy.SessionFactory using SSH
type SessionFactory struct {
	dial        func(network, addr string) (net.Conn, error)
	dialAgent   func() (net.Conn, error)
	readKeyFile func(name string) ([]byte, error)
	logger      *zap.Logger
}

// FactoryOption configures a SessionFactory
type FactoryOption func(*SessionFactory)

// WithDialer replaces the TCP dialer
func WithDialer(dial func(network, addr string) (net.Conn, error)) FactoryOption {
	return func(f *SessionFactory) {
		f.dial = dial
	}
}

// WithAgentDialer replaces how the SSH agent is reached
func WithAgentDialer(dial func() (net.Conn, error)) FactoryOption {
	return func(f *SessionFactory) {
		f.dialAgent = dial
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *SessionFactory) {
		f.logger = logger
	}
}

// NewSessionFactory creates a new SSH session factory
func NewSessionFactory(opts ...FactoryOption) *SessionFactory {
	f := &SessionFactory{
		dial:        net.Dial,
		dialAgent:   dialAgentSocket,
		readKeyFile: os.ReadFile,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open authenticates against tgt and returns a ready session. Credentials
// are resolved before any network traffic, so a missing key or agent fails
// without touching the host.
func (f *SessionFactory) Open(tgt *target.Target) (deploy.Session, error) {
	method := tgt.AuthMethod()
	auth, agentConn, err := f.authMethod(tgt)
	if err != nil {
		return nil, &deploy.AuthenticationError{User: tgt.User, Method: method, Cause: err}
	}

	hostKeyCallback, err := hostKeyCallback(tgt)
	if err != nil {
		closeQuietly(agentConn)
		return nil, &deploy.SessionError{Op: "load known hosts", Cause: err}
	}

	addr := tgt.Address()
	f.logger.Debug("connecting", zap.String("addr", addr), zap.String("user", tgt.User), zap.String("auth", method))

	conn, err := f.dial("tcp", addr)
	if err != nil {
		closeQuietly(agentConn)
		return nil, &deploy.ConnectionError{Addr: addr, Cause: err}
	}

	config := &ssh.ClientConfig{
		User:            tgt.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallback,
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		closeQuietly(agentConn)
		if isAuthFailure(err) {
			return nil, &deploy.AuthenticationError{User: tgt.User, Method: method, Cause: err}
		}
		return nil, &deploy.SessionError{Op: "handshake", Cause: err}
	}

	client := ssh.NewClient(clientConn, chans, reqs)
	f.logger.Debug("handshake complete", zap.String("addr", addr), zap.ByteString("server_version", client.ServerVersion()))

	session := NewSession(NewSSHAdapter(client), func() (SFTPClientInterface, error) {
		sftpClient, err := sftp.NewClient(client)
		if err != nil {
			return nil, err
		}
		return NewSFTPAdapter(sftpClient), nil
	})
	if agentConn != nil {
		session.closers = append(session.closers, agentConn)
	}
	return session, nil
}

// authMethod returns the private key when one is configured, otherwise the
// signers held by the SSH agent. The agent connection, if any, must stay
// open for the lifetime of the session.
func (f *SessionFactory) authMethod(tgt *target.Target) (ssh.AuthMethod, io.Closer, error) {
	if tgt.PrivateKey != "" {
		signer, err := f.loadPrivateKey(tgt.PrivateKey)
		if err != nil {
			return nil, nil, err
		}
		return ssh.PublicKeys(signer), nil, nil
	}

	conn, err := f.dialAgent()
	if err != nil {
		return nil, nil, err
	}

	agentClient := agent.NewClient(conn)
	signers, err := agentClient.Signers()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to list agent keys: %w", err)
	}
	if len(signers) == 0 {
		_ = conn.Close()
		return nil, nil, errors.New("ssh agent holds no keys")
	}

	return ssh.PublicKeysCallback(agentClient.Signers), conn, nil
}

func (f *SessionFactory) loadPrivateKey(keyPath string) (ssh.Signer, error) {
	expanded, err := homedir.Expand(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand key path: %w", err)
	}

	key, err := f.readKeyFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return signer, nil
}

func dialAgentSocket() (net.Conn, error) {
	socket := os.Getenv(AgentSocketEnv)
	if socket == "" {
		return nil, fmt.Errorf("no private key given and %s is not set", AgentSocketEnv)
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ssh agent: %w", err)
	}
	return conn, nil
}

func hostKeyCallback(tgt *target.Target) (ssh.HostKeyCallback, error) {
	if tgt.KnownHosts == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path, err := homedir.Expand(tgt.KnownHosts)
	if err != nil {
		return nil, err
	}
	return knownhosts.New(path)
}

func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

var _ deploy.SessionFactory = (*SessionFactory)(nil)
