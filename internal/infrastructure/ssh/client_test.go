package ssh

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/nickalie/ddc/internal/core/deploy"
	"github.com/nickalie/ddc/internal/core/target"
)

func targetFor(server *testServer, keyPath string) *target.Target {
	host, port := server.host()
	return &target.Target{Name: "test", Host: host, User: "deployer", Port: port, PrivateKey: keyPath}
}

func failingDialer(called *bool) func(string, string) (net.Conn, error) {
	return func(string, string) (net.Conn, error) {
		*called = true
		return nil, errors.New("dial must not be called")
	}
}

func TestSessionFactory_PrivateKeyRoundTrip(t *testing.T) {
	signer, keyPath := newClientKey(t)
	server := newTestServer(t, signer.PublicKey())

	session, err := NewSessionFactory().Open(targetFor(server, keyPath))
	require.NoError(t, err)
	defer session.Close()

	var out bytes.Buffer
	result, err := session.Run("docker-compose ps", &out)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "ran: docker-compose ps\n", out.String())

	result, err = session.Run("fail", &out)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "partial output\nsomething broke\n", result.Output)

	assert.Equal(t, []string{"docker-compose ps", "fail"}, server.executed())
}

func TestSessionFactory_UploadAndVerify(t *testing.T) {
	signer, keyPath := newClientKey(t)
	server := newTestServer(t, signer.PublicKey())
	remoteDir := t.TempDir()
	remotePath := filepath.ToSlash(filepath.Join(remoteDir, "ddc-test.tar.gz"))

	session, err := NewSessionFactory().Open(targetFor(server, keyPath))
	require.NoError(t, err)
	defer session.Close()

	payload := bytes.Repeat([]byte("0123456789"), 2500)
	channel, err := session.OpenUpload(remotePath, int64(len(payload)), 0o644)
	require.NoError(t, err)
	for off := 0; off < len(payload); off += 1000 {
		_, err := channel.Write(payload[off : off+1000])
		require.NoError(t, err)
	}
	require.NoError(t, channel.Close())

	written, err := os.ReadFile(filepath.Join(remoteDir, "ddc-test.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, payload, written)

	size, err := session.RemoteSize(remotePath)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), size)
}

func TestSessionFactory_MissingKeyFailsBeforeDial(t *testing.T) {
	dialed := false
	factory := NewSessionFactory(WithDialer(failingDialer(&dialed)))
	tgt := &target.Target{Host: "10.0.0.5", User: "ubuntu", PrivateKey: filepath.Join(t.TempDir(), "missing")}

	_, err := factory.Open(tgt)

	var authErr *deploy.AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "ubuntu", authErr.User)
	assert.Equal(t, "private key", authErr.Method)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, dialed, "no connection may be attempted")
}

func TestSessionFactory_UnparsableKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(keyPath, []byte("not a key"), 0o600))
	dialed := false

	_, err := NewSessionFactory(WithDialer(failingDialer(&dialed))).Open(&target.Target{Host: "10.0.0.5", User: "ubuntu", PrivateKey: keyPath})

	var authErr *deploy.AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Contains(t, err.Error(), "failed to parse private key")
	assert.False(t, dialed)
}

func TestSessionFactory_RejectedKey(t *testing.T) {
	authorized, _ := newClientKey(t)
	_, otherKey := newClientKey(t)
	server := newTestServer(t, authorized.PublicKey())

	_, err := NewSessionFactory().Open(targetFor(server, otherKey))

	var authErr *deploy.AuthenticationError
	require.True(t, errors.As(err, &authErr), "got %v", err)
}

func TestSessionFactory_ConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().(*net.TCPAddr)
	require.NoError(t, listener.Close())
	_, keyPath := newClientKey(t)

	_, err = NewSessionFactory().Open(&target.Target{Host: "127.0.0.1", Port: addr.Port, User: "u", PrivateKey: keyPath})

	var connErr *deploy.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, fmt.Sprintf("127.0.0.1:%d", addr.Port), connErr.Addr)
}

func TestSessionFactory_HandshakeFailure(t *testing.T) {
	_, keyPath := newClientKey(t)
	factory := NewSessionFactory(WithDialer(func(string, string) (net.Conn, error) {
		client, server := net.Pipe()
		_ = server.Close()
		return client, nil
	}))

	_, err := factory.Open(&target.Target{Host: "10.0.0.5", User: "u", PrivateKey: keyPath})

	var sessErr *deploy.SessionError
	require.True(t, errors.As(err, &sessErr), "got %v", err)
	assert.Equal(t, "handshake", sessErr.Op)
}

func agentDialer(t *testing.T, keys ...ed25519.PrivateKey) func() (net.Conn, error) {
	keyring := agent.NewKeyring()
	for _, key := range keys {
		require.NoError(t, keyring.Add(agent.AddedKey{PrivateKey: key}))
	}
	return func() (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			_ = agent.ServeAgent(keyring, server)
		}()
		return client, nil
	}
}

func TestSessionFactory_Agent(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	server := newTestServer(t, signer.PublicKey())

	session, err := NewSessionFactory(WithAgentDialer(agentDialer(t, priv))).Open(targetFor(server, ""))
	require.NoError(t, err)

	result, err := session.Run("whoami", nil)
	require.NoError(t, err)
	assert.Equal(t, "ran: whoami\n", result.Output)
	require.NoError(t, session.Close())
}

func TestSessionFactory_EmptyAgent(t *testing.T) {
	dialed := false

	_, err := NewSessionFactory(WithDialer(failingDialer(&dialed)), WithAgentDialer(agentDialer(t))).
		Open(&target.Target{Host: "10.0.0.5", User: "ubuntu"})

	var authErr *deploy.AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "ssh agent", authErr.Method)
	assert.Contains(t, err.Error(), "no keys")
	assert.False(t, dialed)
}

func TestSessionFactory_NoAgentSocket(t *testing.T) {
	t.Setenv(AgentSocketEnv, "")
	dialed := false

	_, err := NewSessionFactory(WithDialer(failingDialer(&dialed))).Open(&target.Target{Host: "10.0.0.5", User: "ubuntu"})

	var authErr *deploy.AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Contains(t, err.Error(), AgentSocketEnv)
	assert.False(t, dialed)
}

func TestSessionFactory_KnownHosts(t *testing.T) {
	signer, keyPath := newClientKey(t)
	server := newTestServer(t, signer.PublicKey())

	t.Run("matching host key", func(t *testing.T) {
		knownHosts := filepath.Join(t.TempDir(), "known_hosts")
		line := knownhosts.Line([]string{knownhosts.Normalize(server.addr)}, server.hostKey)
		require.NoError(t, os.WriteFile(knownHosts, []byte(line+"\n"), 0o600))

		tgt := targetFor(server, keyPath)
		tgt.KnownHosts = knownHosts
		session, err := NewSessionFactory().Open(tgt)
		require.NoError(t, err)
		require.NoError(t, session.Close())
	})

	t.Run("unknown host", func(t *testing.T) {
		knownHosts := filepath.Join(t.TempDir(), "known_hosts")
		require.NoError(t, os.WriteFile(knownHosts, nil, 0o600))

		tgt := targetFor(server, keyPath)
		tgt.KnownHosts = knownHosts
		_, err := NewSessionFactory().Open(tgt)

		var sessErr *deploy.SessionError
		require.True(t, errors.As(err, &sessErr), "got %v", err)
	})

	t.Run("missing file", func(t *testing.T) {
		tgt := targetFor(server, keyPath)
		tgt.KnownHosts = filepath.Join(t.TempDir(), "nope")
		_, err := NewSessionFactory().Open(tgt)

		var sessErr *deploy.SessionError
		require.True(t, errors.As(err, &sessErr))
		assert.Equal(t, "load known hosts", sessErr.Op)
	})
}
