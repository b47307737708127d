package ssh

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// testServer is a minimal in-process SSH server. It accepts one public key,
// answers exec requests, implements an scp sink writing into the local file
// system and serves SFTP.
type testServer struct {
	addr    string
	hostKey ssh.PublicKey

	mu       sync.Mutex
	commands []string
}

func newTestServer(t *testing.T, authorized ssh.PublicKey) *testServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown public key")
		},
	}
	config.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	s := &testServer{addr: listener.Addr().String(), hostKey: hostSigner.PublicKey()}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go s.serve(conn, config)
		}
	}()
	return s
}

func (s *testServer) host() (string, int) {
	host, port, _ := net.SplitHostPort(s.addr)
	var p int
	_, _ = fmt.Sscanf(port, "%d", &p)
	return host, p
}

func (s *testServer) executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *testServer) serve(conn net.Conn, config *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		_ = conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go s.handle(channel, requests)
	}
}

func (s *testServer) handle(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				return
			}
			_ = req.Reply(true, nil)
			go ssh.DiscardRequests(requests)

			code := s.exec(channel, payload.Command)
			_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(code)}))
			return
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				return
			}
			_ = req.Reply(true, nil)
			go ssh.DiscardRequests(requests)

			server, err := sftp.NewServer(channel)
			if err != nil {
				return
			}
			_ = server.Serve()
			return
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func (s *testServer) exec(channel ssh.Channel, command string) int {
	s.mu.Lock()
	s.commands = append(s.commands, command)
	s.mu.Unlock()

	switch {
	case strings.HasPrefix(command, "scp -qt "):
		return scpSink(channel, strings.TrimPrefix(command, "scp -qt "))
	case command == "fail":
		fmt.Fprint(channel, "partial output\n")
		fmt.Fprint(channel.Stderr(), "something broke\n")
		return 3
	default:
		fmt.Fprintf(channel, "ran: %s\n", command)
		return 0
	}
}

// scpSink receives a single file the way "scp -t" does
func scpSink(channel ssh.Channel, dir string) int {
	r := bufio.NewReader(channel)
	_, _ = channel.Write([]byte{0})

	header, err := r.ReadString('\n')
	if err != nil {
		return 1
	}
	var mode uint32
	var size int64
	var name string
	if _, err := fmt.Sscanf(strings.TrimSpace(header), "C%o %d %s", &mode, &size, &name); err != nil {
		_, _ = channel.Write([]byte("\x02bad header\n"))
		return 1
	}
	_, _ = channel.Write([]byte{0})

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return 1
	}
	if end, err := r.ReadByte(); err != nil || end != 0 {
		return 1
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, os.FileMode(mode)); err != nil {
		_, _ = channel.Write([]byte("\x02" + err.Error() + "\n"))
		return 1
	}
	_, _ = channel.Write([]byte{0})
	return 0
}

// newClientKey returns a fresh key pair with the private half written as an
// OpenSSH PEM file
func newClientKey(t *testing.T) (ssh.Signer, string) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	return signer, path
}
