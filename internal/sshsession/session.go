// Package sshsession implements the Shell Session component: a scoped,
// single-use interactive SSH session with a broad legacy algorithm set so
// that ageing embedded firmware still negotiates successfully.
package sshsession

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Credentials is the username + one-of{password, private key} pair spec
// section 3 describes. When both Password and PrivateKey are set, the key
// wins (spec section 9, Open Question 4).
type Credentials struct {
	Username      string
	Password      string
	PrivateKey    string
	KeyPassphrase string
}

func (c Credentials) authMethod() (ssh.AuthMethod, error) {
	if c.PrivateKey != "" {
		var signer ssh.Signer
		var err error
		if c.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(c.PrivateKey), []byte(c.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(c.PrivateKey))
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	}
	if c.Password != "" {
		return ssh.Password(c.Password), nil
	}
	return nil, errors.New("credentials must provide a password or private key")
}

// Result is the outcome of one Run call (spec section 4.2).
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Session is a single, unshared shell session to one router. It carries no
// state across Collector invocations (spec section 5) — callers Open, Run
// zero or more commands, and Close.
type Session struct {
	client *ssh.Client
	mu     sync.Mutex
	closed bool
}

var (
	hostKeyOnce     sync.Once
	hostKeyCallback ssh.HostKeyCallback
	hostKeyFile     string
)

// hostKeyVerifier lazily builds a Trust-On-First-Use host key callback
// backed by a known_hosts file, grounded on the teacher's internal/ssh
// client TOFU logic.
func hostKeyVerifier() ssh.HostKeyCallback {
	hostKeyOnce.Do(func() {
		hostKeyFile = os.Getenv("SSH_KNOWN_HOSTS")
		if hostKeyFile == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				hostKeyFile = ".router_discovery_known_hosts"
			} else {
				dir := filepath.Join(home, ".router-discovery")
				_ = os.MkdirAll(dir, 0700)
				hostKeyFile = filepath.Join(dir, "known_hosts")
			}
		}

		var base ssh.HostKeyCallback
		if _, err := os.Stat(hostKeyFile); err == nil {
			if cb, err := knownhosts.New(hostKeyFile); err == nil {
				base = cb
			}
		}

		hostKeyCallback = func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			if base != nil {
				if err := base(hostname, remote, key); err == nil {
					return nil
				} else {
					var keyErr *knownhosts.KeyError
					if !(errors.As(err, &keyErr) && len(keyErr.Want) == 0) {
						return fmt.Errorf("host key verification failed: %w", err)
					}
				}
			}
			if err := appendHostKey(hostname, key); err != nil {
				return fmt.Errorf("unknown host and failed to store key: %w", err)
			}
			log.Printf("[SSH] trust on first use: stored host key for %s (%s)", hostname, fingerprint(key))
			if cb, err := knownhosts.New(hostKeyFile); err == nil {
				base = cb
			}
			return nil
		}
	})
	return hostKeyCallback
}

func appendHostKey(hostname string, key ssh.PublicKey) error {
	if err := os.MkdirAll(filepath.Dir(hostKeyFile), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(hostKeyFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(knownhosts.Line([]string{hostname}, key) + "\n")
	return err
}

func fingerprint(key ssh.PublicKey) string {
	h := sha256.Sum256(key.Marshal())
	return "SHA256:" + base64.RawStdEncoding.EncodeToString(h[:])
}

// legacyAlgorithms extends the modern default negotiation set with the
// key-exchange, cipher and host-key algorithms old OpenWrt firmware still
// speaks (spec section 4.2).
func legacyAlgorithms() ssh.Config {
	cfg := ssh.Config{
		KeyExchanges: []string{
			"curve25519-sha256", "ecdh-sha2-nistp256",
			"diffie-hellman-group14-sha256", "diffie-hellman-group14-sha1",
			"diffie-hellman-group1-sha1", "diffie-hellman-group-exchange-sha1",
			"diffie-hellman-group-exchange-sha256",
		},
		Ciphers: []string{
			"aes128-gcm@openssh.com", "aes256-gcm@openssh.com",
			"aes128-ctr", "aes192-ctr", "aes256-ctr",
			"aes128-cbc", "aes256-cbc", "3des-cbc", "arcfour",
		},
	}
	return cfg
}

var legacyHostKeyAlgorithms = []string{
	ssh.KeyAlgoED25519,
	ssh.KeyAlgoECDSA256, ssh.KeyAlgoECDSA384, ssh.KeyAlgoECDSA521,
	ssh.KeyAlgoRSA, ssh.KeyAlgoRSASHA256, ssh.KeyAlgoRSASHA512,
	ssh.KeyAlgoDSA,
}

// Open negotiates a new interactive SSH session to addr:port within
// timeout. Either a password or a private key must be present in creds.
func Open(ctx context.Context, addr string, port int, creds Credentials, timeout time.Duration) (*Session, error) {
	auth, err := creds.authMethod()
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:              creds.Username,
		Auth:              []ssh.AuthMethod{auth},
		HostKeyCallback:   hostKeyVerifier(),
		HostKeyAlgorithms: legacyHostKeyAlgorithms,
		Timeout:           timeout,
		Config:            legacyAlgorithms(),
	}

	dialer := net.Dialer{Timeout: timeout}
	hostport := net.JoinHostPort(addr, fmt.Sprintf("%d", port))

	resultCh := make(chan struct {
		client *ssh.Client
		err    error
	}, 1)

	go func() {
		conn, err := dialer.DialContext(ctx, "tcp", hostport)
		if err != nil {
			resultCh <- struct {
				client *ssh.Client
				err    error
			}{nil, err}
			return
		}
		sshConn, chans, reqs, err := ssh.NewClientConn(conn, hostport, config)
		if err != nil {
			_ = conn.Close()
			resultCh <- struct {
				client *ssh.Client
				err    error
			}{nil, err}
			return
		}
		resultCh <- struct {
			client *ssh.Client
			err    error
		}{ssh.NewClient(sshConn, chans, reqs), nil}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("ssh open: %w", res.err)
		}
		return &Session{client: res.client}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("ssh open: timed out after %v", timeout)
	}
}

// Run executes one command with its own timeout, also ending the command
// early if ctx is cancelled or its deadline passes. A timeout ends the
// command but leaves the session itself open for further calls (spec
// section 4.2).
func (s *Session) Run(ctx context.Context, command string, timeout time.Duration) (Result, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Result{}, errors.New("session is closed")
	}

	session, err := s.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case err := <-done:
		exitCode := 0
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitStatus()
			} else {
				return Result{Stdout: stdout.String(), Stderr: stderr.String()}, fmt.Errorf("run %q: %w", command, err)
			}
		}
		return Result{ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String()}, nil
	case <-ctx.Done():
		_ = session.Close()
		return Result{}, fmt.Errorf("command %q cancelled: %w", command, ctx.Err())
	case <-time.After(timeout):
		_ = session.Close()
		return Result{}, fmt.Errorf("command %q timed out after %v", command, timeout)
	}
}

// Close releases all transport resources. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

// Agent opens an ssh-agent-backed auth method, used by callers that want
// TryAutoAuth-style behaviour in addition to the password/key pair above.
func Agent() (ssh.AuthMethod, error) {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil, errors.New("SSH_AUTH_SOCK not set")
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("connect to ssh-agent: %w", err)
	}
	ag := agent.NewClient(conn)
	return ssh.PublicKeysCallback(ag.Signers), nil
}
