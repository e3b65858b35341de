package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/eniac111/mla/internal/types"
)

// Options tunes how sessions are established.
type Options struct {
	Timeout        time.Duration
	KnownHostsFile string // empty accepts any host key
	UseAgent       bool
}

// Dialer opens authenticated sessions to inventory hosts.
type Dialer struct {
	opts Options
	log  zerolog.Logger
}

// NewDialer returns a Dialer.
func NewDialer(opts Options, log zerolog.Logger) *Dialer {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Dialer{opts: opts, log: log}
}

// Connect performs one connection attempt using the host's authentication mode.
// Failures are returned as *TransportError carrying one of the Err* kinds.
func (d *Dialer) Connect(ctx context.Context, host types.Host) (*Session, error) {
	log := d.log.With().Str("host", host.Address).Logger()
	log.Debug().Msg("Attempting to establish an SSH connection")

	auth, cleanup, err := d.authMethods(host, log)
	if err != nil {
		return nil, &TransportError{Op: "connect", Kind: ErrAuthRejected, Err: err}
	}
	defer cleanup()

	hostKeyCallback, err := d.hostKeyCallback()
	if err != nil {
		return nil, &TransportError{Op: "connect", Kind: ErrBadHostKey, Err: err}
	}

	config := &ssh.ClientConfig{
		User:            host.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.opts.Timeout,
	}

	addr := host.Endpoint()
	dialer := net.Dialer{Timeout: d.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "dial", Kind: ErrNetwork, Err: err}
	}

	_ = conn.SetDeadline(time.Now().Add(d.opts.Timeout))
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	stop()
	if err != nil {
		_ = conn.Close()
		return nil, &TransportError{Op: "handshake", Kind: classifyHandshake(err), Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	log.Info().Str("endpoint", addr).Msg("SSH connection established")
	return &Session{client: ssh.NewClient(sshConn, chans, reqs), log: log}, nil
}

func (d *Dialer) authMethods(host types.Host, log zerolog.Logger) ([]ssh.AuthMethod, func(), error) {
	noop := func() {}

	if host.PasswordAuth() {
		log.Debug().Msg("Connecting via username & password method")
		password := host.Password
		return []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		}, noop, nil
	}

	log.Debug().Msg("Connecting via public key method")
	key, err := os.ReadFile(host.KeyFile)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to read SSH key: %w", err)
	}
	var signer ssh.Signer
	if host.KeyPassphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(host.KeyPassphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		return nil, noop, fmt.Errorf("failed to parse SSH key: %w", err)
	}
	methods := []ssh.AuthMethod{ssh.PublicKeys(signer)}

	if !d.opts.UseAgent {
		return methods, noop, nil
	}
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		log.Debug().Msg("SSH agent requested but SSH_AUTH_SOCK is unset")
		return methods, noop, nil
	}
	agentConn, err := net.Dial("unix", sock)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to SSH agent")
		return methods, noop, nil
	}
	log.Debug().Msg("Using SSH agent")
	methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(agentConn).Signers))
	return methods, func() { _ = agentConn.Close() }, nil
}

func (d *Dialer) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if d.opts.KnownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	verify, err := knownhosts.New(d.opts.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if err := verify(hostname, remote, key); err != nil {
			return &hostKeyError{err: err}
		}
		return nil
	}, nil
}

// Session is one authenticated connection. It is owned by a single worker and
// must be closed by it.
type Session struct {
	client *ssh.Client
	log    zerolog.Logger

	mu   sync.Mutex
	sftp *sftp.Client
}

// Exec runs command and returns its decoded output. A non-zero exit status is
// returned as exitCode with a nil error.
func (s *Session) Exec(ctx context.Context, command string) (string, string, int, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return "", "", -1, &TransportError{Op: "exec", Kind: ErrNetwork, Err: fmt.Errorf("failed to create session: %w", err)}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return stdout.String(), stderr.String(), -1, &TransportError{Op: "exec", Kind: ErrNetwork, Err: ctx.Err()}
	case runErr = <-done:
	}

	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			return stdout.String(), stderr.String(), exitErr.ExitStatus(), nil
		}
		return stdout.String(), stderr.String(), -1, &TransportError{Op: "exec", Kind: ErrNetwork, Err: runErr}
	}
	return stdout.String(), stderr.String(), 0, nil
}

// files returns the SFTP sub-channel, opening it on first use.
func (s *Session) files() (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sftp != nil {
		return s.sftp, nil
	}
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, &TransportError{Op: "sftp", Kind: ErrProtocol, Err: err}
	}
	s.sftp = client
	return client, nil
}

// MkdirAll creates dir on the remote host one missing segment at a time.
// Segments that already exist are left alone.
func (s *Session) MkdirAll(ctx context.Context, dir string) error {
	client, err := s.files()
	if err != nil {
		return err
	}

	dir = path.Clean(dir)
	current := ""
	if strings.HasPrefix(dir, "/") {
		current = "/"
	}
	for _, segment := range strings.Split(strings.Trim(dir, "/"), "/") {
		if err := ctx.Err(); err != nil {
			return err
		}
		if segment == "" || segment == "." {
			continue
		}
		current = path.Join(current, segment)
		if info, err := client.Stat(current); err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%s exists and is not a directory", current)
			}
			continue
		}
		if err := client.Mkdir(current); err != nil {
			if info, statErr := client.Stat(current); statErr == nil && info.IsDir() {
				continue
			}
			return fmt.Errorf("mkdir %s: %w", current, err)
		}
		s.log.Debug().Str("dir", current).Msg("created remote directory")
	}
	return nil
}

// Upload copies the local file to remotePath, replacing it, and applies the
// local permission bits.
func (s *Session) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := s.files()
	if err != nil {
		return err
	}

	srcFile, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create %s: %w", remotePath, err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("copy to %s: %w", remotePath, err)
	}
	if err := client.Chmod(remotePath, info.Mode().Perm()); err != nil {
		s.log.Warn().Err(err).Str("remote", remotePath).Msg("failed to set file permissions")
	}
	return nil
}

// Rename moves oldPath to newPath on the remote host.
func (s *Session) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := s.files()
	if err != nil {
		return err
	}
	return client.Rename(oldPath, newPath)
}

// Close releases the SFTP sub-channel, if any, and the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.sftp != nil {
		errs = append(errs, s.sftp.Close())
		s.sftp = nil
	}
	if s.client != nil {
		errs = append(errs, s.client.Close())
		s.client = nil
	}
	return errors.Join(errs...)
}
