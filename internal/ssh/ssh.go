// Package ssh provides functionality for SSH connections and command execution on the router.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"github.com/routervpn/configurator/internal/models"
	"golang.org/x/crypto/ssh"
)

// DefaultPort is the SSH port used when the credentials leave it unset.
const DefaultPort = 22

// DefaultTimeout bounds TCP connect plus SSH handshake.
const DefaultTimeout = 10 * time.Second

var (
	// ErrConnectionRefused indicates that nothing listens on the SSH port.
	ErrConnectionRefused = errors.New("connection refused")

	// ErrAuthentication indicates that the router rejected the credentials.
	ErrAuthentication = errors.New("ssh authentication failed")

	// ErrNotConnected is returned by operations on a closed client.
	ErrNotConnected = errors.New("client not connected")
)

// Client represents an SSH client for communicating with the router.
type Client struct {
	// config is the SSH client configuration.
	config *ssh.ClientConfig

	// serverAddress is the host:port of the router.
	serverAddress string

	// port is kept for error messages.
	port int

	// client is the underlying SSH client connection.
	client *ssh.Client

	logger log.Interface
}

// Result is the outcome of a remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// NewClient creates a new SSH client with the given credentials. Password
// authentication is tried first, then keyboard-interactive.
func NewClient(creds models.SSHCredentials, timeout time.Duration, logger log.Interface) (*Client, error) {
	if creds.Host == "" {
		return nil, fmt.Errorf("ssh host is required")
	}
	if creds.Port == 0 {
		creds.Port = DefaultPort
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.Log
	}

	config := &ssh.ClientConfig{
		User: creds.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(creds.Password),
			ssh.KeyboardInteractive(KeyboardInteractive(creds.Password)),
		},
		// Home routers present self-generated host keys that are not in any
		// known_hosts file; the fingerprint is logged instead.
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			logger.WithField("host", hostname).Debugf("ssh: host key %s", ssh.FingerprintSHA256(key))
			return nil
		},
		Timeout: timeout,
	}

	return &Client{
		config:        config,
		serverAddress: net.JoinHostPort(creds.Host, strconv.Itoa(creds.Port)),
		port:          creds.Port,
		logger:        logger,
	}, nil
}

// KeyboardInteractive answers the first prompt mentioning "password" with
// password and leaves every other prompt empty.
func KeyboardInteractive(password string) ssh.KeyboardInteractiveChallenge {
	return func(name, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i, q := range questions {
			if strings.Contains(strings.ToLower(q), "password") {
				answers[i] = password
				break
			}
		}
		return answers, nil
	}
}

// Connect establishes a connection to the router.
func (c *Client) Connect(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: c.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.serverAddress)
	if err != nil {
		return c.translateError(err)
	}

	// the handshake must finish within the same budget as the dial
	if err := conn.SetDeadline(time.Now().Add(c.config.Timeout)); err != nil {
		conn.Close()
		return err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, c.serverAddress, c.config)
	if err != nil {
		conn.Close()
		return c.translateError(err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		sshConn.Close()
		return err
	}

	c.client = ssh.NewClient(sshConn, chans, reqs)
	c.logger.WithField("addr", c.serverAddress).Debug("ssh: connected")
	return nil
}

// translateError rewrites connection errors into actionable messages.
func (c *Client) translateError(err error) error {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: error connecting %s. Check SSH service is open on port %d",
			ErrConnectionRefused, c.serverAddress, c.port)
	case strings.Contains(err.Error(), "unable to authenticate"):
		return fmt.Errorf("%w: check if given user name and password are correct", ErrAuthentication)
	default:
		return fmt.Errorf("failed to connect to %s: %w", c.serverAddress, err)
	}
}

// Close closes the SSH connection. It is safe to call more than once.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.logger.WithField("addr", c.serverAddress).Debug("ssh: closed")
	return err
}

// Run executes command with optional stdin. A non-zero exit status is
// reported through Result.ExitCode, not as an error.
func (c *Client) Run(ctx context.Context, command string, stdin []byte) (*Result, error) {
	if c.client == nil {
		return nil, ErrNotConnected
	}

	// Create a new session
	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf
	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()
	select {
	case <-ctx.Done():
		session.Close()
		return nil, ctx.Err()
	case err = <-done:
	}

	result := &Result{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
	var exitErr *ssh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
	default:
		return nil, fmt.Errorf("command failed: %w", err)
	}
	return result, nil
}

// ExecuteCommand runs a command on the router and returns its output.
func (c *Client) ExecuteCommand(ctx context.Context, command string) (string, error) {
	result, err := c.Run(ctx, command, nil)
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("command exited with status %d (stderr: %s)", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return result.Stdout, nil
}

// MkdirAll creates dir and its parents on the router.
func (c *Client) MkdirAll(ctx context.Context, dir string) error {
	if _, err := c.ExecuteCommand(ctx, shellquote.Join("mkdir", "-p", dir)); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// UploadFile streams content into a staging file under /tmp and moves it
// to remotePath once complete, so readers never see a partial file. The
// staging file is created private and gets its final mode before the move.
func (c *Client) UploadFile(ctx context.Context, content []byte, remotePath string, mode os.FileMode) error {
	if c.client == nil {
		return ErrNotConnected
	}
	if err := c.MkdirAll(ctx, path.Dir(remotePath)); err != nil {
		return err
	}

	tmpFilePath := "/tmp/" + uuid.NewString()
	if _, err := c.runChecked(ctx, "umask 077 && cat > "+shellquote.Join(tmpFilePath), content); err != nil {
		c.Remove(context.WithoutCancel(ctx), tmpFilePath)
		return fmt.Errorf("failed to write %s: %w", tmpFilePath, err)
	}
	if _, err := c.runChecked(ctx, shellquote.Join("chmod", fmt.Sprintf("%o", mode.Perm()), tmpFilePath), nil); err != nil {
		c.Remove(context.WithoutCancel(ctx), tmpFilePath)
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if _, err := c.runChecked(ctx, shellquote.Join("mv", "-f", tmpFilePath, remotePath), nil); err != nil {
		c.Remove(context.WithoutCancel(ctx), tmpFilePath)
		return fmt.Errorf("failed to move file to destination: %w", err)
	}
	c.logger.WithField("path", remotePath).Debugf("ssh: uploaded %d bytes", len(content))
	return nil
}

// DownloadFile reads a file from the router.
func (c *Client) DownloadFile(ctx context.Context, remotePath string) ([]byte, error) {
	result, err := c.Run(ctx, shellquote.Join("cat", remotePath), nil)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 || result.Stderr != "" {
		return nil, fmt.Errorf("failed to download file: %s", strings.TrimPrefix(strings.TrimSpace(result.Stderr), "cat: "))
	}
	return []byte(result.Stdout), nil
}

// FileExists reports whether remotePath exists on the router.
func (c *Client) FileExists(ctx context.Context, remotePath string) (bool, error) {
	result, err := c.Run(ctx, shellquote.Join("ls", remotePath), nil)
	if err != nil {
		return false, err
	}
	return result.ExitCode == 0, nil
}

// Remove deletes remotePath on the router.
func (c *Client) Remove(ctx context.Context, remotePath string) error {
	_, err := c.runChecked(ctx, shellquote.Join("rm", "-f", remotePath), nil)
	return err
}

func (c *Client) runChecked(ctx context.Context, command string, stdin []byte) (*Result, error) {
	result, err := c.Run(ctx, command, stdin)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return result, fmt.Errorf("exit status %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return result, nil
}
