// Package remote provisions an EdgeRouter over SSH: a read-only pre-flight
// check, the upload and application of the generated configuration, and
// loading an existing CA from the router.
//
// Every operation opens its own SSH session and closes it before returning.
package remote

import (
	"context"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/routervpn/configurator/internal/models"
	"github.com/routervpn/configurator/internal/ping"
	"github.com/routervpn/configurator/internal/ssh"
	"github.com/routervpn/configurator/internal/vpn/edgerouter"
)

// DefaultConfigDir is where certificates are placed on the router.
const DefaultConfigDir = "/config/auth"

const (
	// DefaultCommandTimeout bounds one remote script execution.
	DefaultCommandTimeout = 2 * time.Minute

	// cleanupTimeout bounds temp file removal after a failure or cancellation.
	cleanupTimeout = 30 * time.Second
)

// Conn is an open session to the router.
type Conn interface {
	Run(ctx context.Context, command string, stdin []byte) (*ssh.Result, error)
	UploadFile(ctx context.Context, content []byte, remotePath string, mode os.FileMode) error
	DownloadFile(ctx context.Context, remotePath string) ([]byte, error)
	FileExists(ctx context.Context, remotePath string) (bool, error)
	Remove(ctx context.Context, remotePath string) error
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, creds models.SSHCredentials) (Conn, error)
}

// Pinger checks reachability.
type Pinger interface {
	Ping(ctx context.Context, host string) (ping.Result, error)
}

// SSHDialer dials with internal/ssh.
type SSHDialer struct {
	Timeout time.Duration
	Logger  log.Interface
}

// Dial connects and authenticates.
func (d SSHDialer) Dial(ctx context.Context, creds models.SSHCredentials) (Conn, error) {
	client, err := ssh.NewClient(creds, d.Timeout, d.Logger)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// ICMPPinger pings with internal/ping.
type ICMPPinger struct{}

// Ping sends one echo request.
func (ICMPPinger) Ping(ctx context.Context, host string) (ping.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, ping.DefaultTimeout)
	defer cancel()
	return ping.Probe(ctx, host)
}

// StatusFunc receives progress messages. With sameLine set the message
// continues the previous one.
type StatusFunc func(msg string, sameLine bool)

// Client runs remote operations.
type Client struct {
	dialer          Dialer
	pinger          Pinger
	logger          log.Interface
	vpnFraming      edgerouter.Framing
	firewallFraming edgerouter.Framing
	tempDir         string
	commandTimeout  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the SSH dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithPinger replaces the ICMP pinger.
func WithPinger(p Pinger) Option {
	return func(c *Client) { c.pinger = p }
}

// WithLogger sets the logger.
func WithLogger(l log.Interface) Option {
	return func(c *Client) { c.logger = l }
}

// WithFramings selects the script framings for the VPN and firewall scripts.
func WithFramings(vpn, firewall edgerouter.Framing) Option {
	return func(c *Client) {
		c.vpnFraming = vpn
		c.firewallFraming = firewall
	}
}

// WithTempDir sets the local directory for command scripts.
func WithTempDir(dir string) Option {
	return func(c *Client) { c.tempDir = dir }
}

// WithCommandTimeout bounds each remote script execution.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Client) { c.commandTimeout = d }
}

// New creates a Client. By default it dials with SSHDialer, pings with
// ICMPPinger, frames the VPN script with edgerouter.ScriptTemplate and the
// firewall script with edgerouter.CfgCmdWrapper.
func New(opts ...Option) *Client {
	c := &Client{
		pinger:          ICMPPinger{},
		logger:          log.Log,
		vpnFraming:      edgerouter.ScriptTemplate,
		firewallFraming: edgerouter.CfgCmdWrapper,
		commandTimeout:  DefaultCommandTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = SSHDialer{Timeout: ssh.DefaultTimeout, Logger: c.logger}
	}
	return c
}

func configDir(req models.ConfigRequest) string {
	if req.Params.RemoteConfigDir != "" {
		return req.Params.RemoteConfigDir
	}
	return DefaultConfigDir
}

func statusOrDiscard(status StatusFunc) StatusFunc {
	if status == nil {
		return func(string, bool) {}
	}
	return status
}

// connect dials and returns a close function that logs its error.
func (c *Client) connect(ctx context.Context, creds models.SSHCredentials) (Conn, func(), error) {
	conn, err := c.dialer.Dial(ctx, creds)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := conn.Close(); err != nil {
			c.logger.WithError(err).Warn("remote: close failed")
		}
	}
	return conn, closeFn, nil
}
