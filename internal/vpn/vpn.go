// Package vpn provides the provisioning orchestrator: it resolves the
// certificate authority, issues server and client certificates, generates
// the DH parameters, renders the router configuration and optionally pushes
// it to the router over SSH.
package vpn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/routervpn/configurator/internal/keystore"
	"github.com/routervpn/configurator/internal/models"
	"github.com/routervpn/configurator/internal/pki"
	"github.com/routervpn/configurator/internal/remote"
	"github.com/routervpn/configurator/internal/session"
)

// PKI is the certificate engine used by the Configurator.
type PKI interface {
	BuildCA(ctx context.Context, opts pki.CAOptions) (*pki.Authority, error)
	ReadExistingCA(privateKeyPEM, certPEM []byte, passphrase string) (*pki.Authority, error)
	Issue(ctx context.Context, ca *pki.Authority, req pki.LeafRequest) (*pki.Leaf, error)
	GenerateDHParams(ctx context.Context, bits int, useStatic bool) ([]byte, error)
}

// Remote is the router side of a run.
type Remote interface {
	AutoConfigViaSSH(ctx context.Context, req models.ConfigRequest, artifacts remote.Artifacts, status remote.StatusFunc) error
	FetchCA(ctx context.Context, req models.ConfigRequest) (certPEM, keyPEM []byte, err error)
}

type defaultPKI struct{}

func (defaultPKI) BuildCA(ctx context.Context, opts pki.CAOptions) (*pki.Authority, error) {
	return pki.BuildCA(ctx, opts)
}

func (defaultPKI) ReadExistingCA(privateKeyPEM, certPEM []byte, passphrase string) (*pki.Authority, error) {
	return pki.ReadExistingCA(privateKeyPEM, certPEM, passphrase)
}

func (defaultPKI) Issue(ctx context.Context, ca *pki.Authority, req pki.LeafRequest) (*pki.Leaf, error) {
	return ca.Issue(ctx, req)
}

func (defaultPKI) GenerateDHParams(ctx context.Context, bits int, useStatic bool) ([]byte, error) {
	return pki.GenerateDHParams(ctx, bits, useStatic)
}

// Configurator is the main VPN configuration orchestrator.
type Configurator struct {
	// request contains the VPN configuration request details.
	request models.ConfigRequest

	// mode is the validated mode union of the request.
	mode models.Mode

	// session receives the status log and the final stage.
	session *session.Session

	// output is the per-run output directory.
	output keystore.Store

	// caKeys holds ca.crt and ca.key for the local CA modes.
	caKeys keystore.Store

	pki    PKI
	remote Remote
	now    func() time.Time
	logger log.Interface
}

// Option configures a Configurator.
type Option func(*Configurator)

// WithCAKeyStore sets the store used for CAUseExistingLocal and StoreKeysLocal.
func WithCAKeyStore(s keystore.Store) Option {
	return func(c *Configurator) { c.caKeys = s }
}

// WithPKI replaces the certificate engine.
func WithPKI(p PKI) Option {
	return func(c *Configurator) { c.pki = p }
}

// WithRemote replaces the SSH provisioning client.
func WithRemote(r Remote) Option {
	return func(c *Configurator) { c.remote = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Configurator) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l log.Interface) Option {
	return func(c *Configurator) { c.logger = l }
}

// NewConfigurator creates a new VPN configurator with the given request.
func NewConfigurator(request models.ConfigRequest, sess *session.Session, output keystore.Store, opts ...Option) (*Configurator, error) {
	mode, err := request.Mode()
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("session is required")
	}
	if output == nil {
		return nil, fmt.Errorf("output store is required")
	}

	c := &Configurator{
		request: request,
		mode:    mode,
		session: sess,
		output:  output,
		pki:     defaultPKI{},
		now:     time.Now,
		logger:  log.Log,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.caKeys == nil {
		if request.Params.CAKeysDir != "" {
			c.caKeys = keystore.NewFS(request.Params.CAKeysDir)
		} else {
			c.caKeys = output
		}
	}
	if c.remote == nil {
		c.remote = remote.New(remote.WithLogger(c.logger))
	}
	return c, nil
}

// ConfigureVPN runs the provisioning sequence. Identity failures and SSH
// failures are reported in the result; CA and DH failures abort the run.
func (c *Configurator) ConfigureVPN(ctx context.Context) (*models.ConfigResult, error) {
	if err := c.session.Begin(); err != nil {
		return nil, err
	}
	if dups := models.DuplicateUsernames(c.request.Servers, c.request.Clients); len(dups) > 0 {
		c.logger.WithField("usernames", strings.Join(dups, ",")).Warn("duplicate usernames, later files overwrite earlier ones")
	}

	result := &models.ConfigResult{}
	run := &run{Configurator: c, result: result, startedAt: c.now()}

	// Step 1: Resolve the certificate authority
	phase := c.caPhase()
	c.session.Append(phase, false)
	if err := run.resolveCA(ctx); err != nil {
		return nil, c.fail(phase, err)
	}

	// Step 2: Server certificates
	if len(c.request.Servers) > 0 {
		c.session.Append("Generating server certificates", false)
		run.issueServers(ctx)
	}

	// Step 3: Client certificates
	c.session.Append("Generating client certificates", false)
	run.issueClients(ctx)

	// Step 4: DH parameters
	phase = "Generating dh pem"
	c.session.Append(phase, false)
	if err := run.generateDH(ctx); err != nil {
		return nil, c.fail(phase, err)
	}

	// Step 5: Router configuration text
	phase = "Rendering router configuration"
	c.session.Append(phase, false)
	if err := run.render(); err != nil {
		return nil, c.fail(phase, err)
	}

	// Step 6: Push to the router
	if c.mode.AutoConfigure() {
		c.session.Append("Auto configure using ssh settings", false)
		run.autoConfigure(ctx)
	}

	c.session.Finish(result)
	return result, nil
}

func (c *Configurator) caPhase() string {
	switch c.mode.CA {
	case models.CAUseExistingLocal:
		return "Reusing existing CA"
	case models.CAUseExistingRouter:
		return "Loading CA from router"
	}
	return "Building CA"
}

func (c *Configurator) fail(phase string, err error) error {
	c.session.Fail(phase, err)
	return fmt.Errorf("%s: %w", phase, err)
}
