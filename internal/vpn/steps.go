package vpn

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/routervpn/configurator/internal/keystore"
	"github.com/routervpn/configurator/internal/models"
	"github.com/routervpn/configurator/internal/pki"
	"github.com/routervpn/configurator/internal/remote"
	"github.com/routervpn/configurator/internal/vpn/ddwrt"
	"github.com/routervpn/configurator/internal/vpn/edgerouter"
	"github.com/routervpn/configurator/internal/vpn/openvpn"
)

// Output file names.
const (
	CACertFile   = "ca.crt"
	CAKeyFile    = "ca.key"
	DHParamsFile = "dh.pem"
)

// run holds the state of one ConfigureVPN call.
type run struct {
	*Configurator

	result    *models.ConfigResult
	startedAt time.Time
	ca        *pki.Authority
	server    *pki.Leaf
	dh        []byte
}

func (r *run) params() models.VPNParameters {
	return r.request.Params
}

func (r *run) resolveCA(ctx context.Context) error {
	var (
		ca  *pki.Authority
		err error
	)
	switch r.mode.CA {
	case models.CAGenerateNew:
		p := r.params()
		opts := pki.CAOptions{Subject: p.Subject, KeySize: p.KeySize, NotBefore: r.startedAt}
		if p.ValidityDays > 0 {
			opts.NotAfter = r.startedAt.Add(p.Validity())
		}
		ca, err = r.pki.BuildCA(ctx, opts)
		if err != nil {
			return err
		}
		if err := r.output.WriteFile(CAKeyFile, ca.PrivateKeyPEM, keystore.KeyMode); err != nil {
			return err
		}
		if p.StoreKeys == models.StoreKeysLocal && r.caKeys != r.output {
			if err := r.caKeys.WriteFile(CACertFile, ca.CertificatePEM, keystore.CertMode); err != nil {
				return err
			}
			if err := r.caKeys.WriteFile(CAKeyFile, ca.PrivateKeyPEM, keystore.KeyMode); err != nil {
				return err
			}
		}

	case models.CAUseExistingLocal:
		certPEM, err := r.caKeys.ReadFile(CACertFile)
		if err != nil {
			return err
		}
		keyPEM, err := r.caKeys.ReadFile(CAKeyFile)
		if err != nil {
			return err
		}
		if ca, err = r.pki.ReadExistingCA(keyPEM, certPEM, ""); err != nil {
			return err
		}

	case models.CAUseExistingRouter:
		certPEM, keyPEM, err := r.remote.FetchCA(ctx, r.request)
		if err != nil {
			return err
		}
		if ca, err = r.pki.ReadExistingCA(keyPEM, certPEM, ""); err != nil {
			return err
		}
	}

	if err := r.output.WriteFile(CACertFile, ca.CertificatePEM, keystore.CertMode); err != nil {
		return err
	}
	r.ca = ca
	r.result.CACertPEM = string(ca.CertificatePEM)
	r.result.CAKeyPEM = string(ca.PrivateKeyPEM)
	r.logger.WithField("subject", ca.Certificate.Subject.String()).Info("certificate authority ready")
	return nil
}

// leafRequest builds the request for id; the CA subject attributes are
// reused with the username as common name.
func (r *run) leafRequest(id models.Identity) pki.LeafRequest {
	p := r.params()
	subject := p.Subject
	subject.CommonName = id.Username
	req := pki.LeafRequest{
		Identity:  id,
		Subject:   subject,
		KeySize:   p.KeySize,
		NotBefore: r.startedAt,
	}
	if p.BackdateLeaves {
		req.NotBefore = r.startedAt.Add(-24 * time.Hour)
	}
	if p.ValidityDays > 0 {
		req.NotAfter = r.startedAt.Add(p.Validity())
	}
	return req
}

func (r *run) identityFailed(id models.Identity, err error) {
	r.result.IdentityFailures = append(r.result.IdentityFailures, models.IdentityFailure{Username: id.Username, Err: err})
	r.session.Append(fmt.Sprintf("Certificate for %s failed: %s", id.Username, err), false)
	r.logger.WithError(err).WithField("username", id.Username).Error("certificate issuance failed")
}

func (r *run) issueServers(ctx context.Context) {
	for i, id := range r.request.Servers {
		r.session.Append(fmt.Sprintf("Generating certificates for server %d", i+1), false)
		leaf, err := r.pki.Issue(ctx, r.ca, r.leafRequest(id))
		if err == nil {
			err = r.writeLeaf(id.Username+".crt", id.Username+".key", leaf)
		}
		if err != nil {
			r.identityFailed(id, err)
			continue
		}
		if r.server == nil {
			r.server = leaf
		}
	}
}

func (r *run) issueClients(ctx context.Context) {
	p := r.params()
	for i, id := range r.request.Clients {
		r.session.Append(fmt.Sprintf("Generating certificates for client %d", i+1), false)
		leaf, err := r.pki.Issue(ctx, r.ca, r.leafRequest(id))
		if err == nil {
			err = r.writeClient(p, id, leaf)
		}
		if err != nil {
			r.identityFailed(id, err)
		}
	}
}

func (r *run) writeLeaf(certName, keyName string, leaf *pki.Leaf) error {
	if err := r.output.WriteFile(certName, leaf.CertificatePEM, keystore.CertMode); err != nil {
		return err
	}
	return r.output.WriteFile(keyName, leaf.PrivateKeyPEM, keystore.KeyMode)
}

// writeClient writes <username>/<prefix>.{crt,key,ovpn} and, for profiles
// referencing files, a copy of the CA certificate.
func (r *run) writeClient(p models.VPNParameters, id models.Identity, leaf *pki.Leaf) error {
	prefix := p.ClientFilePrefix(id.Username)
	dir := id.Username
	profile, err := openvpn.NewProfile(p, prefix, r.ca.CertificatePEM, leaf.CertificatePEM, leaf.PrivateKeyPEM).Render()
	if err != nil {
		return err
	}
	if err := r.writeLeaf(path.Join(dir, prefix+".crt"), path.Join(dir, prefix+".key"), leaf); err != nil {
		return err
	}
	if !p.EmbedCertificates {
		if err := r.output.WriteFile(path.Join(dir, openvpn.CAFileName(prefix)), r.ca.CertificatePEM, keystore.CertMode); err != nil {
			return err
		}
	}
	return r.output.WriteFile(path.Join(dir, prefix+".ovpn"), profile, keystore.KeyMode)
}

func (r *run) generateDH(ctx context.Context) error {
	dh, err := r.pki.GenerateDHParams(ctx, pki.DefaultDHBits, r.request.DevMode)
	if err != nil {
		return err
	}
	if err := r.output.WriteFile(DHParamsFile, dh, keystore.CertMode); err != nil {
		return err
	}
	r.dh = dh
	r.result.DHParamsPEM = string(dh)
	return nil
}

func (r *run) render() error {
	p := r.params()
	switch r.mode.Router {
	case models.RouterDDWRT:
		firewall, err := ddwrt.FirewallConfig(p)
		if err != nil {
			return err
		}
		r.result.AdditionalConfig = ddwrt.AdditionalConfig(p)
		r.result.FirewallConfig = firewall
		r.result.Instructions = ddwrt.Instructions(p)

	case models.RouterEdge:
		files := edgerouter.DefaultRemoteFiles(remoteDir(p))
		cmds, err := edgerouter.ServerCommands(p, files)
		if err != nil {
			return err
		}
		r.result.AdditionalConfig = edgerouter.Text(cmds)
		r.result.FirewallConfig = edgerouter.Text(edgerouter.FirewallCommands(p))
		r.result.Instructions = edgerouter.Instructions(p, files)
	}
	return nil
}

func remoteDir(p models.VPNParameters) string {
	if p.RemoteConfigDir != "" {
		return p.RemoteConfigDir
	}
	return remote.DefaultConfigDir
}

// autoConfigure pushes the configuration. Failures leave the local
// artifacts in place and are reported through the result.
func (r *run) autoConfigure(ctx context.Context) {
	var err error
	if r.server == nil {
		err = fmt.Errorf("no server certificate was issued")
	} else {
		artifacts := remote.Artifacts{
			CACert:     r.ca.CertificatePEM,
			CAKey:      r.ca.PrivateKeyPEM,
			ServerCert: r.server.CertificatePEM,
			ServerKey:  r.server.PrivateKeyPEM,
			DHParams:   r.dh,
		}
		err = r.remote.AutoConfigViaSSH(ctx, r.request, artifacts, r.session.Append)
	}
	if err != nil {
		r.result.RemoteError = fmt.Sprintf("Auto configure failed : %s. Please do the configuration manually", err)
		r.session.Append(r.result.RemoteError, false)
		r.logger.WithError(err).Error("auto configuration failed")
	}
}
