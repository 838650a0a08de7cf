package pki

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/routervpn/configurator/internal/models"
)

// LeafRequest describes one server or client certificate.
type LeafRequest struct {
	Identity models.Identity

	// Subject defaults its CommonName to Identity.Username.
	Subject models.SubjectAttributes

	KeySize   int
	NotBefore time.Time
	NotAfter  time.Time

	// Passphrase encrypts the private key PEM; defaults to Identity.Password.
	Passphrase string
}

// Leaf is an issued certificate and its private key.
type Leaf struct {
	Certificate    *x509.Certificate
	CertificatePEM []byte
	PrivateKeyPEM  []byte
}

// Issue generates a key pair for req and signs its certificate with the CA
// key. The issuer is always the CA subject. Leaves carry no extensions of
// their own.
func (ca *Authority) Issue(ctx context.Context, req LeafRequest) (*Leaf, error) {
	username := req.Identity.Username
	if ca == nil || ca.Certificate == nil || ca.PrivateKey == nil {
		return nil, fmt.Errorf("%w: %s: certificate authority is not loaded", ErrLeafIssuance, username)
	}

	passphrase := req.Passphrase
	if passphrase == "" {
		passphrase = req.Identity.Password
	}
	kp, err := GenerateKeyPair(ctx, req.KeySize, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLeafIssuance, username, err)
	}

	subject := req.Subject
	if subject.CommonName == "" {
		subject.CommonName = username
	}
	if ca.serials == nil {
		ca.serials = NewSerialAllocator()
	}
	serial, err := ca.serials.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: serial: %w", ErrLeafIssuance, username, err)
	}

	notBefore, notAfter := validity(req.NotBefore, req.NotAfter)
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      SubjectName(subject),
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Certificate, kp.PublicKey(), ca.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLeafIssuance, username, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLeafIssuance, username, err)
	}
	return &Leaf{
		Certificate:    cert,
		CertificatePEM: encodePEM(pemTypeCertificate, der),
		PrivateKeyPEM:  kp.PrivateKeyPEM,
	}, nil
}
