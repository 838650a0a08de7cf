package pki

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/routervpn/configurator/internal/models"
)

// oidNetscapeCertType is the nsCertType extension still honoured by OpenVPN.
var oidNetscapeCertType = asn1.ObjectIdentifier{2, 16, 840, 1, 113730, 1, 1}

// nsCertType bits: client, server, email, objsign, sslCA, emailCA, objCA.
var nsCertTypeCA = asn1.BitString{Bytes: []byte{0xf7}, BitLength: 8}

// Authority is a certificate authority able to sign leaf certificates.
type Authority struct {
	Certificate    *x509.Certificate
	PrivateKey     *rsa.PrivateKey
	CertificatePEM []byte
	PrivateKeyPEM  []byte

	serials *SerialAllocator
}

// CAOptions configures BuildCA.
type CAOptions struct {
	Subject models.SubjectAttributes
	KeySize int

	// NotBefore defaults to now.
	NotBefore time.Time

	// NotAfter defaults to NotBefore plus one year.
	NotAfter time.Time
}

// BuildCA creates a key pair and a self-signed X.509v3 root certificate with
// serial 01.
func BuildCA(ctx context.Context, opts CAOptions) (*Authority, error) {
	kp, err := GenerateKeyPair(ctx, opts.KeySize, "")
	if err != nil {
		return nil, err
	}

	notBefore, notAfter := validity(opts.NotBefore, opts.NotAfter)
	subject := SubjectName(opts.Subject)

	nsCertType, err := asn1.Marshal(nsCertTypeCA)
	if err != nil {
		return nil, fmt.Errorf("failed to encode nsCertType: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber:          new(big.Int).Set(caSerial),
		Subject:               subject,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage: x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature |
			x509.KeyUsageContentCommitment | x509.KeyUsageKeyEncipherment |
			x509.KeyUsageDataEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
			x509.ExtKeyUsageCodeSigning,
			x509.ExtKeyUsageEmailProtection,
			x509.ExtKeyUsageTimeStamping,
		},
		ExtraExtensions: []pkix.Extension{{Id: oidNetscapeCertType, Value: nsCertType}},
		SubjectKeyId:    subjectKeyID(kp.PublicKey()),
		IPAddresses:     []net.IP{net.IPv4(127, 0, 0, 1)},
	}
	if cn := subject.CommonName; cn != "" {
		if ip := net.ParseIP(cn); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = []string{cn}
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, kp.PublicKey(), kp.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to self-sign CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return &Authority{
		Certificate:    cert,
		PrivateKey:     kp.PrivateKey,
		CertificatePEM: encodePEM(pemTypeCertificate, der),
		PrivateKeyPEM:  kp.PrivateKeyPEM,
		serials:        NewSerialAllocator(),
	}, nil
}

// ReadExistingCA parses a CA private key and certificate from PEM. The
// passphrase is only used for encrypted PKCS#8 keys.
func ReadExistingCA(privateKeyPEM, certPEM []byte, passphrase string) (*Authority, error) {
	block := decodePEM(certPEM, pemTypeCertificate)
	if block == nil {
		return nil, fmt.Errorf("%w: no certificate PEM block found", ErrCAParse)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCAParse, err)
	}
	key, err := ParsePrivateKey(privateKeyPEM, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCAParse, err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok || !pub.Equal(&key.PublicKey) {
		return nil, fmt.Errorf("%w: private key does not match certificate", ErrCAParse)
	}

	serials := NewSerialAllocator()
	serials.Reserve(cert.SerialNumber)
	return &Authority{
		Certificate:    cert,
		PrivateKey:     key,
		CertificatePEM: normalizeLineEndings(certPEM),
		PrivateKeyPEM:  normalizeLineEndings(privateKeyPEM),
		serials:        serials,
	}, nil
}

// subjectKeyID implements RFC 5280 section 4.2.1.2 method (1).
func subjectKeyID(pub *rsa.PublicKey) []byte {
	sum := sha1.Sum(x509.MarshalPKCS1PublicKey(pub))
	return sum[:]
}
