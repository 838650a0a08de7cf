// Package pki builds the certificate authority, the server and client
// certificates and the Diffie-Hellman parameters used by the VPN server.
package pki

import "errors"

var (
	// ErrKeyGeneration indicates that an RSA key pair could not be generated.
	ErrKeyGeneration = errors.New("key generation failed")

	// ErrCAParse indicates a malformed or mismatched CA certificate/key pair.
	ErrCAParse = errors.New("cannot parse certificate authority")

	// ErrLeafIssuance indicates that a leaf certificate could not be issued.
	ErrLeafIssuance = errors.New("leaf certificate issuance failed")

	// ErrDHGeneration indicates that DH parameters could not be generated.
	ErrDHGeneration = errors.New("dh parameter generation failed")
)
