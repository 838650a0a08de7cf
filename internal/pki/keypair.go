package pki

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/youmark/pkcs8"
)

// KeySizes lists the supported RSA modulus sizes.
var KeySizes = []int{1024, 2048, 4096}

// KeyPair is a generated RSA key and its PEM export.
type KeyPair struct {
	// PrivateKey is the generated key.
	PrivateKey *rsa.PrivateKey

	// PrivateKeyPEM is PKCS#1 "RSA PRIVATE KEY" or, with a passphrase,
	// an encrypted PKCS#8 "ENCRYPTED PRIVATE KEY" block.
	PrivateKeyPEM []byte
}

// PublicKey returns the public half of the pair.
func (kp *KeyPair) PublicKey() *rsa.PublicKey {
	return &kp.PrivateKey.PublicKey
}

// ValidKeySize reports whether bits is one of KeySizes.
func ValidKeySize(bits int) bool {
	for _, size := range KeySizes {
		if bits == size {
			return true
		}
	}
	return false
}

// GenerateKeyPair generates an RSA key pair off the calling goroutine. When
// passphrase is not empty the private key PEM is encrypted.
func GenerateKeyPair(ctx context.Context, bits int, passphrase string) (*KeyPair, error) {
	if !ValidKeySize(bits) {
		return nil, fmt.Errorf("%w: unsupported key size %d", ErrKeyGeneration, bits)
	}

	type result struct {
		key *rsa.PrivateKey
		err error
	}
	done := make(chan result, 1)
	go func() {
		key, err := rsa.GenerateKey(rand.Reader, bits)
		done <- result{key: key, err: err}
	}()

	var key *rsa.PrivateKey
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrKeyGeneration, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyGeneration, r.err)
		}
		key = r.key
	}

	keyPEM, err := EncodePrivateKey(key, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyGeneration, err)
	}
	return &KeyPair{PrivateKey: key, PrivateKeyPEM: keyPEM}, nil
}

// EncodePrivateKey exports key as PEM, encrypting it when passphrase is set.
func EncodePrivateKey(key *rsa.PrivateKey, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return encodePEM(pemTypeRSAKey, x509.MarshalPKCS1PrivateKey(key)), nil
	}
	der, err := pkcs8.MarshalPrivateKey(key, []byte(passphrase), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}
	return encodePEM(pemTypeEncryptedKey, der), nil
}

// ParsePrivateKey parses a PKCS#1, PKCS#8 or encrypted PKCS#8 RSA key PEM.
func ParsePrivateKey(data []byte, passphrase string) (*rsa.PrivateKey, error) {
	block := decodePEM(data, pemTypeRSAKey, pemTypePKCS8Key, pemTypeEncryptedKey)
	if block == nil {
		return nil, fmt.Errorf("no private key PEM block found")
	}
	switch block.Type {
	case pemTypeRSAKey:
		if _, encrypted := block.Headers["DEK-Info"]; encrypted {
			return nil, fmt.Errorf("legacy encrypted PEM keys are not supported")
		}
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case pemTypeEncryptedKey:
		if passphrase == "" {
			return nil, fmt.Errorf("private key is encrypted and no passphrase was given")
		}
		return pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, []byte(passphrase))
	default:
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", parsed)
		}
		return key, nil
	}
}
