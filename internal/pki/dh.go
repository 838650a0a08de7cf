package pki

import (
	"context"
	"crypto/rand"
	"encoding/asn1"
	"fmt"
	"math/big"
)

// DefaultDHBits is the prime size used by the VPN server.
const DefaultDHBits = 2048

// dhGenerator is fixed to 2, like OpenSSL's default.
const dhGenerator = 2

// StaticDHParamsPEM is the RFC 7919 ffdhe2048 group. It replaces prime
// generation in development runs.
const StaticDHParamsPEM = `-----BEGIN DH PARAMETERS-----
MIIBCAKCAQEA//////////+t+FRYortKmq/cViAnPTzx2LnFg84tNpWp4TZBFGQz
+8yTnc4kmz75fS/jY2MMddj2gbICrsRhetPfHtXV/WVhJDP1H18GbtCFY2VVPe0a
87VXE15/V8k1mE8McODmi3fipona8+/och3xWKE2rec1MKzKT0g6eXq8CrGCsyT7
YdEIqUuyyOP7uWrat2DX9GgdT0Kj3jlN9K5W7edjcrsZCwenyO4KbXCeAvzhzffi
7MA0BM0oNC9hkXL+nOmFg/+OTxIy7vKBg8P+OxtMb61zO7X8vC7CIAXFjvGDfRaD
ssbzSibBsu/6iGtCOGEoXJf//////////wIBAg==
-----END DH PARAMETERS-----
`

// DHParams is the PKCS#3 DHParameter structure.
type DHParams struct {
	P *big.Int
	G *big.Int
}

// GenerateDHParams returns PEM encoded DH parameters. With useStatic set it
// returns StaticDHParamsPEM; otherwise it searches a probable prime of the
// requested size on a separate goroutine.
func GenerateDHParams(ctx context.Context, bits int, useStatic bool) ([]byte, error) {
	if useStatic {
		return []byte(StaticDHParamsPEM), nil
	}
	if bits < 512 {
		return nil, fmt.Errorf("%w: prime size %d is too small", ErrDHGeneration, bits)
	}

	type result struct {
		prime *big.Int
		err   error
	}
	done := make(chan result, 1)
	go func() {
		p, err := rand.Prime(rand.Reader, bits)
		done <- result{prime: p, err: err}
	}()

	var prime *big.Int
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrDHGeneration, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDHGeneration, r.err)
		}
		prime = r.prime
	}

	der, err := asn1.Marshal(DHParams{P: prime, G: big.NewInt(dhGenerator)})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDHGeneration, err)
	}
	return encodePEM(pemTypeDHParameters, der), nil
}

// ParseDHParams decodes a "DH PARAMETERS" PEM block.
func ParseDHParams(data []byte) (*DHParams, error) {
	block := decodePEM(data, pemTypeDHParameters)
	if block == nil {
		return nil, fmt.Errorf("no DH PARAMETERS PEM block found")
	}
	var params DHParams
	rest, err := asn1.Unmarshal(block.Bytes, &params)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("trailing data after DH parameters")
	}
	return &params, nil
}
