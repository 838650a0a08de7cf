package pki

import (
	"bytes"
	"encoding/pem"
)

const (
	pemTypeCertificate  = "CERTIFICATE"
	pemTypeRSAKey       = "RSA PRIVATE KEY"
	pemTypePKCS8Key     = "PRIVATE KEY"
	pemTypeEncryptedKey = "ENCRYPTED PRIVATE KEY"
	pemTypeDHParameters = "DH PARAMETERS"
)

// encodePEM encodes a block with LF line endings only.
func encodePEM(blockType string, der []byte) []byte {
	return normalizeLineEndings(pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}))
}

// normalizeLineEndings strips carriage returns so that PEM output is
// byte-identical across platforms.
func normalizeLineEndings(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte("\r"), nil)
}

// decodePEM returns the first block of the wanted types.
func decodePEM(data []byte, types ...string) *pem.Block {
	rest := normalizeLineEndings(data)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil
		}
		for _, t := range types {
			if block.Type == t {
				return block
			}
		}
	}
}
