package pki

import (
	"crypto/rand"
	"math/big"
	"sync"
)

// caSerial is the conventional serial number of the root certificate.
var caSerial = big.NewInt(1)

// serialLimit bounds leaf serials to 127 bits so they stay positive and
// within the 20 octets allowed by RFC 5280.
var serialLimit = new(big.Int).Lsh(big.NewInt(1), 127)

// SerialAllocator hands out random serials that are unique per CA.
type SerialAllocator struct {
	mu   sync.Mutex
	used map[string]struct{}
}

// NewSerialAllocator returns an allocator that never returns the CA serial.
func NewSerialAllocator() *SerialAllocator {
	return &SerialAllocator{used: map[string]struct{}{caSerial.String(): {}}}
}

// Next returns a fresh serial number.
func (a *SerialAllocator) Next() (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		n, err := rand.Int(rand.Reader, serialLimit)
		if err != nil {
			return nil, err
		}
		if n.Sign() == 0 {
			continue
		}
		key := n.String()
		if _, dup := a.used[key]; dup {
			continue
		}
		a.used[key] = struct{}{}
		return n, nil
	}
}

// Reserve marks an externally assigned serial as used.
func (a *SerialAllocator) Reserve(n *big.Int) {
	a.mu.Lock()
	a.used[n.String()] = struct{}{}
	a.mu.Unlock()
}
