// Package netaddr contains IPv4 helpers for the addresses entered in the wizard.
package netaddr

import (
	"fmt"
	"math/bits"
	"net"
	"strings"
)

// CIDRPrefix converts a dotted-quad subnet mask to its prefix length.
func CIDRPrefix(mask string) (int, error) {
	ip := net.ParseIP(strings.TrimSpace(mask)).To4()
	if ip == nil {
		return 0, fmt.Errorf("invalid subnet mask: %q", mask)
	}
	ones, size := net.IPv4Mask(ip[0], ip[1], ip[2], ip[3]).Size()
	if size == 0 {
		// non-contiguous masks; count the set bits like the router UI does
		n := 0
		for _, b := range ip {
			n += bits.OnesCount8(b)
		}
		return n, nil
	}
	return ones, nil
}

// CIDR formats network/mask as network/prefix.
func CIDR(network, mask string) (string, error) {
	prefix, err := CIDRPrefix(mask)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%d", network, prefix), nil
}

// IsIPv4 reports whether s is a dotted-quad IPv4 address.
func IsIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil && strings.Count(s, ".") == 3
}

// RouterIP guesses the router LAN address from a network address ending in .0.
// It returns the empty string when no guess can be made.
func RouterIP(network string) string {
	if !IsIPv4(network) || !strings.HasSuffix(network, ".0") {
		return ""
	}
	return strings.TrimSuffix(network, ".0") + ".1"
}
