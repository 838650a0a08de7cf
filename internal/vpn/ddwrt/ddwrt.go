// Package ddwrt renders the OpenVPN server settings a DD-WRT router needs.
// DD-WRT is configured by hand through its web UI, so everything here is
// text for the user to paste.
package ddwrt

import (
	"fmt"
	"strings"

	"github.com/routervpn/configurator/internal/models"
	"github.com/routervpn/configurator/internal/netaddr"
)

// DefaultVPNPort is the port DD-WRT uses when no port directive is given.
const DefaultVPNPort = 1194

// Directory where DD-WRT writes the certificate fields of the web UI.
const certDir = "/tmp/openvpn"

func proto(p models.VPNParameters) string {
	if p.UseUDP {
		return "udp"
	}
	return "tcp"
}

// AdditionalConfig renders the "Additional Config" box of the OpenVPN
// server page.
func AdditionalConfig(p models.VPNParameters) string {
	lines := []string{
		fmt.Sprintf(`push "route %s %s"`, p.InternalNetwork, p.InternalNetworkMask),
		"dev tun",
	}
	if !p.LANTrafficOnly {
		lines = append(lines, `push "redirect-gateway def1"`)
	}
	lines = append(lines, fmt.Sprintf("server %s %s", p.VPNClientNetwork, p.VPNClientMask))
	if p.VPNPort != 0 && p.VPNPort != DefaultVPNPort {
		lines = append(lines, fmt.Sprintf("port %d", p.VPNPort))
	}
	lines = append(lines, "proto "+proto(p))

	lines = append(lines, "",
		"dh "+certDir+"/dh.pem",
		"ca "+certDir+"/ca.crt",
		"cert "+certDir+"/cert.pem",
		"key "+certDir+"/key.pem",
	)
	return strings.Join(lines, "\n")
}

// FirewallConfig renders the iptables commands for the firewall script.
func FirewallConfig(p models.VPNParameters) (string, error) {
	subnet, err := netaddr.CIDR(p.VPNClientNetwork, p.VPNClientMask)
	if err != nil {
		return "", fmt.Errorf("vpn client network: %w", err)
	}
	port := p.VPNPort
	if port == 0 {
		port = DefaultVPNPort
	}
	return strings.Join([]string{
		fmt.Sprintf("iptables -I INPUT 1 -p %s --dport %d -j ACCEPT", proto(p), port),
		fmt.Sprintf("iptables -I FORWARD 1 --source %s -j ACCEPT", subnet),
		"iptables -I FORWARD -i br0 -o tun0 -j ACCEPT",
		"iptables -I FORWARD -i tun0 -o br0 -j ACCEPT",
		fmt.Sprintf("iptables -t nat -A POSTROUTING -s %s -j MASQUERADE", subnet),
	}, "\n"), nil
}

// Instructions lists the web UI fields to fill in on Services > VPN.
func Instructions(p models.VPNParameters) []string {
	start := "System"
	if p.StartWithWANUp {
		start = "WAN Up"
	}
	return []string{
		"Open Services > VPN and enable OpenVPN Server/Daemon.",
		"Start type: " + start,
		"Config as: Server",
		"Server mode: Router (TUN)",
		"Network: " + p.VPNClientNetwork,
		"Netmask: " + p.VPNClientMask,
		fmt.Sprintf("Port: %d", p.VPNPort),
		"Tunnel Protocol: " + strings.ToUpper(proto(p)),
		"Paste ca.crt into CA Cert, the server certificate into Public Server Cert and the server key into Private Server Key.",
		"Paste dh.pem into DH PEM.",
		"Paste the additional configuration into Additional Config.",
		"Paste the firewall commands into Administration > Commands and save them as Firewall.",
	}
}
