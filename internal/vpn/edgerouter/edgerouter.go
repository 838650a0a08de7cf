// Package edgerouter renders EdgeOS (Vyatta) configuration commands for the
// OpenVPN server and parses the router's answers to pre-flight queries.
package edgerouter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/routervpn/configurator/internal/models"
	"github.com/routervpn/configurator/internal/netaddr"
)

// Interface is the OpenVPN virtual tunnel interface managed by this tool.
const Interface = "vtun0"

// DefaultVPNPort is the OpenVPN port EdgeOS assumes when local-port is unset.
const DefaultVPNPort = 1194

// FirewallRule is the WAN_LOCAL rule number opened for the VPN port.
const FirewallRule = 30

// Command is one configuration-mode command split into words.
type Command []string

// Set builds a "set" command.
func Set(path ...string) Command {
	return append(Command{"set"}, path...)
}

// String renders the command with shell quoting applied to each word.
func (c Command) String() string {
	return shellquote.Join(c...)
}

// HasPrefix reports whether c starts with the given words.
func (c Command) HasPrefix(words ...string) bool {
	if len(c) < len(words) {
		return false
	}
	for i, w := range words {
		if c[i] != w {
			return false
		}
	}
	return true
}

// Text joins commands into newline separated text.
func Text(cmds []Command) string {
	lines := make([]string, len(cmds))
	for i, c := range cmds {
		lines[i] = c.String()
	}
	return strings.Join(lines, "\n")
}

// RemoteFiles lists the file names expected under the remote config directory.
type RemoteFiles struct {
	Dir        string
	CACert     string
	ServerCert string
	ServerKey  string
	DHParams   string
}

// DefaultRemoteFiles returns the standard file layout under dir.
func DefaultRemoteFiles(dir string) RemoteFiles {
	return RemoteFiles{
		Dir:        dir,
		CACert:     "ca.crt",
		ServerCert: "server.crt",
		ServerKey:  "server.key",
		DHParams:   "dh.pem",
	}
}

// Path joins a file name onto the remote directory.
func (f RemoteFiles) Path(name string) string {
	return strings.TrimSuffix(f.Dir, "/") + "/" + name
}

// ExpectedPushRoute is the LAN route the vtun interface should push.
func ExpectedPushRoute(p models.VPNParameters) (string, error) {
	return netaddr.CIDR(p.InternalNetwork, p.InternalNetworkMask)
}

// ServerCommands renders the vtun0 server configuration.
func ServerCommands(p models.VPNParameters, files RemoteFiles) ([]Command, error) {
	subnet, err := netaddr.CIDR(p.VPNClientNetwork, p.VPNClientMask)
	if err != nil {
		return nil, fmt.Errorf("vpn client network: %w", err)
	}
	pushRoute, err := ExpectedPushRoute(p)
	if err != nil {
		return nil, fmt.Errorf("internal network: %w", err)
	}

	vtun := func(path ...string) Command {
		return Set(append([]string{"interfaces", "openvpn", Interface}, path...)...)
	}
	cmds := []Command{
		vtun("mode", "server"),
		vtun("server", "subnet", subnet),
		vtun("server", "push-route", pushRoute),
	}
	if p.RouterInternalIP != "" {
		cmds = append(cmds, vtun("server", "name-server", p.RouterInternalIP))
	}
	cmds = append(cmds,
		vtun("tls", "ca-cert-file", files.Path(files.CACert)),
		vtun("tls", "cert-file", files.Path(files.ServerCert)),
		vtun("tls", "key-file", files.Path(files.ServerKey)),
		vtun("tls", "dh-file", files.Path(files.DHParams)),
	)
	if p.VPNPort != 0 && p.VPNPort != DefaultVPNPort {
		cmds = append(cmds, vtun("local-port", strconv.Itoa(p.VPNPort)))
	}
	if !p.UseUDP {
		cmds = append(cmds, vtun("protocol", "tcp-passive"))
	}
	if !p.LANTrafficOnly {
		cmds = append(cmds, vtun("openvpn-option", "--push redirect-gateway def1"))
	}
	return cmds, nil
}

// FirewallCommands opens the VPN port on the WAN_LOCAL ruleset.
func FirewallCommands(p models.VPNParameters) []Command {
	port := p.VPNPort
	if port == 0 {
		port = DefaultVPNPort
	}
	proto := "udp"
	if !p.UseUDP {
		proto = "tcp"
	}
	rule := func(path ...string) Command {
		return Set(append([]string{"firewall", "name", "WAN_LOCAL", "rule", strconv.Itoa(FirewallRule)}, path...)...)
	}
	return []Command{
		rule("action", "accept"),
		rule("description", "openvpn"),
		rule("destination", "port", strconv.Itoa(port)),
		rule("protocol", proto),
	}
}

// Instructions are the manual steps for applying the configuration.
func Instructions(p models.VPNParameters, files RemoteFiles) []string {
	return []string{
		fmt.Sprintf("Copy ca.crt, server.crt, server.key and dh.pem to %s on the router.", files.Dir),
		"Log in to the router over SSH and enter configuration mode with 'configure'.",
		"Paste the VPN server commands, then the firewall commands.",
		"Run 'commit' and 'save', then 'exit'.",
		fmt.Sprintf("Forward port %d on the upstream device to %s if the router is behind NAT.", p.VPNPort, p.RouterInternalIP),
	}
}
