package edgerouter

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/routervpn/configurator/internal/models"
)

func testParams() models.VPNParameters {
	return models.VPNParameters{
		PublicAddress:       "vpn.example.org",
		VPNPort:             1194,
		InternalNetwork:     "192.168.1.0",
		InternalNetworkMask: "255.255.255.0",
		VPNClientNetwork:    "10.0.8.0",
		VPNClientMask:       "255.255.255.0",
		RouterInternalIP:    "192.168.1.1",
		UseUDP:              true,
		LANTrafficOnly:      true,
	}
}

func TestServerCommands(t *testing.T) {
	type testcase struct {
		name   string
		mutate func(p *models.VPNParameters)
		expect string
	}

	base := `set interfaces openvpn vtun0 mode server
set interfaces openvpn vtun0 server subnet 10.0.8.0/24
set interfaces openvpn vtun0 server push-route 192.168.1.0/24
set interfaces openvpn vtun0 server name-server 192.168.1.1
set interfaces openvpn vtun0 tls ca-cert-file /config/auth/ca.crt
set interfaces openvpn vtun0 tls cert-file /config/auth/server.crt
set interfaces openvpn vtun0 tls key-file /config/auth/server.key
set interfaces openvpn vtun0 tls dh-file /config/auth/dh.pem`

	testcases := []testcase{{
		name:   "defaults",
		mutate: func(p *models.VPNParameters) {},
		expect: base,
	}, {
		name: "tcp on custom port with all traffic",
		mutate: func(p *models.VPNParameters) {
			p.VPNPort = 1195
			p.UseUDP = false
			p.LANTrafficOnly = false
		},
		expect: base + `
set interfaces openvpn vtun0 local-port 1195
set interfaces openvpn vtun0 protocol tcp-passive
set interfaces openvpn vtun0 openvpn-option '--push redirect-gateway def1'`,
	}, {
		name: "push route follows the lan mask",
		mutate: func(p *models.VPNParameters) {
			p.InternalNetwork = "172.16.0.0"
			p.InternalNetworkMask = "255.255.0.0"
			p.RouterInternalIP = ""
		},
		expect: `set interfaces openvpn vtun0 mode server
set interfaces openvpn vtun0 server subnet 10.0.8.0/24
set interfaces openvpn vtun0 server push-route 172.16.0.0/16
set interfaces openvpn vtun0 tls ca-cert-file /config/auth/ca.crt
set interfaces openvpn vtun0 tls cert-file /config/auth/server.crt
set interfaces openvpn vtun0 tls key-file /config/auth/server.key
set interfaces openvpn vtun0 tls dh-file /config/auth/dh.pem`,
	}}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			p := testParams()
			tc.mutate(&p)
			cmds, err := ServerCommands(p, DefaultRemoteFiles("/config/auth/"))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.expect, Text(cmds)); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestServerCommandsInvalidMask(t *testing.T) {
	p := testParams()
	p.VPNClientMask = "255.255.255"
	if _, err := ServerCommands(p, DefaultRemoteFiles("/config/auth")); err == nil {
		t.Fatal("expected an error")
	}
}

func TestFirewallCommands(t *testing.T) {
	p := testParams()
	p.UseUDP = false
	expect := `set firewall name WAN_LOCAL rule 30 action accept
set firewall name WAN_LOCAL rule 30 description openvpn
set firewall name WAN_LOCAL rule 30 destination port 1194
set firewall name WAN_LOCAL rule 30 protocol tcp`
	if diff := cmp.Diff(expect, Text(FirewallCommands(p))); diff != "" {
		t.Fatal(diff)
	}
}

func TestFramingRender(t *testing.T) {
	cmds := []Command{Set("firewall", "name", "WAN_LOCAL", "rule", "30", "action", "accept")}

	got, err := ScriptTemplate.Render(cmds, ReloadOpenVPN)
	if err != nil {
		t.Fatal(err)
	}
	expect := `#!/bin/vbash
source /opt/vyatta/etc/functions/script-template
configure
set firewall name WAN_LOCAL rule 30 action accept
commit
save
exit
sudo killall -HUP openvpn
`
	if diff := cmp.Diff(expect, string(got)); diff != "" {
		t.Fatal(diff)
	}

	got, err = CfgCmdWrapper.Render(cmds)
	if err != nil {
		t.Fatal(err)
	}
	expect = `#!/bin/bash
/opt/vyatta/sbin/vyatta-cfg-cmd-wrapper begin
/opt/vyatta/sbin/vyatta-cfg-cmd-wrapper set firewall name WAN_LOCAL rule 30 action accept
/opt/vyatta/sbin/vyatta-cfg-cmd-wrapper commit
/opt/vyatta/sbin/vyatta-cfg-cmd-wrapper save
/opt/vyatta/sbin/vyatta-cfg-cmd-wrapper end
`
	if diff := cmp.Diff(expect, string(got)); diff != "" {
		t.Fatal(diff)
	}
}

func TestNewFramingInvalidTemplate(t *testing.T) {
	if _, err := NewFraming("broken", "/bin/sh", "{{range}}"); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestParseFirmwareVersion(t *testing.T) {
	type testcase struct {
		name      string
		input     string
		expect    Version
		expectErr bool
	}

	testcases := []testcase{{
		name:   "bare old",
		input:  "1.6",
		expect: Version{1, 6},
	}, {
		name:   "bare minimum",
		input:  "1.8\n",
		expect: Version{1, 8},
	}, {
		name:   "prefixed three part",
		input:  "v1.10.11",
		expect: Version{1, 10},
	}, {
		name: "show version banner",
		input: `Version:      v2.0.9-hotfix.7
Build ID:     5618279
Build on:     05/24/23 12:12
Copyright:    2012-2020 Ubiquiti Networks, Inc.
HW model:     EdgeRouter X 5-Port
Uptime:       10:05:23 up 21 days`,
		expect: Version{2, 0},
	}, {
		name:      "garbage",
		input:     "command not found",
		expectErr: true,
	}}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := ParseFirmwareVersion(tc.input)
			if tc.expectErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.expect, v); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestVersionLess(t *testing.T) {
	if !(Version{1, 6}).Less(MinimumFirmware) {
		t.Fatal("1.6 should be older than the minimum")
	}
	if (Version{1, 8}).Less(MinimumFirmware) {
		t.Fatal("1.8 should satisfy the minimum")
	}
	if (Version{1, 10}).Less(MinimumFirmware) {
		t.Fatal("1.10 should be newer than 1.8")
	}
	if (Version{2, 0}).Less(MinimumFirmware) {
		t.Fatal("2.0 should be newer than 1.8")
	}
}

const sampleConfig = `set firewall name WAN_LOCAL rule 30 action accept
set firewall name WAN_LOCAL rule 30 description 'openvpn'
set interfaces ethernet eth0 description Internet
set interfaces openvpn vtun0 mode server
set interfaces openvpn vtun0 server push-route 192.168.1.0/24
set port-forward auto-firewall enable
set port-forward rule 1 description "OpenVPN server"
set port-forward rule 1 forward-to address 192.168.1.1
set port-forward rule 1 forward-to port 1194
set port-forward rule 1 original-port 1194
set port-forward rule 1 protocol udp
set port-forward rule 2 forward-to address 192.168.1.20
set port-forward rule 2 original-port 443
`

func TestParseConfigCommands(t *testing.T) {
	cfg, err := ParseConfigCommands("Welcome to EdgeOS\n" + sampleConfig)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg) != 13 {
		t.Fatalf("expected 13 commands, got %d", len(cfg))
	}
	if diff := cmp.Diff(Command{"set", "firewall", "name", "WAN_LOCAL", "rule", "30", "description", "openvpn"}, cfg[1]); diff != "" {
		t.Fatal(diff)
	}
	if !cfg.HasInterface(Interface) {
		t.Fatal("expected vtun0 to be configured")
	}
	if cfg.HasInterface("vtun1") {
		t.Fatal("vtun1 is not configured")
	}
	if diff := cmp.Diff([]string{"192.168.1.0/24"}, cfg.PushRoutes(Interface)); diff != "" {
		t.Fatal(diff)
	}
}

func TestPortForwardFor(t *testing.T) {
	cfg, err := ParseConfigCommands(sampleConfig)
	if err != nil {
		t.Fatal(err)
	}

	pf, ok := cfg.PortForwardFor(1194)
	if !ok {
		t.Fatal("expected a rule for 1194")
	}
	expect := PortForward{Rule: "1", OriginalPort: "1194", ForwardAddress: "192.168.1.1", ForwardPort: "1194"}
	if diff := cmp.Diff(expect, pf); diff != "" {
		t.Fatal(diff)
	}
	if pf.ForwardTo() != "192.168.1.1:1194" {
		t.Fatal("unexpected forward-to", pf.ForwardTo())
	}

	pf, ok = cfg.PortForwardFor(443)
	if !ok {
		t.Fatal("expected a rule for 443")
	}
	if pf.ForwardTo() != "192.168.1.20:443" {
		t.Fatal("unset forward-to port should default to the original port", pf.ForwardTo())
	}

	if _, ok := cfg.PortForwardFor(22); ok {
		t.Fatal("no rule expected for 22")
	}
}

func TestParseConfigCommandsUnbalancedQuote(t *testing.T) {
	if _, err := ParseConfigCommands("set system host-name 'edge\n"); err == nil {
		t.Fatal("expected a tokenizer error")
	}
}

func TestInstructions(t *testing.T) {
	lines := Instructions(testParams(), DefaultRemoteFiles("/config/auth"))
	if !strings.Contains(lines[0], "/config/auth") {
		t.Fatal("first step should name the remote directory", lines[0])
	}
	if !strings.Contains(lines[len(lines)-1], "192.168.1.1") {
		t.Fatal("last step should name the router address", lines[len(lines)-1])
	}
}
