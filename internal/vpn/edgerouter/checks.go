package edgerouter

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/shlex"
)

const opCmdWrapper = "/opt/vyatta/bin/vyatta-op-cmd-wrapper"

// FirmwareVersionCommand prints the EdgeOS version banner.
const FirmwareVersionCommand = opCmdWrapper + " show version"

// ConfigCommandsCommand prints the active configuration as set commands.
const ConfigCommandsCommand = opCmdWrapper + " show configuration commands"

// MinimumFirmware is the oldest EdgeOS release the generated commands target.
var MinimumFirmware = Version{Major: 1, Minor: 8}

// Version is an EdgeOS major.minor release number.
type Version struct {
	Major int
	Minor int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Less compares component-wise, so 1.10 is newer than 1.8.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

var versionRE = regexp.MustCompile(`v?(\d+)\.(\d+)`)

// ParseFirmwareVersion extracts major.minor from either a bare version string
// ("1.10.11") or the full output of FirmwareVersionCommand.
func ParseFirmwareVersion(out string) (Version, error) {
	text := out
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "Version:") {
			text = strings.TrimPrefix(line, "Version:")
			break
		}
	}
	m := versionRE.FindStringSubmatch(text)
	if m == nil {
		return Version{}, fmt.Errorf("cannot parse firmware version from %q", strings.TrimSpace(out))
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return Version{Major: major, Minor: minor}, nil
}

// Config is the parsed output of ConfigCommandsCommand.
type Config []Command

// ParseConfigCommands tokenizes "show configuration commands" output. Lines
// that are not set commands are skipped.
func ParseConfigCommands(out string) (Config, error) {
	var cfg Config
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "set ") {
			continue
		}
		words, err := shlex.Split(line)
		if err != nil {
			return nil, fmt.Errorf("cannot parse configuration line %q: %w", line, err)
		}
		cfg = append(cfg, Command(words))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// values returns the word following prefix for each matching command.
func (c Config) values(prefix ...string) []string {
	var out []string
	for _, cmd := range c {
		if cmd.HasPrefix(prefix...) && len(cmd) > len(prefix) {
			out = append(out, cmd[len(prefix)])
		}
	}
	return out
}

// HasInterface reports whether the OpenVPN interface name is configured.
func (c Config) HasInterface(name string) bool {
	for _, cmd := range c {
		if cmd.HasPrefix("set", "interfaces", "openvpn", name) {
			return true
		}
	}
	return false
}

// PushRoutes lists the routes pushed by the OpenVPN interface name.
func (c Config) PushRoutes(name string) []string {
	return c.values("set", "interfaces", "openvpn", name, "server", "push-route")
}

// PortForward is one port-forward rule of the router.
type PortForward struct {
	Rule           string
	OriginalPort   string
	ForwardAddress string
	ForwardPort    string
}

// ForwardTo formats the forward-to endpoint as address:port.
func (p PortForward) ForwardTo() string {
	return p.ForwardAddress + ":" + p.ForwardPort
}

// PortForwardFor finds the port-forward rule whose original port is port.
func (c Config) PortForwardFor(port int) (PortForward, bool) {
	want := strconv.Itoa(port)
	for _, cmd := range c {
		if !cmd.HasPrefix("set", "port-forward", "rule") || len(cmd) != 6 {
			continue
		}
		if cmd[4] != "original-port" || cmd[5] != want {
			continue
		}
		rule := cmd[3]
		pf := PortForward{Rule: rule, OriginalPort: want}
		if v := c.values("set", "port-forward", "rule", rule, "forward-to", "address"); len(v) > 0 {
			pf.ForwardAddress = v[0]
		}
		if v := c.values("set", "port-forward", "rule", rule, "forward-to", "port"); len(v) > 0 {
			pf.ForwardPort = v[0]
		} else {
			// EdgeOS forwards to the original port when forward-to port is unset
			pf.ForwardPort = want
		}
		return pf, true
	}
	return PortForward{}, false
}
