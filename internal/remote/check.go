package remote

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/routervpn/configurator/internal/models"
	"github.com/routervpn/configurator/internal/ping"
	"github.com/routervpn/configurator/internal/ssh"
	"github.com/routervpn/configurator/internal/vpn/edgerouter"
)

// CheckSSHConfig runs the read-only pre-flight diagnostics against the
// router. It never changes router state.
func (c *Client) CheckSSHConfig(ctx context.Context, req models.ConfigRequest, status StatusFunc) error {
	status = statusOrDiscard(status)
	creds := req.SSH
	logger := c.logger.WithField("host", creds.Host)

	// Step 1: Ping the router
	status(fmt.Sprintf("Pinging remote host %s...", creds.Host), false)
	result, err := c.pinger.Ping(ctx, creds.Host)
	switch {
	case errors.Is(err, ping.ErrUnavailable):
		logger.WithError(err).Warn("remote: ping skipped")
		status(" skipped, host not verified (no ICMP socket available)", true)
	case err != nil:
		return fmt.Errorf("%w: host %s: %w", ErrHostUnreachable, creds.Host, err)
	case !result.Alive:
		return fmt.Errorf("%w: host %s not reachable", ErrHostUnreachable, creds.Host)
	default:
		status(" done", true)
	}

	// Step 2: Open the SSH session
	port := creds.Port
	if port == 0 {
		port = ssh.DefaultPort
	}
	status(fmt.Sprintf("Trying ssh to remote host %s on port %d with given credential...", creds.Host, port), false)
	conn, closeConn, err := c.connect(ctx, creds)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSSHConnection, err)
	}
	defer closeConn()
	status(" done", true)

	// Step 3: Firmware version
	status("Check firmware version", false)
	out, err := runOutput(ctx, conn, edgerouter.FirmwareVersionCommand)
	if err != nil {
		return fmt.Errorf("%w: firmware version: %w", ErrRemoteExecution, err)
	}
	version, err := edgerouter.ParseFirmwareVersion(out)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteExecution, err)
	}
	status("Firmware version is: "+version.String(), false)
	if version.Less(edgerouter.MinimumFirmware) {
		return fmt.Errorf("%w: %s is older than %s. Please update to latest firmware",
			ErrFirmwareTooOld, version, edgerouter.MinimumFirmware)
	}

	// Step 4: Router CA key
	if req.Params.CAMode == models.CAUseExistingRouter {
		status("Check Router CA key exists...", false)
		keyPath := edgerouter.DefaultRemoteFiles(configDir(req)).Path("ca.key")
		exists, err := conn.FileExists(ctx, keyPath)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRemoteExecution, err)
		}
		if !exists {
			status(" No", true)
			return fmt.Errorf("%w: %s", ErrMissingRouterCAKey, keyPath)
		}
		status(" Yes", true)
	}

	out, err = runOutput(ctx, conn, edgerouter.ConfigCommandsCommand)
	if err != nil {
		return fmt.Errorf("%w: show configuration: %w", ErrRemoteExecution, err)
	}
	cfg, err := edgerouter.ParseConfigCommands(out)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteExecution, err)
	}

	// Step 5: Existing vtun interface
	status("Checking if openvpn virtual tunnel interface is set...", false)
	if err := checkInterface(req.Params, cfg, status); err != nil {
		return err
	}

	// Step 6: Port forward
	status("Checking if port forward rule is set...", false)
	if err := checkPortForward(req.Params, cfg, status); err != nil {
		return err
	}

	logger.Info("remote: pre-flight check passed")
	return nil
}

func checkInterface(p models.VPNParameters, cfg edgerouter.Config, status StatusFunc) error {
	if !cfg.HasInterface(edgerouter.Interface) {
		status("openvpn virtual tunnel interface is not configured.", false)
		return nil
	}
	expected, err := edgerouter.ExpectedPushRoute(p)
	if err != nil {
		return err
	}
	routes := cfg.PushRoutes(edgerouter.Interface)
	if !slices.Contains(routes, expected) {
		return fmt.Errorf("%w: openvpn virtual tunnel interface config exists but push-route is [%s], expected [%s]",
			ErrPushRouteMismatch, strings.Join(routes, ", "), expected)
	}
	status("openvpn virtual tunnel interface set correctly.", false)
	return nil
}

func checkPortForward(p models.VPNParameters, cfg edgerouter.Config, status StatusFunc) error {
	port := p.VPNPort
	if port == 0 {
		port = edgerouter.DefaultVPNPort
	}
	pf, ok := cfg.PortForwardFor(port)
	if !ok {
		status(fmt.Sprintf("No port-forward rule set on port %d.", port), false)
		return nil
	}
	if pf.ForwardAddress == "" {
		return fmt.Errorf("%w: no forward-to address for port-forward rule %s", ErrPortForwardMismatch, pf.Rule)
	}
	expected := fmt.Sprintf("%s:%d", p.RouterInternalIP, port)
	if pf.ForwardTo() != expected {
		return fmt.Errorf("%w: rule %s forwards to [%s]. Expected: [%s]",
			ErrPortForwardMismatch, pf.Rule, pf.ForwardTo(), expected)
	}
	status(fmt.Sprintf("Port forward rule found for rule %s with correct forward address %s", pf.Rule, pf.ForwardTo()), false)
	status("No issue found with port forward rule.", false)
	return nil
}

// runOutput runs command and fails on a non-zero exit status.
func runOutput(ctx context.Context, conn Conn, command string) (string, error) {
	result, err := conn.Run(ctx, command, nil)
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("%s: exit status %d: %s", command, result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return result.Stdout, nil
}
