package remote

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"github.com/routervpn/configurator/internal/keystore"
	"github.com/routervpn/configurator/internal/models"
	"github.com/routervpn/configurator/internal/vpn/edgerouter"
)

// Artifacts are the files pushed to the router.
type Artifacts struct {
	CACert     []byte
	CAKey      []byte
	ServerCert []byte
	ServerKey  []byte
	DHParams   []byte
}

func (a Artifacts) validate(storeKeys models.StoreKeys) error {
	var missing []string
	for _, f := range []struct {
		name string
		data []byte
	}{
		{"CA certificate", a.CACert},
		{"server certificate", a.ServerCert},
		{"server key", a.ServerKey},
		{"DH parameters", a.DHParams},
	} {
		if len(f.data) == 0 {
			missing = append(missing, f.name)
		}
	}
	if storeKeys == models.StoreKeysRouter && len(a.CAKey) == 0 {
		missing = append(missing, "CA key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// AutoConfigViaSSH uploads the certificates and applies the VPN and firewall
// configuration. Errors wrap ErrSSHConnection when no session could be
// opened and ErrRemoteExecution afterwards.
func (c *Client) AutoConfigViaSSH(ctx context.Context, req models.ConfigRequest, artifacts Artifacts, status StatusFunc) error {
	status = statusOrDiscard(status)
	if err := artifacts.validate(req.Params.StoreKeys); err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteExecution, err)
	}
	files := edgerouter.DefaultRemoteFiles(configDir(req))
	vpnCommands, err := edgerouter.ServerCommands(req.Params, files)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteExecution, err)
	}
	firewallCommands := edgerouter.FirewallCommands(req.Params)

	status(fmt.Sprintf("Connecting to %s", req.SSH.Host), false)
	conn, closeConn, err := c.connect(ctx, req.SSH)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSSHConnection, err)
	}
	defer closeConn()

	if err := c.apply(ctx, conn, req, files, artifacts, vpnCommands, firewallCommands, status); err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteExecution, err)
	}
	status("Auto configure done successfully", false)
	return nil
}

func (c *Client) apply(ctx context.Context, conn Conn, req models.ConfigRequest, files edgerouter.RemoteFiles,
	artifacts Artifacts, vpnCommands, firewallCommands []edgerouter.Command, status StatusFunc) error {
	type upload struct {
		name string
		data []byte
		mode os.FileMode
	}
	uploads := []upload{{files.CACert, artifacts.CACert, keystore.CertMode}}
	if req.Params.StoreKeys == models.StoreKeysRouter {
		uploads = append(uploads, upload{"ca.key", artifacts.CAKey, keystore.KeyMode})
	}
	uploads = append(uploads,
		upload{files.ServerCert, artifacts.ServerCert, keystore.CertMode},
		upload{files.ServerKey, artifacts.ServerKey, keystore.KeyMode},
		upload{files.DHParams, artifacts.DHParams, keystore.CertMode},
	)

	status(fmt.Sprintf("Uploading certificates to %s", files.Dir), false)
	for _, u := range uploads {
		remotePath := files.Path(u.name)
		c.logger.WithField("path", remotePath).Info("remote: uploading")
		if err := conn.UploadFile(ctx, u.data, remotePath, u.mode); err != nil {
			return fmt.Errorf("upload %s: %w", remotePath, err)
		}
	}

	status("Applying VPN server configuration", false)
	script, err := c.vpnFraming.Render(vpnCommands, edgerouter.ReloadOpenVPN)
	if err != nil {
		return err
	}
	if err := c.runScript(ctx, conn, c.vpnFraming, script); err != nil {
		return fmt.Errorf("vpn configuration: %w", err)
	}

	status("Applying firewall configuration", false)
	script, err = c.firewallFraming.Render(firewallCommands)
	if err != nil {
		return err
	}
	if err := c.runScript(ctx, conn, c.firewallFraming, script); err != nil {
		return fmt.Errorf("firewall configuration: %w", err)
	}
	return nil
}

// runScript writes script to a local temp file, uploads it under a random
// /tmp name, runs it with the framing interpreter and removes both copies
// whatever the outcome.
func (c *Client) runScript(ctx context.Context, conn Conn, framing edgerouter.Framing, script []byte) error {
	local, err := os.CreateTemp(c.tempDir, "vpnconfigurator-*.sh")
	if err != nil {
		return fmt.Errorf("failed to create local command file: %w", err)
	}
	localPath := local.Name()
	defer func() {
		if rmErr := os.Remove(localPath); rmErr != nil {
			c.logger.WithError(rmErr).WithField("path", localPath).Warn("remote: could not remove local command file")
		}
	}()
	_, err = local.Write(script)
	if closeErr := local.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write local command file: %w", err)
	}
	content, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}

	remotePath := "/tmp/" + uuid.NewString() + ".sh"
	logger := c.logger.WithField("path", remotePath).WithField("framing", framing.Name)
	if err := conn.UploadFile(ctx, content, remotePath, 0o700); err != nil {
		return fmt.Errorf("failed to upload command file: %w", err)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if rmErr := conn.Remove(cleanupCtx, remotePath); rmErr != nil {
			logger.WithError(rmErr).Warn("remote: could not remove command file")
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, c.commandTimeout)
	defer cancel()
	logger.Info("remote: executing command file")
	result, err := conn.Run(runCtx, shellquote.Join(framing.Interpreter, remotePath), nil)
	if err != nil {
		return err
	}
	logger.WithField("exit", result.ExitCode).Debugf("remote: stdout:\n%s", result.Stdout)
	if result.Stderr != "" {
		logger.Debugf("remote: stderr:\n%s", result.Stderr)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("command file exited with status %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}
