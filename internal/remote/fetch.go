package remote

import (
	"context"
	"fmt"

	"github.com/routervpn/configurator/internal/models"
	"github.com/routervpn/configurator/internal/vpn/edgerouter"
)

// FetchCA downloads ca.crt and ca.key from the router config directory.
func (c *Client) FetchCA(ctx context.Context, req models.ConfigRequest) (certPEM, keyPEM []byte, err error) {
	conn, closeConn, err := c.connect(ctx, req.SSH)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSSHConnection, err)
	}
	defer closeConn()

	files := edgerouter.DefaultRemoteFiles(configDir(req))
	keyPEM, err = conn.DownloadFile(ctx, files.Path("ca.key"))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: ca key: %w", ErrRemoteExecution, err)
	}
	certPEM, err = conn.DownloadFile(ctx, files.Path(files.CACert))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: ca certificate: %w", ErrRemoteExecution, err)
	}
	return certPEM, keyPEM, nil
}
