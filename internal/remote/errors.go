package remote

import "errors"

var (
	// ErrHostUnreachable means the router did not answer the ping.
	ErrHostUnreachable = errors.New("host not reachable")

	// ErrSSHConnection means no SSH session could be established.
	ErrSSHConnection = errors.New("failed to open ssh connection")

	// ErrRemoteExecution means a session was open but a step on the router failed.
	ErrRemoteExecution = errors.New("remote execution failed")

	// ErrFirmwareTooOld means the router runs a firmware older than edgerouter.MinimumFirmware.
	ErrFirmwareTooOld = errors.New("firmware version is too old")

	// ErrMissingRouterCAKey means the router has no CA private key to reuse.
	ErrMissingRouterCAKey = errors.New("no ca key file found on router")

	// ErrPushRouteMismatch means an existing vtun interface pushes another route.
	ErrPushRouteMismatch = errors.New("openvpn push-route mismatch")

	// ErrPortForwardMismatch means the VPN port is forwarded somewhere else.
	ErrPortForwardMismatch = errors.New("port-forward rule mismatch")
)
