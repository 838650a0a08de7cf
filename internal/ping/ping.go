// Package ping probes host reachability with ICMP echo requests.
package ping

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

// protocolICMP is the IANA protocol number used to parse echo replies.
const protocolICMP = 1

var payload = []byte("vpnconfigurator")

// ErrUnavailable is returned when no ICMP socket can be opened, typically
// for lack of privileges.
var ErrUnavailable = errors.New("icmp sockets unavailable")

// Result is the outcome of a probe.
type Result struct {
	// Alive is true when an echo reply was received in time.
	Alive bool

	// RTT is the round-trip time of the reply.
	RTT time.Duration
}

// Probe sends one ICMP echo request to host and waits for the reply. A host
// that does not answer before the deadline is reported as not alive with a
// nil error; errors are reserved for resolution and socket failures.
func Probe(ctx context.Context, host string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return Result{}, fmt.Errorf("no IPv4 address for %s", host)
	}

	conn, privileged, err := listen()
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()

	var dst net.Addr = &net.UDPAddr{IP: ips[0]}
	if privileged {
		dst = &net.IPAddr{IP: ips[0]}
	}

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return Result{}, err
	}
	// unblock the read when ctx is cancelled before the deadline
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	request := icmp.Echo{
		ID:   os.Getpid() & 0xffff,
		Seq:  rand.Intn(1 << 16),
		Data: payload,
	}
	wire, err := (&icmp.Message{Type: ipv4.ICMPTypeEcho, Code: 0, Body: &request}).Marshal(nil)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	if _, err := conn.WriteTo(wire, dst); err != nil {
		return Result{}, fmt.Errorf("failed to send echo request: %w", err)
	}

	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return Result{}, nil
			}
			return Result{}, fmt.Errorf("failed to read echo reply: %w", err)
		}
		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.Seq != request.Seq || !bytes.Equal(echo.Data, request.Data) {
			continue
		}
		// the kernel rewrites the ID of unprivileged sockets
		if privileged && echo.ID != request.ID {
			continue
		}
		return Result{Alive: true, RTT: time.Since(start)}, nil
	}
}

// listen opens an unprivileged datagram ICMP socket, falling back to a raw
// socket when the kernel does not permit the former.
func listen() (*icmp.PacketConn, bool, error) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err == nil {
		return conn, false, nil
	}
	conn, rawErr := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if rawErr != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(err, rawErr))
	}
	return conn, true, nil
}
