package ping

import (
	"context"
	"testing"
	"time"
)

func TestProbeLoopback(t *testing.T) {
	conn, _, err := listen()
	if err != nil {
		t.Skip("ICMP sockets unavailable:", err)
	}
	conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := Probe(ctx, "127.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Alive {
		t.Fatal("expected loopback to answer")
	}
	if result.RTT <= 0 {
		t.Fatal("expected a positive round-trip time")
	}
}

func TestProbeResolveFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Probe(ctx, "does-not-exist.invalid"); err == nil {
		t.Fatal("expected a resolution error")
	}
}

func TestProbeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Probe(ctx, "127.0.0.1"); err != context.Canceled {
		t.Fatal("expected context.Canceled, got", err)
	}
}
