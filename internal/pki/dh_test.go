package pki

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestGenerateDHParamsStatic(t *testing.T) {
	first, err := GenerateDHParams(context.Background(), DefaultDHBits, true)
	if err != nil {
		t.Fatal(err)
	}
	second, err := GenerateDHParams(context.Background(), DefaultDHBits, true)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) || string(first) != StaticDHParamsPEM {
		t.Fatal("static DH parameters are not deterministic")
	}

	params, err := ParseDHParams(first)
	if err != nil {
		t.Fatal(err)
	}
	if params.P.BitLen() != 2048 {
		t.Fatal("unexpected prime size", params.P.BitLen())
	}
	if params.G.Int64() != 2 {
		t.Fatal("unexpected generator", params.G)
	}
	if !params.P.ProbablyPrime(20) {
		t.Fatal("static prime is not prime")
	}
}

func TestGenerateDHParams(t *testing.T) {
	out, err := GenerateDHParams(context.Background(), 512, false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(out), "-----BEGIN DH PARAMETERS-----\n") {
		t.Fatal("unexpected PEM", string(out))
	}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if len(line) > 64 {
			t.Fatal("PEM line longer than 64 columns", line)
		}
	}
	params, err := ParseDHParams(out)
	if err != nil {
		t.Fatal(err)
	}
	if params.P.BitLen() != 512 {
		t.Fatal("unexpected prime size", params.P.BitLen())
	}
	if params.G.Int64() != 2 {
		t.Fatal("unexpected generator", params.G)
	}
	if !params.P.ProbablyPrime(20) {
		t.Fatal("generated value is not prime")
	}
}

func TestGenerateDHParamsErrors(t *testing.T) {
	if _, err := GenerateDHParams(context.Background(), 128, false); !errors.Is(err, ErrDHGeneration) {
		t.Fatal("expected ErrDHGeneration, got", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := GenerateDHParams(ctx, 4096, false); !errors.Is(err, context.Canceled) {
		t.Fatal("expected cancellation, got", err)
	}
}

func TestParseDHParamsRejectsOtherBlocks(t *testing.T) {
	if _, err := ParseDHParams([]byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n")); err == nil {
		t.Fatal("expected an error")
	}
}
