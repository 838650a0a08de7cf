package netaddr

import "testing"

func TestCIDRPrefix(t *testing.T) {
	type testcase struct {
		mask      string
		expect    int
		expectErr bool
	}
	testcases := []testcase{
		{mask: "255.255.255.0", expect: 24},
		{mask: "255.255.0.0", expect: 16},
		{mask: "255.255.255.252", expect: 30},
		{mask: "0.0.0.0", expect: 0},
		{mask: "255.0.255.0", expect: 16},
		{mask: "not a mask", expectErr: true},
	}
	for _, tc := range testcases {
		t.Run(tc.mask, func(t *testing.T) {
			got, err := CIDRPrefix(tc.mask)
			if tc.expectErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.expect {
				t.Fatal("expected", tc.expect, "got", got)
			}
		})
	}
}

func TestCIDR(t *testing.T) {
	got, err := CIDR("10.0.8.0", "255.255.255.0")
	if err != nil {
		t.Fatal(err)
	}
	if got != "10.0.8.0/24" {
		t.Fatal("unexpected", got)
	}
}

func TestRouterIP(t *testing.T) {
	if got := RouterIP("192.168.1.0"); got != "192.168.1.1" {
		t.Fatal("unexpected", got)
	}
	if got := RouterIP("192.168.1.5"); got != "" {
		t.Fatal("unexpected", got)
	}
	if got := RouterIP("example.org"); got != "" {
		t.Fatal("unexpected", got)
	}
}
