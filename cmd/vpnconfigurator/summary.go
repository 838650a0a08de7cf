package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/routervpn/configurator/internal/keystore"
	"github.com/routervpn/configurator/internal/models"
)

var (
	success = color.New(color.FgGreen, color.Bold)
	failure = color.New(color.FgRed, color.Bold)
	warning = color.New(color.FgYellow)
	heading = color.New(color.Bold, color.Underline)
)

// Files holding the rendered router configuration next to the certificates.
const (
	additionalConfigFile = "additional-config.txt"
	firewallConfigFile   = "firewall-config.txt"
)

// printSummary reports the outcome of a run and, unless the router was
// configured over SSH, what the user still has to do by hand.
func printSummary(w io.Writer, req models.ConfigRequest, out *keystore.FS, result *models.ConfigResult) error {
	if err := out.WriteFile(additionalConfigFile, []byte(result.AdditionalConfig+"\n"), keystore.CertMode); err != nil {
		return err
	}
	if err := out.WriteFile(firewallConfigFile, []byte(result.FirewallConfig+"\n"), keystore.CertMode); err != nil {
		return err
	}

	fmt.Fprintln(w)
	success.Fprintln(w, "VPN configuration generated")
	fmt.Fprintf(w, "Files saved to: %s\n", out.Root)

	for _, f := range result.IdentityFailures {
		warning.Fprintf(w, "No certificate for %s: %s\n", f.Username, f.Err)
	}

	autoConfigured := req.Configurator == models.ConfiguratorSSH && result.RemoteError == ""
	if result.RemoteError != "" {
		failure.Fprintln(w, result.RemoteError)
	}
	if autoConfigured {
		success.Fprintln(w, "Router configured over SSH")
		return nil
	}

	fmt.Fprintln(w)
	heading.Fprintln(w, "Manual configuration")
	for i, line := range result.Instructions {
		fmt.Fprintf(w, "%2d. %s\n", i+1, line)
	}
	printBlock(w, "Additional config", out.Path(additionalConfigFile), result.AdditionalConfig)
	printBlock(w, "Firewall", out.Path(firewallConfigFile), result.FirewallConfig)
	return nil
}

func printBlock(w io.Writer, title, path, body string) {
	fmt.Fprintln(w)
	heading.Fprintf(w, "%s (%s)\n", title, path)
	for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		fmt.Fprintln(w, "  "+line)
	}
}
