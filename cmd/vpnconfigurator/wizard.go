package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/apex/log"
	"github.com/routervpn/configurator/internal/config"
	"github.com/routervpn/configurator/internal/models"
	"github.com/routervpn/configurator/internal/netaddr"
	"github.com/routervpn/configurator/internal/ping"
	"github.com/routervpn/configurator/internal/pki"
	"github.com/routervpn/configurator/internal/remote"
	"github.com/spf13/cobra"
)

func wizardCommand(opts *globalOptions) *cobra.Command {
	var savePath string
	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Answer a few questions, then generate the VPN configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := config.Default()
			if opts.configFile != "" {
				loaded, err := config.LoadConfigFromFile(opts.configFile)
				if err != nil {
					return err
				}
				req = loaded
			}
			applyFlags(&req, opts)

			w := &wizard{ctx: cmd.Context(), req: req}
			if err := w.ask(); err != nil {
				return err
			}
			config.Complete(&w.req)
			if err := config.Validate(w.req); err != nil {
				return err
			}
			if savePath != "" {
				if err := config.SaveConfigToFile(savePath, w.req); err != nil {
					return err
				}
				fmt.Printf("Answers saved to %s\n", savePath)
			}
			if err := w.preflight(); err != nil {
				return err
			}
			return provision(cmd.Context(), w.req)
		},
	}
	cmd.Flags().StringVar(&savePath, "save", "", "Save the answers as a config file for later runs")
	return cmd
}

// wizard collects a request step by step. Defaults come from the request it
// starts with.
type wizard struct {
	ctx context.Context
	req models.ConfigRequest
	err error
}

func (w *wizard) ask() error {
	p := &w.req.Params

	w.selectOne("Router type:", []string{string(models.RouterDDWRT), string(models.RouterEdge)}, (*string)(&p.RouterMode))
	w.input("Public IP or DDNS name of the router:", &p.PublicAddress, survey.Required)
	if w.err == nil {
		w.probe(p.PublicAddress)
	}
	w.number("VPN port:", &p.VPNPort, 1, 65535)
	w.input("Internal network:", &p.InternalNetwork, validateIPv4)
	w.input("Internal network mask:", &p.InternalNetworkMask, validateMask)
	w.input("VPN client network:", &p.VPNClientNetwork, validateIPv4)
	w.input("VPN client network mask:", &p.VPNClientMask, validateMask)
	if p.RouterInternalIP == "" {
		p.RouterInternalIP = netaddr.RouterIP(p.InternalNetwork)
	}
	w.input("Router internal IP:", &p.RouterInternalIP, validateIPv4)

	proto := "UDP"
	if !p.UseUDP {
		proto = "TCP"
	}
	w.selectOne("Protocol:", []string{"UDP", "TCP"}, &proto)
	p.UseUDP = proto == "UDP"
	w.confirm("Route only LAN traffic through the VPN?", &p.LANTrafficOnly)
	w.confirm("Authenticate clients with certificates only?", &p.CertificateOnlyAuth)
	if p.RouterMode == models.RouterDDWRT {
		w.confirm("Start the VPN server when WAN is up?", &p.StartWithWANUp)
	}

	caModes := []string{string(models.CAGenerateNew), string(models.CAUseExistingLocal)}
	if p.RouterMode == models.RouterEdge {
		caModes = append(caModes, string(models.CAUseExistingRouter))
	} else if p.CAMode == models.CAUseExistingRouter {
		p.CAMode = models.CAGenerateNew
	}
	w.selectOne("Certificate authority:", caModes, (*string)(&p.CAMode))
	if p.CAMode == models.CAUseExistingLocal {
		w.input("Directory holding ca.crt and ca.key:", &p.CAKeysDir, survey.Required)
	}

	sizes := make([]string, len(pki.KeySizes))
	for i, s := range pki.KeySizes {
		sizes[i] = strconv.Itoa(s)
	}
	keySize := strconv.Itoa(p.KeySize)
	w.selectOne("Key size:", sizes, &keySize)
	p.KeySize, _ = strconv.Atoi(keySize)
	w.number("Certificate validity in days:", &p.ValidityDays, 1, 36500)

	if p.CAMode == models.CAGenerateNew {
		if !p.CommonNameSet {
			p.Subject.CommonName = p.PublicAddress
		}
		w.input("Common name:", &p.Subject.CommonName, survey.Required)
		p.CommonNameSet = p.Subject.CommonName != p.PublicAddress
		w.input("Country (2 letters, optional):", &p.Subject.Country, survey.MaxLength(2))
		w.input("State (optional):", &p.Subject.State)
		w.input("Locality (optional):", &p.Subject.Locality)
		w.input("Organization (optional):", &p.Subject.Organization)
		w.input("Organizational unit (optional):", &p.Subject.OrganizationalUnit)
		w.input("Email (optional):", &p.Subject.Email)
	}

	w.identities()
	w.confirm("Embed certificates in the client profiles?", &p.EmbedCertificates)
	w.confirm("Prefix client files with the public address?", &p.PrefixClientFiles)

	w.router()
	w.input("Output directory:", &p.OutputDir, survey.Required)
	return w.err
}

func (w *wizard) identities() {
	server := "server"
	if len(w.req.Servers) > 0 {
		server = w.req.Servers[0].Username
	}
	w.input("Server certificate name (empty for none):", &server)
	w.req.Servers = nil
	if server = strings.TrimSpace(server); server != "" {
		w.req.Servers = []models.Identity{{Username: server}}
	}

	names := make([]string, len(w.req.Clients))
	for i, c := range w.req.Clients {
		names[i] = c.Username
	}
	clients := strings.Join(names, ", ")
	w.input("Client names (comma separated):", &clients, survey.Required)

	encrypt := false
	w.confirm("Protect client private keys with a password?", &encrypt)
	w.req.Clients = nil
	for _, name := range strings.Split(clients, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id := models.Identity{Username: name}
		if encrypt {
			w.password(fmt.Sprintf("Key password for %s:", name), &id.Password)
		}
		w.req.Clients = append(w.req.Clients, id)
	}
}

// router asks for the SSH settings when the run needs them.
func (w *wizard) router() {
	p := &w.req.Params
	if p.RouterMode != models.RouterEdge {
		w.req.Configurator = models.ConfiguratorManual
		p.StoreKeys = models.StoreKeysNone
		return
	}
	w.selectOne("Apply the configuration:", []string{string(models.ConfiguratorManual), string(models.ConfiguratorSSH)}, (*string)(&w.req.Configurator))

	if w.req.Configurator == models.ConfiguratorSSH || p.CAMode == models.CAUseExistingRouter {
		if w.req.SSH.Host == "" {
			w.req.SSH.Host = p.RouterInternalIP
		}
		if w.req.SSH.Username == "" {
			w.req.SSH.Username = "ubnt"
		}
		w.input("SSH host:", &w.req.SSH.Host, survey.Required)
		w.number("SSH port:", &w.req.SSH.Port, 1, 65535)
		w.input("SSH user:", &w.req.SSH.Username, survey.Required)
		w.password("SSH password:", &w.req.SSH.Password)
	}

	if p.CAMode != models.CAGenerateNew {
		p.StoreKeys = models.StoreKeysNone
		return
	}
	policies := []string{string(models.StoreKeysNone), string(models.StoreKeysLocal)}
	if w.req.Configurator == models.ConfiguratorSSH {
		policies = append(policies, string(models.StoreKeysRouter))
	}
	w.selectOne("Keep a copy of the CA key:", policies, (*string)(&p.StoreKeys))
	if p.StoreKeys == models.StoreKeysLocal && p.CAKeysDir == "" {
		p.CAKeysDir = "ca"
		w.input("Directory for ca.crt and ca.key:", &p.CAKeysDir, survey.Required)
	}
	if p.StoreKeys == models.StoreKeysRouter {
		w.input("Router directory for certificates:", &p.RemoteConfigDir, survey.Required)
	}
}

// probe warns when the router address does not answer pings.
func (w *wizard) probe(host string) {
	ctx, cancel := context.WithTimeout(w.ctx, ping.DefaultTimeout)
	defer cancel()
	result, err := ping.Probe(ctx, host)
	switch {
	case errors.Is(err, ping.ErrUnavailable):
		log.WithError(err).Debug("wizard: ping unavailable")
	case err != nil:
		warning.Printf("%s could not be resolved: %s\n", host, err)
	case !result.Alive:
		warning.Printf("%s does not answer pings; it may still be correct if ICMP is blocked\n", host)
	default:
		fmt.Printf("%s answered in %s\n", host, result.RTT.Round(time.Millisecond))
	}
}

// preflight offers the read-only router checks before an SSH run.
func (w *wizard) preflight() error {
	if w.req.Configurator != models.ConfiguratorSSH {
		return nil
	}
	run := true
	w.confirm("Check the router before configuring it?", &run)
	if w.err != nil || !run {
		return w.err
	}
	p := &statusPrinter{w: os.Stdout}
	err := remote.New(remote.WithLogger(log.Log)).CheckSSHConfig(w.ctx, w.req, p.Status)
	p.End()
	if err == nil {
		return nil
	}
	failure.Println(err)
	proceed := false
	w.confirm("Continue anyway?", &proceed)
	if w.err != nil {
		return w.err
	}
	if !proceed {
		return err
	}
	return nil
}

func (w *wizard) input(message string, value *string, validators ...survey.Validator) {
	if w.err != nil {
		return
	}
	prompt := &survey.Input{Message: message, Default: *value}
	var opts []survey.AskOpt
	for _, v := range validators {
		opts = append(opts, survey.WithValidator(v))
	}
	w.err = survey.AskOne(prompt, value, opts...)
}

func (w *wizard) password(message string, value *string) {
	if w.err != nil {
		return
	}
	w.err = survey.AskOne(&survey.Password{Message: message}, value)
}

func (w *wizard) number(message string, value *int, lo, hi int) {
	s := strconv.Itoa(*value)
	w.input(message, &s, func(ans interface{}) error {
		n, err := strconv.Atoi(strings.TrimSpace(ans.(string)))
		if err != nil || n < lo || n > hi {
			return fmt.Errorf("enter a number between %d and %d", lo, hi)
		}
		return nil
	})
	if w.err == nil {
		*value, _ = strconv.Atoi(strings.TrimSpace(s))
	}
}

func (w *wizard) confirm(message string, value *bool) {
	if w.err != nil {
		return
	}
	w.err = survey.AskOne(&survey.Confirm{Message: message, Default: *value}, value)
}

func (w *wizard) selectOne(message string, options []string, value *string) {
	if w.err != nil {
		return
	}
	prompt := &survey.Select{Message: message, Options: options}
	for _, o := range options {
		if o == *value {
			prompt.Default = o
		}
	}
	w.err = survey.AskOne(prompt, value)
}

func validateIPv4(ans interface{}) error {
	if !netaddr.IsIPv4(strings.TrimSpace(ans.(string))) {
		return fmt.Errorf("enter a dotted-quad IPv4 address")
	}
	return nil
}

func validateMask(ans interface{}) error {
	if err := validateIPv4(ans); err != nil {
		return err
	}
	_, err := netaddr.CIDRPrefix(ans.(string))
	return err
}
