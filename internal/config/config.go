// Package config handles loading and validating provisioning requests.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/routervpn/configurator/internal/models"
	"github.com/routervpn/configurator/internal/netaddr"
	"github.com/routervpn/configurator/internal/pki"
	"github.com/routervpn/configurator/internal/remote"
	"github.com/routervpn/configurator/internal/ssh"
	"gopkg.in/yaml.v3"
)

// Defaults of a new request.
const (
	DefaultKeySize          = 2048
	DefaultVPNPort          = 1194
	DefaultValidityDays     = 365
	DefaultVPNClientNetwork = "10.0.8.0"
	DefaultMask             = "255.255.255.0"
	DefaultOutputDir        = "output"
)

// Format is the encoding of a config file.
type Format int

const (
	// YAML is used unless the file name ends in .json.
	YAML Format = iota
	JSON
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return JSON
	}
	return YAML
}

// Default returns a request carrying every default value. Files are decoded
// on top of it, so absent keys keep their defaults.
func Default() models.ConfigRequest {
	return models.ConfigRequest{
		Params: models.VPNParameters{
			VPNPort:             DefaultVPNPort,
			InternalNetworkMask: DefaultMask,
			VPNClientNetwork:    DefaultVPNClientNetwork,
			VPNClientMask:       DefaultMask,
			RouterMode:          models.RouterDDWRT,
			CAMode:              models.CAGenerateNew,
			StoreKeys:           models.StoreKeysNone,
			KeySize:             DefaultKeySize,
			ValidityDays:        DefaultValidityDays,
			UseUDP:              true,
			LANTrafficOnly:      true,
			CertificateOnlyAuth: true,
			OutputDir:           DefaultOutputDir,
			RemoteConfigDir:     remote.DefaultConfigDir,
		},
		Configurator: models.ConfiguratorManual,
		SSH:          models.SSHCredentials{Port: ssh.DefaultPort},
	}
}

// LoadConfigFromFile loads a provisioning request from a YAML or JSON file.
func LoadConfigFromFile(path string) (models.ConfigRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ConfigRequest{}, errors.Wrap(err, "reading config")
	}
	req, err := ParseConfig(data, FormatOf(path))
	if err != nil {
		return models.ConfigRequest{}, errors.Wrapf(err, "parsing config %s", path)
	}
	return req, nil
}

// ParseConfig decodes data, then applies Complete and Validate.
func ParseConfig(data []byte, format Format) (models.ConfigRequest, error) {
	req := Default()
	switch format {
	case JSON:
		if err := json.Unmarshal(data, &req); err != nil {
			return req, errors.Wrap(err, "parsing json")
		}
	default:
		if err := yaml.Unmarshal(data, &req); err != nil {
			return req, errors.Wrap(err, "parsing yaml")
		}
	}
	req.Params.CommonNameSet = req.Params.Subject.CommonName != ""
	Complete(&req)
	if err := Validate(req); err != nil {
		return req, errors.Wrap(err, "validating")
	}
	return req, nil
}

// SaveConfigToFile writes req in the format chosen by the file extension.
// A derived common name is left out so it keeps following the address.
func SaveConfigToFile(path string, req models.ConfigRequest) error {
	if !req.Params.CommonNameSet {
		req.Params.Subject.CommonName = ""
	}
	var (
		data []byte
		err  error
	)
	if FormatOf(path) == JSON {
		data, err = json.MarshalIndent(req, "", "  ")
	} else {
		data, err = yaml.Marshal(req)
	}
	if err != nil {
		return errors.Wrap(err, "encoding config")
	}
	// the file may hold the SSH password
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrap(err, "writing config")
	}
	return nil
}

// Complete fills derived values: the common name follows the public address
// unless CommonNameSet, the router IP is the .1 host of the internal network
// and dev mode backdates leaves.
func Complete(req *models.ConfigRequest) {
	p := &req.Params
	if !p.CommonNameSet || p.Subject.CommonName == "" {
		p.Subject.CommonName = p.PublicAddress
		p.CommonNameSet = false
	}
	if req.DevMode {
		p.BackdateLeaves = true
	}
	if p.RouterInternalIP == "" && p.InternalNetwork != "" {
		p.RouterInternalIP = netaddr.RouterIP(p.InternalNetwork)
	}
	if p.RemoteConfigDir == "" {
		p.RemoteConfigDir = remote.DefaultConfigDir
	}
	if req.SSH.Port == 0 {
		req.SSH.Port = ssh.DefaultPort
	}
}

// Validate checks a completed request.
func Validate(req models.ConfigRequest) error {
	p := req.Params
	if p.PublicAddress == "" {
		return fmt.Errorf("public_address is required")
	}
	if !pki.ValidKeySize(p.KeySize) {
		return fmt.Errorf("key_size must be one of %v", pki.KeySizes)
	}
	if p.VPNPort < 1 || p.VPNPort > 65535 {
		return fmt.Errorf("vpn_port must be between 1 and 65535")
	}
	if p.ValidityDays < 0 {
		return fmt.Errorf("validity_days must not be negative")
	}

	addrs := []struct {
		name, value string
		optional    bool
	}{
		{"internal_network", p.InternalNetwork, false},
		{"internal_network_mask", p.InternalNetworkMask, false},
		{"vpn_client_network", p.VPNClientNetwork, false},
		{"vpn_client_mask", p.VPNClientMask, false},
		{"router_internal_ip", p.RouterInternalIP, true},
	}
	for _, a := range addrs {
		if a.value == "" && a.optional {
			continue
		}
		if !netaddr.IsIPv4(a.value) {
			return fmt.Errorf("%s must be a dotted-quad IPv4 address, got %q", a.name, a.value)
		}
	}
	for _, m := range []string{p.InternalNetworkMask, p.VPNClientMask} {
		if _, err := netaddr.CIDRPrefix(m); err != nil {
			return err
		}
	}

	mode, err := req.Mode()
	if err != nil {
		return err
	}
	if mode.NeedsSSH() && req.SSH.Host == "" {
		return fmt.Errorf("ssh host is required for %s", describeSSHUse(mode))
	}
	switch p.StoreKeys {
	case models.StoreKeysNone, "":
	case models.StoreKeysLocal, models.StoreKeysRouter:
		if mode.CA != models.CAGenerateNew {
			return fmt.Errorf("store_keys %s requires ca_mode %s", p.StoreKeys, models.CAGenerateNew)
		}
		if p.StoreKeys == models.StoreKeysRouter && mode.Configurator != models.ConfiguratorSSH {
			return fmt.Errorf("store_keys %s requires configurator %s", p.StoreKeys, models.ConfiguratorSSH)
		}
	default:
		return fmt.Errorf("unsupported store_keys: %q", p.StoreKeys)
	}

	for _, id := range append(append([]models.Identity(nil), req.Servers...), req.Clients...) {
		if id.Username == "" {
			return fmt.Errorf("every server and client needs a username")
		}
		if strings.ContainsAny(id.Username, `/\`) || id.Username == "." || id.Username == ".." {
			return fmt.Errorf("username %q cannot be used as a file name", id.Username)
		}
	}
	return nil
}

func describeSSHUse(mode models.Mode) string {
	if mode.CA == models.CAUseExistingRouter {
		return "loading the CA from the router"
	}
	return "ssh configuration"
}
