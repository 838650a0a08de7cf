// Package models defines data structures used throughout the router VPN configurator.
package models

import (
	"fmt"
	"time"
)

// RouterMode selects the router firmware family being configured.
type RouterMode string

const (
	// RouterDDWRT is a DD-WRT router configured through its web UI.
	RouterDDWRT RouterMode = "DD-WRT"

	// RouterEdge is an EdgeRouter (EdgeOS / Vyatta) configured through its shell.
	RouterEdge RouterMode = "EDGE-SERVER"
)

// CAMode selects where the certificate authority comes from.
type CAMode string

const (
	// CAGenerateNew builds a fresh CA for this run.
	CAGenerateNew CAMode = "generateNew"

	// CAUseExistingLocal loads ca.crt and ca.key from a local directory.
	CAUseExistingLocal CAMode = "useExistingLocal"

	// CAUseExistingRouter loads ca.crt and ca.key from the router over SSH.
	CAUseExistingRouter CAMode = "useExistingRoute"
)

// ConfiguratorMode selects how the generated configuration reaches the router.
type ConfiguratorMode string

const (
	// ConfiguratorManual leaves applying the configuration to the user.
	ConfiguratorManual ConfiguratorMode = "manual"

	// ConfiguratorSSH pushes the configuration to the router over SSH.
	ConfiguratorSSH ConfiguratorMode = "ssh"
)

// StoreKeys is the CA private key storage policy for a newly generated CA.
type StoreKeys string

const (
	// StoreKeysNone keeps the CA key only in the run output directory.
	StoreKeysNone StoreKeys = "none"

	// StoreKeysLocal also writes the CA key to VPNParameters.CAKeysDir.
	StoreKeysLocal StoreKeys = "local"

	// StoreKeysRouter also uploads the CA key to the router.
	StoreKeysRouter StoreKeys = "router"
)

// SubjectAttributes holds the X.509 distinguished name fields entered by the user.
// Empty fields are omitted from generated certificates.
type SubjectAttributes struct {
	CommonName         string `json:"common_name" yaml:"common_name"`
	Country            string `json:"country" yaml:"country"`
	State              string `json:"state" yaml:"state"`
	Locality           string `json:"locality" yaml:"locality"`
	Organization       string `json:"organization" yaml:"organization"`
	OrganizationalUnit string `json:"organizational_unit" yaml:"organizational_unit"`
	Email              string `json:"email" yaml:"email"`
}

// Identity is a server or client for which a leaf certificate is issued.
type Identity struct {
	// Username names the certificate and its output files.
	Username string `json:"username" yaml:"username"`

	// Password optionally encrypts the identity's private key.
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// VPNParameters is the immutable input of one provisioning run.
type VPNParameters struct {
	// PublicAddress is the public IP or DDNS name of the router.
	PublicAddress string `json:"public_address" yaml:"public_address"`

	// VPNPort is the port OpenVPN listens on (default: 1194).
	VPNPort int `json:"vpn_port" yaml:"vpn_port"`

	// InternalNetwork is the LAN behind the router, e.g. 192.168.1.0.
	InternalNetwork string `json:"internal_network" yaml:"internal_network"`

	// InternalNetworkMask is the LAN subnet mask.
	InternalNetworkMask string `json:"internal_network_mask" yaml:"internal_network_mask"`

	// VPNClientNetwork is the subnet handed out to VPN clients.
	VPNClientNetwork string `json:"vpn_client_network" yaml:"vpn_client_network"`

	// VPNClientMask is the VPN client subnet mask.
	VPNClientMask string `json:"vpn_client_mask" yaml:"vpn_client_mask"`

	// RouterInternalIP is the router address on the LAN.
	RouterInternalIP string `json:"router_internal_ip" yaml:"router_internal_ip"`

	RouterMode RouterMode `json:"router_mode" yaml:"router_mode"`
	CAMode     CAMode     `json:"ca_mode" yaml:"ca_mode"`
	StoreKeys  StoreKeys  `json:"store_keys" yaml:"store_keys"`

	// KeySize is the RSA modulus size for every generated key.
	KeySize int `json:"key_size" yaml:"key_size"`

	// ValidityDays is the certificate lifetime in days.
	ValidityDays int `json:"validity_days" yaml:"validity_days"`

	// Subject holds the CA distinguished name.
	Subject SubjectAttributes `json:"subject" yaml:"subject"`

	// CommonNameSet records that the user chose a common name explicitly.
	CommonNameSet bool `json:"-" yaml:"-"`

	UseUDP              bool `json:"use_udp" yaml:"use_udp"`
	LANTrafficOnly      bool `json:"lan_traffic_only" yaml:"lan_traffic_only"`
	CertificateOnlyAuth bool `json:"certificate_only_auth" yaml:"certificate_only_auth"`
	StartWithWANUp      bool `json:"start_with_wan_up" yaml:"start_with_wan_up"`

	// PrefixClientFiles names client files {PublicAddress}-{username}.
	PrefixClientFiles bool `json:"prefix_client_files" yaml:"prefix_client_files"`

	// EmbedCertificates inlines CA, cert and key into client profiles.
	EmbedCertificates bool `json:"embed_certificates" yaml:"embed_certificates"`

	// BackdateLeaves starts leaf validity one day in the past.
	BackdateLeaves bool `json:"backdate_leaves" yaml:"backdate_leaves"`

	// OutputDir is the root of the per-run output layout.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// CAKeysDir holds ca.crt/ca.key for CAUseExistingLocal and StoreKeysLocal.
	CAKeysDir string `json:"ca_keys_dir" yaml:"ca_keys_dir"`

	// RemoteConfigDir is where certificates are placed on the router.
	RemoteConfigDir string `json:"remote_config_dir" yaml:"remote_config_dir"`
}

// Validity returns the configured certificate lifetime.
func (p VPNParameters) Validity() time.Duration {
	return time.Duration(p.ValidityDays) * 24 * time.Hour
}

// ClientFilePrefix returns the base name used for a client's output files.
func (p VPNParameters) ClientFilePrefix(username string) string {
	if p.PrefixClientFiles && p.PublicAddress != "" {
		return fmt.Sprintf("%s-%s", p.PublicAddress, username)
	}
	return username
}

// SSHCredentials identifies the router SSH endpoint.
type SSHCredentials struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// ConfigRequest represents everything the user entered for one run.
type ConfigRequest struct {
	// Params holds network, certificate and router options.
	Params VPNParameters `json:"vpn" yaml:"vpn"`

	// Servers are the server identities (usually zero or one).
	Servers []Identity `json:"servers" yaml:"servers"`

	// Clients are the client identities, one profile each.
	Clients []Identity `json:"clients" yaml:"clients"`

	// Configurator selects manual or SSH application.
	Configurator ConfiguratorMode `json:"configurator" yaml:"configurator"`

	// SSH holds router credentials for SSH mode and router CA loading.
	SSH SSHCredentials `json:"ssh" yaml:"ssh"`

	// DevMode substitutes static DH parameters.
	DevMode bool `json:"dev_mode" yaml:"dev_mode"`
}

// Mode returns the validated mode union of the request.
func (r ConfigRequest) Mode() (Mode, error) {
	return NewMode(r.Params.CAMode, r.Params.RouterMode, r.Configurator)
}

// ConfigResult represents the artifacts produced by a provisioning run.
type ConfigResult struct {
	// CACertPEM is the CA certificate in PEM form.
	CACertPEM string

	// CAKeyPEM is the CA private key in PEM form.
	CAKeyPEM string

	// DHParamsPEM holds the Diffie-Hellman parameters.
	DHParamsPEM string

	// AdditionalConfig is the rendered VPN server configuration text.
	AdditionalConfig string

	// FirewallConfig is the rendered firewall configuration text.
	FirewallConfig string

	// Instructions are manual steps for the selected router mode.
	Instructions []string

	// IdentityFailures lists identities whose certificates could not be issued.
	IdentityFailures []IdentityFailure

	// RemoteError is set when SSH auto configuration failed.
	RemoteError string
}

// IdentityFailure records an isolated per-identity issuance failure.
type IdentityFailure struct {
	Username string
	Err      error
}

// DuplicateUsernames returns usernames appearing more than once across ids.
func DuplicateUsernames(ids ...[]Identity) []string {
	seen := make(map[string]int)
	var dups []string
	for _, list := range ids {
		for _, id := range list {
			seen[id.Username]++
			if seen[id.Username] == 2 {
				dups = append(dups, id.Username)
			}
		}
	}
	return dups
}
