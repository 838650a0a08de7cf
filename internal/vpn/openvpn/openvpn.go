// Package openvpn renders OpenVPN client profiles.
package openvpn

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/routervpn/configurator/internal/models"
)

// Profile holds everything written into one client .ovpn file.
type Profile struct {
	// Remote is the public address of the router.
	Remote string

	// Port for the OpenVPN server (default: 1194).
	Port int

	// Proto is udp or tcp.
	Proto string

	// RouteGateway is the router LAN address, omitted when empty.
	RouteGateway string

	// AuthUserPass asks the client for a username and password.
	AuthUserPass bool

	// Embed inlines the certificates and key instead of referencing files.
	Embed bool

	CAFile   string
	CertFile string
	KeyFile  string

	CA   string
	Cert string
	Key  string
}

// NewProfile builds the profile of one client whose files are named after
// prefix. The PEM blocks are only rendered when embedding is enabled.
func NewProfile(p models.VPNParameters, prefix string, caPEM, certPEM, keyPEM []byte) Profile {
	proto := "udp"
	if !p.UseUDP {
		proto = "tcp"
	}
	port := p.VPNPort
	if port == 0 {
		port = 1194
	}
	return Profile{
		Remote:       p.PublicAddress,
		Port:         port,
		Proto:        proto,
		RouteGateway: p.RouterInternalIP,
		AuthUserPass: !p.CertificateOnlyAuth,
		Embed:        p.EmbedCertificates,
		CAFile:       CAFileName(prefix),
		CertFile:     prefix + ".crt",
		KeyFile:      prefix + ".key",
		CA:           extractPEM(caPEM),
		Cert:         extractPEM(certPEM),
		Key:          extractPEM(keyPEM),
	}
}

// CAFileName is the name of the CA copy placed next to a non-embedded profile.
func CAFileName(prefix string) string {
	return prefix + "-ca.crt"
}

var profileTemplate = template.Must(template.New("client.ovpn").Parse(`client
remote {{.Remote}} {{.Port}}
dev tun
proto {{.Proto}}
resolv-retry infinite
nobind
persist-key
persist-tun
{{if .RouteGateway}}route-gateway {{.RouteGateway}}
{{end}}float
{{if .AuthUserPass}}auth-user-pass
{{end}}verb 3
{{if .Embed}}<ca>
{{.CA}}
</ca>
<cert>
{{.Cert}}
</cert>
<key>
{{.Key}}
</key>
{{else}}ca {{.CAFile}}
cert {{.CertFile}}
key {{.KeyFile}}
{{end}}`))

// Render produces the .ovpn file contents.
func (p Profile) Render() ([]byte, error) {
	if p.Remote == "" {
		return nil, fmt.Errorf("profile has no remote address")
	}
	if p.Embed && (p.CA == "" || p.Cert == "" || p.Key == "") {
		return nil, fmt.Errorf("embedded profile needs CA, certificate and key")
	}
	var buf bytes.Buffer
	if err := profileTemplate.Execute(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// extractPEM trims data to the text between the first BEGIN marker and the
// end of the last END line.
func extractPEM(data []byte) string {
	s := string(data)
	startIdx := strings.Index(s, "-----BEGIN ")
	endIdx := strings.LastIndex(s, "-----END ")
	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return strings.TrimSpace(s)
	}
	end := strings.Index(s[endIdx+len("-----END "):], "-----")
	if end == -1 {
		return strings.TrimSpace(s[startIdx:])
	}
	return s[startIdx : endIdx+len("-----END ")+end+len("-----")]
}
