package pki

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"strings"
	"time"

	"github.com/routervpn/configurator/internal/models"
)

var oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}

// SubjectName converts user attributes to a distinguished name, leaving out
// every empty attribute.
func SubjectName(attrs models.SubjectAttributes) pkix.Name {
	var name pkix.Name
	if v := strings.TrimSpace(attrs.CommonName); v != "" {
		name.CommonName = v
	}
	if v := strings.TrimSpace(attrs.Country); v != "" {
		name.Country = []string{v}
	}
	if v := strings.TrimSpace(attrs.State); v != "" {
		name.Province = []string{v}
	}
	if v := strings.TrimSpace(attrs.Locality); v != "" {
		name.Locality = []string{v}
	}
	if v := strings.TrimSpace(attrs.Organization); v != "" {
		name.Organization = []string{v}
	}
	if v := strings.TrimSpace(attrs.OrganizationalUnit); v != "" {
		name.OrganizationalUnit = []string{v}
	}
	if v := strings.TrimSpace(attrs.Email); v != "" {
		name.ExtraNames = append(name.ExtraNames, pkix.AttributeTypeAndValue{
			Type:  oidEmailAddress,
			Value: v,
		})
	}
	return name
}

// validity resolves the default window: [now, notBefore+1y].
func validity(notBefore, notAfter time.Time) (time.Time, time.Time) {
	if notBefore.IsZero() {
		notBefore = time.Now()
	}
	if notAfter.IsZero() {
		notAfter = notBefore.AddDate(1, 0, 0)
	}
	return notBefore, notAfter
}
