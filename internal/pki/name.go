package pki

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"strings"
)

// Attribute type OIDs used in distinguished names (RFC 4519).
var (
	OIDCommonName         = asn1.ObjectIdentifier{2, 5, 4, 3}
	OIDCountryName        = asn1.ObjectIdentifier{2, 5, 4, 6}
	OIDLocalityName       = asn1.ObjectIdentifier{2, 5, 4, 7}
	OIDStateOrProvince    = asn1.ObjectIdentifier{2, 5, 4, 8}
	OIDOrganizationName   = asn1.ObjectIdentifier{2, 5, 4, 10}
	OIDOrganizationalUnit = asn1.ObjectIdentifier{2, 5, 4, 11}
)

// NoneValue is the fallback used for every authority subject field.
const NoneValue = "None"

// Subject describes the identity fields of a certificate. Empty fields are
// filled from a default set when the name is built.
type Subject struct {
	CommonName         string `yaml:"common_name"`
	Country            string `yaml:"country"`
	State              string `yaml:"state"`
	Locality           string `yaml:"locality"`
	Organization       string `yaml:"organization"`
	OrganizationalUnit string `yaml:"organizational_unit"`
}

// AuthorityDefaults is the default set for root authority subjects.
func AuthorityDefaults() Subject {
	return Subject{
		CommonName:         NoneValue,
		Country:            NoneValue,
		State:              NoneValue,
		Locality:           NoneValue,
		Organization:       NoneValue,
		OrganizationalUnit: NoneValue,
	}
}

// ClientDefaults is the default set for client certificate subjects. The
// common name is supplied by the caller, typically the local hostname.
func ClientDefaults(commonName string) Subject {
	return Subject{
		CommonName:         commonName,
		Country:            "US",
		State:              "Georgia",
		Locality:           "Atlanta",
		Organization:       NoneValue,
		OrganizationalUnit: "example",
	}
}

// Attribute is a single (type, value) pair of a distinguished name.
type Attribute struct {
	Type  asn1.ObjectIdentifier
	Value string
}

// DistinguishedName is an ordered attribute sequence. Names built by
// BuildName always use the same order so equal names encode identically.
type DistinguishedName []Attribute

type nameField struct {
	oid   asn1.ObjectIdentifier
	short string
	get   func(Subject) string
}

var nameOrder = []nameField{
	{OIDCommonName, "CN", func(s Subject) string { return s.CommonName }},
	{OIDCountryName, "C", func(s Subject) string { return s.Country }},
	{OIDStateOrProvince, "ST", func(s Subject) string { return s.State }},
	{OIDLocalityName, "L", func(s Subject) string { return s.Locality }},
	{OIDOrganizationName, "O", func(s Subject) string { return s.Organization }},
	{OIDOrganizationalUnit, "OU", func(s Subject) string { return s.OrganizationalUnit }},
}

// BuildName turns subject into a distinguished name, taking any empty field
// from defaults. Fields empty in both are left out.
func BuildName(subject, defaults Subject) DistinguishedName {
	dn := make(DistinguishedName, 0, len(nameOrder))
	for _, f := range nameOrder {
		value := f.get(subject)
		if value == "" {
			value = f.get(defaults)
		}
		if value == "" {
			continue
		}
		dn = append(dn, Attribute{Type: f.oid, Value: value})
	}
	return dn
}

// Value returns the value of the first attribute of type t, or "".
func (dn DistinguishedName) Value(t asn1.ObjectIdentifier) string {
	for _, attr := range dn {
		if attr.Type.Equal(t) {
			return attr.Value
		}
	}
	return ""
}

// CommonName returns the commonName attribute.
func (dn DistinguishedName) CommonName() string {
	return dn.Value(OIDCommonName)
}

// Equal reports whether both names hold the same attributes in the same order.
func (dn DistinguishedName) Equal(other DistinguishedName) bool {
	if len(dn) != len(other) {
		return false
	}
	for i := range dn {
		if !dn[i].Type.Equal(other[i].Type) || dn[i].Value != other[i].Value {
			return false
		}
	}
	return true
}

// String renders the name in attribute order, e.g. "CN=ca,C=BR".
func (dn DistinguishedName) String() string {
	parts := make([]string, 0, len(dn))
	for _, attr := range dn {
		parts = append(parts, shortName(attr.Type)+"="+attr.Value)
	}
	return strings.Join(parts, ",")
}

// RDNSequence converts the name to its ASN.1 form, one attribute per RDN.
func (dn DistinguishedName) RDNSequence() pkix.RDNSequence {
	seq := make(pkix.RDNSequence, 0, len(dn))
	for _, attr := range dn {
		seq = append(seq, pkix.RelativeDistinguishedNameSET{
			{Type: attr.Type, Value: attr.Value},
		})
	}
	return seq
}

// Marshal returns the DER encoding of the name.
func (dn DistinguishedName) Marshal() ([]byte, error) {
	raw, err := asn1.Marshal(dn.RDNSequence())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal distinguished name: %w", err)
	}
	return raw, nil
}

// ParseName decodes a DER encoded name, keeping the encoded attribute order.
func ParseName(raw []byte) (DistinguishedName, error) {
	var seq pkix.RDNSequence
	rest, err := asn1.Unmarshal(raw, &seq)
	if err != nil {
		return nil, fmt.Errorf("failed to parse distinguished name: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("failed to parse distinguished name: trailing data")
	}

	dn := make(DistinguishedName, 0, len(seq))
	for _, rdn := range seq {
		for _, atv := range rdn {
			dn = append(dn, Attribute{Type: atv.Type, Value: fmt.Sprint(atv.Value)})
		}
	}
	return dn, nil
}

// SubjectName returns the subject of cert in its encoded attribute order.
func SubjectName(cert *x509.Certificate) (DistinguishedName, error) {
	return ParseName(cert.RawSubject)
}

// IssuerName returns the issuer of cert in its encoded attribute order.
func IssuerName(cert *x509.Certificate) (DistinguishedName, error) {
	return ParseName(cert.RawIssuer)
}

func shortName(oid asn1.ObjectIdentifier) string {
	for _, f := range nameOrder {
		if f.oid.Equal(oid) {
			return f.short
		}
	}
	return oid.String()
}
