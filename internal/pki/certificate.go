package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" // #nosec G505 - SHA-1 is the RFC 5280 key identifier method, not a signature hash
	"crypto/x509"
	"fmt"
	"math/big"
	"time"
)

// Profile selects the extension set applied to a certificate.
type Profile int

const (
	// ProfileCA is the extension set of a root authority.
	ProfileCA Profile = iota

	// ProfileLeaf is the extension set applied to client certificates. It
	// matches ProfileCA so artifacts stay compatible with existing ones.
	ProfileLeaf

	// ProfileStrictLeaf is a conventional end-entity profile: not a CA, no
	// certificate signing, client authentication only.
	ProfileStrictLeaf
)

func (p Profile) String() string {
	switch p {
	case ProfileCA:
		return "ca"
	case ProfileLeaf:
		return "leaf"
	case ProfileStrictLeaf:
		return "strict-leaf"
	default:
		return fmt.Sprintf("profile(%d)", int(p))
	}
}

// caKeyUsage is keyCertSign, digitalSignature, nonRepudiation, keyEncipherment and dataEncipherment.
const caKeyUsage = x509.KeyUsageCertSign |
	x509.KeyUsageDigitalSignature |
	x509.KeyUsageContentCommitment |
	x509.KeyUsageKeyEncipherment |
	x509.KeyUsageDataEncipherment

// DefaultSerialNumber is the serial used when a request carries none.
func DefaultSerialNumber() *big.Int {
	return big.NewInt(1)
}

// RandomSerialNumber returns a random positive 128-bit serial number.
func RandomSerialNumber() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	// zero is not a valid serial
	return serial.Add(serial, big.NewInt(1)), nil
}

// Validity is the certificate validity window.
type Validity struct {
	NotBefore time.Time
	NotAfter  time.Time
}

// CertificateRequest holds everything needed to assemble an unsigned certificate.
type CertificateRequest struct {
	SerialNumber *big.Int
	Validity     Validity
	Subject      DistinguishedName
	Issuer       DistinguishedName
	// RawIssuer is the exact issuer encoding, normally the issuing
	// certificate's RawSubject. When set it takes precedence over Issuer.
	RawIssuer []byte
	PublicKey *rsa.PublicKey
	Profile   Profile
}

// UnsignedCertificate is an assembled certificate body waiting for a signature.
type UnsignedCertificate struct {
	template  *x509.Certificate
	subject   DistinguishedName
	issuer    DistinguishedName
	rawIssuer []byte
	profile   Profile
}

// Subject returns the subject name of the certificate.
func (u *UnsignedCertificate) Subject() DistinguishedName { return u.subject }

// Issuer returns the issuer name of the certificate.
func (u *UnsignedCertificate) Issuer() DistinguishedName { return u.issuer }

// Profile returns the extension profile applied to the certificate.
func (u *UnsignedCertificate) Profile() Profile { return u.profile }

// SelfIssued reports whether subject and issuer are the same name.
func (u *UnsignedCertificate) SelfIssued() bool { return u.subject.Equal(u.issuer) }

// BuildCertificate assembles an unsigned certificate from req.
func BuildCertificate(req CertificateRequest) (*UnsignedCertificate, error) {
	if req.Validity.NotBefore.After(req.Validity.NotAfter) {
		return nil, fmt.Errorf("%w: not before %s is after not after %s",
			ErrInvalidValidityWindow,
			req.Validity.NotBefore.Format(time.RFC3339),
			req.Validity.NotAfter.Format(time.RFC3339))
	}

	if req.PublicKey == nil {
		return nil, fmt.Errorf("%w: certificate requires a subject public key", ErrMissingPublicKey)
	}

	serial := req.SerialNumber
	if serial == nil {
		serial = DefaultSerialNumber()
	}

	rawSubject, err := req.Subject.Marshal()
	if err != nil {
		return nil, err
	}

	issuer := req.Issuer
	rawIssuer := req.RawIssuer
	if len(rawIssuer) > 0 {
		issuer, err = ParseName(rawIssuer)
		if err != nil {
			return nil, err
		}
	} else {
		rawIssuer, err = req.Issuer.Marshal()
		if err != nil {
			return nil, err
		}
	}

	keyID, err := SubjectKeyID(req.PublicKey)
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          new(big.Int).Set(serial),
		RawSubject:            rawSubject,
		NotBefore:             req.Validity.NotBefore,
		NotAfter:              req.Validity.NotAfter,
		PublicKey:             req.PublicKey,
		SignatureAlgorithm:    x509.SHA256WithRSA,
		BasicConstraintsValid: true,
		SubjectKeyId:          keyID,
	}

	switch req.Profile {
	case ProfileCA, ProfileLeaf:
		template.IsCA = true
		template.KeyUsage = caKeyUsage
	case ProfileStrictLeaf:
		template.IsCA = false
		template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	default:
		return nil, fmt.Errorf("unknown certificate profile: %s", req.Profile)
	}

	return &UnsignedCertificate{
		template:  template,
		subject:   req.Subject,
		issuer:    issuer,
		rawIssuer: rawIssuer,
		profile:   req.Profile,
	}, nil
}

// SubjectKeyID computes the RFC 5280 method 1 key identifier: the SHA-1
// hash of the PKCS#1 encoded public key.
func SubjectKeyID(pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil || pub.N == nil {
		return nil, ErrMissingPublicKey
	}
	sum := sha1.Sum(x509.MarshalPKCS1PublicKey(pub)) // #nosec G401
	return sum[:], nil
}
