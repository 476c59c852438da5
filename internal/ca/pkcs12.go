package ca

import (
	"crypto/x509"
	"fmt"

	"software.sslmate.com/src/go-pkcs12"
)

// PKCS12Ext is the extension used for exported PKCS#12 archives.
const PKCS12Ext = ".p12"

// ToPKCS12 packs the private key, certificate and issuer certificate into a
// password protected PKCS#12 archive.
func (c *IssuedCertificate) ToPKCS12(password string) ([]byte, error) {
	var chain []*x509.Certificate
	if c.issuer != nil {
		chain = append(chain, c.issuer)
	}

	data, err := pkcs12.Modern.Encode(c.keyPair.PrivateKey, c.cert, chain, password)
	if err != nil {
		return nil, fmt.Errorf("failed to encode PKCS#12: %w", err)
	}

	return data, nil
}
