package commands

import (
	"context"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/wolfeidau/selfca/internal/pki"
	"github.com/wolfeidau/selfca/internal/store"
)

// InspectCmd decodes and prints a certificate
type InspectCmd struct {
	Path         string `arg:"" help:"certificate path (file path, or parameter name with --store=ssm)"`
	CACert       string `help:"verify the signature against this issuer certificate" name:"ca-cert"`
	RotationDays int    `help:"report rotation when the certificate expires within this many days" default:"30"`

	Store StoreFlags `embed:""`
	AWS   AWSFlags   `embed:""`
}

// Run executes the inspect command
func (cmd *InspectCmd) Run(ctx context.Context, globals *Globals) error {
	st, err := openStore(ctx, cmd.Store, cmd.AWS)
	if err != nil {
		return err
	}

	cert, err := loadCertificate(ctx, st, cmd.Path)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}

	if err := printCertificate(os.Stdout, cert); err != nil {
		return err
	}

	validation, err := validateCertificate(ctx, st, cmd.Path, time.Duration(cmd.RotationDays)*day, time.Now())
	if err != nil {
		return err
	}

	switch {
	case validation.Expired:
		fmt.Printf("%-16s expired %d days ago\n", "Status:", -validation.DaysRemaining)
	case validation.ShouldRotate:
		fmt.Printf("%-16s rotate, %d days remaining\n", "Status:", validation.DaysRemaining)
	default:
		fmt.Printf("%-16s valid, %d days remaining\n", "Status:", validation.DaysRemaining)
	}

	if cmd.CACert == "" {
		return nil
	}

	issuer, err := loadCertificate(ctx, st, cmd.CACert)
	if err != nil {
		return fmt.Errorf("failed to load issuer certificate: %w", err)
	}

	if err := cert.CheckSignatureFrom(issuer); err != nil {
		fmt.Printf("%-16s invalid (%v)\n", "Signature:", err)
		return fmt.Errorf("certificate is not signed by %s: %w", cmd.CACert, err)
	}

	fmt.Printf("%-16s verified by %s\n", "Signature:", cmd.CACert)
	return nil
}

// printCertificate writes a human readable summary of cert.
func printCertificate(w io.Writer, cert *x509.Certificate) error {
	subject, err := pki.SubjectName(cert)
	if err != nil {
		return err
	}

	issuer, err := pki.IssuerName(cert)
	if err != nil {
		return err
	}

	ext := pki.ExtensionsOf(cert)

	basicConstraints, err := extensionValue(pki.ExtractBasicConstraintsCA(cert))
	if err != nil {
		return err
	}

	keyID, err := pki.ExtractSubjectKeyID(cert)
	if err != nil && !errors.Is(err, pki.ErrExtensionNotFound) {
		return err
	}
	subjectKeyID := "absent"
	if len(keyID) > 0 {
		subjectKeyID = hex.EncodeToString(keyID)
	}

	rows := []struct {
		label string
		value string
	}{
		{"Subject:", subject.String()},
		{"Issuer:", issuer.String()},
		{"Serial:", cert.SerialNumber.Text(16)},
		{"Not before:", cert.NotBefore.UTC().Format(time.RFC3339)},
		{"Not after:", cert.NotAfter.UTC().Format(time.RFC3339)},
		{"CA:", basicConstraints},
		{"Key usage:", strings.Join(keyUsageNames(ext.KeyUsage), ", ")},
		{"Subject key ID:", subjectKeyID},
		{"Signature alg:", cert.SignatureAlgorithm.String()},
		{"Fingerprint:", store.Fingerprint(cert)},
	}

	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%-16s %s\n", row.label, row.value); err != nil {
			return err
		}
	}

	return nil
}

// extensionValue renders the raw basicConstraints cA flag, reporting a
// missing extension rather than failing.
func extensionValue(isCA bool, err error) (string, error) {
	switch {
	case errors.Is(err, pki.ErrExtensionNotFound):
		return "absent", nil
	case err != nil:
		return "", err
	default:
		return fmt.Sprintf("%t", isCA), nil
	}
}

var keyUsages = []struct {
	usage x509.KeyUsage
	name  string
}{
	{x509.KeyUsageDigitalSignature, "digitalSignature"},
	{x509.KeyUsageContentCommitment, "nonRepudiation"},
	{x509.KeyUsageKeyEncipherment, "keyEncipherment"},
	{x509.KeyUsageDataEncipherment, "dataEncipherment"},
	{x509.KeyUsageKeyAgreement, "keyAgreement"},
	{x509.KeyUsageCertSign, "keyCertSign"},
	{x509.KeyUsageCRLSign, "cRLSign"},
}

func keyUsageNames(usage x509.KeyUsage) []string {
	var names []string
	for _, ku := range keyUsages {
		if usage&ku.usage != 0 {
			names = append(names, ku.name)
		}
	}
	return names
}
