package commands

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/selfca/internal/ca"
	"github.com/wolfeidau/selfca/internal/pemstore"
	"github.com/wolfeidau/selfca/internal/pki"
	"github.com/wolfeidau/selfca/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RootCmd generates and persists a self-signed root authority
type RootCmd struct {
	OutDir       string `help:"directory (or SSM path) the root artifacts are written to" default:"./certs" env:"SELFCA_OUT_DIR"`
	Name         string `help:"artifact base name" default:"root" env:"SELFCA_ROOT_NAME"`
	Bits         int    `help:"RSA key size (2048 or 4096)" default:"4096"`
	Expiry       string `help:"expiry as YYYY-MM-DD or RFC 3339, defaults to five years"`
	RandomSerial bool   `help:"use a random serial number instead of 01"`
	Force        bool   `help:"force regeneration of an existing root" default:"false"`
	RotationDays int    `help:"regenerate an existing root expiring within this many days" default:"365"`
	KMSKeyID     string `help:"sign with this AWS KMS key, the private key never leaves KMS" name:"kms-key-id" env:"SELFCA_KMS_KEY_ID"`

	Subject  SubjectFlags  `embed:""`
	Store    StoreFlags    `embed:""`
	AWS      AWSFlags      `embed:""`
	Registry RegistryFlags `embed:""`
}

// Run executes the root command
func (cmd *RootCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, span := telemetry.Tracer().Start(ctx, "selfca.root")
	defer span.End()

	st, err := openStore(ctx, cmd.Store, cmd.AWS)
	if err != nil {
		return err
	}

	paths := ca.Artifacts(cmd.OutDir, cmd.Name)

	validation, err := validateCertificate(ctx, st, paths.Certificate, time.Duration(cmd.RotationDays)*day, time.Now())
	if err != nil {
		return fmt.Errorf("failed to validate root certificate: %w", err)
	}

	// Determine if we should regenerate and log appropriately
	switch {
	case cmd.Force:
		log.Info().Msg("Force flag set, regenerating root certificate...")
	case validation.ShouldRotate && validation.Expired:
		log.Error().
			Int("days_expired", -validation.DaysRemaining).
			Msg("Root certificate is expired, regenerating...")
	case validation.ShouldRotate && validation.Exists:
		log.Warn().
			Int("days_remaining", validation.DaysRemaining).
			Msg("Root certificate approaching expiry, regenerating...")
	case validation.Exists:
		log.Info().
			Int("days_remaining", validation.DaysRemaining).
			Str("path", paths.Certificate).
			Msg("Root certificate is valid, using existing...")
		return nil
	default:
		log.Info().Str("path", paths.Certificate).Msg("Generating root certificate...")
	}

	opts, err := cmd.options()
	if err != nil {
		return err
	}

	started := time.Now()

	var cert *x509.Certificate
	if cmd.KMSKeyID != "" {
		cert, err = cmd.generateKMSRoot(ctx, st, opts, paths)
	} else {
		cert, err = cmd.generateLocalRoot(ctx, st, opts)
	}

	telemetry.GetMetrics().RecordIssue(ctx, "root", pki.ProfileCA.String(), started, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	telemetry.GetMetrics().ArtifactsWrittenTotal.Add(ctx, 1)

	span.SetAttributes(attribute.String("selfca.serial_number", cert.SerialNumber.Text(16)))

	registry, release, err := openRegistry(ctx, cmd.Registry, cmd.AWS)
	if err != nil {
		return err
	}
	defer release()

	if err := register(ctx, registry, cert, "Root authority "+cmd.Name); err != nil {
		return err
	}

	log.Info().
		Str("path", paths.Certificate).
		Time("expires", cert.NotAfter).
		Msg("Root certificate written")

	return printCertificate(os.Stdout, cert)
}

func (cmd *RootCmd) options() (ca.RootOptions, error) {
	expiry, err := parseExpiry(cmd.Expiry)
	if err != nil {
		return ca.RootOptions{}, err
	}

	subject, err := cmd.Subject.Resolve()
	if err != nil {
		return ca.RootOptions{}, err
	}

	serial, err := serialNumber(cmd.RandomSerial)
	if err != nil {
		return ca.RootOptions{}, err
	}

	return ca.RootOptions{
		ExpiryOn:     expiry,
		Bits:         cmd.Bits,
		Subject:      subject,
		SerialNumber: serial,
	}, nil
}

func (cmd *RootCmd) generateLocalRoot(ctx context.Context, st pemstore.Store, opts ca.RootOptions) (*x509.Certificate, error) {
	root, err := ca.GenerateRoot(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate root: %w", err)
	}

	if err := root.Persist(ctx, st, cmd.OutDir, cmd.Name); err != nil {
		return nil, fmt.Errorf("failed to persist root: %w", err)
	}

	return root.Certificate(), nil
}

// generateKMSRoot self-signs the root with a KMS key. Only the certificate and
// public key are written; the private key stays in KMS.
func (cmd *RootCmd) generateKMSRoot(ctx context.Context, st pemstore.Store, opts ca.RootOptions, paths ca.ArtifactPaths) (*x509.Certificate, error) {
	awsConfig, err := loadAWSConfig(ctx, cmd.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	signer, err := pki.NewKMSCryptoSigner(ctx, kms.NewFromConfig(awsConfig), cmd.KMSKeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS signer: %w", err)
	}

	cert, err := ca.SelfSignRoot(opts, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to sign root with KMS: %w", err)
	}

	if err := st.Write(ctx, paths.Certificate, pki.EncodeCertificate(cert)); err != nil {
		return nil, fmt.Errorf("failed to write certificate: %w", err)
	}

	pubPEM, err := pki.EncodePublicKey(signer.Public().(*rsa.PublicKey))
	if err != nil {
		return nil, err
	}

	if err := st.Write(ctx, paths.PublicKey, pubPEM); err != nil {
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}

	log.Info().Str("kms_key_id", cmd.KMSKeyID).Msg("Root certificate signed with KMS")

	return cert, nil
}
