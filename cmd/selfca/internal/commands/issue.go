package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
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

// IssueCmd issues a client certificate signed by an existing root authority
type IssueCmd struct {
	CADir        string `help:"directory (or SSM path) holding the root artifacts" default:"./certs" env:"SELFCA_CA_DIR"`
	CAName       string `help:"root artifact base name" default:"root" env:"SELFCA_CA_NAME"`
	OutDir       string `help:"directory (or SSM path) the client artifacts are written to" default:"./certs" env:"SELFCA_OUT_DIR"`
	Name         string `help:"artifact base name" default:"client"`
	Bits         int    `help:"RSA key size (2048 or 4096)" default:"4096"`
	Expiry       string `help:"expiry as YYYY-MM-DD or RFC 3339, defaults to five years"`
	Hostname     string `help:"common name used when none is given, defaults to the local hostname"`
	Strict       bool   `help:"issue an end-entity certificate (no CA flag, client auth only)"`
	RandomSerial bool   `help:"use a random serial number instead of 01"`
	P12Password  string `help:"also write a PKCS#12 archive protected by this password" name:"p12-password" env:"SELFCA_P12_PASSWORD"`
	P12Out       string `help:"local path of the PKCS#12 archive, defaults to <out-dir>/<name>.p12" name:"p12-out"`
	KMSKeyID     string `help:"sign with this AWS KMS key instead of the root private key" name:"kms-key-id" env:"SELFCA_KMS_KEY_ID"`

	Subject  SubjectFlags  `embed:""`
	Store    StoreFlags    `embed:""`
	AWS      AWSFlags      `embed:""`
	Registry RegistryFlags `embed:""`
}

// Run executes the issue command
func (cmd *IssueCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, span := telemetry.Tracer().Start(ctx, "selfca.issue")
	defer span.End()

	st, err := openStore(ctx, cmd.Store, cmd.AWS)
	if err != nil {
		return err
	}

	opts, err := cmd.options()
	if err != nil {
		return err
	}

	started := time.Now()

	issued, err := cmd.issue(ctx, st, opts)
	telemetry.GetMetrics().RecordIssue(ctx, "client", opts.Profile().String(), started, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	cert := issued.Certificate()
	span.SetAttributes(
		attribute.String("selfca.serial_number", cert.SerialNumber.Text(16)),
		attribute.String("selfca.subject", issued.Subject().String()),
	)

	if err := issued.Persist(ctx, st, cmd.OutDir, cmd.Name); err != nil {
		return fmt.Errorf("failed to persist client certificate: %w", err)
	}
	telemetry.GetMetrics().ArtifactsWrittenTotal.Add(ctx, 1)

	if cmd.P12Password != "" {
		if err := cmd.writePKCS12(issued); err != nil {
			return err
		}
	}

	registry, release, err := openRegistry(ctx, cmd.Registry, cmd.AWS)
	if err != nil {
		return err
	}
	defer release()

	if err := register(ctx, registry, cert, "Client certificate "+cmd.Name); err != nil {
		return err
	}

	log.Info().
		Str("path", ca.Artifacts(cmd.OutDir, cmd.Name).Certificate).
		Str("subject", issued.Subject().String()).
		Time("expires", cert.NotAfter).
		Msg("Client certificate written")

	return printCertificate(os.Stdout, cert)
}

func (cmd *IssueCmd) issue(ctx context.Context, st pemstore.Store, opts ca.ClientOptions) (*ca.IssuedCertificate, error) {
	if cmd.KMSKeyID == "" {
		root, err := ca.LoadRootFromStore(ctx, st, cmd.CADir, cmd.CAName)
		if err != nil {
			return nil, fmt.Errorf("failed to load root authority: %w", err)
		}
		return ca.Issue(opts, root)
	}

	caCertPEM, err := st.Read(ctx, ca.Artifacts(cmd.CADir, cmd.CAName).Certificate)
	if err != nil {
		return nil, fmt.Errorf("failed to read root certificate: %w", err)
	}

	awsConfig, err := loadAWSConfig(ctx, cmd.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	signer, err := pki.NewKMSSigner(ctx, kms.NewFromConfig(awsConfig), cmd.KMSKeyID, caCertPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS signer: %w", err)
	}

	return ca.IssueWith(opts, signer)
}

func (cmd *IssueCmd) options() (ca.ClientOptions, error) {
	expiry, err := parseExpiry(cmd.Expiry)
	if err != nil {
		return ca.ClientOptions{}, err
	}

	subject, err := cmd.Subject.Resolve()
	if err != nil {
		return ca.ClientOptions{}, err
	}

	serial, err := serialNumber(cmd.RandomSerial)
	if err != nil {
		return ca.ClientOptions{}, err
	}

	hostname := cmd.Hostname
	if hostname == "" {
		hostname, err = os.Hostname()
		if err != nil {
			return ca.ClientOptions{}, fmt.Errorf("failed to resolve hostname: %w", err)
		}
	}

	return ca.ClientOptions{
		ExpiryOn:     expiry,
		Bits:         cmd.Bits,
		Subject:      subject,
		Hostname:     hostname,
		Strict:       cmd.Strict,
		SerialNumber: serial,
	}, nil
}

func (cmd *IssueCmd) writePKCS12(issued *ca.IssuedCertificate) error {
	out := cmd.P12Out
	if out == "" {
		if cmd.Store.Store == "ssm" {
			return fmt.Errorf("--p12-out is required with the ssm store")
		}
		out = filepath.Join(filepath.FromSlash(cmd.OutDir), cmd.Name+ca.PKCS12Ext)
	}

	archive, err := issued.ToPKCS12(cmd.P12Password)
	if err != nil {
		return fmt.Errorf("failed to encode PKCS#12 archive: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", out, err)
	}

	if err := os.WriteFile(out, archive, 0o600); err != nil {
		return fmt.Errorf("failed to write PKCS#12 archive: %w", err)
	}

	log.Info().Str("path", out).Msg("PKCS#12 archive written")
	return nil
}
