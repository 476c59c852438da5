package commands

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/selfca/internal/logger"
	"github.com/wolfeidau/selfca/internal/pemstore"
	"github.com/wolfeidau/selfca/internal/pki"
	"github.com/wolfeidau/selfca/internal/store"
	awsstore "github.com/wolfeidau/selfca/internal/store/aws"
	"github.com/wolfeidau/selfca/internal/store/memory"
	"github.com/wolfeidau/selfca/internal/store/postgres"
	"github.com/wolfeidau/selfca/internal/telemetry"
)

type Globals struct {
	Debug   bool
	Metrics bool
	Version string
}

// Setup configures the global logger and, when enabled, the OTLP exporters.
func (g *Globals) Setup(ctx context.Context) (telemetry.ShutdownFunc, error) {
	log.Logger = logger.Setup(g.Debug)

	if !g.Metrics {
		return func(context.Context) error { return nil }, nil
	}

	return telemetry.InitTelemetry(ctx, telemetry.Config{
		ServiceName: "selfca",
		Version:     g.Version,
		Traces:      true,
	})
}

// StoreFlags selects where PEM artifacts are read and written.
type StoreFlags struct {
	Store     string `help:"artifact store (file, ssm)" default:"file" enum:"file,ssm" env:"SELFCA_STORE"`
	SSMPrefix string `help:"SSM parameter prefix for the ssm store" default:"/selfca" env:"SELFCA_SSM_PREFIX"`
}

// AWSFlags configure the AWS SDK for the ssm store, the dynamodb registry and KMS signing.
type AWSFlags struct {
	AWSRegion   string `help:"AWS region" env:"AWS_REGION"`
	AWSEndpoint string `help:"AWS endpoint (for LocalStack)" env:"AWS_ENDPOINT" default:""`
	LocalStack  bool   `help:"use LocalStack with static test credentials" env:"SELFCA_LOCALSTACK"`
}

const localStackEndpoint = "http://localhost:4566"

// RegistryFlags select the certificate registry issued certificates are recorded in.
type RegistryFlags struct {
	Registry        string        `help:"certificate registry (none, memory, dynamodb, postgres)" default:"none" enum:"none,memory,dynamodb,postgres" env:"SELFCA_REGISTRY"`
	RegistryTable   string        `help:"DynamoDB table for the dynamodb registry" default:"selfca_certificates" env:"SELFCA_REGISTRY_TABLE"`
	PostgresURL     string        `help:"PostgreSQL connection string for the postgres registry" env:"SELFCA_POSTGRES_URL"`
	PostgresTimeout time.Duration `help:"timeout for connecting to PostgreSQL" default:"5s" env:"SELFCA_POSTGRES_TIMEOUT"`
	Migrate         bool          `help:"run registry migrations before use" default:"true" negatable:"" env:"SELFCA_MIGRATE"`
}

func (f RegistryFlags) poolConfig() postgres.PoolConfig {
	return postgres.PoolConfig{
		ConnString:     f.PostgresURL,
		ConnectTimeout: f.PostgresTimeout,
	}
}

func loadAWSConfig(ctx context.Context, flags AWSFlags) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if flags.AWSRegion != "" {
		opts = append(opts, config.WithRegion(flags.AWSRegion))
	}

	if flags.LocalStack {
		if flags.AWSRegion == "" {
			opts = append(opts, config.WithRegion("us-east-1"))
		}
		if flags.AWSEndpoint == "" {
			flags.AWSEndpoint = localStackEndpoint
		}
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")))
	}

	if flags.AWSEndpoint != "" {
		// Use BaseEndpoint for LocalStack support
		opts = append(opts, config.WithBaseEndpoint(flags.AWSEndpoint))
	}

	return config.LoadDefaultConfig(ctx, opts...)
}

func openStore(ctx context.Context, flags StoreFlags, awsFlags AWSFlags) (pemstore.Store, error) {
	switch flags.Store {
	case "", "file":
		return pemstore.NewFileStore(""), nil
	case "ssm":
		awsConfig, err := loadAWSConfig(ctx, awsFlags)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return pemstore.NewSSMStore(ssm.NewFromConfig(awsConfig), pemstore.SSMStoreConfig{
			Prefix: flags.SSMPrefix,
		}), nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", flags.Store)
	}
}

// openRegistry returns the configured registry, nil when disabled, and a
// release function that is always safe to call. Tests replace it.
var openRegistry = func(ctx context.Context, flags RegistryFlags, awsFlags AWSFlags) (store.CertificateStore, func(), error) {
	noop := func() {}

	switch flags.Registry {
	case "", "none":
		return nil, noop, nil
	case "memory":
		return memory.NewCertificateStore(), noop, nil
	case "dynamodb":
		awsConfig, err := loadAWSConfig(ctx, awsFlags)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return awsstore.NewCertificateStore(dynamodb.NewFromConfig(awsConfig), flags.RegistryTable), noop, nil
	case "postgres":
		certStore, err := postgres.NewCertificateStore(ctx, &postgres.CertificateStoreConfig{
			Pool:        flags.poolConfig(),
			AutoMigrate: flags.Migrate,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open postgres registry: %w", err)
		}
		return certStore, certStore.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown registry type: %s", flags.Registry)
	}
}

// register records cert in the registry. Re-registering a known certificate is not an error.
func register(ctx context.Context, registry store.CertificateStore, cert *x509.Certificate, description string) error {
	if registry == nil {
		return nil
	}

	metrics := telemetry.GetMetrics()

	certMeta := store.NewCertMetadataFromX509(cert)
	certMeta.Description = description

	err := registry.Register(ctx, certMeta)
	switch {
	case errors.Is(err, store.ErrCertAlreadyExists):
		log.Info().
			Str("fingerprint", certMeta.Fingerprint).
			Msg("Certificate already registered")
		return nil
	case err != nil:
		metrics.RegistryErrorsTotal.Add(ctx, 1)
		return fmt.Errorf("failed to register certificate: %w", err)
	}

	metrics.CertificatesRegisteredTotal.Add(ctx, 1)
	log.Info().
		Str("fingerprint", certMeta.Fingerprint).
		Str("serial_number", certMeta.SerialNumber).
		Msg("Registered certificate")

	return nil
}

// parseExpiry accepts a date (2006-01-02) or an RFC 3339 timestamp. Empty means the default window.
func parseExpiry(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t.UTC(), nil
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry %q, want YYYY-MM-DD or RFC 3339", value)
	}

	return t.UTC(), nil
}

func serialNumber(random bool) (*big.Int, error) {
	if !random {
		return nil, nil
	}
	return pki.RandomSerialNumber()
}
