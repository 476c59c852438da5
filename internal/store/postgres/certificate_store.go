package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/selfca/internal/store"
)

const certificateColumns = `
	cert_id, fingerprint, serial_number, common_name,
	subject_dn, issuer_dn, is_ca, self_signed,
	issued_at, expires_at, description
`

// CertificateStore implements store.CertificateStore using PostgreSQL.
type CertificateStore struct {
	pool *pgxpool.Pool
	cfg  *CertificateStoreConfig
	now  func() time.Time
}

var _ store.CertificateStore = (*CertificateStore)(nil)

// NewCertificateStore connects to PostgreSQL and, when AutoMigrate is set,
// applies the embedded migrations.
func NewCertificateStore(ctx context.Context, cfg *CertificateStoreConfig) (*CertificateStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pool, err := NewPool(ctx, &cfg.Pool)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int32("max_conns", cfg.Pool.MaxConns).
		Bool("auto_migrate", cfg.AutoMigrate).
		Msg("Connected to PostgreSQL")

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return NewCertificateStoreWithPool(pool, cfg), nil
}

// NewCertificateStoreWithPool creates a certificate store sharing an existing pool.
func NewCertificateStoreWithPool(pool *pgxpool.Pool, cfg *CertificateStoreConfig) *CertificateStore {
	if cfg == nil {
		cfg = &CertificateStoreConfig{}
	}
	cfg.ApplyDefaults()

	return &CertificateStore{
		pool: pool,
		cfg:  cfg,
		now:  time.Now,
	}
}

// Close releases the connection pool.
func (s *CertificateStore) Close() {
	s.pool.Close()
}

// Register inserts certificate metadata.
func (s *CertificateStore) Register(ctx context.Context, cert *store.CertMetadata) error {
	if err := cert.Validate(); err != nil {
		return err
	}

	certID := uuid.Must(uuid.NewV7())
	if cert.CertID != "" {
		parsed, err := uuid.Parse(cert.CertID)
		if err != nil {
			return fmt.Errorf("%w: cert id: %w", store.ErrInvalidMetadata, err)
		}
		certID = parsed
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO certificates (` + certificateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		certID,
		cert.Fingerprint,
		cert.SerialNumber,
		cert.CommonName,
		cert.SubjectDN,
		cert.IssuerDN,
		cert.IsCA,
		cert.SelfSigned,
		cert.IssuedAt,
		cert.ExpiresAt,
		cert.Description,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Str("cert_id", certID.String()).
		Str("serial_number", cert.SerialNumber).
		Str("fingerprint", cert.Fingerprint).
		Msg("Registered certificate")

	return nil
}

// Get retrieves a certificate by fingerprint.
func (s *CertificateStore) Get(ctx context.Context, fingerprint string) (*store.CertMetadata, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE fingerprint = $1`

	cert, err := scanCertificate(s.pool.QueryRow(ctx, query, fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCertNotFound
		}
		return nil, fmt.Errorf("failed to get certificate: %w", mapPostgresError(err))
	}

	return cert, nil
}

// GetBySerial retrieves every certificate with a serial number.
func (s *CertificateStore) GetBySerial(ctx context.Context, serialNumber string) ([]*store.CertMetadata, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + certificateColumns + `
		FROM certificates
		WHERE serial_number = $1
		ORDER BY issued_at, fingerprint
	`

	return s.queryCertificates(ctx, query, serialNumber)
}

// List returns certificates ordered by issue time.
func (s *CertificateStore) List(ctx context.Context, opts store.ListCertificatesOptions) ([]*store.CertMetadata, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultListLimit
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + certificateColumns + `
		FROM certificates
		WHERE ($1::text = '' OR common_name = $1)
		  AND ($2::boolean OR expires_at > $3)
		ORDER BY issued_at, fingerprint
		LIMIT $4
	`

	return s.queryCertificates(ctx, query, opts.CommonName, opts.IncludeExpired, s.now(), limit)
}

func (s *CertificateStore) queryCertificates(ctx context.Context, query string, args ...any) ([]*store.CertMetadata, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query certificates: %w", mapPostgresError(err))
	}
	defer rows.Close()

	certs := []*store.CertMetadata{}
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read certificates: %w", mapPostgresError(err))
	}

	return certs, nil
}

func scanCertificate(row pgx.Row) (*store.CertMetadata, error) {
	var (
		cert   store.CertMetadata
		certID uuid.UUID
	)

	err := row.Scan(
		&certID,
		&cert.Fingerprint,
		&cert.SerialNumber,
		&cert.CommonName,
		&cert.SubjectDN,
		&cert.IssuerDN,
		&cert.IsCA,
		&cert.SelfSigned,
		&cert.IssuedAt,
		&cert.ExpiresAt,
		&cert.Description,
	)
	if err != nil {
		return nil, err
	}

	cert.CertID = certID.String()
	cert.IssuedAt = cert.IssuedAt.UTC()
	cert.ExpiresAt = cert.ExpiresAt.UTC()
	cert.TTL = cert.ExpiresAt.Add(30 * 24 * time.Hour).Unix()

	return &cert, nil
}

func (s *CertificateStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeoutSeconds <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(s.cfg.QueryTimeoutSeconds)*time.Second)
}
