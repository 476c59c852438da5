package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/selfca/internal/store"
)

// CertificateStore is an in-memory implementation of CertificateStore for development and testing
type CertificateStore struct {
	mu            sync.RWMutex
	certs         map[string]*store.CertMetadata   // indexed by fingerprint
	certsBySerial map[string][]*store.CertMetadata // indexed by serial number
	now           func() time.Time
}

var _ store.CertificateStore = (*CertificateStore)(nil)

// NewCertificateStore creates a new in-memory certificate store
func NewCertificateStore() *CertificateStore {
	return &CertificateStore{
		certs:         make(map[string]*store.CertMetadata),
		certsBySerial: make(map[string][]*store.CertMetadata),
		now:           time.Now,
	}
}

// Get retrieves certificate metadata by fingerprint
func (s *CertificateStore) Get(ctx context.Context, fingerprint string) (*store.CertMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cert, exists := s.certs[fingerprint]
	if !exists {
		return nil, store.ErrCertNotFound
	}

	// Return a copy to avoid external modifications
	return copyCert(cert), nil
}

// GetBySerial retrieves all certificates with a serial number
func (s *CertificateStore) GetBySerial(ctx context.Context, serialNumber string) ([]*store.CertMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	certs := s.certsBySerial[serialNumber]

	result := make([]*store.CertMetadata, len(certs))
	for i, cert := range certs {
		result[i] = copyCert(cert)
	}

	return result, nil
}

// Register stores certificate metadata
func (s *CertificateStore) Register(ctx context.Context, cert *store.CertMetadata) error {
	if err := cert.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.certs[cert.Fingerprint]; exists {
		return store.ErrCertAlreadyExists
	}

	stored := copyCert(cert)
	if stored.CertID == "" {
		stored.CertID = uuid.Must(uuid.NewV7()).String()
	}

	s.certs[cert.Fingerprint] = stored
	s.certsBySerial[cert.SerialNumber] = append(s.certsBySerial[cert.SerialNumber], stored)

	return nil
}

// List returns registered certificates ordered by issue time
func (s *CertificateStore) List(ctx context.Context, opts store.ListCertificatesOptions) ([]*store.CertMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()

	all := make([]*store.CertMetadata, 0, len(s.certs))
	for _, cert := range s.certs {
		all = append(all, cert)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].IssuedAt.Equal(all[j].IssuedAt) {
			return all[i].Fingerprint < all[j].Fingerprint
		}
		return all[i].IssuedAt.Before(all[j].IssuedAt)
	})

	result := []*store.CertMetadata{}
	for _, cert := range all {
		if opts.CommonName != "" && cert.CommonName != opts.CommonName {
			continue
		}

		// Skip expired certs if not requested
		if cert.Expired(now) && !opts.IncludeExpired {
			continue
		}

		result = append(result, copyCert(cert))

		// Apply limit
		if opts.Limit > 0 && len(result) >= opts.Limit {
			break
		}
	}

	return result, nil
}

func copyCert(cert *store.CertMetadata) *store.CertMetadata {
	c := *cert
	return &c
}
