package postgres

import "fmt"

// CertificateStoreConfig holds configuration for the PostgreSQL certificate store.
type CertificateStoreConfig struct {
	// Pool configures the connection pool.
	Pool PoolConfig

	// AutoMigrate runs the embedded migrations on startup.
	AutoMigrate bool

	// QueryTimeoutSeconds is the maximum time a query can run before timing out.
	// Default: 10 seconds
	// Set to 0 to use context timeouts only (no additional timeout)
	QueryTimeoutSeconds int32

	// DefaultListLimit caps List when no limit is requested.
	// Default: 100
	DefaultListLimit int
}

// Validate checks that the configuration is valid.
func (c *CertificateStoreConfig) Validate() error {
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	if c.DefaultListLimit < 0 {
		return fmt.Errorf("default list limit must not be negative")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *CertificateStoreConfig) ApplyDefaults() {
	c.Pool.ApplyDefaults()

	if c.QueryTimeoutSeconds == 0 {
		c.QueryTimeoutSeconds = 10 // 10 seconds
	}
	if c.DefaultListLimit == 0 {
		c.DefaultListLimit = 100
	}
}
