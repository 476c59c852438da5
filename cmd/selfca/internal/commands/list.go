package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/wolfeidau/selfca/internal/store"
)

// ListCmd lists certificates recorded in the registry
type ListCmd struct {
	CommonName     string `help:"only certificates with this common name"`
	IncludeExpired bool   `help:"include expired certificates" default:"false"`
	Limit          int    `help:"maximum number of certificates to list" default:"50"`

	AWS      AWSFlags      `embed:""`
	Registry RegistryFlags `embed:""`
}

// Run executes the list command
func (l *ListCmd) Run(ctx context.Context, globals *Globals) error {
	registry, release, err := openRegistry(ctx, l.Registry, l.AWS)
	if err != nil {
		return err
	}
	defer release()

	if registry == nil {
		return errors.New("no registry configured, set --registry")
	}

	certs, err := registry.List(ctx, store.ListCertificatesOptions{
		CommonName:     l.CommonName,
		IncludeExpired: l.IncludeExpired,
		Limit:          l.Limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list certificates: %w", err)
	}

	return l.printCerts(os.Stdout, certs)
}

func (l *ListCmd) printCerts(w io.Writer, certs []*store.CertMetadata) error {
	if len(certs) == 0 {
		_, err := fmt.Fprintln(w, "No certificates found.")
		return err
	}

	// Print header
	fmt.Fprintf(w, "%-44s %-34s %-24s %-4s %-20s\n",
		"Fingerprint", "Serial", "Common Name", "CA", "Expires At")
	fmt.Fprintln(w, strings.Repeat("─", 130))

	for _, cert := range certs {
		fmt.Fprintf(w, "%-44s %-34s %-24s %-4t %-20s\n",
			cert.Fingerprint,
			truncate(cert.SerialNumber, 34),
			truncate(cert.CommonName, 24),
			cert.IsCA,
			cert.ExpiresAt.UTC().Format(time.DateTime),
		)
	}

	_, err := fmt.Fprintf(w, "\n%d certificate(s)\n", len(certs))
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
