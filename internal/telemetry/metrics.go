package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/selfca"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Issuance metrics
	CertificatesIssuedTotal metric.Int64Counter
	IssueErrorsTotal        metric.Int64Counter
	IssueDuration           metric.Float64Histogram

	// Persistence metrics
	ArtifactsWrittenTotal       metric.Int64Counter
	CertificatesRegisteredTotal metric.Int64Counter
	RegistryErrorsTotal         metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.CertificatesIssuedTotal, _ = meter.Int64Counter(
		"selfca.certificates.issued.total",
		metric.WithDescription("Total number of certificates issued"),
		metric.WithUnit("{certificate}"),
	)

	m.IssueErrorsTotal, _ = meter.Int64Counter(
		"selfca.certificates.issue.errors.total",
		metric.WithDescription("Total number of failed issuance attempts"),
		metric.WithUnit("{error}"),
	)

	m.IssueDuration, _ = meter.Float64Histogram(
		"selfca.certificates.issue.duration",
		metric.WithDescription("Duration of issuance including key generation"),
		metric.WithUnit("ms"),
	)

	m.ArtifactsWrittenTotal, _ = meter.Int64Counter(
		"selfca.artifacts.written.total",
		metric.WithDescription("Total number of certificate bundles persisted"),
		metric.WithUnit("{bundle}"),
	)

	m.CertificatesRegisteredTotal, _ = meter.Int64Counter(
		"selfca.registry.registered.total",
		metric.WithDescription("Total number of certificates recorded in the registry"),
		metric.WithUnit("{certificate}"),
	)

	m.RegistryErrorsTotal, _ = meter.Int64Counter(
		"selfca.registry.errors.total",
		metric.WithDescription("Total number of registry failures"),
		metric.WithUnit("{error}"),
	)

	return m
}

// RecordIssue records the outcome of one issuance. kind is "root" or "client".
func (m *Metrics) RecordIssue(ctx context.Context, kind, profile string, started time.Time, err error) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("profile", profile),
	)

	m.IssueDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

	if err != nil {
		m.IssueErrorsTotal.Add(ctx, 1, attrs)
		return
	}
	m.CertificatesIssuedTotal.Add(ctx, 1, attrs)
}
