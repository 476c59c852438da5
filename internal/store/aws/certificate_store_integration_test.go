//go:build integration

package aws_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/selfca/internal/bootstrap"
	"github.com/wolfeidau/selfca/internal/ca"
	"github.com/wolfeidau/selfca/internal/store"
	awsstore "github.com/wolfeidau/selfca/internal/store/aws"
)

const (
	testDynamoDBEndpoint = "http://localhost:4566"
	testDynamoDBRegion   = "us-east-1"
)

// getDynamoDBClient creates a DynamoDB client for testing with LocalStack
func getDynamoDBClient(t *testing.T, ctx context.Context) *dynamodb.Client {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(testDynamoDBRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")),
	)
	require.NoError(t, err)

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(testDynamoDBEndpoint)
	})
}

func TestCertificateStore_Integration(t *testing.T) {
	ctx := context.Background()
	client := getDynamoDBClient(t, ctx)

	tableName := fmt.Sprintf("selfca_certificates_%d", time.Now().UnixNano())
	require.NoError(t, bootstrap.CreateRegistryTable(ctx, client, tableName, true))
	t.Cleanup(func() {
		_ = bootstrap.DeleteRegistryTable(context.Background(), client, tableName)
	})

	certStore := awsstore.NewCertificateStore(client, tableName)

	root, err := ca.GenerateRoot(ca.RootOptions{Bits: 2048})
	require.NoError(t, err)

	issued, err := ca.Issue(ca.ClientOptions{Bits: 2048, Hostname: "build-host"}, root)
	require.NoError(t, err)

	rootMeta := store.NewCertMetadataFromX509(root.Certificate())
	clientMeta := store.NewCertMetadataFromX509(issued.Certificate())

	t.Run("register and get", func(t *testing.T) {
		require.NoError(t, certStore.Register(ctx, rootMeta))
		require.NoError(t, certStore.Register(ctx, clientMeta))

		got, err := certStore.Get(ctx, rootMeta.Fingerprint)
		require.NoError(t, err)
		assert.Equal(t, rootMeta.SubjectDN, got.SubjectDN)
		assert.True(t, got.IsCA)
	})

	t.Run("duplicate", func(t *testing.T) {
		err := certStore.Register(ctx, rootMeta)
		require.ErrorIs(t, err, store.ErrCertAlreadyExists)
	})

	t.Run("shared serial", func(t *testing.T) {
		certs, err := certStore.GetBySerial(ctx, "1")
		require.NoError(t, err)
		assert.Len(t, certs, 2)
	})

	t.Run("list by common name", func(t *testing.T) {
		certs, err := certStore.List(ctx, store.ListCertificatesOptions{CommonName: "build-host"})
		require.NoError(t, err)
		require.Len(t, certs, 1)
		assert.Equal(t, clientMeta.Fingerprint, certs[0].Fingerprint)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := certStore.Get(ctx, "does-not-exist")
		require.ErrorIs(t, err, store.ErrCertNotFound)
	})
}
