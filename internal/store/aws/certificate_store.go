package aws

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/selfca/internal/store"
)

// SerialIndex is the global secondary index keyed on serial_number.
const SerialIndex = "GSI1"

// DynamoDBAPI is the subset of the DynamoDB client used by CertificateStore.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// CertificateStore is a DynamoDB implementation of store.CertificateStore.
// The table is keyed on fingerprint with GSI1 on serial_number.
type CertificateStore struct {
	client    DynamoDBAPI
	tableName string
	now       func() time.Time
}

var _ store.CertificateStore = (*CertificateStore)(nil)

// NewCertificateStore creates a new DynamoDB certificate store
func NewCertificateStore(client DynamoDBAPI, tableName string) *CertificateStore {
	return &CertificateStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// Get retrieves certificate metadata by fingerprint
func (s *CertificateStore) Get(ctx context.Context, fingerprint string) (*store.CertMetadata, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"fingerprint": &types.AttributeValueMemberS{Value: fingerprint},
		},
	})
	if err != nil {
		return nil, wrapAWSError(err, "failed to get certificate")
	}

	if result.Item == nil {
		return nil, store.ErrCertNotFound
	}

	var cert store.CertMetadata
	if err := attributevalue.UnmarshalMap(result.Item, &cert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certificate: %w", err)
	}

	return &cert, nil
}

// GetBySerial retrieves all certificates with a serial number using GSI1
func (s *CertificateStore) GetBySerial(ctx context.Context, serialNumber string) ([]*store.CertMetadata, error) {
	keyEx := expression.Key("serial_number").Equal(expression.Value(serialNumber))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(SerialIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	certs := []*store.CertMetadata{}
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, wrapAWSError(err, "failed to query certificates by serial")
		}

		certs = append(certs, unmarshalCerts(result.Items)...)

		if len(result.LastEvaluatedKey) == 0 {
			return certs, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

// Register stores certificate metadata
func (s *CertificateStore) Register(ctx context.Context, cert *store.CertMetadata) error {
	if err := cert.Validate(); err != nil {
		return err
	}

	record := *cert
	if record.CertID == "" {
		record.CertID = uuid.Must(uuid.NewV7()).String()
	}

	item, err := attributevalue.MarshalMap(&record)
	if err != nil {
		return fmt.Errorf("failed to marshal certificate: %w", err)
	}

	// Use ConditionExpression to prevent duplicates
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(fingerprint)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return store.ErrCertAlreadyExists
		}
		return wrapAWSError(err, "failed to register certificate")
	}

	log.Debug().
		Str("cert_id", record.CertID).
		Str("serial_number", record.SerialNumber).
		Str("fingerprint", record.Fingerprint).
		Msg("certificate registered")

	return nil
}

// List scans the table, applying the filters server side.
func (s *CertificateStore) List(ctx context.Context, opts store.ListCertificatesOptions) ([]*store.CertMetadata, error) {
	input, err := s.scanInput(opts)
	if err != nil {
		return nil, err
	}

	certs := []*store.CertMetadata{}
	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, wrapAWSError(err, "failed to list certificates")
		}

		certs = append(certs, unmarshalCerts(result.Items)...)

		if opts.Limit > 0 && len(certs) >= opts.Limit {
			return certs[:opts.Limit], nil
		}
		if len(result.LastEvaluatedKey) == 0 {
			return certs, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func (s *CertificateStore) scanInput(opts store.ListCertificatesOptions) (*dynamodb.ScanInput, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	}

	var filters []expression.ConditionBuilder
	if opts.CommonName != "" {
		filters = append(filters, expression.Name("common_name").Equal(expression.Value(opts.CommonName)))
	}
	if !opts.IncludeExpired {
		// expires_at is stored as an RFC 3339 UTC string so it sorts lexically
		now := s.now().UTC().Truncate(time.Second)
		filters = append(filters, expression.Name("expires_at").GreaterThan(expression.Value(now)))
	}

	if len(filters) > 0 {
		filter := filters[0]
		if len(filters) > 1 {
			filter = expression.And(filters[0], filters[1], filters[2:]...)
		}

		expr, err := expression.NewBuilder().WithFilter(filter).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build filter expression: %w", err)
		}

		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	if opts.Limit > 0 {
		input.Limit = aws.Int32(int32(min(opts.Limit, math.MaxInt32))) // #nosec G115 - bounded above
	}

	return input, nil
}

func unmarshalCerts(items []map[string]types.AttributeValue) []*store.CertMetadata {
	certs := make([]*store.CertMetadata, 0, len(items))
	for _, item := range items {
		var cert store.CertMetadata
		if err := attributevalue.UnmarshalMap(item, &cert); err != nil {
			log.Error().Err(err).Msg("failed to unmarshal certificate, skipping")
			continue
		}
		certs = append(certs, &cert)
	}
	return certs
}
