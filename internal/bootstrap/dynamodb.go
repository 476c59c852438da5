// Package bootstrap provisions the backing resources of the certificate registry.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
	awsstore "github.com/wolfeidau/selfca/internal/store/aws"
)

const waitTimeout = 30 * time.Second

// TableAPI is the subset of the DynamoDB client needed to manage the registry table.
type TableAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// CreateRegistryTable creates the certificate registry table keyed on
// fingerprint, with GSI1 on serial_number and TTL on the ttl attribute.
// An existing table is reused unless clean is set, in which case it is
// dropped and created again.
func CreateRegistryTable(ctx context.Context, client TableAPI, tableName string, clean bool) error {
	if clean {
		if err := deleteTableIfExists(ctx, client, tableName); err != nil {
			return err
		}
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("fingerprint"),
				KeyType:       types.KeyTypeHash,
			},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("fingerprint"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("serial_number"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(awsstore.SerialIndex),
				KeySchema: []types.KeySchemaElement{
					{
						AttributeName: aws.String("serial_number"),
						KeyType:       types.KeyTypeHash,
					},
				},
				Projection: &types.Projection{
					ProjectionType: types.ProjectionTypeAll,
				},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	}

	_, err := client.CreateTable(ctx, input)
	if err != nil {
		var resourceInUse *types.ResourceInUseException
		if !clean && errors.As(err, &resourceInUse) {
			log.Debug().Str("table", tableName).Msg("registry table exists, reusing it")
			return nil
		}
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, waitTimeout); err != nil {
		return fmt.Errorf("failed waiting for table %s: %w", tableName, err)
	}

	_, err = client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String("ttl"),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to enable TTL on %s: %w", tableName, err)
	}

	log.Info().Str("table", tableName).Msg("created registry table")
	return nil
}

// DeleteRegistryTable removes the registry table, ignoring a missing one.
func DeleteRegistryTable(ctx context.Context, client TableAPI, tableName string) error {
	if err := deleteTableIfExists(ctx, client, tableName); err != nil {
		return fmt.Errorf("failed to delete registry table: %w", err)
	}
	return nil
}

func deleteTableIfExists(ctx context.Context, client TableAPI, tableName string) error {
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		var resourceNotFound *types.ResourceNotFoundException
		if errors.As(err, &resourceNotFound) {
			return nil
		}
		return err
	}

	// Wait for table deletion to complete
	waiter := dynamodb.NewTableNotExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, waitTimeout)
}
