package commands

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/selfca/internal/bootstrap"
	"github.com/wolfeidau/selfca/internal/store/postgres"
)

// SetupCmd provisions the registry backend: the DynamoDB table or the PostgreSQL schema
type SetupCmd struct {
	Clean bool `help:"drop and recreate an existing registry table (dynamodb only)" default:"false" xor:"teardown"`
	Drop  bool `help:"delete the registry table instead of creating it (dynamodb only)" default:"false" xor:"teardown"`

	AWS      AWSFlags      `embed:""`
	Registry RegistryFlags `embed:""`
}

// newTableClient is replaced in tests.
var newTableClient = func(cfg aws.Config) bootstrap.TableAPI {
	return dynamodb.NewFromConfig(cfg)
}

// Run executes the setup command
func (cmd *SetupCmd) Run(ctx context.Context, globals *Globals) error {
	if cmd.Clean && cmd.Drop {
		return fmt.Errorf("--clean and --drop cannot be combined")
	}

	switch cmd.Registry.Registry {
	case "dynamodb":
		awsConfig, err := loadAWSConfig(ctx, cmd.AWS)
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := newTableClient(awsConfig)

		if cmd.Drop {
			if err := bootstrap.DeleteRegistryTable(ctx, client, cmd.Registry.RegistryTable); err != nil {
				return err
			}
			log.Info().Str("table", cmd.Registry.RegistryTable).Msg("Registry table deleted")
			return nil
		}
		return bootstrap.CreateRegistryTable(ctx, client, cmd.Registry.RegistryTable, cmd.Clean)
	case "postgres":
		if cmd.Clean || cmd.Drop {
			return fmt.Errorf("--clean and --drop apply to the dynamodb registry, drop postgres tables with your own tooling")
		}

		poolConfig := cmd.Registry.poolConfig()
		pool, err := postgres.NewPool(ctx, &poolConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		log.Info().Msg("Registry schema is up to date")
		return nil
	default:
		return fmt.Errorf("registry %q needs no setup, use dynamodb or postgres", cmd.Registry.Registry)
	}
}
