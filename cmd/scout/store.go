package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/kailas-cloud/scout/internal/config"
	"github.com/kailas-cloud/scout/internal/db"
	dbDynamo "github.com/kailas-cloud/scout/internal/db/dynamo"
	dbMemory "github.com/kailas-cloud/scout/internal/db/memory"
	dbMongo "github.com/kailas-cloud/scout/internal/db/mongodb"
	dbPostgres "github.com/kailas-cloud/scout/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/scout/internal/db/redis"
	"github.com/kailas-cloud/scout/internal/domain/kind"
)

// openStore creates the database store for the configured driver.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return dbMemory.New(), nil
	case config.DriverRedis, config.DriverValkey:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:     cfg.Addrs,
			Password:  cfg.Password,
			KeyPrefix: cfg.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return s, nil
	case config.DriverMongo:
		s, err := dbMongo.NewStore(ctx, dbMongo.Config{
			URI:      cfg.URI,
			Database: cfg.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		return s, nil
	case config.DriverPostgres:
		s, err := dbPostgres.NewStore(dbPostgres.Config{
			DSN:          cfg.DSN,
			Table:        cfg.Table,
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	case config.DriverDynamoDB:
		s, err := dbDynamo.NewStore(ctx, dbDynamo.Config{
			Region:   cfg.Region,
			Table:    cfg.Table,
			Endpoint: cfg.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("open dynamodb store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// schemaFor lists the indexed attributes of a kind. Privileged flags are
// indexed alongside public ones since every query filters on them.
func schemaFor(k kind.Kind) *db.Schema {
	tags := make([]string, 0, len(k.Categorical))
	for attr := range k.Categorical {
		tags = append(tags, attr)
	}
	sort.Strings(tags)

	flags := make([]string, 0, len(k.Flags)+len(k.PrivilegedFlags))
	flags = append(flags, k.Flags...)
	flags = append(flags, k.PrivilegedFlags...)

	return &db.Schema{
		Kind:     k.Name,
		Tags:     tags,
		Numerics: k.Numerics,
		Flags:    flags,
		Sets:     k.Sets,
	}
}
