package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/kailas-cloud/scout/internal/db"
)

var _ db.Store = (*Store)(nil)

// DefaultCollectionPrefix is prepended to the kind to name its collection.
const DefaultCollectionPrefix = "candidates_"

// Config holds connection parameters for a MongoDB store.
type Config struct {
	URI              string
	Database         string
	CollectionPrefix string
}

// Store implements db.Store on MongoDB. One collection per kind.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	prefix string
}

// NewStore connects to MongoDB.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("uri is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return newStore(client, cfg.Database, cfg.CollectionPrefix), nil
}

func newStore(client *mongo.Client, database, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultCollectionPrefix
	}
	return &Store{client: client, db: client.Database(database), prefix: prefix}
}

// Ping checks connectivity against the primary.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.client.Disconnect(ctx)
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

func (s *Store) collection(kind string) *mongo.Collection {
	return s.db.Collection(s.prefix + kind)
}
