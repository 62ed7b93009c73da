package mongodb

import "go.mongodb.org/mongo-driver/mongo"

// NewStoreForTest creates a Store on an existing client (test-only).
func NewStoreForTest(c *mongo.Client, database string) *Store {
	return newStore(c, database, DefaultCollectionPrefix)
}
