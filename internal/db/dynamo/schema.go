package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kailas-cloud/scout/internal/db"
)

// EnsureSchema creates the shared table on first use. Attributes are
// schemaless, so every kind maps onto the same key layout.
func (s *Store) EnsureSchema(ctx context.Context, schema *db.Schema) error {
	if schema == nil || schema.Kind == "" {
		return fmt.Errorf("%w: schema kind is required", db.ErrInvalidQuery)
	}
	_, err := s.client.CreateTable(ctx, createTableInput(s.table))
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return &db.Error{Op: db.OpCreateTable, Err: err}
	}
	return nil
}

func createTableInput(table string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrKind), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrID), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrKind), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrID), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}
