package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute names of a document item.
const (
	AttrID        = "id"
	AttrBody      = "body"
	AttrUpdatedAt = "updated_at"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoBackend.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DocumentItem is the DynamoDB representation of a document.
type DocumentItem struct {
	ID        string `dynamodbav:"id"`
	Body      string `dynamodbav:"body"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// DynamoBackend stores one document per item in a DynamoDB table keyed by "id".
// The document body is kept as compact JSON text.
type DynamoBackend struct {
	client     DynamoAPI
	table      string
	documentID string
}

// NewDynamoBackend creates a backend for documentID in table.
func NewDynamoBackend(client DynamoAPI, table, documentID string) *DynamoBackend {
	return &DynamoBackend{
		client:     client,
		table:      table,
		documentID: documentID,
	}
}

// DocumentID returns the id of the item this backend reads and writes.
func (b *DynamoBackend) DocumentID() string {
	return b.documentID
}

// Load fetches the document item with a consistent read.
func (b *DynamoBackend) Load(ctx context.Context) (map[string]any, error) {
	result, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.table),
		Key:            b.key(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get document item: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNoDocument
	}

	var item DocumentItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return decodeDocument([]byte(item.Body))
}

// Save overwrites the document item.
func (b *DynamoBackend) Save(ctx context.Context, doc map[string]any) error {
	body, err := encodeDocument(doc, "")
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(DocumentItem{
		ID:        b.documentID,
		Body:      string(body),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal document item: %w", err)
	}

	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put document item: %w", err)
	}
	return nil
}

func (b *DynamoBackend) key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrID: &types.AttributeValueMemberS{Value: b.documentID},
	}
}

// DecodeBody parses a document body as stored in a DocumentItem.
func DecodeBody(body string) (map[string]any, error) {
	return decodeDocument([]byte(body))
}
