// Package dynamo implements device.Store on top of a DynamoDB table whose
// partition key is the string attribute "deviceId".
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/edgeflare/inventory/pkg/device"
)

const keyAttribute = "deviceId"

// API is the subset of *dynamodb.Client used by Store.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// ClientOptions configures NewClient. Endpoint overrides the resolved service
// endpoint, e.g. http://localhost:8000 for DynamoDB Local.
type ClientOptions struct {
	Region   string
	Endpoint string
}

// NewClient loads the default AWS configuration chain and builds a DynamoDB client.
func NewClient(ctx context.Context, opts ClientOptions) (*dynamodb.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

// Store is a device.Store backed by one DynamoDB table.
type Store struct {
	client API
	table  string
}

// New returns a Store for table using client.
func New(client API, table string) *Store {
	return &Store{client: client, table: table}
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		keyAttribute: &types.AttributeValueMemberS{Value: id},
	}
}

// Put writes the item unconditionally.
func (s *Store) Put(ctx context.Context, d device.Device) error {
	item, err := attributevalue.MarshalMap(d)
	if err != nil {
		return fmt.Errorf("failed to marshal device: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put device: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (device.Device, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       key(id),
	})
	if err != nil {
		return device.Device{}, fmt.Errorf("failed to get device: %w", err)
	}
	if len(out.Item) == 0 {
		return device.Device{}, device.ErrNotFound
	}

	var d device.Device
	if err := attributevalue.UnmarshalMap(out.Item, &d); err != nil {
		return device.Device{}, fmt.Errorf("failed to unmarshal device: %w", err)
	}
	return d, nil
}

// Scan reads one page. The cursor is the deviceId of the last evaluated key.
func (s *Store) Scan(ctx context.Context, cursor string, limit int) (device.Page, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(s.table),
	}
	if cursor != "" {
		input.ExclusiveStartKey = key(cursor)
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	out, err := s.client.Scan(ctx, input)
	if err != nil {
		return device.Page{}, fmt.Errorf("failed to scan table: %w", err)
	}

	page := device.Page{Items: []device.Device{}}
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &page.Items); err != nil {
		return device.Page{}, fmt.Errorf("failed to unmarshal table: %w", err)
	}

	if out.LastEvaluatedKey != nil {
		var last struct {
			DeviceID string `dynamodbav:"deviceId"`
		}
		if err := attributevalue.UnmarshalMap(out.LastEvaluatedKey, &last); err != nil {
			return device.Page{}, fmt.Errorf("failed to unmarshal last evaluated key: %w", err)
		}
		page.Next = last.DeviceID
	}
	return page, nil
}

// Delete removes the item with the condition "#id = :id", which fails when
// the item does not exist.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 key(id),
		ConditionExpression: aws.String("#id = :id"),
		ExpressionAttributeNames: map[string]string{
			"#id": keyAttribute,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return conditionError("delete", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       key(id),
	})
	if err != nil {
		return fmt.Errorf("failed to remove device: %w", err)
	}
	return nil
}

func (s *Store) UpdateName(ctx context.Context, id, name string) (device.Device, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 key(id),
		UpdateExpression:    aws.String("set #n = :n"),
		ConditionExpression: aws.String("#id = :id"),
		ExpressionAttributeNames: map[string]string{
			"#n":  "name",
			"#id": keyAttribute,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n":  &types.AttributeValueMemberS{Value: name},
			":id": &types.AttributeValueMemberS{Value: id},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return device.Device{}, conditionError("update", err)
	}

	var d device.Device
	if err := attributevalue.UnmarshalMap(out.Attributes, &d); err != nil {
		return device.Device{}, fmt.Errorf("failed to unmarshal device: %w", err)
	}
	return d, nil
}

func conditionError(op string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("failed to %s device: %w", op, device.ErrConditionFailed)
	}
	return fmt.Errorf("failed to %s device: %w", op, err)
}
