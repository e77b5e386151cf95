package dynamo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/edgeflare/inventory/pkg/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTable mimics the parts of DynamoDB the store relies on: string keys,
// condition failures for missing items and Limit based scan pages.
type fakeTable struct {
	items   map[string]map[string]types.AttributeValue
	scans   []*dynamodb.ScanInput
	failPut error
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: map[string]map[string]types.AttributeValue{}}
}

func idOf(m map[string]types.AttributeValue) string {
	if v, ok := m[keyAttribute].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	f.items[idOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[idOf(in.Key)]}, nil
}

func (f *fakeTable) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scans = append(f.scans, in)

	ids := make([]string, 0, len(f.items))
	for id := range f.items {
		if in.ExclusiveStartKey == nil || id > idOf(in.ExclusiveStartKey) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	out := &dynamodb.ScanOutput{}
	for _, id := range ids {
		if in.Limit != nil && int32(len(out.Items)) == *in.Limit {
			out.LastEvaluatedKey = key(idOf(out.Items[len(out.Items)-1]))
			break
		}
		out.Items = append(out.Items, f.items[id])
	}
	return out, nil
}

func (f *fakeTable) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	id := idOf(in.Key)
	if _, ok := f.items[id]; !ok && in.ConditionExpression != nil {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	delete(f.items, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeTable) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	id := idOf(in.Key)
	item, ok := f.items[id]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	item["name"] = in.ExpressionAttributeValues[":n"]
	return &dynamodb.UpdateItemOutput{Attributes: item}, nil
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Put and Get", func(t *testing.T) {
		s := New(newFakeTable(), "inventory")
		require.NoError(t, s.Put(ctx, device.Device{DeviceID: "a", Name: "sensor"}))

		d, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, device.Device{DeviceID: "a", Name: "sensor"}, d)

		_, err = s.Get(ctx, "missing")
		assert.ErrorIs(t, err, device.ErrNotFound)
	})

	t.Run("Put failure is wrapped", func(t *testing.T) {
		table := newFakeTable()
		table.failPut = errors.New("ResourceNotFoundException")
		err := New(table, "inventory").Put(ctx, device.Device{DeviceID: "a"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ResourceNotFoundException")
	})

	t.Run("Delete maps condition failure", func(t *testing.T) {
		s := New(newFakeTable(), "inventory")
		require.NoError(t, s.Put(ctx, device.Device{DeviceID: "a"}))

		require.NoError(t, s.Delete(ctx, "a"))
		assert.ErrorIs(t, s.Delete(ctx, "a"), device.ErrConditionFailed)
		assert.NoError(t, s.Remove(ctx, "a"))
	})

	t.Run("UpdateName returns new state", func(t *testing.T) {
		s := New(newFakeTable(), "inventory")
		require.NoError(t, s.Put(ctx, device.Device{DeviceID: "a", Name: "old"}))

		d, err := s.UpdateName(ctx, "a", "new")
		require.NoError(t, err)
		assert.Equal(t, device.Device{DeviceID: "a", Name: "new"}, d)

		_, err = s.UpdateName(ctx, "b", "new")
		assert.ErrorIs(t, err, device.ErrConditionFailed)
	})

	t.Run("ListAll follows LastEvaluatedKey", func(t *testing.T) {
		table := newFakeTable()
		s := New(table, "inventory")
		for i := range 7 {
			require.NoError(t, s.Put(ctx, device.Device{DeviceID: fmt.Sprintf("id-%d", i), Name: "n"}))
		}

		devices, err := device.ListAll(ctx, s, 3)
		require.NoError(t, err)
		assert.Len(t, devices, 7)
		require.Len(t, table.scans, 3)
		assert.Nil(t, table.scans[0].ExclusiveStartKey)
		assert.Equal(t, "id-2", idOf(table.scans[1].ExclusiveStartKey))
		assert.Equal(t, "id-5", idOf(table.scans[2].ExclusiveStartKey))
	})
}
