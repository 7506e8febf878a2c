package ddb

import (
	"context"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDDB is an in-memory single-table DynamoDB keyed by one hash attribute.
type fakeDDB struct {
	mu       sync.Mutex
	key      string
	items    map[string]item
	pageSize int
	// throttle makes the next BatchWriteItem calls leave one request
	// unprocessed.
	throttle   int
	batchCalls int
	created    *sdk.CreateTableInput
	exists     bool
}

func newFake(key string) *fakeDDB {
	return &fakeDDB{key: key, items: map[string]item{}, pageSize: 2, exists: true}
}

func (f *fakeDDB) id(it item) string { return attrString(it[f.key]) }

func (f *fakeDDB) PutItem(_ context.Context, in *sdk.PutItemInput, _ ...func(*sdk.Options)) (*sdk.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id(in.Item)
	if _, ok := f.items[id]; ok && in.ConditionExpression != nil {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	f.items[id] = in.Item
	return &sdk.PutItemOutput{}, nil
}

func (f *fakeDDB) GetItem(_ context.Context, in *sdk.GetItemInput, _ ...func(*sdk.Options)) (*sdk.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &sdk.GetItemOutput{Item: f.items[f.id(in.Key)]}, nil
}

func (f *fakeDDB) DeleteItem(_ context.Context, in *sdk.DeleteItemInput, _ ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, f.id(in.Key))
	return &sdk.DeleteItemOutput{}, nil
}

// Scan pages through items in reverse key order so callers cannot rely on
// scan order.
func (f *fakeDDB) Scan(_ context.Context, in *sdk.ScanInput, _ ...func(*sdk.Options)) (*sdk.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.items))
	for id := range f.items {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	start := 0
	if in.ExclusiveStartKey != nil {
		last := f.id(in.ExclusiveStartKey)
		for i, id := range ids {
			if id == last {
				start = i + 1
				break
			}
		}
	}
	end := start + f.pageSize
	if end > len(ids) {
		end = len(ids)
	}
	out := &sdk.ScanOutput{}
	for _, id := range ids[start:end] {
		out.Items = append(out.Items, f.items[id])
	}
	if end < len(ids) {
		out.LastEvaluatedKey = item{f.key: f.items[ids[end-1]][f.key]}
	}
	return out, nil
}

func (f *fakeDDB) BatchWriteItem(_ context.Context, in *sdk.BatchWriteItemInput, _ ...func(*sdk.Options)) (*sdk.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	out := &sdk.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, reqs := range in.RequestItems {
		for i, req := range reqs {
			if f.throttle > 0 && i == len(reqs)-1 {
				f.throttle--
				out.UnprocessedItems[table] = append(out.UnprocessedItems[table], req)
				continue
			}
			if req.DeleteRequest != nil {
				delete(f.items, f.id(req.DeleteRequest.Key))
			}
			if req.PutRequest != nil {
				f.items[f.id(req.PutRequest.Item)] = req.PutRequest.Item
			}
		}
	}
	return out, nil
}

func (f *fakeDDB) DescribeTable(_ context.Context, in *sdk.DescribeTableInput, _ ...func(*sdk.Options)) (*sdk.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	}
	return &sdk.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (f *fakeDDB) CreateTable(_ context.Context, in *sdk.CreateTableInput, _ ...func(*sdk.Options)) (*sdk.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = in
	f.exists = true
	return &sdk.CreateTableOutput{}, nil
}
