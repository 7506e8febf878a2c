package ddb

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adonese/crud/apperr"
	"github.com/adonese/crud/resource"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// batchSize is the BatchWriteItem request limit.
const batchSize = 25

const maxBatchRetries = 5

var retryDelay = 100 * time.Millisecond

type item = map[string]types.AttributeValue

// Table is a resource.Session storing M as DynamoDB items. Attribute names
// follow the json tags of M; the identity attribute is the hash key.
type Table[M any] struct {
	client   API
	table    string
	key      string
	keyType  types.ScalarAttributeType
	keyIndex []int
	kind     string
}

var _ resource.Session[struct{ ID string }] = (*Table[struct{ ID string }])(nil)

// NewTable binds M to table. key is the json name of the identity field,
// "id" when empty; it must be a string or integer field.
func NewTable[M any](client API, table, key string) (*Table[M], error) {
	if client == nil {
		return nil, errors.New("ddb: nil client")
	}
	if table == "" {
		return nil, errors.New("ddb: empty table name")
	}
	if key == "" {
		key = "id"
	}
	rt := reflect.TypeOf((*M)(nil)).Elem()
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("ddb: %s is not a struct", rt)
	}
	sf, ok := findField(rt, key)
	if !ok {
		return nil, fmt.Errorf("ddb: %s has no field %q", rt, key)
	}
	t := &Table[M]{
		client:   client,
		table:    table,
		key:      key,
		keyIndex: sf.Index,
		kind:     strings.ToLower(rt.Name()),
	}
	switch sf.Type.Kind() {
	case reflect.String:
		t.keyType = types.ScalarAttributeTypeS
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		t.keyType = types.ScalarAttributeTypeN
	default:
		return nil, fmt.Errorf("ddb: key field %q must be a string or integer, got %s", key, sf.Type)
	}
	return t, nil
}

func findField(rt reflect.Type, name string) (reflect.StructField, bool) {
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := strings.SplitN(sf.Tag.Get("json"), ",", 2)[0]
		if tag == name || (tag == "" && sf.Name == name) {
			return sf, true
		}
	}
	return reflect.StructField{}, false
}

// Sessions exposes the table as a resource session resolver. DynamoDB has
// no request transaction, so every request shares the table.
func (t *Table[M]) Sessions() resource.SessionFunc[M] {
	return func(*gin.Context) (resource.Session[M], error) {
		return t, nil
	}
}

// Ensure provisions the backing table.
func (t *Table[M]) Ensure(ctx context.Context, client TableAPI) (bool, error) {
	return EnsureTable(ctx, client, t.table, t.key, t.keyType)
}

func encodeOptions(o *attributevalue.EncoderOptions) { o.TagKey = "json" }
func decodeOptions(o *attributevalue.DecoderOptions) { o.TagKey = "json" }

func (t *Table[M]) keyAttr(id string) (types.AttributeValue, error) {
	if t.keyType == types.ScalarAttributeTypeS {
		return &types.AttributeValueMemberS{Value: id}, nil
	}
	n, ok := new(big.Int).SetString(id, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric key %q", id)
	}
	return &types.AttributeValueMemberN{Value: n.String()}, nil
}

func (t *Table[M]) keyOf(id string) (item, error) {
	av, err := t.keyAttr(id)
	if err != nil {
		return nil, err
	}
	return item{t.key: av}, nil
}

func (t *Table[M]) Insert(ctx context.Context, m *M) error {
	kv := reflect.ValueOf(m).Elem().FieldByIndex(t.keyIndex)
	if kv.IsZero() {
		if kv.Kind() != reflect.String {
			return apperr.WithFields(apperr.ErrValidation, map[string]any{t.key: "required"})
		}
		kv.SetString(uuid.NewString())
	}
	av, err := attributevalue.MarshalMapWithOptions(m, encodeOptions)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrInternal, "")
	}
	_, err = t.client.PutItem(ctx, &sdk.PutItemInput{
		TableName:                aws.String(t.table),
		Item:                     av,
		ConditionExpression:      aws.String("attribute_not_exists(#k)"),
		ExpressionAttributeNames: map[string]string{"#k": t.key},
	})
	var cfe *types.ConditionalCheckFailedException
	if errors.As(err, &cfe) {
		return apperr.Wrap(err, apperr.ErrConflict, t.kind+" already exists")
	}
	return t.translate(err, "PutItem")
}

func (t *Table[M]) getItem(ctx context.Context, id string, scope resource.Scope) (item, error) {
	key, err := t.keyOf(id)
	if err != nil {
		return nil, nil
	}
	out, err := t.client.GetItem(ctx, &sdk.GetItemInput{
		TableName:      aws.String(t.table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, t.translate(err, "GetItem")
	}
	if out.Item == nil || !matches(out.Item, scope) {
		return nil, nil
	}
	return out.Item, nil
}

func (t *Table[M]) Get(ctx context.Context, id string, scope resource.Scope) (*M, error) {
	raw, err := t.getItem(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, apperr.NotFound(t.kind, id)
	}
	m := new(M)
	if err := attributevalue.UnmarshalMapWithOptions(raw, m, decodeOptions); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "")
	}
	return m, nil
}

func (t *Table[M]) Save(ctx context.Context, m *M) error {
	av, err := attributevalue.MarshalMapWithOptions(m, encodeOptions)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrInternal, "")
	}
	_, err = t.client.PutItem(ctx, &sdk.PutItemInput{
		TableName: aws.String(t.table),
		Item:      av,
	})
	return t.translate(err, "PutItem")
}

// Delete removes the item if it exists and matches scope.
func (t *Table[M]) Delete(ctx context.Context, id string, scope resource.Scope) error {
	key, err := t.keyOf(id)
	if err != nil {
		return nil
	}
	if len(scope) > 0 {
		raw, err := t.getItem(ctx, id, scope)
		if err != nil || raw == nil {
			return err
		}
	}
	_, err = t.client.DeleteItem(ctx, &sdk.DeleteItemInput{
		TableName: aws.String(t.table),
		Key:       key,
	})
	return t.translate(err, "DeleteItem")
}

// scan reads every item matching scope, ordered by key.
func (t *Table[M]) scan(ctx context.Context, scope resource.Scope) ([]item, error) {
	var items []item
	p := sdk.NewScanPaginator(t.client, &sdk.ScanInput{
		TableName:      aws.String(t.table),
		ConsistentRead: aws.Bool(true),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, t.translate(err, "Scan")
		}
		for _, it := range page.Items {
			if matches(it, scope) {
				items = append(items, it)
			}
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return t.less(items[i][t.key], items[j][t.key])
	})
	return items, nil
}

func (t *Table[M]) less(a, b types.AttributeValue) bool {
	as, bs := attrString(a), attrString(b)
	if t.keyType == types.ScalarAttributeTypeN {
		an, aok := new(big.Float).SetString(as)
		bn, bok := new(big.Float).SetString(bs)
		if aok && bok {
			return an.Cmp(bn) < 0
		}
	}
	return as < bs
}

func (t *Table[M]) All(ctx context.Context, scope resource.Scope) ([]M, error) {
	items, err := t.scan(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := make([]M, 0, len(items))
	if err := attributevalue.UnmarshalListOfMapsWithOptions(items, &out, decodeOptions); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "")
	}
	return out, nil
}

func (t *Table[M]) Count(ctx context.Context, scope resource.Scope) (int64, error) {
	items, err := t.scan(ctx, scope)
	if err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}

// DeleteAll removes every matching item in batches, resubmitting whatever
// DynamoDB reports as unprocessed.
func (t *Table[M]) DeleteAll(ctx context.Context, scope resource.Scope) error {
	items, err := t.scan(ctx, scope)
	if err != nil {
		return err
	}
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, it := range items[start:end] {
			reqs = append(reqs, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: item{t.key: it[t.key]}},
			})
		}
		if err := t.writeBatch(ctx, reqs); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table[M]) writeBatch(ctx context.Context, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{t.table: reqs}
	for attempt := 0; len(pending[t.table]) > 0; attempt++ {
		if attempt > maxBatchRetries {
			return apperr.Wrap(fmt.Errorf("%d unprocessed deletes", len(pending[t.table])), apperr.ErrUnavailable, "dynamodb throttled batch delete")
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay * time.Duration(attempt)):
			}
		}
		out, err := t.client.BatchWriteItem(ctx, &sdk.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return t.translate(err, "BatchWriteItem")
		}
		pending = out.UnprocessedItems
	}
	return nil
}

func (t *Table[M]) translate(err error, op string) error {
	if err == nil {
		return nil
	}
	return apperr.Wrap(err, apperr.ErrDatabase, "dynamodb "+op+" failed")
}

// matches reports whether every scope entry equals the item's attribute,
// compared in string form.
func matches(it item, scope resource.Scope) bool {
	for k, want := range scope {
		av, ok := it[k]
		if !ok || attrString(av) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func attrString(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberBOOL:
		return strconv.FormatBool(v.Value)
	default:
		return ""
	}
}
