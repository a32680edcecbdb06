// Package awstest provides in-memory fakes of the AWS clients for tests.
package awstest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

const maxBatchWrite = 25

// Dynamo is an in-memory DynamoDB. Each table has a single string or number
// partition key, registered with AddTable.
type Dynamo struct {
	mu     sync.Mutex
	keys   map[string]string
	tables map[string]map[string]map[string]types.AttributeValue
	errs   map[string]error
	calls  map[string]int
}

// NewDynamo returns an empty fake.
func NewDynamo() *Dynamo {
	return &Dynamo{
		keys:   map[string]string{},
		tables: map[string]map[string]map[string]types.AttributeValue{},
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

// AddTable registers a table keyed by keyAttr.
func (d *Dynamo) AddTable(name, keyAttr string) *Dynamo {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[name] = keyAttr
	d.tables[name] = map[string]map[string]types.AttributeValue{}
	return d
}

// FailWith makes every call to op ("GetItem", "Scan", ...) return err until
// cleared with a nil err.
func (d *Dynamo) FailWith(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.errs, op)
		return
	}
	d.errs[op] = err
}

// Calls reports how many times op was invoked.
func (d *Dynamo) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// Seed stores item as-is.
func (d *Dynamo) Seed(table string, item map[string]types.AttributeValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pk, err := d.itemKey(table, item)
	if err != nil {
		panic(err)
	}
	d.tables[table][pk] = copyItem(item)
}

// Item returns a copy of the stored item, or nil.
func (d *Dynamo) Item(table, key string) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.tables[table][key]
	if !ok {
		return nil
	}
	return copyItem(item)
}

// Len returns the number of items in table.
func (d *Dynamo) Len(table string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tables[table])
}

func (d *Dynamo) begin(op string) error {
	d.calls[op]++
	return d.errs[op]
}

func (d *Dynamo) itemKey(table string, item map[string]types.AttributeValue) (string, error) {
	keyAttr, ok := d.keys[table]
	if !ok {
		return "", &types.ResourceNotFoundException{Message: stringPtr("table not found: " + table)}
	}
	switch v := item[keyAttr].(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		return v.Value, nil
	}
	return "", validationError(fmt.Sprintf("missing key %s for table %s", keyAttr, table))
}

func (d *Dynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("PutItem"); err != nil {
		return nil, err
	}
	table := *params.TableName
	pk, err := d.itemKey(table, params.Item)
	if err != nil {
		return nil, err
	}
	if err := d.check(table, pk, params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	d.tables[table][pk] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (d *Dynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("GetItem"); err != nil {
		return nil, err
	}
	table := *params.TableName
	pk, err := d.itemKey(table, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := d.tables[table][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (d *Dynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("UpdateItem"); err != nil {
		return nil, err
	}
	table := *params.TableName
	pk, err := d.itemKey(table, params.Key)
	if err != nil {
		return nil, err
	}
	if err := d.check(table, pk, params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	item, err := d.updated(table, pk, params.Key, params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	d.tables[table][pk] = item
	return &dyn.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (d *Dynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("TransactWriteItems"); err != nil {
		return nil, err
	}

	type write struct {
		table, pk string
		item      map[string]types.AttributeValue
	}
	writes := make([]write, 0, len(params.TransactItems))
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	canceled := false

	for i, it := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: stringPtr("None")}
		switch {
		case it.Put != nil:
			table := *it.Put.TableName
			pk, err := d.itemKey(table, it.Put.Item)
			if err != nil {
				return nil, err
			}
			if err := d.check(table, pk, it.Put.ConditionExpression, it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues); err != nil {
				reasons[i].Code = stringPtr("ConditionalCheckFailed")
				canceled = true
				continue
			}
			writes = append(writes, write{table, pk, copyItem(it.Put.Item)})
		case it.Update != nil:
			table := *it.Update.TableName
			pk, err := d.itemKey(table, it.Update.Key)
			if err != nil {
				return nil, err
			}
			if err := d.check(table, pk, it.Update.ConditionExpression, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues); err != nil {
				reasons[i].Code = stringPtr("ConditionalCheckFailed")
				canceled = true
				continue
			}
			item, err := d.updated(table, pk, it.Update.Key, it.Update.UpdateExpression, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			writes = append(writes, write{table, pk, item})
		default:
			return nil, validationError("only Put and Update are supported in transactions")
		}
	}
	if canceled {
		return nil, &types.TransactionCanceledException{
			Message:             stringPtr("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}
	for _, w := range writes {
		d.tables[w.table][w.pk] = w.item
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (d *Dynamo) BatchWriteItem(ctx context.Context, params *dyn.BatchWriteItemInput, optFns ...func(*dyn.Options)) (*dyn.BatchWriteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("BatchWriteItem"); err != nil {
		return nil, err
	}
	total := 0
	for _, reqs := range params.RequestItems {
		total += len(reqs)
	}
	if total == 0 || total > maxBatchWrite {
		return nil, validationError(fmt.Sprintf("batch write must contain 1..%d requests, got %d", maxBatchWrite, total))
	}
	for table, reqs := range params.RequestItems {
		for _, r := range reqs {
			switch {
			case r.PutRequest != nil:
				pk, err := d.itemKey(table, r.PutRequest.Item)
				if err != nil {
					return nil, err
				}
				d.tables[table][pk] = copyItem(r.PutRequest.Item)
			case r.DeleteRequest != nil:
				pk, err := d.itemKey(table, r.DeleteRequest.Key)
				if err != nil {
					return nil, err
				}
				delete(d.tables[table], pk)
			}
		}
	}
	return &dyn.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}, nil
}

func (d *Dynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("Scan"); err != nil {
		return nil, err
	}
	table := *params.TableName
	rows, ok := d.tables[table]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: stringPtr("table not found: " + table)}
	}

	pks := make([]string, 0, len(rows))
	for pk := range rows {
		pks = append(pks, pk)
	}
	sort.Strings(pks)

	start := 0
	if len(params.ExclusiveStartKey) > 0 {
		after, err := d.itemKey(table, params.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		start = sort.SearchStrings(pks, after)
		if start < len(pks) && pks[start] == after {
			start++
		}
	}

	end := len(pks)
	if params.Limit != nil && int(*params.Limit) > 0 && start+int(*params.Limit) < end {
		end = start + int(*params.Limit)
	}

	env := exprEnv{names: params.ExpressionAttributeNames, values: params.ExpressionAttributeValues}
	out := &dyn.ScanOutput{}
	for _, pk := range pks[start:end] {
		item := rows[pk]
		if params.FilterExpression != nil {
			match, err := evalCondition(*params.FilterExpression, env, item)
			if err != nil {
				return nil, validationError(err.Error())
			}
			if !match {
				continue
			}
		}
		out.Items = append(out.Items, copyItem(item))
	}
	out.Count = int32(len(out.Items))
	out.ScannedCount = int32(end - start)
	if end < len(pks) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			d.keys[table]: rows[pks[end-1]][d.keys[table]],
		}
	}
	return out, nil
}

func (d *Dynamo) check(table, pk string, cond *string, names map[string]string, values map[string]types.AttributeValue) error {
	if cond == nil || *cond == "" {
		return nil
	}
	current := d.tables[table][pk]
	if current == nil {
		current = map[string]types.AttributeValue{}
	}
	ok, err := evalCondition(*cond, exprEnv{names: names, values: values}, current)
	if err != nil {
		return validationError(err.Error())
	}
	if !ok {
		return &types.ConditionalCheckFailedException{Message: stringPtr("The conditional request failed")}
	}
	return nil
}

func (d *Dynamo) updated(table, pk string, key map[string]types.AttributeValue, expr *string, names map[string]string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	item := copyItem(d.tables[table][pk])
	if item == nil {
		// UpdateItem upserts
		item = copyItem(key)
	}
	if expr != nil {
		if err := applyUpdate(*expr, exprEnv{names: names, values: values}, item); err != nil {
			return nil, validationError(err.Error())
		}
	}
	return item, nil
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func validationError(msg string) error {
	return &smithy.GenericAPIError{Code: "ValidationException", Message: msg}
}

func stringPtr(s string) *string { return &s }
