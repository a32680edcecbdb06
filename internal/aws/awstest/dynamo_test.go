package awstest

import (
	"context"
	"errors"
	"testing"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

func TestEvalCondition(t *testing.T) {
	item := map[string]types.AttributeValue{
		"order_id": s("o1"),
		"status":   s("paid"),
	}
	env := exprEnv{
		names: map[string]string{"#s": "status"},
		values: map[string]types.AttributeValue{
			":paid":      s("paid"),
			":completed": s("completed"),
			":cancelled": s("cancelled"),
		},
	}

	cases := []struct {
		expr string
		want bool
	}{
		{"attribute_exists(order_id)", true},
		{"attribute_not_exists(order_id)", false},
		{"#s = :paid", true},
		{"#s <> :paid", false},
		{"#s IN (:completed, :cancelled)", false},
		{"NOT (#s IN (:completed, :cancelled))", true},
		{"attribute_exists(order_id) AND (#s = :completed OR NOT (#s IN (:completed, :cancelled)))", true},
		{"attribute_exists(missing) OR #s = :paid", true},
	}
	for _, tc := range cases {
		got, err := evalCondition(tc.expr, env, item)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestUpdateItem_ConditionAndUpsert(t *testing.T) {
	d := NewDynamo().AddTable("orders", "order_id")
	ctx := context.Background()
	tbl := "orders"

	_, err := d.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &tbl,
		Key:                       map[string]types.AttributeValue{"order_id": s("o1")},
		UpdateExpression:          stringPtr("SET #s = :v"),
		ConditionExpression:       stringPtr("attribute_exists(order_id)"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": s("paid")},
	})
	var ccf *types.ConditionalCheckFailedException
	require.True(t, errors.As(err, &ccf))
	assert.Equal(t, 0, d.Len(tbl))

	_, err = d.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &tbl,
		Key:                       map[string]types.AttributeValue{"order_id": s("o1")},
		UpdateExpression:          stringPtr("SET #s = :v, note = if_not_exists(note, :n)"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": s("paid"), ":n": s("first")},
	})
	require.NoError(t, err)
	item := d.Item(tbl, "o1")
	assert.Equal(t, s("paid"), item["status"])
	assert.Equal(t, s("first"), item["note"])
}

func TestScan_FilterAndPaginate(t *testing.T) {
	d := NewDynamo().AddTable("users", "user_id")
	for _, id := range []string{"a", "b", "c", "d"} {
		d.Seed("users", map[string]types.AttributeValue{
			"user_id":  s(id),
			"is_admin": &types.AttributeValueMemberBOOL{Value: id != "b"},
		})
	}
	tbl := "users"
	limit := int32(2)
	in := &dyn.ScanInput{
		TableName:                 &tbl,
		Limit:                     &limit,
		FilterExpression:          stringPtr("is_admin = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":t": &types.AttributeValueMemberBOOL{Value: true}},
	}

	var ids []string
	for {
		out, err := d.Scan(context.Background(), in)
		require.NoError(t, err)
		for _, it := range out.Items {
			ids = append(ids, it["user_id"].(*types.AttributeValueMemberS).Value)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	assert.Equal(t, []string{"a", "c", "d"}, ids)
}

func TestBatchWriteItem_RejectsOversizedBatch(t *testing.T) {
	d := NewDynamo().AddTable("n", "id")
	reqs := make([]types.WriteRequest, 26)
	for i := range reqs {
		reqs[i] = types.WriteRequest{PutRequest: &types.PutRequest{Item: map[string]types.AttributeValue{"id": s(string(rune('a' + i)))}}}
	}
	_, err := d.BatchWriteItem(context.Background(), &dyn.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{"n": reqs},
	})
	require.Error(t, err)
	assert.Equal(t, 0, d.Len("n"))
}
