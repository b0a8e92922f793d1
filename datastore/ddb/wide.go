/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/storagemodels"
)

// Wide rows are one item per cell: the partition key holds the row, the sort
// key the column.
type wideRowHandle struct {
	store  *DataStore
	layout keyLayout
}

func (h *wideRowHandle) Table() string { return h.layout.table }

// query builds the Query of row key between the sort keys of start and end.
// The operator applies when only one bound is given.
func (h *wideRowHandle) query(ctx context.Context, key string, lower, upper string, lowerOp string) (*sdk.QueryInput, error) {
	pk, err := h.layout.partition(key)
	if err != nil {
		return nil, err
	}
	cond := "#pk = :pk"
	names := map[string]string{"#pk": attrPK}
	values := map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: pk}}
	switch {
	case lower != "" && upper != "":
		cond += " AND #sk BETWEEN :lower AND :upper"
	case lower != "":
		cond += " AND #sk " + lowerOp + " :lower"
	case upper != "":
		cond += " AND #sk <= :upper"
	}
	if lower != "" {
		names["#sk"] = attrSK
		values[":lower"] = &types.AttributeValueMemberS{Value: h.layout.sortKey(lower)}
	}
	if upper != "" {
		names["#sk"] = attrSK
		values[":upper"] = &types.AttributeValueMemberS{Value: h.layout.sortKey(upper)}
	}
	return &sdk.QueryInput{
		TableName:                 &h.store.tableName,
		KeyConditionExpression:    aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConsistentRead:            consistentRead(ctx),
	}, nil
}

// Slice pages through the matching cells until the limit is reached or the
// row is exhausted. Expired cells are skipped.
func (h *wideRowHandle) Slice(ctx context.Context, key string, params storagemodels.SliceParams) ([]storagemodels.KeyValue, error) {
	input, err := h.query(ctx, key, params.Start, params.End, ">=")
	if err != nil {
		return nil, err
	}
	input.ScanIndexForward = aws.Bool(!params.Reversed)
	if params.Limit > 0 {
		input.Limit = aws.Int32(int32(params.Limit))
	}

	var out []storagemodels.KeyValue
	for {
		page, err := h.store.client.Query(ctx, input)
		if err != nil {
			return nil, errors.NewBackendError("Query", h.layout.table, err)
		}
		cells, err := h.cells(page.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, cells...)
		if params.Limit > 0 && len(out) >= params.Limit {
			return out[:params.Limit], nil
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

// Stream pages through the row in column order, retrying throttled queries.
func (h *wideRowHandle) Stream(ctx context.Context, key string, opts ...storagemodels.StreamOption) <-chan storagemodels.StreamResult {
	pager := datastorePager(func(ctx context.Context, after string, limit int) ([]storagemodels.KeyValue, bool, error) {
		input, err := h.query(ctx, key, after, "", ">")
		if err != nil {
			return nil, false, err
		}
		input.Limit = aws.Int32(int32(limit))
		page, err := h.store.client.Query(ctx, input)
		if err != nil {
			return nil, false, err
		}
		cells, err := h.cells(page.Items)
		if err != nil {
			return nil, false, err
		}
		return cells, len(page.LastEvaluatedKey) > 0, nil
	})
	return pager.Stream(ctx, opts...)
}

func (h *wideRowHandle) cells(items []map[string]types.AttributeValue) ([]storagemodels.KeyValue, error) {
	out := make([]storagemodels.KeyValue, 0, len(items))
	for _, item := range items {
		if h.store.expired(item) {
			continue
		}
		sk, ok := item[attrSK].(*types.AttributeValueMemberS)
		if !ok {
			return nil, fmt.Errorf("item of %s has no string sort key", h.layout.table)
		}
		var v any
		if av, ok := item[attrValue]; ok {
			if err := attributevalue.Unmarshal(av, &v); err != nil {
				return nil, fmt.Errorf("failed to unmarshal cell %s: %w", sk.Value, err)
			}
		}
		out = append(out, storagemodels.KeyValue{Key: h.layout.column(sk.Value), Value: v, TTL: h.store.ttl(item)})
	}
	return out, nil
}
