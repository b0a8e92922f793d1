/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/storagemodels"
)

// action is one transact item and the guard it carries, kept to report
// which condition a cancelled transaction tripped on.
type action struct {
	item      types.TransactWriteItem
	condition string
}

// Apply writes mutations with TransactWriteItems, in chunks of at most
// MaxTransactItems actions. Each chunk is atomic; chunks are not. Guard
// conditions are DynamoDB condition expressions.
func (d *DataStore) Apply(ctx context.Context, mutations []storagemodels.Mutation) error {
	var actions []action
	for i := range mutations {
		built, err := d.build(ctx, &mutations[i])
		if err != nil {
			return err
		}
		actions = append(actions, built...)
	}
	if len(actions) == 0 {
		return nil
	}

	chunks := (len(actions) + d.chunkSize - 1) / d.chunkSize
	for c := 0; c < chunks; c++ {
		end := (c + 1) * d.chunkSize
		if end > len(actions) {
			end = len(actions)
		}
		chunk := actions[c*d.chunkSize : end]
		items := make([]types.TransactWriteItem, len(chunk))
		for i, a := range chunk {
			items[i] = a.item
		}
		_, err := d.client.TransactWriteItems(ctx, &sdk.TransactWriteItemsInput{TransactItems: items})
		if err != nil {
			return d.transactError(err, chunk, c, chunks)
		}
		d.logger.Debug("transaction written", "chunk", c+1, "of", chunks, "actions", len(items))
	}
	return nil
}

func (d *DataStore) transactError(err error, chunk []action, c, chunks int) error {
	var canceled *types.TransactionCanceledException
	if stderrors.As(err, &canceled) {
		for i, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" && i < len(chunk) {
				d.logger.Warn("write condition failed", "condition", chunk[i].condition)
				return errors.NewConditionFailedError("TransactWriteItems", chunk[i].condition)
			}
		}
	}
	return errors.NewBackendError("TransactWriteItems", d.tableName, fmt.Errorf("chunk %d of %d: %w", c+1, chunks, err))
}

func (d *DataStore) build(ctx context.Context, mu *storagemodels.Mutation) ([]action, error) {
	if mu.IsEmpty() {
		return nil, nil
	}
	switch mu.Kind {
	case storagemodels.CounterRow:
		return d.buildCounter(mu)
	case storagemodels.WideRow:
		return d.buildWide(ctx, mu)
	default:
		return d.buildEntity(mu)
	}
}

// meta returns the bookkeeping attributes every written item carries.
func (d *DataStore) meta(mu *storagemodels.Mutation) map[string]types.AttributeValue {
	now := d.now()
	ts := mu.Timestamp
	if ts.IsZero() {
		ts = now
	}
	attrs := map[string]types.AttributeValue{
		attrEntityType:     &types.AttributeValueMemberS{Value: mu.Table},
		attrWriteTimestamp: &types.AttributeValueMemberN{Value: strconv.FormatInt(ts.UnixNano(), 10)},
	}
	if mu.TTL > 0 {
		attrs[attrExpiresAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(mu.TTL).Truncate(time.Second).Unix(), 10)}
	}
	return attrs
}

func condition(mu *storagemodels.Mutation) *string {
	if mu.Condition == "" {
		return nil
	}
	return aws.String(mu.Condition)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *DataStore) put(mu *storagemodels.Mutation, key map[string]types.AttributeValue, values map[string]any) (action, error) {
	item := d.meta(mu)
	for attr, av := range key {
		item[attr] = av
	}
	for _, col := range sortedKeys(values) {
		if values[col] == nil {
			continue
		}
		av, err := attributevalue.Marshal(values[col])
		if err != nil {
			return action{}, fmt.Errorf("failed to marshal %s: %w", col, err)
		}
		item[col] = av
	}
	return action{
		item:      types.TransactWriteItem{Put: &types.Put{TableName: &d.tableName, Item: item, ConditionExpression: condition(mu)}},
		condition: mu.Condition,
	}, nil
}

func (d *DataStore) delete(mu *storagemodels.Mutation, key map[string]types.AttributeValue) action {
	return action{
		item:      types.TransactWriteItem{Delete: &types.Delete{TableName: &d.tableName, Key: key, ConditionExpression: condition(mu)}},
		condition: mu.Condition,
	}
}

// updateExpression accumulates SET, REMOVE and ADD clauses with numbered
// placeholders.
type updateExpression struct {
	set, remove, add []string
	names            map[string]string
	values           map[string]types.AttributeValue
}

func newUpdateExpression() *updateExpression {
	return &updateExpression{names: make(map[string]string), values: make(map[string]types.AttributeValue)}
}

func (u *updateExpression) name(attr string) string {
	placeholder := fmt.Sprintf("#f%d", len(u.names))
	u.names[placeholder] = attr
	return placeholder
}

func (u *updateExpression) value(av types.AttributeValue) string {
	placeholder := fmt.Sprintf(":v%d", len(u.values))
	u.values[placeholder] = av
	return placeholder
}

func (u *updateExpression) setAttr(attr string, av types.AttributeValue) {
	u.set = append(u.set, u.name(attr)+" = "+u.value(av))
}

func (u *updateExpression) String() string {
	var clauses []string
	if len(u.set) > 0 {
		clauses = append(clauses, "SET "+strings.Join(u.set, ", "))
	}
	if len(u.remove) > 0 {
		clauses = append(clauses, "REMOVE "+strings.Join(u.remove, ", "))
	}
	if len(u.add) > 0 {
		clauses = append(clauses, "ADD "+strings.Join(u.add, ", "))
	}
	return strings.Join(clauses, " ")
}

func (d *DataStore) update(mu *storagemodels.Mutation, key map[string]types.AttributeValue, u *updateExpression) action {
	meta := d.meta(mu)
	for _, attr := range sortedKeys(meta) {
		u.setAttr(attr, meta[attr])
	}
	return action{
		item: types.TransactWriteItem{Update: &types.Update{
			TableName:                 &d.tableName,
			Key:                       key,
			UpdateExpression:          aws.String(u.String()),
			ExpressionAttributeNames:  u.names,
			ExpressionAttributeValues: u.values,
			ConditionExpression:       condition(mu),
		}},
		condition: mu.Condition,
	}
}

// buildEntity writes an entity row as one item. A deletion with values
// replaces the item; values alone update it in place.
func (d *DataStore) buildEntity(mu *storagemodels.Mutation) ([]action, error) {
	layout := layoutFor(mu.Table)
	key, err := layout.key(mu.RowKey, rowSortKey)
	if err != nil {
		return nil, err
	}
	secondary := layout.secondary(mu.RowKey, mu.Values)

	if mu.Delete {
		if len(mu.Values) == 0 {
			return []action{d.delete(mu, key)}, nil
		}
		values := make(map[string]any, len(mu.Values)+len(secondary))
		for col, v := range mu.Values {
			values[col] = v
		}
		for attr, v := range secondary {
			values[attr] = v
		}
		a, err := d.put(mu, key, values)
		if err != nil {
			return nil, err
		}
		return []action{a}, nil
	}

	u := newUpdateExpression()
	for _, col := range sortedKeys(mu.Values) {
		if mu.Values[col] == nil {
			u.remove = append(u.remove, u.name(col))
			continue
		}
		av, err := attributevalue.Marshal(mu.Values[col])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", col, err)
		}
		u.setAttr(col, av)
	}
	for _, attr := range sortedKeys(secondary) {
		u.setAttr(attr, &types.AttributeValueMemberS{Value: secondary[attr]})
	}
	for _, col := range mu.DeletedColumns {
		u.remove = append(u.remove, u.name(col))
	}
	return []action{d.update(mu, key, u)}, nil
}

// buildWide writes one item per cell. Deleting the row deletes every stored
// cell that is not written again by the same mutation.
func (d *DataStore) buildWide(ctx context.Context, mu *storagemodels.Mutation) ([]action, error) {
	layout := layoutFor(mu.Table)
	var actions []action

	if mu.Delete {
		stored, err := d.storedColumns(ctx, layout, mu.RowKey)
		if err != nil {
			return nil, err
		}
		for _, col := range stored {
			if _, rewritten := mu.Columns[col]; rewritten {
				continue
			}
			key, err := layout.key(mu.RowKey, col)
			if err != nil {
				return nil, err
			}
			actions = append(actions, d.delete(mu, key))
		}
	}
	for _, col := range sortedKeys(mu.Columns) {
		key, err := layout.key(mu.RowKey, col)
		if err != nil {
			return nil, err
		}
		a, err := d.put(mu, key, map[string]any{attrValue: mu.Columns[col]})
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	for _, col := range mu.DeletedColumns {
		key, err := layout.key(mu.RowKey, col)
		if err != nil {
			return nil, err
		}
		actions = append(actions, d.delete(mu, key))
	}
	return actions, nil
}

func (d *DataStore) storedColumns(ctx context.Context, layout keyLayout, rowKey string) ([]string, error) {
	h := &wideRowHandle{store: d, layout: layout}
	input, err := h.query(ctx, rowKey, "", "", "")
	if err != nil {
		return nil, err
	}
	input.ProjectionExpression = aws.String("#pk, #sk")
	input.ExpressionAttributeNames["#sk"] = attrSK
	var cols []string
	for {
		page, err := d.client.Query(ctx, input)
		if err != nil {
			return nil, errors.NewBackendError("Query", layout.table, err)
		}
		for _, item := range page.Items {
			if sk, ok := item[attrSK].(*types.AttributeValueMemberS); ok {
				cols = append(cols, layout.column(sk.Value))
			}
		}
		if len(page.LastEvaluatedKey) == 0 {
			return cols, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

// buildCounter adds increments with ADD. A deletion with increments resets
// the counters to the deltas.
func (d *DataStore) buildCounter(mu *storagemodels.Mutation) ([]action, error) {
	key, err := layoutFor(storagemodels.CounterTable).key(mu.RowKey, rowSortKey)
	if err != nil {
		return nil, err
	}
	if mu.Delete {
		if len(mu.Increments) == 0 {
			return []action{d.delete(mu, key)}, nil
		}
		values := make(map[string]any, len(mu.Increments))
		for col, delta := range mu.Increments {
			values[col] = delta
		}
		a, err := d.put(mu, key, values)
		if err != nil {
			return nil, err
		}
		return []action{a}, nil
	}

	u := newUpdateExpression()
	for _, col := range sortedKeys(mu.Increments) {
		delta := &types.AttributeValueMemberN{Value: strconv.FormatInt(mu.Increments[col], 10)}
		u.add = append(u.add, u.name(col)+" "+u.value(delta))
	}
	return []action{d.update(mu, key, u)}, nil
}
