/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"sort"
	"strings"
	"sync"

	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeClient is an in-memory stand-in for DynamoDB. It understands the key
// conditions the data store builds, and applies Put and Delete actions;
// Update actions are only recorded.
type fakeClient struct {
	mu          sync.Mutex
	items       map[string]map[string]types.AttributeValue
	gets        []*sdk.GetItemInput
	queries     []*sdk.QueryInput
	transacts   []*sdk.TransactWriteItemsInput
	transactErr error
}

var _ Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{items: make(map[string]map[string]types.AttributeValue)}
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func itemID(item map[string]types.AttributeValue) string {
	return str(item[attrPK]) + "|" + str(item[attrSK])
}

func (f *fakeClient) seed(item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[itemID(item)] = item
}

func (f *fakeClient) GetItem(ctx context.Context, params *sdk.GetItemInput, optFns ...func(*sdk.Options)) (*sdk.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, params)
	return &sdk.GetItemOutput{Item: f.items[itemID(params.Key)]}, nil
}

func (f *fakeClient) Query(ctx context.Context, params *sdk.QueryInput, optFns ...func(*sdk.Options)) (*sdk.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, params)

	cond := *params.KeyConditionExpression
	pk := str(params.ExpressionAttributeValues[":pk"])
	lower := str(params.ExpressionAttributeValues[":lower"])
	upper := str(params.ExpressionAttributeValues[":upper"])

	var matched []map[string]types.AttributeValue
	for _, item := range f.items {
		if str(item[attrPK]) != pk {
			continue
		}
		sk := str(item[attrSK])
		switch {
		case strings.Contains(cond, "BETWEEN"):
			if sk < lower || sk > upper {
				continue
			}
		case strings.Contains(cond, ">= :lower"):
			if sk < lower {
				continue
			}
		case strings.Contains(cond, "> :lower"):
			if sk <= lower {
				continue
			}
		case strings.Contains(cond, "<= :upper"):
			if sk > upper {
				continue
			}
		}
		matched = append(matched, item)
	}
	forward := params.ScanIndexForward == nil || *params.ScanIndexForward
	sort.Slice(matched, func(i, j int) bool {
		if forward {
			return str(matched[i][attrSK]) < str(matched[j][attrSK])
		}
		return str(matched[i][attrSK]) > str(matched[j][attrSK])
	})

	if params.ExclusiveStartKey != nil {
		start := itemID(params.ExclusiveStartKey)
		for i, item := range matched {
			if itemID(item) == start {
				matched = matched[i+1:]
				break
			}
		}
	}
	out := &sdk.QueryOutput{Items: matched}
	if params.Limit != nil && int(*params.Limit) < len(matched) {
		out.Items = matched[:*params.Limit]
		last := out.Items[len(out.Items)-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{attrPK: last[attrPK], attrSK: last[attrSK]}
	}
	return out, nil
}

func (f *fakeClient) TransactWriteItems(ctx context.Context, params *sdk.TransactWriteItemsInput, optFns ...func(*sdk.Options)) (*sdk.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transacts = append(f.transacts, params)
	if f.transactErr != nil {
		return nil, f.transactErr
	}
	for _, ti := range params.TransactItems {
		switch {
		case ti.Put != nil:
			f.items[itemID(ti.Put.Item)] = ti.Put.Item
		case ti.Delete != nil:
			delete(f.items, itemID(ti.Delete.Key))
		}
	}
	return &sdk.TransactWriteItemsOutput{}, nil
}
