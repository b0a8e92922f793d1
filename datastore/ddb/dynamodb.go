/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/suparena/entitymapper/consistency"
	"github.com/suparena/entitymapper/datastore"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/internal/logging"
	"github.com/suparena/entitymapper/storagemodels"
)

// Client is the subset of the DynamoDB API the data store uses.
// *dynamodb.Client satisfies it.
type Client interface {
	GetItem(ctx context.Context, params *sdk.GetItemInput, optFns ...func(*sdk.Options)) (*sdk.GetItemOutput, error)
	Query(ctx context.Context, params *sdk.QueryInput, optFns ...func(*sdk.Options)) (*sdk.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *sdk.TransactWriteItemsInput, optFns ...func(*sdk.Options)) (*sdk.TransactWriteItemsOutput, error)
}

// MaxTransactItems is the DynamoDB limit of actions per transaction.
const MaxTransactItems = 100

// DataStore is a datastore.Backend over a single DynamoDB table. Every
// logical table shares it; index maps keep their items apart.
type DataStore struct {
	client    Client
	tableName string
	logger    *slog.Logger
	now       func() time.Time
	chunkSize int
}

var _ datastore.Backend = (*DataStore)(nil)

// Option configures a DataStore.
type Option func(*DataStore)

func WithLogger(logger *slog.Logger) Option {
	return func(d *DataStore) {
		d.logger = logger
	}
}

// WithClock replaces time.Now for TTL expiry.
func WithClock(now func() time.Time) Option {
	return func(d *DataStore) {
		if now != nil {
			d.now = now
		}
	}
}

// WithChunkSize caps the actions per TransactWriteItems call.
func WithChunkSize(n int) Option {
	return func(d *DataStore) {
		if n > 0 && n <= MaxTransactItems {
			d.chunkSize = n
		}
	}
}

// NewDynamoDBClient initializes a DynamoDB client using static AWS credentials.
func NewDynamoDBClient(ctx context.Context, awsAccessKey, awsSecretKey, awsRegion string) (*sdk.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(awsRegion),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(awsAccessKey, awsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return sdk.NewFromConfig(cfg), nil
}

// New creates a DataStore writing to tableName through client.
func New(client Client, tableName string, opts ...Option) (*DataStore, error) {
	if client == nil {
		return nil, errors.NewValidationError("client", "a DynamoDB client is required")
	}
	if tableName == "" {
		return nil, errors.NewValidationError("tableName", "a DynamoDB table name is required")
	}
	d := &DataStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
		chunkSize: MaxTransactItems,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.logger = logging.OrDiscard(d.logger).With("backend", "dynamodb", "table", tableName)
	return d, nil
}

// NewDynamodbDataStore builds the client from static credentials and wraps it.
func NewDynamodbDataStore(ctx context.Context, awsAccessKey, awsSecretKey, awsRegion, awsDDBTableName string, opts ...Option) (*DataStore, error) {
	client, err := NewDynamoDBClient(ctx, awsAccessKey, awsSecretKey, awsRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB client: %w", err)
	}
	d, err := New(client, awsDDBTableName, opts...)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("DynamoDB client initialized", "region", awsRegion)
	return d, nil
}

// TableName is the physical DynamoDB table.
func (d *DataStore) TableName() string {
	return d.tableName
}

func (d *DataStore) FindEntityHandle(table string) (datastore.EntityHandle, error) {
	return &entityHandle{store: d, layout: layoutFor(table)}, nil
}

func (d *DataStore) FindWideRowHandle(table string) (datastore.WideRowHandle, error) {
	return &wideRowHandle{store: d, layout: layoutFor(table)}, nil
}

func (d *DataStore) CounterHandle() (datastore.CounterHandle, error) {
	return &counterHandle{store: d, layout: layoutFor(storagemodels.CounterTable)}, nil
}

// consistentRead maps the read level in ctx onto DynamoDB's two read modes.
func consistentRead(ctx context.Context) *bool {
	level, _ := consistency.ReadLevel(ctx)
	return aws.Bool(level.IsStrong())
}

// expired reports whether item carries an ExpiresAt in the past. DynamoDB
// deletes expired items lazily, so reads filter them.
func (d *DataStore) expired(item map[string]types.AttributeValue) bool {
	n, ok := item[attrExpiresAt].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	secs, err := strconv.ParseInt(n.Value, 10, 64)
	return err == nil && !d.now().Before(time.Unix(secs, 0))
}

func (d *DataStore) ttl(item map[string]types.AttributeValue) time.Duration {
	n, ok := item[attrExpiresAt].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	secs, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0
	}
	return time.Unix(secs, 0).Sub(d.now())
}

// projection builds a ProjectionExpression over columns plus PK, so an
// existing item never comes back empty.
func projection(columns []string) (*string, map[string]string) {
	if len(columns) == 0 {
		return nil, nil
	}
	names := map[string]string{"#pk": attrPK, "#exp": attrExpiresAt}
	expr := "#pk, #exp"
	for i, col := range columns {
		placeholder := fmt.Sprintf("#c%d", i)
		names[placeholder] = col
		expr += ", " + placeholder
	}
	return aws.String(expr), names
}

type entityHandle struct {
	store  *DataStore
	layout keyLayout
}

func (h *entityHandle) Table() string { return h.layout.table }

func (h *entityHandle) GetRow(ctx context.Context, key string, columns ...string) (datastore.Row, error) {
	d := h.store
	itemKey, err := h.layout.key(key, rowSortKey)
	if err != nil {
		return nil, err
	}
	proj, names := projection(columns)
	out, err := d.client.GetItem(ctx, &sdk.GetItemInput{
		TableName:                &d.tableName,
		Key:                      itemKey,
		ConsistentRead:           consistentRead(ctx),
		ProjectionExpression:     proj,
		ExpressionAttributeNames: names,
	})
	if err != nil {
		return nil, errors.NewBackendError("GetItem", h.layout.table, err)
	}
	if out.Item == nil || d.expired(out.Item) {
		return nil, nil
	}
	row := make(datastore.Row, len(out.Item))
	for attr, av := range out.Item {
		if reserved[attr] {
			continue
		}
		var v any
		if err := attributevalue.Unmarshal(av, &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", attr, err)
		}
		row[attr] = v
	}
	return row, nil
}

type counterHandle struct {
	store  *DataStore
	layout keyLayout
}

func (h *counterHandle) GetCounter(ctx context.Context, key, column string) (int64, error) {
	d := h.store
	itemKey, err := h.layout.key(key, rowSortKey)
	if err != nil {
		return 0, err
	}
	out, err := d.client.GetItem(ctx, &sdk.GetItemInput{
		TableName:                &d.tableName,
		Key:                      itemKey,
		ConsistentRead:           consistentRead(ctx),
		ProjectionExpression:     aws.String("#c"),
		ExpressionAttributeNames: map[string]string{"#c": column},
	})
	if err != nil {
		return 0, errors.NewBackendError("GetItem", storagemodels.CounterTable, err)
	}
	n, ok := out.Item[column].(*types.AttributeValueMemberN)
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s of %s is not an integer: %w", column, key, err)
	}
	return v, nil
}
