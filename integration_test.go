//go:build integration
// +build integration

/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package entitymapper_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suparena/entitymapper"
	"github.com/suparena/entitymapper/config"
	"github.com/suparena/entitymapper/consistency"
	"github.com/suparena/entitymapper/datastore/ddb"
	"github.com/suparena/entitymapper/datastore/testmodels"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/proxy"
	"github.com/suparena/entitymapper/registry"
	"github.com/suparena/entitymapper/storagemodels"
)

// setupDynamoDB connects to the table named by AWS_DDB_TABLE, loading .env
// first. The table needs a string PK and a string SK.
func setupDynamoDB(t *testing.T) *entitymapper.Manager {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	require.NoError(t, config.LoadEnv())
	if os.Getenv(config.EnvTable) == "" {
		t.Skip("AWS_DDB_TABLE not set, skipping integration test")
	}

	store, err := ddb.NewDynamodbDataStore(context.Background(),
		os.Getenv(config.EnvAccessKey),
		os.Getenv(config.EnvSecretKey),
		os.Getenv(config.EnvRegion),
		os.Getenv(config.EnvTable),
	)
	require.NoError(t, err)

	reg := registry.New()
	require.NoError(t, testmodels.Register(reg))
	mgr, err := entitymapper.New(store,
		entitymapper.WithRegistry(reg),
		entitymapper.WithPolicy(consistency.NewPolicy(consistency.Quorum, consistency.Quorum)),
	)
	require.NoError(t, err)
	return mgr
}

func TestIntegrationPlayerLifecycle(t *testing.T) {
	ctx := context.Background()
	mgr := setupDynamoDB(t)
	id := fmt.Sprintf("it-%d", time.Now().UnixNano())

	require.NoError(t, mgr.Persist(ctx, &testmodels.Player{ID: id, Name: "Ada", Bio: "chess", MatchesPlayed: 2}))
	t.Cleanup(func() { _ = mgr.Remove(context.Background(), &testmodels.Player{ID: id}) })

	p, err := entitymapper.Find[testmodels.Player](ctx, mgr, id)
	require.NoError(t, err)
	require.NotNil(t, p)
	bio, err := proxy.Field[string](ctx, p, "Bio")
	require.NoError(t, err)
	assert.Equal(t, "chess", bio)

	require.NoError(t, p.Set("Name", "Grace"))
	require.NoError(t, p.Set("MatchesPlayed", int64(7)))
	_, err = mgr.Merge(ctx, p)
	require.NoError(t, err)

	again, err := entitymapper.Find[testmodels.Player](ctx, mgr, id)
	require.NoError(t, err)
	require.NotNil(t, again)
	played, err := proxy.Field[int64](ctx, again, "MatchesPlayed")
	require.NoError(t, err)
	assert.Equal(t, int64(7), played)
	assert.Equal(t, "Grace", entitymapper.Unwrap(again).(*testmodels.Player).Name)

	require.NoError(t, mgr.Remove(ctx, again))
	gone, err := entitymapper.Find[testmodels.Player](ctx, mgr, id)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestIntegrationConditionalWrite(t *testing.T) {
	ctx := context.Background()
	mgr := setupDynamoDB(t)
	id := fmt.Sprintf("it-cond-%d", time.Now().UnixNano())

	guard := storagemodels.WithCondition("attribute_not_exists(PK)")
	require.NoError(t, mgr.Persist(ctx, &testmodels.Player{ID: id, Name: "Ada"}, guard))
	t.Cleanup(func() { _ = mgr.Remove(context.Background(), &testmodels.Player{ID: id}) })

	err := mgr.Persist(ctx, &testmodels.Player{ID: id, Name: "Imposter"}, guard)
	assert.True(t, errors.IsConditionFailed(err))
}

func TestIntegrationRatingHistory(t *testing.T) {
	ctx := context.Background()
	mgr := setupDynamoDB(t)
	player := fmt.Sprintf("it-hist-%d", time.Now().UnixNano())
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	b := mgr.NewBatch()
	for i := 0; i < 5; i++ {
		entry := &testmodels.RatingEntry{
			Key:    testmodels.RatingKey{PlayerID: player, At: strfmt.DateTime(start.Add(time.Duration(i) * time.Hour))},
			Rating: 1500 + float64(i*10),
			Delta:  10,
			Match:  fmt.Sprintf("m%d", i),
		}
		require.NoError(t, b.Persist(ctx, entry, storagemodels.WithTTL(time.Hour)))
	}
	require.NoError(t, b.EndBatch(ctx))

	key := testmodels.RatingKey{PlayerID: player, At: strfmt.DateTime(start.Add(2 * time.Hour))}
	p, err := entitymapper.Find[testmodels.RatingEntry](ctx, mgr, key)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1520.0, entitymapper.Unwrap(p).(*testmodels.RatingEntry).Rating)

	store := mgr.Configuration().Handles
	h, err := store.FindWideRowHandle(testmodels.RatingEntryMeta.TableName)
	require.NoError(t, err)
	var count int
	for res := range h.Stream(ctx, player, storagemodels.WithPageSize(2)) {
		require.NoError(t, res.Error)
		count++
	}
	assert.Equal(t, 5, count)
}
