package routing_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chargenet/central-system/internal/routing"
)

func TestRedisRoutingStoreSetGetDeleteOwner(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &routing.RedisRoutingStore{Client: db, Prefix: "route:"}
	ctx := context.Background()

	stationID := "CP001"
	podID := "pod-1"
	ttl := 5 * time.Minute
	key := "route:CP001"

	mock.ExpectSet(key, podID, ttl).SetVal("OK")
	require.NoError(t, store.SetOwner(ctx, stationID, podID, ttl))

	mock.ExpectGet(key).SetVal(podID)
	owner, ok, err := store.GetOwner(ctx, stationID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, podID, owner)

	mock.ExpectGet(key).RedisNil()
	owner, ok, err = store.GetOwner(ctx, stationID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, owner)

	mock.ExpectDel(key).SetVal(1)
	require.NoError(t, store.DeleteOwner(ctx, stationID))

	assert.NoError(t, mock.ExpectationsWereMet())
}
