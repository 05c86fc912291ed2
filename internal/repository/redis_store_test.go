package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"abm-playbook-workers/internal/common/logger"
	"abm-playbook-workers/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const historyKey = "abm:playbooks"

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func playbook(id string) *models.Playbook {
	pb := &models.Playbook{
		PlaybookID:     id,
		GenerationDate: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		PipelineStatus: "completed",
		EnrichedContacts: []models.Contact{
			{FullName: "Contact of " + id, Email: id + "@example.com"},
		},
	}
	pb.EnsureSlices()
	return pb
}

func ids(pbs []*models.Playbook) []string {
	out := make([]string, len(pbs))
	for i, pb := range pbs {
		out[i] = pb.PlaybookID
	}
	return out
}

func TestRedisStore_AppendKeepsNewestFirstWithinLimit(t *testing.T) {
	_, client := setupMiniredis(t)
	store := NewRedisStore(client, historyKey, 10, logger.NewTestLogger(t))
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		require.NoError(t, store.Append(ctx, playbook(fmt.Sprintf("pb-%02d", i))))
	}

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 10)
	assert.Equal(t, "pb-12", all[0].PlaybookID)
	assert.Equal(t, "pb-03", all[9].PlaybookID)
}

func TestRedisStore_ZeroLimitKeepsEverything(t *testing.T) {
	_, client := setupMiniredis(t)
	store := NewRedisStore(client, historyKey, 0, logger.NewTestLogger(t))

	for i := 0; i < 15; i++ {
		require.NoError(t, store.Append(context.Background(), playbook(fmt.Sprint(i))))
	}
	all, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 15)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	_, client := setupMiniredis(t)
	store := NewRedisStore(client, historyKey, 10, logger.NewTestLogger(t))
	ctx := context.Background()

	in := playbook("pb-1")
	in.Reports = []models.Report{{Title: "Cloud Outlook", TopicTags: []string{"cloud"}}}
	in.EnsureSlices()
	require.NoError(t, store.Append(ctx, in))

	got, err := store.Get(ctx, "pb-1")
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestRedisStore_GetMissing(t *testing.T) {
	_, client := setupMiniredis(t)
	store := NewRedisStore(client, historyKey, 10, logger.NewTestLogger(t))

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrPlaybookNotFound)
}

func TestRedisStore_ListSkipsCorruptEntries(t *testing.T) {
	mr, client := setupMiniredis(t)
	store := NewRedisStore(client, historyKey, 10, logger.NewTestLogger(t))
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, playbook("good")))
	_, err := mr.Lpush(historyKey, "{not json")
	require.NoError(t, err)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, ids(all))
}

func TestRedisStore_Remove(t *testing.T) {
	_, client := setupMiniredis(t)
	store := NewRedisStore(client, historyKey, 10, logger.NewTestLogger(t))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Append(ctx, playbook(id)))
	}

	require.NoError(t, store.Remove(ctx, 1))

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(all))

	assert.ErrorIs(t, store.Remove(ctx, 2), ErrPlaybookNotFound)
	assert.ErrorIs(t, store.Remove(ctx, -1), ErrPlaybookNotFound)
}

func TestRedisStore_RemoveKeepsIdenticalNeighbours(t *testing.T) {
	_, client := setupMiniredis(t)
	store := NewRedisStore(client, historyKey, 10, logger.NewTestLogger(t))
	ctx := context.Background()

	same := playbook("dup")
	require.NoError(t, store.Append(ctx, same))
	require.NoError(t, store.Append(ctx, same))

	require.NoError(t, store.Remove(ctx, 0))

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dup"}, ids(all))
}

func TestRedisStore_BackendErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, historyKey, 10, logger.NewTestLogger(t))
	ctx := context.Background()

	mock.ExpectLRange(historyKey, 0, -1).SetErr(errors.New("connection reset by peer"))
	_, err := store.List(ctx)
	assert.ErrorIs(t, err, ErrStoreFailed)

	mock.ExpectLLen(historyKey).SetErr(errors.New("connection reset by peer"))
	err = store.Remove(ctx, 0)
	assert.ErrorIs(t, err, ErrStoreFailed)

	assert.NoError(t, mock.ExpectationsWereMet())
}
