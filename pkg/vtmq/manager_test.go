package vtmq_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwool/vtmq/pkg/internal/enginemock"
	"github.com/rwool/vtmq/pkg/vtmq"
)

func TestManagerCachesHandles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := vtmq.NewManager(enginemock.New(), nil)

	first, err := m.GetQueue(ctx, "jobs", nil, nil, nil)
	require.NoError(t, err, "Opening a queue should succeed.")
	second, err := m.GetQueue(ctx, "jobs", nil, nil, nil)
	require.NoError(t, err, "Re-opening a queue should succeed.")
	assert.Same(t, first, second, "The same name should yield the same handle.")

	other, err := m.GetQueue(ctx, "other", nil, nil, nil)
	require.NoError(t, err, "Opening a second queue should succeed.")
	assert.NotSame(t, first, other, "Different names should yield different handles.")
}

func TestManagerDeleteQueueEvicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := vtmq.NewManager(enginemock.New(), nil)

	q, err := m.GetQueue(ctx, "jobs", nil, nil, nil)
	require.NoError(t, err, "Opening a queue should succeed.")
	_, err = q.Push(ctx, "payload", nil)
	require.NoError(t, err, "Push should succeed.")

	require.NoError(t, m.DeleteQueue(ctx, "jobs"), "Deleting the queue should succeed.")

	reopened, err := m.GetQueue(ctx, "jobs", nil, nil, nil)
	require.NoError(t, err, "Re-opening after delete should succeed.")
	assert.NotSame(t, q, reopened, "Deletion should evict the cached handle.")

	info, err := reopened.Info(ctx)
	require.NoError(t, err, "Info should succeed.")
	assert.Equal(t, int64(0), info.Messages, "The recreated queue should be empty.")
}

func TestManagerQueues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := vtmq.NewManager(enginemock.New(), nil)

	for _, name := range []string{"b", "a", "c"} {
		_, err := m.GetQueue(ctx, name, nil, nil, nil)
		require.NoError(t, err, "Opening a queue should succeed.")
	}

	names, err := m.Queues(ctx)
	require.NoError(t, err, "Listing queues should succeed.")
	assert.Equal(t, []string{"a", "b", "c"}, names, "All queues should be listed in order.")
}

func TestNewManagerNilEngine(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { vtmq.NewManager(nil, nil) }, "A nil engine should panic.")
}
