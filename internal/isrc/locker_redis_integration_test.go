//go:build integration

package isrc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tunecast/internal/isrc"
	"tunecast/pkg/testutil/containers"
)

func TestRedisLocker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	redis := containers.GetManager().GetRedis(t)
	require.NoError(t, redis.FlushAll(context.Background()))

	locker := isrc.NewRedisLocker(redis.Client)
	ctx := context.Background()

	t.Run("mutual exclusion", func(t *testing.T) {
		unlock, err := locker.Acquire(ctx, "AB1:26", 5*time.Second)
		require.NoError(t, err)

		// Second acquirer blocks until release.
		var wg sync.WaitGroup
		acquired := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			second, err := locker.Acquire(ctx, "AB1:26", 5*time.Second)
			require.NoError(t, err)
			close(acquired)
			second()
		}()

		select {
		case <-acquired:
			t.Fatal("second acquirer got the lock while held")
		case <-time.After(200 * time.Millisecond):
		}

		unlock()
		wg.Wait()
		<-acquired
	})

	t.Run("independent keys do not contend", func(t *testing.T) {
		first, err := locker.Acquire(ctx, "AB1:26", 5*time.Second)
		require.NoError(t, err)
		defer first()

		done := make(chan struct{})
		go func() {
			second, err := locker.Acquire(ctx, "ZZ9:26", 5*time.Second)
			require.NoError(t, err)
			second()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("lock on a different key should not block")
		}
	})
}
