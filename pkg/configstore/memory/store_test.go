package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/config-service/pkg/configstore"
)

func intPtr(v int) *int { return &v }

func TestStore_SequentialVersions(t *testing.T) {
	s := New()
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		rec, err := s.Insert(ctx, "api", nil, []byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, want, rec.Version)
	}

	other, err := s.Insert(ctx, "worker", nil, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, other.Version, "versions are per service")
}

func TestStore_DeclaredVersionAndGap(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Insert(ctx, "api", intPtr(10), []byte(`{}`))
	require.NoError(t, err)

	rec, err := s.Insert(ctx, "api", nil, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 11, rec.Version)

	_, err = s.Insert(ctx, "api", intPtr(5), []byte(`{}`))
	require.NoError(t, err, "gaps below the max are accepted")

	latest, err := s.Latest(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, 11, latest.Version)
}

func TestStore_Conflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Insert(ctx, "api", intPtr(2), []byte(`{"a":1}`))
	require.NoError(t, err)
	_, err = s.Insert(ctx, "api", intPtr(2), []byte(`{"a":2}`))
	assert.True(t, errors.Is(err, configstore.ErrVersionConflict))

	rec, err := s.Version(ctx, "api", 2)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(rec.Payload), "original record is kept")
}

func TestStore_NotFound(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec, err := s.Latest(ctx, "none")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = s.Version(ctx, "none", 1)
	require.NoError(t, err)
	assert.Nil(t, rec)

	revs, err := s.Recent(ctx, "none", 10)
	require.NoError(t, err)
	assert.NotNil(t, revs)
	assert.Empty(t, revs)
}

func TestStore_RecentOrderAndLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, v := range []int{3, 1, 7, 5} {
		_, err := s.Insert(ctx, "api", intPtr(v), []byte(`{}`))
		require.NoError(t, err)
	}

	revs, err := s.Recent(ctx, "api", 3)
	require.NoError(t, err)
	require.Len(t, revs, 3)
	assert.Equal(t, []int{7, 5, 3}, []int{revs[0].Version, revs[1].Version, revs[2].Version})
}

func TestStore_ConcurrentInsertsAreUnique(t *testing.T) {
	s := New()
	ctx := context.Background()

	const writers = 50
	var wg sync.WaitGroup
	versions := make(chan int, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := s.Insert(ctx, "api", nil, []byte(`{}`))
			if err == nil {
				versions <- rec.Version
			}
		}()
	}
	wg.Wait()
	close(versions)

	seen := map[int]bool{}
	for v := range versions {
		assert.False(t, seen[v], "duplicate version %d", v)
		seen[v] = true
	}
	assert.Len(t, seen, writers)
}

func TestStore_PayloadIsCopied(t *testing.T) {
	s := New()
	payload := []byte(`{"a":1}`)
	_, err := s.Insert(context.Background(), "api", nil, payload)
	require.NoError(t, err)
	payload[2] = 'b'

	rec, err := s.Latest(context.Background(), "api")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(rec.Payload))
	assert.Equal(t, "memory", s.Mode())
	assert.NoError(t, s.Ping(context.Background()))
}
