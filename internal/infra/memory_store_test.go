package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	_, err := store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	value := []byte(`{"a":1}`)
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'x'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
}

func TestMemoryStore_WatchDeliversLatest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewMemoryStore()
	defer store.Close()

	ch, err := store.Watch(ctx, "k")
	require.NoError(t, err)

	// Overflow the buffer; the last value must survive.
	for i := 0; i < watchBuffer+10; i++ {
		require.NoError(t, store.Set(ctx, "k", []byte{byte(i)}))
	}
	require.NoError(t, store.Set(ctx, "other", []byte("x")))

	var last domain.Change
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, "k", last.Key)
	assert.Equal(t, []byte{byte(watchBuffer + 9)}, last.Value)
}

func TestMemoryStore_WatchEndsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := NewMemoryStore()
	defer store.Close()

	ch, err := store.Watch(ctx, "k")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}

func TestMemoryStore_CloseClosesWatchers(t *testing.T) {
	store := NewMemoryStore()
	ch, err := store.Watch(context.Background(), "k")
	require.NoError(t, err)

	require.NoError(t, store.Close())
	_, ok := <-ch
	assert.False(t, ok)

	late, err := store.Watch(context.Background(), "k")
	require.NoError(t, err)
	_, ok = <-late
	assert.False(t, ok)
}
