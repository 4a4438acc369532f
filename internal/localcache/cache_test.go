package localcache

import (
	"context"
	"errors"
	"testing"

	"github.com/aristath/agrimarket/internal/domain"
	testingpkg "github.com/aristath/agrimarket/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_ScopedByUserAndKind(t *testing.T) {
	assert.NotEqual(t, Key("alice", KindSelectedAccounts), Key("bob", KindSelectedAccounts))
	assert.NotEqual(t, Key("alice", KindSelectedAccounts), Key("alice", KindSelectedSchedules))
	assert.Equal(t, Kind("view.products"), ViewKind(domain.TableProducts))

	user, kind, ok := SplitKey(Key("alice", ViewKind(domain.TableOrders)))
	require.True(t, ok)
	assert.Equal(t, "alice", user)
	assert.Equal(t, ViewKind(domain.TableOrders), kind)

	_, _, ok = SplitKey("unrelated")
	assert.False(t, ok)
}

func TestKey_UserIDWithSeparator(t *testing.T) {
	assert.NotContains(t, Key("a:b", KindSelectedAccounts), UserPrefix("a"))
	assert.NotEqual(t, Key("a", "b:"+KindSelectedAccounts), Key("a:b", KindSelectedAccounts))

	user, kind, ok := SplitKey(Key("a:b%c", KindFavoriteProducts))
	require.True(t, ok)
	assert.Equal(t, "a:b%c", user)
	assert.Equal(t, KindFavoriteProducts, kind)
}

func TestLoad_ReturnsSavedValue(t *testing.T) {
	store := testingpkg.NewMockKeyValueStore()
	cache := New(store, zerolog.Nop())
	ctx := context.Background()

	accounts := []string{"Sales", "Feed"}
	require.NoError(t, cache.Save(ctx, "alice", KindSelectedAccounts, accounts))

	got, ok, err := Load[[]string](ctx, cache, "alice", KindSelectedAccounts)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, accounts, got)

	// Another user on the same device sees nothing
	_, ok, err = Load[[]string](ctx, cache, "bob", KindSelectedAccounts)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoad_UndecodableEntryIsAbsent(t *testing.T) {
	store := testingpkg.NewMockKeyValueStore()
	cache := New(store, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, Key("alice", KindSelectedSchedules), "{not json"))

	got, ok, err := Load[[]int64](ctx, cache, "alice", KindSelectedSchedules)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestSave_RequiresUser(t *testing.T) {
	cache := New(testingpkg.NewMockKeyValueStore(), zerolog.Nop())

	err := cache.Save(context.Background(), "", KindFavoriteProducts, []string{"p1"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStoreErrorsPropagate(t *testing.T) {
	store := testingpkg.NewMockKeyValueStore()
	store.SetError(errors.New("disk full"))
	cache := New(store, zerolog.Nop())
	ctx := context.Background()

	assert.Error(t, cache.Save(ctx, "alice", KindFavoriteProducts, []string{"p1"}))
	_, _, err := Load[[]string](ctx, cache, "alice", KindFavoriteProducts)
	assert.ErrorContains(t, err, "disk full")
}
