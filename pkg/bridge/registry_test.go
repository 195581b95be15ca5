package bridge

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a map-backed Store that enforces canonical-pair uniqueness
// under a mutex, the same contract the SQLite store provides.
type memStore struct {
	mu      sync.Mutex
	rows    map[[2]ChannelID]Bridge
	extra   []Bridge // rows injected without uniqueness, for defensive lookups
	failErr error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[[2]ChannelID]Bridge)}
}

func (m *memStore) InsertBridge(_ context.Context, b Bridge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	if _, ok := m.rows[b.Key()]; ok {
		return ErrDuplicateBridge
	}
	m.rows[b.Key()] = b
	return nil
}

func (m *memStore) DeleteBridge(_ context.Context, b Bridge) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return false, m.failErr
	}
	_, ok := m.rows[b.Key()]
	delete(m.rows, b.Key())
	return ok, nil
}

func (m *memStore) ListTargets(_ context.Context, ch ChannelID) ([]ChannelID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	var out []ChannelID
	for _, b := range m.rows {
		if other, ok := b.Other(ch); ok {
			out = append(out, other)
		}
	}
	for _, b := range m.extra {
		if b.Low == ch {
			out = append(out, b.High)
		}
		if b.High == ch {
			out = append(out, b.Low)
		}
	}
	return out, nil
}

func (m *memStore) ListBridges(_ context.Context) ([]Bridge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	out := make([]Bridge, 0, len(m.rows))
	for _, b := range m.rows {
		out = append(out, b)
	}
	return out, nil
}

type staticResolver map[ChannelID]ChannelInfo

func (r staticResolver) ResolveChannel(_ context.Context, id ChannelID) (ChannelInfo, bool) {
	info, ok := r[id]
	return info, ok
}

func TestCreateBridge_ReverseIsDuplicate(t *testing.T) {
	reg := NewRegistry(newMemStore(), nil)
	ctx := context.Background()

	_, err := reg.CreateBridge(ctx, 100, 200)
	require.NoError(t, err)

	_, err = reg.CreateBridge(ctx, 200, 100)
	assert.ErrorIs(t, err, ErrDuplicateBridge)
	assert.True(t, IsUserError(err))
}

func TestCreateBridge_SelfLink(t *testing.T) {
	store := newMemStore()
	reg := NewRegistry(store, nil)

	_, err := reg.CreateBridge(context.Background(), 100, 100)
	assert.ErrorIs(t, err, ErrSelfLink)
	assert.Empty(t, store.rows)
}

func TestCreateBridge_CanonicalizesPair(t *testing.T) {
	reg := NewRegistry(newMemStore(), nil)

	b, err := reg.CreateBridge(context.Background(), 900, 100)
	require.NoError(t, err)
	assert.Equal(t, ChannelID(100), b.Low)
	assert.Equal(t, ChannelID(900), b.High)
	assert.False(t, b.CreatedAt.IsZero())
}

func TestCreateBridge_StoreFailureIsPersistenceError(t *testing.T) {
	store := newMemStore()
	store.failErr = errors.New("disk gone")
	reg := NewRegistry(store, nil)

	_, err := reg.CreateBridge(context.Background(), 1, 2)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "insert", perr.Op)
	assert.False(t, IsUserError(err))
}

func TestRemoveBridge_Idempotent(t *testing.T) {
	reg := NewRegistry(newMemStore(), nil)
	ctx := context.Background()

	removed, err := reg.RemoveBridge(ctx, 100, 200)
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = reg.RemoveBridge(ctx, 7, 7)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemoveBridge_EitherOrientation(t *testing.T) {
	for _, tc := range []struct {
		name string
		a, b ChannelID
	}{
		{name: "same orientation", a: 100, b: 200},
		{name: "reversed", a: 200, b: 100},
	} {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry(newMemStore(), nil)
			ctx := context.Background()
			_, err := reg.CreateBridge(ctx, 100, 200)
			require.NoError(t, err)

			removed, err := reg.RemoveBridge(ctx, tc.a, tc.b)
			require.NoError(t, err)
			assert.True(t, removed)

			targets, err := reg.LookupTargets(ctx, 100)
			require.NoError(t, err)
			assert.NotContains(t, targets, ChannelID(200))
			targets, err = reg.LookupTargets(ctx, 200)
			require.NoError(t, err)
			assert.NotContains(t, targets, ChannelID(100))
		})
	}
}

func TestLookupTargets_Symmetric(t *testing.T) {
	reg := NewRegistry(newMemStore(), nil)
	ctx := context.Background()
	_, err := reg.CreateBridge(ctx, 100, 200)
	require.NoError(t, err)

	targets, err := reg.LookupTargets(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []ChannelID{200}, targets)

	targets, err = reg.LookupTargets(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, []ChannelID{100}, targets)
}

func TestLookupTargets_NoChaining(t *testing.T) {
	reg := NewRegistry(newMemStore(), nil)
	ctx := context.Background()
	_, err := reg.CreateBridge(ctx, 100, 200)
	require.NoError(t, err)
	_, err = reg.CreateBridge(ctx, 200, 300)
	require.NoError(t, err)

	targets, err := reg.LookupTargets(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []ChannelID{200}, targets)
}

func TestLookupTargets_EmptyIsNotError(t *testing.T) {
	reg := NewRegistry(newMemStore(), nil)

	targets, err := reg.LookupTargets(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestLookupTargets_DeduplicatesPathologicalRows(t *testing.T) {
	store := newMemStore()
	store.rows[NewBridge(100, 200).Key()] = NewBridge(100, 200)
	store.extra = []Bridge{
		{Low: 200, High: 100},
		{Low: 100, High: 200},
		{Low: 100, High: 100},
	}
	reg := NewRegistry(store, nil)

	targets, err := reg.LookupTargets(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, []ChannelID{200}, targets)
}

func TestLookupTargets_StoreFailure(t *testing.T) {
	store := newMemStore()
	store.failErr = errors.New("locked")
	reg := NewRegistry(store, nil)

	_, err := reg.LookupTargets(context.Background(), 1)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "lookup", perr.Op)
}

func TestListBridgesForGuild(t *testing.T) {
	store := newMemStore()
	reg := NewRegistry(store, staticResolver{
		100: {ID: 100, Name: "general", GuildID: 1, GuildName: "Alpha"},
		200: {ID: 200, Name: "lobby", GuildID: 2, GuildName: "Beta"},
		300: {ID: 300, Name: "random", GuildID: 3, GuildName: "Gamma"},
	})
	ctx := context.Background()
	for _, pair := range [][2]ChannelID{{100, 200}, {200, 300}, {100, 999}, {888, 999}} {
		_, err := reg.CreateBridge(ctx, pair[0], pair[1])
		require.NoError(t, err)
	}

	listings, err := reg.ListBridgesForGuild(ctx, 1)
	require.NoError(t, err)
	require.Len(t, listings, 2)

	byKey := map[[2]ChannelID]Listing{}
	for _, l := range listings {
		byKey[l.Bridge.Key()] = l
	}
	withMissing, ok := byKey[[2]ChannelID{100, 999}]
	require.True(t, ok)
	assert.True(t, withMissing.LowResolved)
	assert.False(t, withMissing.HighResolved)
	assert.Equal(t, ChannelID(999), withMissing.High.ID)

	_, ok = byKey[[2]ChannelID{100, 200}]
	assert.True(t, ok)
}

func TestListBridgesForGuild_NoResolver(t *testing.T) {
	reg := NewRegistry(newMemStore(), nil)
	_, err := reg.CreateBridge(context.Background(), 1, 2)
	require.NoError(t, err)

	listings, err := reg.ListBridgesForGuild(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestCreateBridge_ConcurrentSingleWinner(t *testing.T) {
	reg := NewRegistry(newMemStore(), nil)
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, b := ChannelID(100), ChannelID(200)
			if i%2 == 0 {
				a, b = b, a
			}
			if _, err := reg.CreateBridge(ctx, a, b); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestParseChannelID(t *testing.T) {
	id, err := ParseChannelID("1234567890123456789")
	require.NoError(t, err)
	assert.Equal(t, "1234567890123456789", id.String())
	assert.Equal(t, "<#1234567890123456789>", id.Mention())

	_, err = ParseChannelID("0")
	assert.Error(t, err)
	_, err = ParseChannelID("general")
	assert.Error(t, err)
	_, err = ParseChannelID("-5")
	assert.Error(t, err)

	_, err = ParseChannelID("9223372036854775807")
	assert.NoError(t, err)
	_, err = ParseChannelID("18446744073709551615")
	assert.ErrorIs(t, err, strconv.ErrRange)
}

func TestParseGuildID(t *testing.T) {
	id, err := ParseGuildID("42")
	require.NoError(t, err)
	assert.Equal(t, GuildID(42), id)

	_, err = ParseGuildID("9223372036854775808")
	assert.ErrorIs(t, err, strconv.ErrRange)
	_, err = ParseGuildID("-1")
	assert.Error(t, err)
}
