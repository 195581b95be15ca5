package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/crossbridge/pkg/bridge"
	"github.com/tinyland-inc/crossbridge/pkg/store"
)

// knownChannels resolves ids mapped to true; ids mapped to false fail
// transiently and everything else is reported as gone.
type knownChannels map[bridge.ChannelID]bool

var errRateLimited = errors.New("HTTP 429 Too Many Requests")

func (k knownChannels) CheckChannel(_ context.Context, id bridge.ChannelID) (bridge.ChannelInfo, error) {
	ok, known := k[id]
	switch {
	case !known:
		return bridge.ChannelInfo{}, &bridge.ChannelUnresolvableError{Channel: id}
	case !ok:
		return bridge.ChannelInfo{}, errRateLimited
	}
	return bridge.ChannelInfo{ID: id}, nil
}

func newRegistry(t *testing.T, pairs ...[2]bridge.ChannelID) *bridge.Registry {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "bridges.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	reg := bridge.NewRegistry(s, nil)
	for _, p := range pairs {
		_, err := reg.CreateBridge(context.Background(), p[0], p[1])
		require.NoError(t, err)
	}
	return reg
}

func TestNew_RejectsInvalidSchedule(t *testing.T) {
	_, err := New(Config{Schedule: "whenever"}, newRegistry(t), knownChannels{})
	assert.Error(t, err)
}

func TestRunOnce_ReportsStale(t *testing.T) {
	reg := newRegistry(t, [2]bridge.ChannelID{1, 2}, [2]bridge.ChannelID{3, 4})
	a, err := New(Config{Schedule: "0 * * * *"}, reg, knownChannels{1: true, 2: true, 3: true})
	require.NoError(t, err)

	report, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	require.Len(t, report.Stale, 1)
	assert.Equal(t, bridge.ChannelID(3), report.Stale[0].Low)
	assert.Zero(t, report.Pruned)

	all, err := reg.ListBridges(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRunOnce_Prunes(t *testing.T) {
	reg := newRegistry(t, [2]bridge.ChannelID{1, 2}, [2]bridge.ChannelID{3, 4})
	a, err := New(Config{Schedule: "0 * * * *", Prune: true}, reg, knownChannels{1: true, 2: true, 3: true})
	require.NoError(t, err)

	report, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pruned)

	targets, err := reg.LookupTargets(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, targets)

	targets, err = reg.LookupTargets(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []bridge.ChannelID{2}, targets)
}

func TestRunOnce_TransientFailureNeverPrunes(t *testing.T) {
	reg := newRegistry(t,
		[2]bridge.ChannelID{1, 2},
		[2]bridge.ChannelID{3, 4},
		[2]bridge.ChannelID{5, 6},
	)
	// 1-2 healthy, 3-4 rate limited, 5-6 has one endpoint gone and one rate limited.
	a, err := New(Config{Schedule: "0 * * * *", Prune: true}, reg,
		knownChannels{1: true, 2: true, 3: true, 4: false, 6: false})
	require.NoError(t, err)

	report, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Stale)
	assert.Len(t, report.Unverified, 2)
	assert.Zero(t, report.Pruned)

	all, err := reg.ListBridges(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRunOnce_NothingResolvesSkipsPrune(t *testing.T) {
	reg := newRegistry(t, [2]bridge.ChannelID{1, 2})
	a, err := New(Config{Schedule: "0 * * * *", Prune: true}, reg, knownChannels{})
	require.NoError(t, err)

	report, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.PruneSkipped)
	assert.Zero(t, report.Pruned)

	all, err := reg.ListBridges(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTick_RespectsReadyCheck(t *testing.T) {
	reg := newRegistry(t, [2]bridge.ChannelID{1, 2})
	a, err := New(Config{Schedule: "* * * * *", Prune: true}, reg, knownChannels{1: true})
	require.NoError(t, err)

	a.SetReadyCheck(func() bool { return false })
	a.tick(context.Background(), time.Now())
	all, err := reg.ListBridges(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	a.SetReadyCheck(func() bool { return true })
	a.tick(context.Background(), time.Now())
	all, err = reg.ListBridges(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTick_NotDue(t *testing.T) {
	reg := newRegistry(t, [2]bridge.ChannelID{1, 2})
	a, err := New(Config{Schedule: "0 0 1 1 *", Prune: true}, reg, knownChannels{1: true})
	require.NoError(t, err)

	a.tick(context.Background(), time.Date(2026, 6, 15, 12, 30, 0, 0, time.UTC))
	all, err := reg.ListBridges(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
