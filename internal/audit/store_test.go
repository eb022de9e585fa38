package audit

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/zeronet/pkg/types"
)

func setupStore(t *testing.T) *Store {
	store, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RecordAssignsIDAndTime(t *testing.T) {
	store := setupStore(t)
	store.now = func() time.Time { return time.Unix(1700000000, 0) }

	event := &types.ScanEvent{State: types.AccessShowSummary, Source: types.SourceEmbedded}
	require.NoError(t, store.Record(event))

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, int64(1700000000), event.ScannedAt.Unix())
}

func TestStore_RecentNewestFirst(t *testing.T) {
	store := setupStore(t)
	base := time.Unix(1700000000, 0).UTC()

	for i, state := range []types.AccessState{types.AccessShowSummary, types.AccessShowUnavailable, types.AccessShowSummary} {
		require.NoError(t, store.Record(&types.ScanEvent{
			State:     state,
			ScannedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, store.Record(&types.ScanEvent{
		State:     types.AccessShowUnavailable,
		ErrorCode: types.ErrCodeTamperDetected,
		Tampered:  true,
		ScannedAt: base.Add(time.Hour),
	}))

	events, err := store.Recent(2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Tampered)
	assert.Equal(t, types.ErrCodeTamperDetected, events[0].ErrorCode)
	assert.True(t, base.Add(2*time.Second).Equal(events[1].ScannedAt))

	all, err := store.Recent(100)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestStore_RecentEmpty(t *testing.T) {
	store := setupStore(t)

	events, err := store.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = store.Recent(0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStore_RecentForWallet(t *testing.T) {
	store := setupStore(t)
	base := time.Unix(1700000000, 0).UTC()
	const mine = "0xABC0000000000000000000000000000000000123"
	const other = "0x00000000000000000000000000000000000000ff"

	// the wallet's two scans are older than a burst of other traffic
	require.NoError(t, store.Record(&types.ScanEvent{ID: "mine-1", WalletAddress: mine, ScannedAt: base}))
	require.NoError(t, store.Record(&types.ScanEvent{ID: "mine-2", WalletAddress: strings.ToLower(mine), ScannedAt: base.Add(time.Second)}))
	for i := 0; i < 20; i++ {
		require.NoError(t, store.Record(&types.ScanEvent{
			WalletAddress: other,
			ScannedAt:     base.Add(time.Minute + time.Duration(i)*time.Second),
		}))
	}
	require.NoError(t, store.Record(&types.ScanEvent{ScannedAt: base.Add(time.Hour)}))

	events, err := store.RecentForWallet(mine, 5)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "mine-2", events[0].ID)
	assert.Equal(t, "mine-1", events[1].ID)

	events, err = store.RecentForWallet(mine, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "mine-2", events[0].ID)

	events, err = store.RecentForWallet(other, 100)
	require.NoError(t, err)
	assert.Len(t, events, 20)

	all, err := store.Recent(100)
	require.NoError(t, err)
	assert.Len(t, all, 23)
}
