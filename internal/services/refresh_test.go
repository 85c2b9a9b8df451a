package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yishak-cs/stylematch/internal/models"
	"github.com/yishak-cs/stylematch/internal/recommend"
	"github.com/yishak-cs/stylematch/internal/store"
)

func ranked(ids ...string) []recommend.ScoredItem {
	out := make([]recommend.ScoredItem, len(ids))
	for i, id := range ids {
		out[i] = recommend.ScoredItem{ItemID: id, Score: float64(len(ids) - i), Reason: recommend.ReasonBaseline}
	}
	return out
}

func TestRefresh_ReplacesRows(t *testing.T) {
	mem := newMemStore()
	mem.recs["owner"] = []models.Recommendation{{OwnerID: "owner", ProductID: "stale"}}
	mem.recs["other"] = []models.Recommendation{{OwnerID: "other", ProductID: "keep"}}

	r := NewRefresher(mem, nil, time.Second, nil)
	n, err := r.Refresh(context.Background(), "owner", ranked("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows := mem.stored("owner")
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, i, row.Position)
		assert.Equal(t, rows[0].RefreshID, row.RefreshID)
		assert.False(t, row.CreatedAt.IsZero())
	}
	assert.Equal(t, "a", rows[0].ProductID)
	assert.Len(t, mem.stored("other"), 1, "other owners are untouched")
}

func TestRefresh_Idempotent(t *testing.T) {
	mem := newMemStore()
	r := NewRefresher(mem, nil, time.Second, nil)
	input := ranked("a", "b")

	_, err := r.Refresh(context.Background(), "owner", input)
	require.NoError(t, err)
	first := mem.stored("owner")

	_, err = r.Refresh(context.Background(), "owner", input)
	require.NoError(t, err)
	second := mem.stored("owner")

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ProductID, second[i].ProductID)
		assert.Equal(t, first[i].Score, second[i].Score)
		assert.Equal(t, first[i].Reason, second[i].Reason)
		assert.Equal(t, first[i].Position, second[i].Position)
	}
}

func TestRefresh_EmptyRankingClearsOnly(t *testing.T) {
	mem := newMemStore()
	mem.recs["owner"] = []models.Recommendation{{OwnerID: "owner", ProductID: "stale"}}

	n, err := NewRefresher(mem, nil, time.Second, nil).Refresh(context.Background(), "owner", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, mem.stored("owner"))
	assert.Zero(t, mem.inserts)
}

func TestRefresh_DeleteFailureKeepsRows(t *testing.T) {
	mem := newMemStore()
	mem.recs["owner"] = []models.Recommendation{{OwnerID: "owner", ProductID: "old"}}
	mem.deleteErr = errors.New("socket closed")

	_, err := NewRefresher(mem, nil, time.Second, nil).Refresh(context.Background(), "owner", ranked("a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Zero(t, mem.inserts)
	assert.Len(t, mem.stored("owner"), 1)
}

func TestRefresh_DeleteAccessDeniedPassesThrough(t *testing.T) {
	mem := newMemStore()
	mem.deleteErr = store.ErrAccessDenied

	_, err := NewRefresher(mem, nil, time.Second, nil).Refresh(context.Background(), "owner", ranked("a"))
	assert.ErrorIs(t, err, store.ErrAccessDenied)
	assert.NotErrorIs(t, err, store.ErrUnavailable)
}

func TestRefresh_InsertFailureIsPartialAndRetrySafe(t *testing.T) {
	mem := newMemStore()
	mem.recs["owner"] = []models.Recommendation{{OwnerID: "owner", ProductID: "old"}}
	mem.insertErr = store.Unavailable("insert", errors.New("timeout"))
	r := NewRefresher(mem, nil, time.Second, nil)

	_, err := r.Refresh(context.Background(), "owner", ranked("a", "b"))
	var partial *RefreshPartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "owner", partial.OwnerID)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Empty(t, mem.stored("owner"))

	mem.insertErr = nil
	n, err := r.Refresh(context.Background(), "owner", ranked("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, mem.stored("owner"), 2)
}

func TestRefresh_LockHeld(t *testing.T) {
	mem := newMemStore()
	_, err := NewRefresher(mem, lockedLocker{}, time.Second, nil).Refresh(context.Background(), "owner", ranked("a"))
	assert.ErrorIs(t, err, ErrRefreshInProgress)
	assert.Zero(t, mem.deletes)
}

func TestRefresh_ReleasesLock(t *testing.T) {
	mem := newMemStore()
	mem.insertErr = errors.New("boom")
	locker := &countingLocker{}

	_, err := NewRefresher(mem, locker, time.Second, nil).Refresh(context.Background(), "owner", ranked("a"))
	require.Error(t, err)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
}
