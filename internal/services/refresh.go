package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/yishak-cs/stylematch/internal/logger"
	"github.com/yishak-cs/stylematch/internal/models"
	"github.com/yishak-cs/stylematch/internal/recommend"
	"github.com/yishak-cs/stylematch/internal/store"
)

// Refresher replaces an owner's stored recommendations with a new ranking.
type Refresher struct {
	store   store.RecommendationStore
	locker  store.Locker
	timeout time.Duration
	log     *logger.Logger

	now   func() time.Time
	newID func() string
}

// NewRefresher creates a refresher. A nil locker does not serialize refreshes.
func NewRefresher(recs store.RecommendationStore, locker store.Locker, timeout time.Duration, log *logger.Logger) *Refresher {
	if locker == nil {
		locker = store.NopLocker{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Refresher{
		store:   recs,
		locker:  locker,
		timeout: timeout,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// Refresh deletes the owner's rows and inserts ranked in order. It returns
// the number of rows written.
//
// A failed delete leaves the old rows in place and is reported as
// store.ErrUnavailable. A failed insert after a successful delete is reported
// as *RefreshPartialFailureError. Refreshing twice with the same input leaves
// the same rows (apart from refresh id and timestamp).
func (r *Refresher) Refresh(ctx context.Context, ownerID string, ranked []recommend.ScoredItem) (int, error) {
	release, err := r.locker.Acquire(ctx, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			return 0, ErrRefreshInProgress
		}
		return 0, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			r.log.Warn("failed to release refresh lock", "owner_id", ownerID, "error", err)
		}
	}()

	deleteCtx, cancel := context.WithTimeout(ctx, r.timeout)
	err = r.store.DeleteForOwner(deleteCtx, ownerID)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) || errors.Is(err, store.ErrAccessDenied) {
			return 0, err
		}
		return 0, store.Unavailable("delete recommendations", err)
	}

	if len(ranked) == 0 {
		return 0, nil
	}

	rows := r.rows(ownerID, ranked)

	insertCtx, cancel := context.WithTimeout(ctx, r.timeout)
	err = r.store.Insert(insertCtx, rows)
	cancel()
	if err != nil {
		return 0, &RefreshPartialFailureError{OwnerID: ownerID, Err: err}
	}

	r.log.Debug("recommendations refreshed", "owner_id", ownerID, "count", len(rows), "refresh", rows[0].RefreshID)
	return len(rows), nil
}

func (r *Refresher) rows(ownerID string, ranked []recommend.ScoredItem) []models.Recommendation {
	refreshID := r.newID()
	createdAt := r.now()

	rows := make([]models.Recommendation, len(ranked))
	for i, item := range ranked {
		rows[i] = models.Recommendation{
			OwnerID:   ownerID,
			ProductID: item.ItemID,
			Score:     item.Score,
			Reason:    item.Reason,
			Position:  i,
			RefreshID: refreshID,
			CreatedAt: createdAt,
		}
	}
	return rows
}
