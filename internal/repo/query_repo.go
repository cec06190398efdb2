// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the query
// audit log.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
)

// CreateQuery inserts an audit row in its initial state (not successful,
// zero results, no error). ID and CreatedAt are assigned when empty.
func CreateQuery(ctx context.Context, db *gorm.DB, q *domain.Query) (*domain.Query, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	q.Success = false
	q.ResultCount = 0
	q.ErrorMessage = nil
	q.FinishedAt = nil
	if err := db.WithContext(ctx).Create(q).Error; err != nil {
		return nil, err
	}
	return q, nil
}

// FinalizeQuery records the outcome of a query exactly once. It only touches
// the outcome columns and returns ErrNotFound when id does not exist or was
// already finalized.
func FinalizeQuery(ctx context.Context, db *gorm.DB, id string, success bool, count int, errMsg *string) error {
	res := db.WithContext(ctx).
		Model(&domain.Query{}).
		Where("id = ? AND finished_at IS NULL", id).
		Updates(map[string]any{
			"success":       success,
			"result_count":  count,
			"error_message": errMsg,
			"finished_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetQuery fetches a query with its summary, scoped to its owner.
func GetQuery(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Query, error) {
	var q domain.Query
	err := db.WithContext(ctx).
		Preload("Summary").
		Where("id = ? AND user_id = ?", id, userID).
		First(&q).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ListQueries returns a page of userID's queries, newest first, with their
// summaries preloaded.
func ListQueries(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Query, error) {
	var out []domain.Query
	err := db.WithContext(ctx).
		Preload("Summary").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountQueries returns the number of queries issued by userID.
func CountQueries(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Query{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// QueryOutcomeCounts returns how many of userID's queries succeeded and
// failed.
func QueryOutcomeCounts(ctx context.Context, db *gorm.DB, userID string) (succeeded, failed int64, err error) {
	var rows []struct {
		Success bool
		N       int64
	}
	err = db.WithContext(ctx).
		Model(&domain.Query{}).
		Select("success, COUNT(*) AS n").
		Where("user_id = ?", userID).
		Group("success").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}
	for _, r := range rows {
		if r.Success {
			succeeded = r.N
		} else {
			failed = r.N
		}
	}
	return succeeded, failed, nil
}
