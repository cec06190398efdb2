// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for per-query
// summaries.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
)

// GetOrCreateSummary returns the summary of queryID, inserting one from
// totals when none exists. The bool reports whether a row was created.
// Only the monetary and result fields of totals are used.
func GetOrCreateSummary(ctx context.Context, db *gorm.DB, queryID string, totals domain.Summary) (*domain.Summary, bool, error) {
	db = db.WithContext(ctx)

	var s domain.Summary
	err := db.Where("query_id = ?", queryID).First(&s).Error
	if err == nil {
		return &s, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	s = domain.Summary{
		ID:                uuid.NewString(),
		QueryID:           queryID,
		Principal:         totals.Principal,
		Collected:         totals.Collected,
		Remaining:         totals.Remaining,
		ResultCode:        totals.ResultCode,
		ResultDescription: totals.ResultDescription,
		CreatedAt:         time.Now().UTC(),
	}
	if err := db.Create(&s).Error; err != nil {
		return nil, false, err
	}
	return &s, true, nil
}
