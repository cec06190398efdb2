// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for mirrored
// ledger records.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - When a record is not found (or not owned by the caller), functions
//     return gorm.ErrRecordNotFound (exported here as ErrNotFound).
//   - On DB errors the raw gorm error is propagated.
//
// Functions:
//
//   - UpsertRecord(ctx, db, item, ownerID) -> UpsertResult, error
//     Inserts a record for a new remote id, or overwrites the mutable
//     fields of the existing one. Ownership is fixed at creation.
//
//   - UpsertRecords(ctx, db, items, ownerID) -> []UpsertResult, error
//     UpsertRecord over a batch, in input order.
//
//   - ListActiveRecords / CountActiveRecords
//     Paginated listing of a user's active records, newest period first.
//
//   - GetRecord / GetRecordByRemoteID
//     Owner-scoped single-record lookups.
//
//   - UpdateRecordBalances(ctx, db, id, ownerID, balances) -> error
//     Writes the balances a fresh remote read carried.
//
//   - DeactivateRecord(ctx, db, id, ownerID) -> error
//     Soft delete.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
	"github.com/tbourn/tahsilat-gateway/internal/ledger"
)

// ErrNotFound is returned when a requested row does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// UpsertOutcome tags what UpsertRecord did.
type UpsertOutcome string

const (
	OutcomeCreated UpsertOutcome = "created"
	OutcomeUpdated UpsertOutcome = "updated"
)

// UpsertResult is the record as persisted plus the branch taken.
type UpsertResult struct {
	Record  *domain.Record
	Outcome UpsertOutcome
}

// UpsertRecord stores one remote item.
//
// When no row carries item.RemoteID a new one is inserted, owned by ownerID.
// Otherwise the descriptive and monetary fields are overwritten, the row is
// re-activated and RefreshedAt moves forward; UserID and QueriedAt are kept.
// A concurrent insert of the same remote id falls through to the update.
func UpsertRecord(ctx context.Context, db *gorm.DB, item ledger.Item, ownerID string) (UpsertResult, error) {
	db = db.WithContext(ctx)
	now := time.Now().UTC()

	existing, err := findByRemoteID(db, item.RemoteID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return UpsertResult{}, err
	}

	if existing == nil {
		rec := &domain.Record{
			ID:          uuid.NewString(),
			RemoteID:    item.RemoteID,
			UserID:      ownerID,
			QueriedAt:   now,
			RefreshedAt: now,
			Active:      true,
		}
		applyItem(rec, item)
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "remote_id"}},
			DoNothing: true,
		}).Create(rec)
		if res.Error != nil {
			return UpsertResult{}, res.Error
		}
		if res.RowsAffected == 1 {
			return UpsertResult{Record: rec, Outcome: OutcomeCreated}, nil
		}
		if existing, err = findByRemoteID(db, item.RemoteID); err != nil {
			return UpsertResult{}, err
		}
	}

	applyItem(existing, item)
	existing.Active = true
	existing.RefreshedAt = now
	err = db.Model(&domain.Record{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"reference_no":    existing.ReferenceNo,
			"category":        existing.Category,
			"subject":         existing.Subject,
			"counterparty_id": existing.CounterpartyID,
			"principal":       existing.Principal,
			"collected":       existing.Collected,
			"remaining":       existing.Remaining,
			"period":          existing.Period,
			"external_id":     existing.ExternalID,
			"active":          true,
			"refreshed_at":    now,
		}).Error
	if err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{Record: existing, Outcome: OutcomeUpdated}, nil
}

// UpsertRecords applies UpsertRecord to each item in order and stops at the
// first error. Run it inside a transaction for all-or-nothing semantics.
func UpsertRecords(ctx context.Context, db *gorm.DB, items []ledger.Item, ownerID string) ([]UpsertResult, error) {
	out := make([]UpsertResult, 0, len(items))
	for _, it := range items {
		r, err := UpsertRecord(ctx, db, it, ownerID)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func findByRemoteID(db *gorm.DB, remoteID int64) (*domain.Record, error) {
	var r domain.Record
	if err := db.Where("remote_id = ?", remoteID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

func applyItem(r *domain.Record, it ledger.Item) {
	r.ReferenceNo = it.ReferenceNo
	r.Category = it.Category
	r.Subject = it.Subject
	r.CounterpartyID = it.CounterpartyID
	r.Principal = it.Principal
	r.Collected = it.Collected
	r.Remaining = it.Remaining
	r.Period = it.Period.Ptr()
	r.ExternalID = it.ExternalID
}

// ListActiveRecords returns a page of userID's active records ordered by
// period descending (undated last), then remote id descending.
func ListActiveRecords(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Record, error) {
	var out []domain.Record
	err := db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Order("period IS NULL, period DESC, remote_id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountActiveRecords returns the number of active records owned by userID.
func CountActiveRecords(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("user_id = ? AND active = ?", userID, true).
		Count(&total).Error
	return total, err
}

// AllActiveRecords returns every active record owned by userID.
func AllActiveRecords(ctx context.Context, db *gorm.DB, userID string) ([]domain.Record, error) {
	var out []domain.Record
	err := db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Find(&out).Error
	return out, err
}

// GetRecord fetches an active record by local id and owner.
func GetRecord(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Record, error) {
	var r domain.Record
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND active = ?", id, ownerID, true).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRecordByRemoteID fetches an active record by ledger id and owner.
func GetRecordByRemoteID(ctx context.Context, db *gorm.DB, remoteID int64, ownerID string) (*domain.Record, error) {
	var r domain.Record
	err := db.WithContext(ctx).
		Where("remote_id = ? AND user_id = ? AND active = ?", remoteID, ownerID, true).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRecordBalances writes the balances present in b to an owned record
// and bumps RefreshedAt. Absent balances keep their stored value. It returns
// ErrNotFound when nothing matched.
func UpdateRecordBalances(ctx context.Context, db *gorm.DB, id, ownerID string, b ledger.Balances) error {
	cols := map[string]any{"refreshed_at": time.Now().UTC()}
	if b.Principal.Valid {
		cols["principal"] = b.Principal.Decimal
	}
	if b.Collected.Valid {
		cols["collected"] = b.Collected.Decimal
	}
	if b.Remaining.Valid {
		cols["remaining"] = b.Remaining.Decimal
	}

	res := db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeactivateRecord soft-deletes an owned, active record.
func DeactivateRecord(ctx context.Context, db *gorm.DB, id, ownerID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("id = ? AND user_id = ? AND active = ?", id, ownerID, true).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
