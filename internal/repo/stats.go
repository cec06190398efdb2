// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation) and the statistics endpoints.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
)

// RecordsStats returns the number of userID's active records and the
// greatest RefreshedAt among them (nil when there are none).
func RecordsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxRefreshedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Record{}).Where("user_id = ? AND active = ?", userID, true)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest refreshed_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		RefreshedAt time.Time
	}
	if err = q.Select("refreshed_at").Order("refreshed_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.RefreshedAt, nil
}

// AnnouncementsStats returns the number of public announcements and the
// greatest UpdatedAt among them (nil when there are none).
func AnnouncementsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := visible(db.WithContext(ctx).Model(&domain.Announcement{}))

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// AnnouncementCounts aggregates announcement visibility.
type AnnouncementCounts struct {
	Active     int64
	Published  int64
	Pending    int64
	ByCategory map[string]int64 // public rows only
	ByType     map[string]int64 // public rows only, every known type present
}

// CountAnnouncements computes AnnouncementCounts.
func CountAnnouncements(ctx context.Context, db *gorm.DB) (*AnnouncementCounts, error) {
	db = db.WithContext(ctx)
	out := &AnnouncementCounts{
		ByCategory: map[string]int64{},
		ByType:     map[string]int64{},
	}

	var pub []struct {
		Published bool
		N         int64
	}
	err := db.Model(&domain.Announcement{}).
		Select("published, COUNT(*) AS n").
		Where("active = ?", true).
		Group("published").
		Scan(&pub).Error
	if err != nil {
		return nil, err
	}
	for _, r := range pub {
		out.Active += r.N
		if r.Published {
			out.Published = r.N
		} else {
			out.Pending = r.N
		}
	}

	var cats []struct {
		Category string
		N        int64
	}
	err = visible(db.Model(&domain.Announcement{})).
		Select("category, COUNT(*) AS n").
		Group("category").
		Scan(&cats).Error
	if err != nil {
		return nil, err
	}
	for _, r := range cats {
		out.ByCategory[r.Category] = r.N
	}

	for _, t := range domain.AnnouncementTypes() {
		out.ByType[t.Value] = 0
	}
	var types []struct {
		Type string
		N    int64
	}
	err = visible(db.Model(&domain.Announcement{})).
		Select("type, COUNT(*) AS n").
		Group("type").
		Scan(&types).Error
	if err != nil {
		return nil, err
	}
	for _, r := range types {
		out.ByType[r.Type] = r.N
	}
	return out, nil
}
