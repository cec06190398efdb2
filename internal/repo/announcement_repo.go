// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for announcements.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
)

// AnnouncementFilter narrows public listings. Empty fields are ignored.
type AnnouncementFilter struct {
	Category string // substring, case-insensitive
	Type     string // exact
	Search   string // substring over title, summary and category
}

// visible restricts q to rows shown publicly.
func visible(q *gorm.DB) *gorm.DB {
	return q.Where("active = ? AND published = ?", true, true)
}

func likePattern(s string) string {
	s = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(strings.ToLower(s))
	return "%" + s + "%"
}

func applyAnnouncementFilter(q *gorm.DB, f AnnouncementFilter) *gorm.DB {
	if f.Category != "" {
		q = q.Where(`LOWER(category) LIKE ? ESCAPE '\'`, likePattern(f.Category))
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Search != "" {
		p := likePattern(f.Search)
		q = q.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(summary) LIKE ? ESCAPE '\' OR LOWER(category) LIKE ? ESCAPE '\')`, p, p, p)
	}
	return q
}

// ListVisibleAnnouncements returns a page of public announcements ordered
// by sort order, then date, newest first.
func ListVisibleAnnouncements(ctx context.Context, db *gorm.DB, f AnnouncementFilter, offset, limit int) ([]domain.Announcement, error) {
	var out []domain.Announcement
	q := applyAnnouncementFilter(visible(db.WithContext(ctx).Model(&domain.Announcement{})), f)
	err := q.Order("sort_order DESC, date DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountVisibleAnnouncements counts public announcements matching f.
func CountVisibleAnnouncements(ctx context.Context, db *gorm.DB, f AnnouncementFilter) (int64, error) {
	var total int64
	q := applyAnnouncementFilter(visible(db.WithContext(ctx).Model(&domain.Announcement{})), f)
	err := q.Count(&total).Error
	return total, err
}

// GetVisibleAnnouncement fetches one public announcement.
func GetVisibleAnnouncement(ctx context.Context, db *gorm.DB, id string) (*domain.Announcement, error) {
	var a domain.Announcement
	if err := visible(db.WithContext(ctx)).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAnnouncement fetches an announcement regardless of visibility.
func GetAnnouncement(ctx context.Context, db *gorm.DB, id string) (*domain.Announcement, error) {
	var a domain.Announcement
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// VisibleCategories returns the distinct categories of public announcements,
// sorted.
func VisibleCategories(ctx context.Context, db *gorm.DB) ([]string, error) {
	var out []string
	err := visible(db.WithContext(ctx).Model(&domain.Announcement{})).
		Distinct("category").
		Order("category").
		Pluck("category", &out).Error
	return out, err
}

// CreateAnnouncement inserts a. ID and timestamps are assigned when empty.
func CreateAnnouncement(ctx context.Context, db *gorm.DB, a *domain.Announcement) error {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Date.IsZero() {
		a.Date = now
	}
	a.CreatedAt, a.UpdatedAt = now, now
	return db.WithContext(ctx).Create(a).Error
}

// UpdateAnnouncement applies column updates to id. It returns ErrNotFound
// when id does not exist.
func UpdateAnnouncement(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.Announcement{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteAnnouncement removes id permanently.
func DeleteAnnouncement(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Announcement{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
