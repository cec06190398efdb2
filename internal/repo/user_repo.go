// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for local user
// profiles.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
)

// UpsertUserByEmail finds the user with email (case-insensitive) and
// refreshes the non-empty name fields, or creates the user.
func UpsertUserByEmail(ctx context.Context, db *gorm.DB, email, firstName, lastName string) (*domain.User, error) {
	db = db.WithContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))
	now := time.Now().UTC()

	var u domain.User
	err := db.Where("email = ?", email).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		u = domain.User{
			ID:        uuid.NewString(),
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := db.Create(&u).Error; err != nil {
			return nil, err
		}
		return &u, nil
	case err != nil:
		return nil, err
	}

	updates := map[string]any{"updated_at": now}
	if firstName != "" {
		u.FirstName = firstName
		updates["first_name"] = firstName
	}
	if lastName != "" {
		u.LastName = lastName
		updates["last_name"] = lastName
	}
	if err := db.Model(&domain.User{}).Where("id = ?", u.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	u.UpdatedAt = now
	return &u, nil
}

// GetUser fetches a user by id.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserProfile applies the given column updates to user id and returns
// the refreshed row. Unknown columns are the caller's responsibility.
func UpdateUserProfile(ctx context.Context, db *gorm.DB, id string, updates map[string]any) (*domain.User, error) {
	db = db.WithContext(ctx)
	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		res := db.Model(&domain.User{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, gorm.ErrRecordNotFound
		}
	}
	return GetUser(ctx, db, id)
}
