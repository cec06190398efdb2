package services

import (
	"context"
	"errors"
	"strings"

	"github.com/ttacon/libphonenumber"
	"gorm.io/gorm"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
	"github.com/tbourn/tahsilat-gateway/internal/repo"
)

// phoneRegion is used to parse numbers given without a country code.
const phoneRegion = "TR"

// ProfileUpdate is a partial profile change; nil fields are left as is.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string // empty string clears the number
}

// ProfileService reads and edits the local user profile.
type ProfileService struct {
	DB *gorm.DB
}

func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{DB: db}
}

// Get returns the user's profile.
func (s *ProfileService) Get(ctx context.Context, userID string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// Update applies upd. Phone numbers are normalized to E.164.
func (s *ProfileService) Update(ctx context.Context, userID string, upd ProfileUpdate) (*domain.User, error) {
	fields := map[string]string{}
	updates := map[string]any{}

	if upd.FirstName != nil {
		v := strings.TrimSpace(*upd.FirstName)
		if len([]rune(v)) > 150 {
			fields["first_name"] = "max"
		}
		updates["first_name"] = v
	}
	if upd.LastName != nil {
		v := strings.TrimSpace(*upd.LastName)
		if len([]rune(v)) > 150 {
			fields["last_name"] = "max"
		}
		updates["last_name"] = v
	}
	if upd.Phone != nil {
		v, err := normalizePhone(*upd.Phone)
		if err != nil {
			fields["phone"] = "Geçersiz telefon numarası"
		}
		updates["phone"] = v
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	u, err := repo.UpdateUserProfile(ctx, s.DB, userID, updates)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func normalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := libphonenumber.Parse(raw, phoneRegion)
	if err != nil {
		return "", err
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", errors.New("invalid phone number")
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}
