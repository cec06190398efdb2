// Package services – AnnouncementService
//
// AnnouncementService serves the public announcement feed and the
// authenticated editing operations. Input is validated with
// go-playground/validator; field errors are keyed by their JSON names.
package services

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
	"github.com/tbourn/tahsilat-gateway/internal/repo"
)

// AnnouncementInput is the payload for creating an announcement.
type AnnouncementInput struct {
	Title     string     `json:"baslik"   validate:"required,max=200"`
	Category  string     `json:"kategori" validate:"required,max=100"`
	Type      string     `json:"tip"      validate:"omitempty,announcement_type"`
	Summary   string     `json:"ozet"     validate:"required,max=500"`
	Details   string     `json:"detaylar"`
	ImageURL  string     `json:"resim"    validate:"omitempty,url,max=500"`
	Date      *time.Time `json:"tarih"`
	Active    *bool      `json:"aktif"`
	Published *bool      `json:"yayinlandi"`
	SortOrder int        `json:"sira"`
}

// AnnouncementPatch is a partial update; nil fields are left unchanged.
type AnnouncementPatch struct {
	Title     *string    `json:"baslik"     validate:"omitempty,min=1,max=200"`
	Category  *string    `json:"kategori"   validate:"omitempty,min=1,max=100"`
	Type      *string    `json:"tip"        validate:"omitempty,announcement_type"`
	Summary   *string    `json:"ozet"       validate:"omitempty,min=1,max=500"`
	Details   *string    `json:"detaylar"`
	ImageURL  *string    `json:"resim"      validate:"omitempty,max=500"`
	Date      *time.Time `json:"tarih"`
	Active    *bool      `json:"aktif"`
	Published *bool      `json:"yayinlandi"`
	SortOrder *int       `json:"sira"`
}

// AnnouncementStatistics summarizes the announcement table.
type AnnouncementStatistics = repo.AnnouncementCounts

// AnnouncementService manages announcements.
type AnnouncementService struct {
	DB       *gorm.DB
	validate *validator.Validate
}

// NewAnnouncementService constructs an AnnouncementService.
func NewAnnouncementService(db *gorm.DB) *AnnouncementService {
	return &AnnouncementService{DB: db, validate: newValidator()}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("announcement_type", func(fl validator.FieldLevel) bool {
		return domain.ValidAnnouncementType(fl.Field().String())
	})
	return v
}

// validationFields maps validator errors to field → failed tag.
func validationFields(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	fields := make(map[string]string, len(ves))
	for _, ve := range ves {
		fields[ve.Field()] = ve.Tag()
	}
	return &ValidationError{Fields: fields}
}

// List returns a page of public announcements and the total matching count.
func (s *AnnouncementService) List(ctx context.Context, f repo.AnnouncementFilter, page, pageSize int) ([]domain.Announcement, int64, error) {
	ctx, span := otel.Tracer("services/AnnouncementService").Start(ctx, "List")
	defer span.End()

	f.Category = strings.TrimSpace(f.Category)
	f.Type = strings.TrimSpace(f.Type)
	f.Search = strings.TrimSpace(f.Search)

	offset, limit := pageWindow(page, pageSize)
	total, err := repo.CountVisibleAnnouncements(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListVisibleAnnouncements(ctx, s.DB, f, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Stats returns the listing ETag inputs.
func (s *AnnouncementService) Stats(ctx context.Context) (int64, *time.Time, error) {
	return repo.AnnouncementsStats(ctx, s.DB)
}

// Get returns one public announcement.
func (s *AnnouncementService) Get(ctx context.Context, id string) (*domain.Announcement, error) {
	a, err := repo.GetVisibleAnnouncement(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAnnouncementNotFound
	}
	return a, err
}

// Categories returns the distinct categories of public announcements.
func (s *AnnouncementService) Categories(ctx context.Context) ([]string, error) {
	return repo.VisibleCategories(ctx, s.DB)
}

// Types returns the supported announcement types.
func (s *AnnouncementService) Types() []domain.AnnouncementType {
	return domain.AnnouncementTypes()
}

// Statistics counts announcements by state, category and type.
func (s *AnnouncementService) Statistics(ctx context.Context) (*AnnouncementStatistics, error) {
	return repo.CountAnnouncements(ctx, s.DB)
}

// Create validates in and stores a new announcement. Type defaults to
// normal; Active and Published default to true.
func (s *AnnouncementService) Create(ctx context.Context, in AnnouncementInput) (*domain.Announcement, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	in.Summary = strings.TrimSpace(in.Summary)
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return nil, validationFields(err)
	}

	a := &domain.Announcement{
		Title:     in.Title,
		Category:  in.Category,
		Type:      in.Type,
		Summary:   in.Summary,
		Details:   in.Details,
		ImageURL:  in.ImageURL,
		Active:    true,
		Published: true,
		SortOrder: in.SortOrder,
	}
	if a.Type == "" {
		a.Type = domain.AnnouncementNormal
	}
	if in.Date != nil {
		a.Date = in.Date.UTC()
	}
	if in.Active != nil {
		a.Active = *in.Active
	}
	if in.Published != nil {
		a.Published = *in.Published
	}

	if err := repo.CreateAnnouncement(ctx, s.DB, a); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("announcement_id", a.ID).Msg("announcement created")
	return a, nil
}

// Update applies p to announcement id regardless of its visibility.
func (s *AnnouncementService) Update(ctx context.Context, id string, p AnnouncementPatch) (*domain.Announcement, error) {
	if err := s.validate.StructCtx(ctx, p); err != nil {
		return nil, validationFields(err)
	}

	updates := map[string]any{}
	setString := func(col string, v *string) {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	setString("title", p.Title)
	setString("category", p.Category)
	setString("type", p.Type)
	setString("summary", p.Summary)
	setString("image_url", p.ImageURL)
	if p.Details != nil {
		updates["details"] = *p.Details
	}
	if p.Date != nil {
		updates["date"] = p.Date.UTC()
	}
	if p.Active != nil {
		updates["active"] = *p.Active
	}
	if p.Published != nil {
		updates["published"] = *p.Published
	}
	if p.SortOrder != nil {
		updates["sort_order"] = *p.SortOrder
	}

	if err := repo.UpdateAnnouncement(ctx, s.DB, id, updates); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAnnouncementNotFound
		}
		return nil, err
	}
	return repo.GetAnnouncement(ctx, s.DB, id)
}

// Delete removes announcement id.
func (s *AnnouncementService) Delete(ctx context.Context, id string) error {
	err := repo.DeleteAnnouncement(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrAnnouncementNotFound
	}
	return err
}

// TogglePublish flips the published flag of id and returns the new row.
func (s *AnnouncementService) TogglePublish(ctx context.Context, id string) (*domain.Announcement, error) {
	var out *domain.Announcement
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := repo.GetAnnouncement(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := repo.UpdateAnnouncement(ctx, tx, id, map[string]any{"published": !a.Published}); err != nil {
			return err
		}
		out, err = repo.GetAnnouncement(ctx, tx, id)
		return err
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAnnouncementNotFound
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
