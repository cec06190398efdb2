package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
	"github.com/tbourn/tahsilat-gateway/internal/repo"
)

func boolPtr(b bool) *bool { return &b }

func TestAnnouncementService_CreateValidation(t *testing.T) {
	s := NewAnnouncementService(newSvcDB(t))

	_, err := s.Create(context.Background(), AnnouncementInput{Title: " ", Type: "gizli", ImageURL: "not a url"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want *ValidationError, got %v", err)
	}
	want := map[string]string{
		"baslik":   "required",
		"kategori": "required",
		"ozet":     "required",
		"tip":      "announcement_type",
		"resim":    "url",
	}
	for k, v := range want {
		if ve.Fields[k] != v {
			t.Fatalf("Fields[%q] = %q; want %q (all %v)", k, ve.Fields[k], v, ve.Fields)
		}
	}
}

func TestAnnouncementService_Lifecycle(t *testing.T) {
	s := NewAnnouncementService(newSvcDB(t))
	ctx := context.Background()

	a, err := s.Create(ctx, AnnouncementInput{Title: "Kesinti", Category: "Su", Summary: "Planlı kesinti"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.Type != domain.AnnouncementNormal || !a.Active || !a.Published || a.Date.IsZero() {
		t.Fatalf("defaults = %+v", a)
	}

	draft, err := s.Create(ctx, AnnouncementInput{
		Title: "Taslak", Category: "Baraj", Summary: "x", Type: domain.AnnouncementUrgent,
		Published: boolPtr(false), Date: ptrTime(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("Create draft: %v", err)
	}

	items, total, err := s.List(ctx, repo.AnnouncementFilter{}, 1, 10)
	if err != nil || total != 1 || len(items) != 1 || items[0].ID != a.ID {
		t.Fatalf("List = %d/%d, %v", len(items), total, err)
	}
	if _, err := s.Get(ctx, draft.ID); !errors.Is(err, ErrAnnouncementNotFound) {
		t.Fatalf("draft visible: %v", err)
	}

	toggled, err := s.TogglePublish(ctx, draft.ID)
	if err != nil || !toggled.Published {
		t.Fatalf("TogglePublish = %+v, %v", toggled, err)
	}
	cats, err := s.Categories(ctx)
	if err != nil || len(cats) != 2 || cats[0] != "Baraj" {
		t.Fatalf("Categories = %v, %v", cats, err)
	}

	upd, err := s.Update(ctx, a.ID, AnnouncementPatch{Title: strPtr("Kesinti (güncel)"), Active: boolPtr(false)})
	if err != nil || upd.Title != "Kesinti (güncel)" || upd.Active || upd.Summary != "Planlı kesinti" {
		t.Fatalf("Update = %+v, %v", upd, err)
	}
	var ve *ValidationError
	if _, err := s.Update(ctx, a.ID, AnnouncementPatch{Type: strPtr("x")}); !errors.As(err, &ve) {
		t.Fatalf("bad patch = %v", err)
	}

	st, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if st.Active != 1 || st.ByType[domain.AnnouncementUrgent] != 1 {
		t.Fatalf("stats = %+v", st)
	}

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, a.ID); !errors.Is(err, ErrAnnouncementNotFound) {
		t.Fatalf("second Delete = %v", err)
	}
	if _, err := s.Update(ctx, a.ID, AnnouncementPatch{Title: strPtr("x")}); !errors.Is(err, ErrAnnouncementNotFound) {
		t.Fatalf("Update missing = %v", err)
	}
	if _, err := s.TogglePublish(ctx, a.ID); !errors.Is(err, ErrAnnouncementNotFound) {
		t.Fatalf("Toggle missing = %v", err)
	}
	if len(s.Types()) != 4 {
		t.Fatalf("Types = %v", s.Types())
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
