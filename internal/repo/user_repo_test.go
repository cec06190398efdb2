package repo

import (
	"context"
	"errors"
	"testing"
)

func TestUpsertUserByEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u, err := UpsertUserByEmail(ctx, db, "  Ayse@DSI.gov.tr ", "Ayşe", "Yılmaz")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.Email != "ayse@dsi.gov.tr" || u.FirstName != "Ayşe" {
		t.Fatalf("created = %+v", u)
	}

	// Empty names do not clobber stored ones.
	again, err := UpsertUserByEmail(ctx, db, "ayse@dsi.gov.tr", "", "Kaya")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if again.ID != u.ID || again.FirstName != "Ayşe" || again.LastName != "Kaya" {
		t.Fatalf("updated = %+v", again)
	}

	got, err := GetUser(ctx, db, u.ID)
	if err != nil || got.LastName != "Kaya" {
		t.Fatalf("GetUser = %+v, %v", got, err)
	}
}

func TestUpdateUserProfile(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	uid := seedUser(t, db, "p@x.tr")

	u, err := UpdateUserProfile(ctx, db, uid, map[string]any{"phone": "+90 555 000 00 00", "first_name": "Ali"})
	if err != nil || u.Phone != "+90 555 000 00 00" || u.FirstName != "Ali" {
		t.Fatalf("update = %+v, %v", u, err)
	}

	// No-op update returns the current row.
	u, err = UpdateUserProfile(ctx, db, uid, map[string]any{})
	if err != nil || u.FirstName != "Ali" {
		t.Fatalf("noop = %+v, %v", u, err)
	}

	if _, err := UpdateUserProfile(ctx, db, "missing", map[string]any{"phone": "1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing user = %v; want ErrNotFound", err)
	}
}
