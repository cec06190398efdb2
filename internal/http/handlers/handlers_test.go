package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
	"github.com/tbourn/tahsilat-gateway/internal/http/middleware"
	"github.com/tbourn/tahsilat-gateway/internal/ledger"
	"github.com/tbourn/tahsilat-gateway/internal/repo"
	"github.com/tbourn/tahsilat-gateway/internal/services"
)

const testToken = "good-token"

// ---------- test DB ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedHandlerUser(t *testing.T, db *gorm.DB) *domain.User {
	t.Helper()
	u, err := repo.UpsertUserByEmail(context.Background(), db, "ayse@example.com", "Ayşe", "Demir")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// ---------- auth stub ----------

type tokenAuth struct{ user *domain.User }

func (a tokenAuth) Authenticate(_ context.Context, token string) (*domain.User, error) {
	if token == testToken && a.user != nil {
		return a.user, nil
	}
	return nil, services.ErrUnauthenticated
}

// ---------- ledger stubs ----------

// brokenLedger fails every call with the same error.
type brokenLedger struct{ err *ledger.Error }

func (b brokenLedger) List(context.Context, ledger.ListParams) ledger.Result[*ledger.ListPayload] {
	return ledger.Result[*ledger.ListPayload]{Err: b.err}
}

func (b brokenLedger) Detail(context.Context, int64) ledger.Result[*ledger.Detail] {
	return ledger.Result[*ledger.Detail]{Err: b.err}
}

func (b brokenLedger) Document(context.Context, int64) ledger.Result[*ledger.Document] {
	return ledger.Result[*ledger.Document]{Err: b.err}
}

// ---------- stub auth service ----------

type stubAuthSvc struct {
	login   func(ctx context.Context, u, p string) (*services.Session, error)
	refresh func(ctx context.Context, tok string) (*services.Session, error)
}

func (s stubAuthSvc) Login(ctx context.Context, u, p string) (*services.Session, error) {
	if s.login != nil {
		return s.login(ctx, u, p)
	}
	return nil, errors.New("not implemented")
}

func (s stubAuthSvc) Refresh(ctx context.Context, tok string) (*services.Session, error) {
	if s.refresh != nil {
		return s.refresh(ctx, tok)
	}
	return nil, errors.New("not implemented")
}

// ---------- router ----------

type testEnv struct {
	db   *gorm.DB
	user *domain.User
	r    *gin.Engine
}

// newTestEnv mounts every handler the way the application router does,
// with a token authenticator that accepts testToken for the seeded user.
func newTestEnv(t *testing.T, l ledger.Client, auth AuthService) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	u := seedHandlerUser(t, db)
	if l == nil {
		l = ledger.NewMock()
	}
	if auth == nil {
		auth = stubAuthSvc{}
	}
	h := New(
		services.NewCollectionService(db, l),
		auth,
		services.NewProfileService(db),
		services.NewAnnouncementService(db),
	)

	r := gin.New()
	r.Use(middleware.RequestID())
	requireAuth := middleware.RequireAuth(tokenAuth{user: u})

	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", h.RefreshToken)
	r.GET("/auth/me", requireAuth, h.Me)

	users := r.Group("/users", requireAuth)
	users.GET("/profile", h.GetProfile)
	users.PATCH("/profile", h.UpdateProfile)

	r.GET("/tahsilat/belge-getir/:tahsilat_id", h.Document)
	t1 := r.Group("/tahsilat", requireAuth)
	t1.POST("/sorgu", h.Query)
	t1.GET("/liste", h.ListRecords)
	t1.GET("/detay/:id", h.GetRecord)
	t1.DELETE("/detay/:id", h.DeleteRecord)
	t1.GET("/detay-getir/:tahsilat_id", h.RemoteDetail)
	t1.GET("/sorgu-gecmisi", h.QueryHistory)
	t1.GET("/istatistikler", h.Statistics)
	t1.POST("/yenile/:id", h.Refresh)

	d := r.Group("/duyurular")
	d.GET("/liste", h.ListAnnouncements)
	d.GET("/detay/:id", h.GetAnnouncement)
	d.GET("/kategoriler", h.AnnouncementCategories)
	d.GET("/tipler", h.AnnouncementTypes)
	d.GET("/istatistikler", h.AnnouncementStatistics)
	d.POST("/olustur", requireAuth, h.CreateAnnouncement)
	d.PATCH("/guncelle/:id", requireAuth, h.UpdateAnnouncement)
	d.DELETE("/sil/:id", requireAuth, h.DeleteAnnouncement)
	d.POST("/yayinla/:id", requireAuth, h.TogglePublish)

	return &testEnv{db: db, user: u, r: r}
}

// do performs a request; authed adds the accepted bearer token.
func (e *testEnv) do(t *testing.T, method, path string, body any, authed bool, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
	return v
}
