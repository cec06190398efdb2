package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
	"github.com/tbourn/tahsilat-gateway/internal/ledger"
	"github.com/tbourn/tahsilat-gateway/internal/repo"
	"github.com/tbourn/tahsilat-gateway/internal/services"
	"github.com/tbourn/tahsilat-gateway/internal/utils"
)

//
// Service contracts (context-aware)
//

// CollectionService runs ledger queries and serves the caller's mirrored
// records. Implementations must honor ctx for cancellation and timeouts.
type CollectionService interface {
	Query(ctx context.Context, userID string, req services.QueryRequest) (*services.QueryResult, error)
	ListRecords(ctx context.Context, userID string, page, pageSize int) ([]domain.Record, int64, error)
	RecordsStats(ctx context.Context, userID string) (int64, *time.Time, error)
	History(ctx context.Context, userID string, page, pageSize int) ([]domain.Query, int64, error)
	Statistics(ctx context.Context, userID string) (*services.Statistics, error)
	GetRecord(ctx context.Context, userID, id string) (*domain.Record, error)
	RemoteDetail(ctx context.Context, userID string, remoteID int64) (*domain.Record, *ledger.Detail, error)
	Document(ctx context.Context, remoteID int64) (*services.Document, error)
	Refresh(ctx context.Context, userID, id string) (*domain.Record, error)
	Deactivate(ctx context.Context, userID, id string) error
}

// AuthService exchanges credentials and refresh tokens for sessions.
type AuthService interface {
	Login(ctx context.Context, usernameOrEmail, password string) (*services.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*services.Session, error)
}

// ProfileService reads and edits the caller's profile.
type ProfileService interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, upd services.ProfileUpdate) (*domain.User, error)
}

// AnnouncementService manages the announcement feed.
type AnnouncementService interface {
	List(ctx context.Context, f repo.AnnouncementFilter, page, pageSize int) ([]domain.Announcement, int64, error)
	Stats(ctx context.Context) (int64, *time.Time, error)
	Get(ctx context.Context, id string) (*domain.Announcement, error)
	Categories(ctx context.Context) ([]string, error)
	Types() []domain.AnnouncementType
	Statistics(ctx context.Context) (*services.AnnouncementStatistics, error)
	Create(ctx context.Context, in services.AnnouncementInput) (*domain.Announcement, error)
	Update(ctx context.Context, id string, p services.AnnouncementPatch) (*domain.Announcement, error)
	Delete(ctx context.Context, id string) error
	TogglePublish(ctx context.Context, id string) (*domain.Announcement, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. It depends on service interfaces to
// keep transport concerns separate from business logic.
type Handlers struct {
	collSvc    CollectionService
	authSvc    AuthService
	profileSvc ProfileService
	annSvc     AnnouncementService
}

// New constructs a Handlers instance bound to the given services.
func New(coll CollectionService, auth AuthService, profile ProfileService, ann AnnouncementService) *Handlers {
	return &Handlers{collSvc: coll, authSvc: auth, profileSvc: profile, annSvc: ann}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination reads page and page_size from the query string.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"))
}

func newPagination(page, pageSize int, total int64) Pagination {
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: utils.TotalPages(total, pageSize),
		HasNext:    int64(page*pageSize) < total,
	}
}

// notModified sets a weak ETag derived from a collection's size and newest
// timestamp, and answers 304 when it matches If-None-Match. Paging is part
// of the tag so that different windows never share a validator.
func notModified(c *gin.Context, scope string, count int64, maxTS *time.Time, page, pageSize int) bool {
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%d:%d:%d:%d"`, scope, count, ts, page, pageSize)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
