// Announcement ("duyurular") HTTP handlers.
//
// Public:
//   - GET    /duyurular/liste           (published feed, filters, paginated, ETag)
//   - GET    /duyurular/detay/{id}
//   - GET    /duyurular/kategoriler
//   - GET    /duyurular/tipler
//   - GET    /duyurular/istatistikler
//
// Authenticated:
//   - POST   /duyurular/olustur
//   - PATCH  /duyurular/guncelle/{id}
//   - DELETE /duyurular/sil/{id}
//   - POST   /duyurular/yayinla/{id}
package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
	"github.com/tbourn/tahsilat-gateway/internal/repo"
	"github.com/tbourn/tahsilat-gateway/internal/services"
)

// AnnouncementResponse is an announcement with its type colour and label.
type AnnouncementResponse struct {
	domain.Announcement
	TypeColor string `json:"tip_renk"   example:"#dc3545"`
	TypeLabel string `json:"tip_etiket" example:"ÖNEMLİ"`
}

// ListAnnouncementsResponse wraps a page of announcements.
type ListAnnouncementsResponse struct {
	Announcements []AnnouncementResponse `json:"duyurular"`
	Pagination    Pagination             `json:"pagination"`
}

// CategoriesResponse lists distinct public categories.
type CategoriesResponse struct {
	Success    bool     `json:"success"`
	Categories []string `json:"kategoriler"`
}

// TypesResponse lists the supported types.
type TypesResponse struct {
	Success bool                      `json:"success"`
	Types   []domain.AnnouncementType `json:"tipler"`
}

// AnnouncementCounts is the statistics body.
type AnnouncementCounts struct {
	Total      int64            `json:"toplam_duyuru"`
	Published  int64            `json:"yayinlanan_duyuru"`
	Pending    int64            `json:"bekleyen_duyuru"`
	ByCategory map[string]int64 `json:"kategori_sayilari"`
	ByType     map[string]int64 `json:"tip_sayilari"`
}

// AnnouncementStatisticsResponse wraps AnnouncementCounts.
type AnnouncementStatisticsResponse struct {
	Success    bool               `json:"success"`
	Statistics AnnouncementCounts `json:"istatistikler"`
}

// PublishResponse reports the new published state.
type PublishResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message" example:"Duyuru yayınlandı"`
	Published bool   `json:"yayinlandi"`
}

func toAnnouncementResponse(a domain.Announcement) AnnouncementResponse {
	return AnnouncementResponse{Announcement: a, TypeColor: a.Color(), TypeLabel: a.Label()}
}

// ListAnnouncements godoc
// @ID          listAnnouncements
// @Summary     List announcements (paginated)
// @Description Active and published announcements, pinned first then newest. Supports weak ETag via If-None-Match.
// @Tags        Announcements
// @Produce     json
// @Param       kategori       query   string  false "Category contains"
// @Param       tip            query   string  false "Exact type"  Enums(normal, onemli, acil, bilgi)
// @Param       arama          query   string  false "Search in title, summary and category"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Success     200  {object}  handlers.ListAnnouncementsResponse
// @Success     304  {string}  string "Not Modified"
// @Router      /duyurular/liste [get]
func (h *Handlers) ListAnnouncements(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)
	f := repo.AnnouncementFilter{
		Category: c.Query("kategori"),
		Type:     c.Query("tip"),
		Search:   c.Query("arama"),
	}

	if count, maxTS, err := h.annSvc.Stats(ctx); err == nil {
		scope := "duyurular:" + url.QueryEscape(f.Category+"|"+f.Type+"|"+f.Search)
		if notModified(c, scope, count, maxTS, page, pageSize) {
			return
		}
	}

	items, total, err := h.annSvc.List(ctx, f, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	out := make([]AnnouncementResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toAnnouncementResponse(a))
	}
	ok(c, http.StatusOK, ListAnnouncementsResponse{
		Announcements: out,
		Pagination:    newPagination(page, pageSize, total),
	})
}

// GetAnnouncement godoc
// @ID          getAnnouncement
// @Summary     Get an announcement
// @Tags        Announcements
// @Produce     json
// @Param       id   path      string  true  "Announcement id"
// @Success     200  {object}  handlers.AnnouncementResponse
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /duyurular/detay/{id} [get]
func (h *Handlers) GetAnnouncement(c *gin.Context) {
	a, err := h.annSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, toAnnouncementResponse(*a))
}

// AnnouncementCategories godoc
// @ID          listAnnouncementCategories
// @Summary     Announcement categories
// @Tags        Announcements
// @Produce     json
// @Success     200  {object}  handlers.CategoriesResponse
// @Router      /duyurular/kategoriler [get]
func (h *Handlers) AnnouncementCategories(c *gin.Context) {
	cats, err := h.annSvc.Categories(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	if cats == nil {
		cats = []string{}
	}
	ok(c, http.StatusOK, CategoriesResponse{Success: true, Categories: cats})
}

// AnnouncementTypes godoc
// @ID          listAnnouncementTypes
// @Summary     Announcement types
// @Tags        Announcements
// @Produce     json
// @Success     200  {object}  handlers.TypesResponse
// @Router      /duyurular/tipler [get]
func (h *Handlers) AnnouncementTypes(c *gin.Context) {
	ok(c, http.StatusOK, TypesResponse{Success: true, Types: h.annSvc.Types()})
}

// AnnouncementStatistics godoc
// @ID          getAnnouncementStatistics
// @Summary     Announcement statistics
// @Tags        Announcements
// @Produce     json
// @Success     200  {object}  handlers.AnnouncementStatisticsResponse
// @Router      /duyurular/istatistikler [get]
func (h *Handlers) AnnouncementStatistics(c *gin.Context) {
	st, err := h.annSvc.Statistics(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, AnnouncementStatisticsResponse{
		Success: true,
		Statistics: AnnouncementCounts{
			Total:      st.Active,
			Published:  st.Published,
			Pending:    st.Pending,
			ByCategory: st.ByCategory,
			ByType:     st.ByType,
		},
	})
}

// CreateAnnouncement godoc
// @ID          createAnnouncement
// @Summary     Create an announcement
// @Tags        Announcements
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      services.AnnouncementInput  true  "Announcement"
// @Success     201   {object}  handlers.AnnouncementResponse
// @Failure     400   {object}  handlers.ErrorResponse "Validation error"
// @Router      /duyurular/olustur [post]
func (h *Handlers) CreateAnnouncement(c *gin.Context) {
	var in services.AnnouncementInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgInvalidJSON)
		return
	}
	a, err := h.annSvc.Create(c.Request.Context(), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, toAnnouncementResponse(*a))
}

// UpdateAnnouncement godoc
// @ID          updateAnnouncement
// @Summary     Update an announcement
// @Description Partial update; absent fields are left unchanged. Works on unpublished rows too.
// @Tags        Announcements
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                      true  "Announcement id"
// @Param       body  body      services.AnnouncementPatch  true  "Changes"
// @Success     200   {object}  handlers.AnnouncementResponse
// @Failure     400   {object}  handlers.ErrorResponse "Validation error"
// @Failure     404   {object}  handlers.ErrorResponse "Not found"
// @Router      /duyurular/guncelle/{id} [patch]
func (h *Handlers) UpdateAnnouncement(c *gin.Context) {
	var p services.AnnouncementPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgInvalidJSON)
		return
	}
	a, err := h.annSvc.Update(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, toAnnouncementResponse(*a))
}

// DeleteAnnouncement godoc
// @ID          deleteAnnouncement
// @Summary     Delete an announcement
// @Tags        Announcements
// @Security    BearerAuth
// @Param       id   path  string  true  "Announcement id"
// @Success     204  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /duyurular/sil/{id} [delete]
func (h *Handlers) DeleteAnnouncement(c *gin.Context) {
	if err := h.annSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// TogglePublish godoc
// @ID          togglePublishAnnouncement
// @Summary     Publish or unpublish
// @Tags        Announcements
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Announcement id"
// @Success     200  {object}  handlers.PublishResponse
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /duyurular/yayinla/{id} [post]
func (h *Handlers) TogglePublish(c *gin.Context) {
	a, err := h.annSvc.TogglePublish(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	msg := "Duyuru yayından kaldırıldı"
	if a.Published {
		msg = "Duyuru yayınlandı"
	}
	ok(c, http.StatusOK, PublishResponse{Success: true, Message: msg, Published: a.Published})
}
