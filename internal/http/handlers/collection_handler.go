// Collection ("tahsilat") HTTP handlers.
//
// This file exposes the collection endpoints:
//   - POST   /tahsilat/sorgu                     (query the ledger, mirror results)
//   - GET    /tahsilat/liste                     (caller's records, paginated, ETag)
//   - GET    /tahsilat/detay/{id}                (one local record)
//   - DELETE /tahsilat/detay/{id}                (soft delete)
//   - GET    /tahsilat/detay-getir/{tahsilat_id} (local record + remote detail)
//   - GET    /tahsilat/belge-getir/{tahsilat_id} (PDF document, public)
//   - GET    /tahsilat/sorgu-gecmisi             (query history, paginated)
//   - GET    /tahsilat/istatistikler             (per-user totals)
//   - POST   /tahsilat/yenile/{id}               (refresh balances)
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
	"github.com/tbourn/tahsilat-gateway/internal/http/middleware"
	"github.com/tbourn/tahsilat-gateway/internal/services"
	"github.com/tbourn/tahsilat-gateway/internal/utils"
)

//
// DTOs
//

// QueryRequest is the JSON payload of a collection query. Exactly one of
// tckn and vkn must be present.
type QueryRequest struct {
	TCKN       string `json:"tckn"             example:"12345678901"`
	VKN        string `json:"vkn"              example:""`
	StartDate  string `json:"baslangic_tarihi" example:"2024-01-01"`
	EndDate    string `json:"bitis_tarihi"     example:"2024-12-31"`
	UnpaidOnly bool   `json:"sadece_odenmemis" example:"false"`
}

// RecordResponse is a mirrored record with its derived payment status.
type RecordResponse struct {
	domain.Record
	Status string `json:"odeme_durumu" example:"Kısmi Ödendi"`
}

// QueryResponse is returned by a successful query.
type QueryResponse struct {
	QueryID string           `json:"sorgu_id"`
	Success bool             `json:"basarili" example:"true"`
	Records []RecordResponse `json:"tahsilat_kayitlari"`
	Summary *domain.Summary  `json:"ozet"`
	Message string           `json:"mesaj" example:"4 adet tahsilat kaydı bulundu"`
}

// QueryFailureResponse is returned when an audited query failed after it
// was logged.
type QueryFailureResponse struct {
	RequestID string `json:"request_id,omitempty"`
	QueryID   string `json:"sorgu_id"`
	Success   bool   `json:"basarili" example:"false"`
	Error     string `json:"hata" example:"DSİ API zaman aşımı"`
}

// ListRecordsResponse wraps a page of records and pagination information.
type ListRecordsResponse struct {
	Records    []RecordResponse `json:"tahsilat_kayitlari"`
	Pagination Pagination       `json:"pagination"`
}

// QueryHistoryResponse wraps a page of audited queries.
type QueryHistoryResponse struct {
	Queries    []domain.Query `json:"sorgular"`
	Pagination Pagination     `json:"pagination"`
}

// RemoteDetailResponse combines the local record with the ledger detail.
type RemoteDetailResponse struct {
	Success bool            `json:"success" example:"true"`
	Record  RecordResponse  `json:"tahsilat_kaydi"`
	Detail  json.RawMessage `json:"detay_bilgileri" swaggertype:"object"`
	Message string          `json:"message" example:"Tahsilat detay bilgileri başarıyla getirildi"`
}

// RefreshResponse is returned after a record was refreshed.
type RefreshResponse struct {
	Success bool           `json:"basarili" example:"true"`
	Message string         `json:"mesaj" example:"Tahsilat kaydı başarıyla güncellendi"`
	Record  RecordResponse `json:"tahsilat"`
}

// DebtTotals sums the caller's active records.
type DebtTotals struct {
	Principal decimal.Decimal `json:"toplam_ana_para"         swaggertype:"string" example:"1250.50"`
	Collected decimal.Decimal `json:"toplam_yapilan_tahsilat" swaggertype:"string" example:"250.00"`
	Remaining decimal.Decimal `json:"toplam_kalan_borc"       swaggertype:"string" example:"1000.50"`
}

// PaymentStatusCounts counts active records per derived status.
type PaymentStatusCounts struct {
	Paid    int64 `json:"odendi"`
	Partial int64 `json:"kismi_odendi"`
	Unpaid  int64 `json:"odenmedi"`
}

// QueryCounts counts the caller's audited queries by outcome.
type QueryCounts struct {
	Total     int64 `json:"toplam_sorgu"`
	Succeeded int64 `json:"basarili_sorgu"`
	Failed    int64 `json:"basarisiz_sorgu"`
}

// StatisticsResponse is the per-user statistics view.
type StatisticsResponse struct {
	Debt     DebtTotals          `json:"toplam_borc"`
	Statuses PaymentStatusCounts `json:"odeme_durumlari"`
	Queries  QueryCounts         `json:"sorgu_istatistikleri"`
}

func toRecordResponse(r domain.Record) RecordResponse {
	return RecordResponse{Record: r, Status: r.PaymentStatus()}
}

func toRecordResponses(rs []domain.Record) []RecordResponse {
	out := make([]RecordResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRecordResponse(r))
	}
	return out
}

//
// Handlers
//

// Query godoc
// @ID          queryCollections
// @Summary     Query the ledger
// @Description Validates the request, logs the query, calls the remote ledger and mirrors the returned records. Remote failures answer 502 with the audited query id.
// @Tags        Collections
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.QueryRequest  true  "Query payload"
//
// @Success     200  {object}  handlers.QueryResponse
// @Failure     400  {object}  handlers.ErrorResponse         "Validation error"
// @Failure     401  {object}  handlers.ErrorResponse         "Unauthorized"
// @Failure     500  {object}  handlers.QueryFailureResponse  "Unexpected failure"
// @Failure     502  {object}  handlers.QueryFailureResponse  "Ledger failure"
// @Router      /tahsilat/sorgu [post]
func (h *Handlers) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgInvalidJSON)
		return
	}

	res, err := h.collSvc.Query(c.Request.Context(), middleware.UserIDFrom(c), services.QueryRequest{
		TCKN:       strings.TrimSpace(req.TCKN),
		VKN:        strings.TrimSpace(req.VKN),
		StartDate:  strings.TrimSpace(req.StartDate),
		EndDate:    strings.TrimSpace(req.EndDate),
		UnpaidOnly: req.UnpaidOnly,
	})

	var (
		rerr *services.RemoteError
		ierr *services.InternalError
	)
	switch {
	case err == nil:
		ok(c, http.StatusOK, QueryResponse{
			QueryID: res.QueryID,
			Success: true,
			Records: toRecordResponses(res.Records),
			Summary: res.Summary,
			Message: res.Message,
		})
	case errors.As(err, &rerr) && rerr.QueryID != "":
		c.AbortWithStatusJSON(http.StatusBadGateway, QueryFailureResponse{
			RequestID: middleware.RequestIDFrom(c),
			QueryID:   rerr.QueryID,
			Error:     rerr.Message,
		})
	case errors.As(err, &ierr):
		middleware.LoggerFrom(c).Error().Err(ierr.Cause).Str("query_id", ierr.QueryID).Msg("query failed unexpectedly")
		c.AbortWithStatusJSON(http.StatusInternalServerError, QueryFailureResponse{
			RequestID: middleware.RequestIDFrom(c),
			QueryID:   ierr.QueryID,
			Error:     msgUnexpected,
		})
	default:
		failErr(c, err)
	}
}

// ListRecords godoc
// @ID          listCollectionRecords
// @Summary     List records (paginated)
// @Description Returns the caller's active records, newest accrual period first. Supports weak ETag via If-None-Match.
// @Tags        Collections
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListRecordsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tahsilat/liste [get]
func (h *Handlers) ListRecords(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserIDFrom(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.collSvc.RecordsStats(ctx, uid); err == nil {
		if notModified(c, "tahsilat:"+uid, count, maxTS, page, pageSize) {
			return
		}
	}

	items, total, err := h.collSvc.ListRecords(ctx, uid, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListRecordsResponse{
		Records:    toRecordResponses(items),
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetRecord godoc
// @ID          getCollectionRecord
// @Summary     Get a record
// @Tags        Collections
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Local record id"
// @Success     200  {object}  handlers.RecordResponse
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /tahsilat/detay/{id} [get]
func (h *Handlers) GetRecord(c *gin.Context) {
	rec, err := h.collSvc.GetRecord(c.Request.Context(), middleware.UserIDFrom(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, toRecordResponse(*rec))
}

// DeleteRecord godoc
// @ID          deleteCollectionRecord
// @Summary     Hide a record
// @Description Marks the record inactive; it disappears from listings and statistics until a later query mirrors it again.
// @Tags        Collections
// @Security    BearerAuth
// @Param       id   path  string  true  "Local record id"
// @Success     204  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /tahsilat/detay/{id} [delete]
func (h *Handlers) DeleteRecord(c *gin.Context) {
	if err := h.collSvc.Deactivate(c.Request.Context(), middleware.UserIDFrom(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// RemoteDetail godoc
// @ID          getCollectionRemoteDetail
// @Summary     Get ledger detail
// @Description Returns the caller's record with the given ledger id together with the ledger's installments and payment history.
// @Tags        Collections
// @Produce     json
// @Security    BearerAuth
// @Param       tahsilat_id  path      int  true  "Ledger id"
// @Success     200  {object}  handlers.RemoteDetailResponse
// @Failure     400  {object}  handlers.ErrorResponse "Invalid id"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Failure     502  {object}  handlers.ErrorResponse "Ledger failure"
// @Router      /tahsilat/detay-getir/{tahsilat_id} [get]
func (h *Handlers) RemoteDetail(c *gin.Context) {
	remoteID, valid := utils.ParsePositiveID(c.Param("tahsilat_id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgInvalidID)
		return
	}
	rec, detail, err := h.collSvc.RemoteDetail(c.Request.Context(), middleware.UserIDFrom(c), remoteID)
	if err != nil {
		failErr(c, err)
		return
	}

	var raw json.RawMessage
	if detail != nil {
		raw = detail.Raw
	}
	if len(raw) == 0 {
		if raw, err = json.Marshal(detail); err != nil {
			failErr(c, err)
			return
		}
	}
	ok(c, http.StatusOK, RemoteDetailResponse{
		Success: true,
		Record:  toRecordResponse(*rec),
		Detail:  raw,
		Message: "Tahsilat detay bilgileri başarıyla getirildi",
	})
}

// Document godoc
// @ID          getCollectionDocument
// @Summary     Download the collection document
// @Description Fetches the ledger's document and serves it as a PDF attachment. No authentication required.
// @Tags        Collections
// @Produce     application/pdf
// @Param       tahsilat_id  path  int  true  "Ledger id"
// @Success     200  {file}    binary
// @Failure     400  {object}  handlers.ErrorResponse "Invalid id"
// @Failure     502  {object}  handlers.ErrorResponse "Ledger failure"
// @Router      /tahsilat/belge-getir/{tahsilat_id} [get]
func (h *Handlers) Document(c *gin.Context) {
	remoteID, valid := utils.ParsePositiveID(c.Param("tahsilat_id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgInvalidID)
		return
	}
	doc, err := h.collSvc.Document(c.Request.Context(), remoteID)
	if err != nil {
		failErr(c, err)
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name})
	if disposition == "" {
		disposition = fmt.Sprintf(`attachment; filename="tahsilat_%d.pdf"`, remoteID)
	}
	c.Header("Content-Disposition", disposition)
	c.Header("Content-Length", strconv.Itoa(len(doc.Content)))
	c.Data(http.StatusOK, "application/pdf", doc.Content)
}

// QueryHistory godoc
// @ID          listCollectionQueries
// @Summary     Query history (paginated)
// @Description Returns the caller's audited queries, newest first.
// @Tags        Collections
// @Produce     json
// @Security    BearerAuth
// @Param       page       query  int  false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.QueryHistoryResponse
// @Router      /tahsilat/sorgu-gecmisi [get]
func (h *Handlers) QueryHistory(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.collSvc.History(c.Request.Context(), middleware.UserIDFrom(c), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, QueryHistoryResponse{
		Queries:    items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// Statistics godoc
// @ID          getCollectionStatistics
// @Summary     Collection statistics
// @Description Totals and payment-status counts over the caller's active records, and query outcome counts.
// @Tags        Collections
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.StatisticsResponse
// @Router      /tahsilat/istatistikler [get]
func (h *Handlers) Statistics(c *gin.Context) {
	st, err := h.collSvc.Statistics(c.Request.Context(), middleware.UserIDFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, StatisticsResponse{
		Debt: DebtTotals{
			Principal: st.Totals.Principal,
			Collected: st.Totals.Collected,
			Remaining: st.Totals.Remaining,
		},
		Statuses: PaymentStatusCounts{
			Paid:    st.Totals.Paid,
			Partial: st.Totals.Partial,
			Unpaid:  st.Totals.Unpaid,
		},
		Queries: QueryCounts{
			Total:     st.QueriesTotal,
			Succeeded: st.QueriesSucceeded,
			Failed:    st.QueriesFailed,
		},
	})
}

// Refresh godoc
// @ID          refreshCollectionRecord
// @Summary     Refresh a record
// @Description Re-reads the record from the ledger, bypassing cached responses, and overwrites its balances.
// @Tags        Collections
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Local record id"
// @Success     200  {object}  handlers.RefreshResponse
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Failure     502  {object}  handlers.ErrorResponse "Ledger failure"
// @Router      /tahsilat/yenile/{id} [post]
func (h *Handlers) Refresh(c *gin.Context) {
	rec, err := h.collSvc.Refresh(c.Request.Context(), middleware.UserIDFrom(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, RefreshResponse{
		Success: true,
		Message: "Tahsilat kaydı başarıyla güncellendi",
		Record:  toRecordResponse(*rec),
	})
}
