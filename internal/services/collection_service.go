// Package services – CollectionService
//
// This file implements the collection ("tahsilat") workflow: a validated
// query against the remote ledger is logged before the call, its items are
// mirrored into local records and its totals stored as a per-query summary.
// Every audited query reaches a terminal state (succeeded or failed) whatever
// happens after it was logged.
//
// The service also serves the mirrored data: paginated listings, owner-scoped
// lookups, remote detail passthrough, document download, balance refresh and
// soft delete.
package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/tahsilat-gateway/internal/cache"
	"github.com/tbourn/tahsilat-gateway/internal/domain"
	"github.com/tbourn/tahsilat-gateway/internal/ledger"
	"github.com/tbourn/tahsilat-gateway/internal/repo"
)

// Field-level validation messages.
const (
	msgIdentityRequired  = "TCKN veya VKN'den en az biri gerekli"
	msgIdentityExclusive = "TCKN ve VKN'den sadece biri verilebilir"
	msgTCKNFormat        = "TCKN 11 haneli sayı olmalıdır"
	msgVKNFormat         = "VKN 10 haneli sayı olmalıdır"
	msgDateFormat        = "Geçersiz tarih biçimi"
	msgDateOrder         = "Başlangıç tarihi bitiş tarihinden büyük olamaz"
	msgRefreshFailed     = "Güncelleme başarısız"
)

// dateLayouts are tried in order when parsing request dates.
var dateLayouts = []string{"2006-01-02", "2006-01-02T15:04:05", time.RFC3339}

// QueryRequest is the caller's search. Exactly one of TCKN and VKN must be
// set; dates are optional.
type QueryRequest struct {
	TCKN       string `json:"tckn"             validate:"required_without=VKN,excluded_with=VKN,omitempty,number,len=11"`
	VKN        string `json:"vkn"              validate:"omitempty,number,len=10"`
	StartDate  string `json:"baslangic_tarihi" validate:"omitempty,query_date"`
	EndDate    string `json:"bitis_tarihi"     validate:"omitempty,query_date"`
	UnpaidOnly bool   `json:"sadece_odenmemis"`
}

// QueryResult is the outcome of a successful query.
type QueryResult struct {
	QueryID string
	Records []domain.Record
	Summary *domain.Summary // nil when the summary could not be stored
	Message string
}

// Document is a decoded ledger document.
type Document struct {
	Name    string
	Content []byte
}

// Totals are per-user figures computed from stored active records.
type Totals struct {
	Principal decimal.Decimal
	Collected decimal.Decimal
	Remaining decimal.Decimal
	Paid      int64
	Partial   int64
	Unpaid    int64
}

// Statistics combines record totals with query outcome counts.
type Statistics struct {
	Totals           Totals
	QueriesTotal     int64
	QueriesSucceeded int64
	QueriesFailed    int64
}

// CollectionService orchestrates ledger queries and serves mirrored records.
type CollectionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Ledger is the remote collections client.
	Ledger ledger.Client
}

// NewCollectionService constructs a CollectionService.
func NewCollectionService(db *gorm.DB, l ledger.Client) *CollectionService {
	return &CollectionService{DB: db, Ledger: l}
}

var queryValidator = newQueryValidator()

func newQueryValidator() *validator.Validate {
	v := newValidator()
	_ = v.RegisterValidation("query_date", func(fl validator.FieldLevel) bool {
		_, err := parseDate(fl.Field().String())
		return err == nil
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(QueryRequest)
		start, err1 := parseDate(req.StartDate)
		end, err2 := parseDate(req.EndDate)
		if err1 == nil && err2 == nil && start != nil && end != nil && start.After(*end) {
			sl.ReportError(req.StartDate, "baslangic_tarihi", "StartDate", "date_order", "")
		}
	}, QueryRequest{})
	return v
}

// queryFieldMessages turns validator errors into Turkish field messages.
func queryFieldMessages(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	fields := make(map[string]string, len(ves))
	for _, fe := range ves {
		var msg string
		switch fe.Tag() {
		case "required_without":
			msg = msgIdentityRequired
		case "excluded_with":
			msg = msgIdentityExclusive
		case "query_date":
			msg = msgDateFormat
		case "date_order":
			msg = msgDateOrder
		default:
			msg = msgTCKNFormat
			if fe.Field() == "vkn" {
				msg = msgVKNFormat
			}
		}
		fields[fe.Field()] = msg
	}
	return &ValidationError{Fields: fields}
}

// ValidateQueryRequest checks req and converts it to ledger parameters.
func ValidateQueryRequest(req QueryRequest) (ledger.ListParams, error) {
	req.TCKN = strings.TrimSpace(req.TCKN)
	req.VKN = strings.TrimSpace(req.VKN)
	req.StartDate = strings.TrimSpace(req.StartDate)
	req.EndDate = strings.TrimSpace(req.EndDate)

	if err := queryValidator.Struct(req); err != nil {
		return ledger.ListParams{}, queryFieldMessages(err)
	}

	p := ledger.ListParams{Kind: ledger.IdentityVKN, Value: req.VKN, UnpaidOnly: req.UnpaidOnly}
	if req.TCKN != "" {
		p.Kind, p.Value = ledger.IdentityTCKN, req.TCKN
	}
	p.Start, _ = parseDate(req.StartDate)
	p.End, _ = parseDate(req.EndDate)
	return p, nil
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised date %q", s)
}

// Query runs one audited search.
//
// Validation failures return *ValidationError and write nothing. Otherwise a
// Query row is created first and is always finalized: a ledger failure
// returns *RemoteError; any other fault (including a panic) returns
// *InternalError, which matches ErrInternal. On success all records, the
// summary and the query outcome are written in one transaction; a summary
// failure is rolled back alone and leaves QueryResult.Summary nil.
func (s *CollectionService) Query(ctx context.Context, userID string, req QueryRequest) (res *QueryResult, err error) {
	tr := otel.Tracer("services/CollectionService")
	ctx, span := tr.Start(ctx, "Query",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()
	lg := zerolog.Ctx(ctx)

	params, err := ValidateQueryRequest(req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("query.kind", string(params.Kind)),
		attribute.Bool("query.unpaid_only", params.UnpaidOnly),
	)

	q, err := repo.CreateQuery(ctx, s.DB, &domain.Query{
		UserID:     userID,
		Kind:       string(params.Kind),
		Value:      params.Value,
		StartDate:  params.Start,
		EndDate:    params.End,
		UnpaidOnly: params.UnpaidOnly,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("query.id", q.ID))

	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("panic: %v", r)
			lg.Error().Str("query_id", q.ID).Interface("panic", r).Msg("collection query panicked")
			s.fail(ctx, q.ID, cause.Error())
			span.SetStatus(codes.Error, cause.Error())
			res, err = nil, &InternalError{QueryID: q.ID, Cause: cause}
		}
	}()

	out := s.Ledger.List(ctx, params)
	if !out.OK {
		rerr := remoteError(q.ID, out.Err)
		lg.Warn().Str("query_id", q.ID).Str("kind", string(rerr.Kind)).Msg(rerr.Message)
		s.fail(ctx, q.ID, rerr.Message)
		span.SetStatus(codes.Error, rerr.Message)
		return nil, rerr
	}
	payload := out.Payload
	if payload == nil {
		payload = &ledger.ListPayload{Items: []ledger.Item{}}
	}
	s.checkTotals(ctx, q.ID, payload)

	result := &QueryResult{QueryID: q.ID}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ups, err := repo.UpsertRecords(ctx, tx, payload.Items, userID)
		if err != nil {
			return err
		}
		result.Records = make([]domain.Record, 0, len(ups))
		created := 0
		for _, u := range ups {
			if u.Outcome == repo.OutcomeCreated {
				created++
			}
			result.Records = append(result.Records, *u.Record)
		}
		lg.Debug().Str("query_id", q.ID).Int("created", created).Int("updated", len(ups)-created).Msg("records mirrored")

		// Nested transaction = savepoint: only the summary rolls back.
		serr := tx.Transaction(func(sp *gorm.DB) error {
			sum, _, err := repo.GetOrCreateSummary(ctx, sp, q.ID, SummaryFromPayload(payload))
			if err != nil {
				return err
			}
			result.Summary = sum
			return nil
		})
		if serr != nil {
			result.Summary = nil
			lg.Warn().Err(serr).Str("query_id", q.ID).Msg("summary not stored")
		}

		return repo.FinalizeQuery(ctx, tx, q.ID, true, len(result.Records), nil)
	})
	if err != nil {
		lg.Error().Err(err).Str("query_id", q.ID).Msg("storing query results failed")
		s.fail(ctx, q.ID, err.Error())
		span.SetStatus(codes.Error, err.Error())
		return nil, &InternalError{QueryID: q.ID, Cause: err}
	}

	result.Message = fmt.Sprintf("%d adet tahsilat kaydı bulundu", len(result.Records))
	span.SetAttributes(attribute.Int("query.result_count", len(result.Records)))
	lg.Info().Str("query_id", q.ID).Int("count", len(result.Records)).Msg("collection query succeeded")
	return result, nil
}

// fail finalizes queryID as failed. It ignores request cancellation so the
// audit row still reaches a terminal state.
func (s *CollectionService) fail(ctx context.Context, queryID, msg string) {
	if err := repo.FinalizeQuery(context.WithoutCancel(ctx), s.DB, queryID, false, 0, &msg); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("query_id", queryID).Msg("finalize query failed")
	}
}

// checkTotals logs when the ledger's totals disagree with its items.
func (s *CollectionService) checkTotals(ctx context.Context, queryID string, p *ledger.ListPayload) {
	principal, collected, remaining := p.ItemTotals()
	if principal.Equal(p.Principal) && collected.Equal(p.Collected) && remaining.Equal(p.Remaining) {
		return
	}
	zerolog.Ctx(ctx).Warn().
		Str("query_id", queryID).
		Str("remote_remaining", p.Remaining.String()).
		Str("items_remaining", remaining.String()).
		Msg("ledger totals differ from item sums")
}

// SummaryFromPayload copies the ledger's aggregate figures and result code.
func SummaryFromPayload(p *ledger.ListPayload) domain.Summary {
	s := domain.Summary{
		Principal: p.Principal,
		Collected: p.Collected,
		Remaining: p.Remaining,
	}
	if p.Result != nil {
		s.ResultCode = p.Result.Code
		s.ResultDescription = p.Result.Description
	}
	return s
}

// UserTotals sums balances and counts payment statuses over records.
func UserTotals(records []domain.Record) Totals {
	var t Totals
	for _, r := range records {
		t.Principal = t.Principal.Add(r.Principal)
		t.Collected = t.Collected.Add(r.Collected)
		t.Remaining = t.Remaining.Add(r.Remaining)
		switch r.PaymentStatus() {
		case domain.StatusPaid:
			t.Paid++
		case domain.StatusPartial:
			t.Partial++
		default:
			t.Unpaid++
		}
	}
	return t
}

// Statistics computes the caller's totals and query outcome counts.
func (s *CollectionService) Statistics(ctx context.Context, userID string) (*Statistics, error) {
	records, err := repo.AllActiveRecords(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	ok, failed, err := repo.QueryOutcomeCounts(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	return &Statistics{
		Totals:           UserTotals(records),
		QueriesTotal:     ok + failed,
		QueriesSucceeded: ok,
		QueriesFailed:    failed,
	}, nil
}

// ListRecords returns a page of the caller's active records.
// It applies defaults for invalid page/pageSize and returns the total count.
func (s *CollectionService) ListRecords(ctx context.Context, userID string, page, pageSize int) ([]domain.Record, int64, error) {
	offset, limit := pageWindow(page, pageSize)

	total, err := repo.CountActiveRecords(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Record{}, 0, nil
	}
	items, err := repo.ListActiveRecords(ctx, s.DB, userID, offset, limit)
	return items, total, err
}

// RecordsStats returns the ETag inputs for the caller's record list.
func (s *CollectionService) RecordsStats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.RecordsStats(ctx, s.DB, userID)
}

// History returns a page of the caller's queries, newest first.
func (s *CollectionService) History(ctx context.Context, userID string, page, pageSize int) ([]domain.Query, int64, error) {
	offset, limit := pageWindow(page, pageSize)

	total, err := repo.CountQueries(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Query{}, 0, nil
	}
	items, err := repo.ListQueries(ctx, s.DB, userID, offset, limit)
	return items, total, err
}

// GetRecord returns one of the caller's active records by local id.
func (s *CollectionService) GetRecord(ctx context.Context, userID, id string) (*domain.Record, error) {
	r, err := repo.GetRecord(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRecordNotFound
	}
	return r, err
}

// RemoteDetail returns the caller's record with the given ledger id together
// with the ledger's current detail for it.
func (s *CollectionService) RemoteDetail(ctx context.Context, userID string, remoteID int64) (*domain.Record, *ledger.Detail, error) {
	tr := otel.Tracer("services/CollectionService")
	ctx, span := tr.Start(ctx, "RemoteDetail", trace.WithAttributes(attribute.Int64("ledger.remote_id", remoteID)))
	defer span.End()

	rec, err := repo.GetRecordByRemoteID(ctx, s.DB, remoteID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	out := s.Ledger.Detail(ctx, remoteID)
	if !out.OK {
		return nil, nil, remoteError("", out.Err)
	}
	return rec, out.Payload, nil
}

// Document fetches and decodes the ledger document for remoteID. It is not
// owner-scoped.
func (s *CollectionService) Document(ctx context.Context, remoteID int64) (*Document, error) {
	out := s.Ledger.Document(ctx, remoteID)
	if !out.OK {
		return nil, remoteError("", out.Err)
	}
	doc := out.Payload
	if doc == nil || doc.Content == "" {
		return nil, &RemoteError{Kind: ledger.KindUnexpected, Message: "Belge bulunamadı"}
	}
	raw, err := base64.StdEncoding.DecodeString(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("decode document %d: %w", remoteID, err)
	}
	name := doc.Name
	if name == "" {
		name = fmt.Sprintf("tahsilat_%d.pdf", remoteID)
	}
	return &Document{Name: name, Content: raw}, nil
}

// Refresh re-reads one of the caller's records from the ledger (bypassing
// cached reads) and overwrites the balances the ledger reported. Balances
// missing from the detail keep their stored values.
func (s *CollectionService) Refresh(ctx context.Context, userID, id string) (*domain.Record, error) {
	tr := otel.Tracer("services/CollectionService")
	ctx, span := tr.Start(ctx, "Refresh", trace.WithAttributes(attribute.String("record.id", id)))
	defer span.End()

	rec, err := s.GetRecord(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	out := s.Ledger.Detail(cache.SkipRead(ctx), rec.RemoteID)
	if !out.OK {
		return nil, remoteError("", out.Err)
	}
	if out.Payload == nil || out.Payload.RemoteID == 0 {
		return nil, &RemoteError{Kind: ledger.KindUnexpected, Message: msgRefreshFailed}
	}

	bal := out.Payload.Balances
	if !bal.Any() {
		zerolog.Ctx(ctx).Warn().Str("record_id", rec.ID).Int64("remote_id", rec.RemoteID).Msg("ledger detail carried no balances")
	}
	if err := repo.UpdateRecordBalances(ctx, s.DB, rec.ID, userID, bal); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return s.GetRecord(ctx, userID, id)
}

// Deactivate soft-deletes one of the caller's records.
func (s *CollectionService) Deactivate(ctx context.Context, userID, id string) error {
	err := repo.DeactivateRecord(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrRecordNotFound
	}
	return err
}

// pageWindow turns 1-based page/pageSize into offset/limit with defaults.
func pageWindow(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return (page - 1) * pageSize, pageSize
}
