package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/tahsilat-gateway/internal/cache"
	"github.com/tbourn/tahsilat-gateway/internal/domain"
	"github.com/tbourn/tahsilat-gateway/internal/ledger"
	"github.com/tbourn/tahsilat-gateway/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) string {
	t.Helper()
	u, err := repo.UpsertUserByEmail(context.Background(), db, email, "Test", "User")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u.ID
}

// stubLedger lets each test override individual calls; unset calls fall
// back to the in-process fixture.
type stubLedger struct {
	mock     *ledger.Mock
	list     func(ctx context.Context, p ledger.ListParams) ledger.Result[*ledger.ListPayload]
	detail   func(ctx context.Context, id int64) ledger.Result[*ledger.Detail]
	document func(ctx context.Context, id int64) ledger.Result[*ledger.Document]
	calls    int
}

func newStub() *stubLedger { return &stubLedger{mock: ledger.NewMock()} }

func (s *stubLedger) List(ctx context.Context, p ledger.ListParams) ledger.Result[*ledger.ListPayload] {
	s.calls++
	if s.list != nil {
		return s.list(ctx, p)
	}
	return s.mock.List(ctx, p)
}

func (s *stubLedger) Detail(ctx context.Context, id int64) ledger.Result[*ledger.Detail] {
	s.calls++
	if s.detail != nil {
		return s.detail(ctx, id)
	}
	return s.mock.Detail(ctx, id)
}

func (s *stubLedger) Document(ctx context.Context, id int64) ledger.Result[*ledger.Document] {
	s.calls++
	if s.document != nil {
		return s.document(ctx, id)
	}
	return s.mock.Document(ctx, id)
}

func onlyQuery(t *testing.T, db *gorm.DB, userID string) domain.Query {
	t.Helper()
	qs, err := repo.ListQueries(context.Background(), db, userID, 0, 10)
	if err != nil {
		t.Fatalf("list queries: %v", err)
	}
	if len(qs) != 1 {
		t.Fatalf("want 1 query row, got %d", len(qs))
	}
	return qs[0]
}

// ---------- ValidateQueryRequest ----------

func TestValidateQueryRequest(t *testing.T) {
	cases := []struct {
		name  string
		req   QueryRequest
		field string
		msg   string
	}{
		{"none", QueryRequest{}, "tckn", msgIdentityRequired},
		{"both", QueryRequest{TCKN: "12345678901", VKN: "1234567890"}, "tckn", msgIdentityExclusive},
		{"short tckn", QueryRequest{TCKN: "1234567890"}, "tckn", msgTCKNFormat},
		{"alpha tckn", QueryRequest{TCKN: "1234567890a"}, "tckn", msgTCKNFormat},
		{"long vkn", QueryRequest{VKN: "12345678901"}, "vkn", msgVKNFormat},
		{"signed vkn", QueryRequest{VKN: "-123456789"}, "vkn", msgVKNFormat},
		{"decimal tckn", QueryRequest{TCKN: "123456789.5"}, "tckn", msgTCKNFormat},
		{"bad end date", QueryRequest{TCKN: "12345678901", EndDate: "yarin"}, "bitis_tarihi", msgDateFormat},
		{"bad date", QueryRequest{VKN: "1234567890", StartDate: "31/01/2024"}, "baslangic_tarihi", msgDateFormat},
		{"reversed", QueryRequest{VKN: "1234567890", StartDate: "2024-02-01", EndDate: "2024-01-01"}, "baslangic_tarihi", msgDateOrder},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateQueryRequest(tc.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("want *ValidationError, got %v", err)
			}
			if got := ve.Fields[tc.field]; got != tc.msg {
				t.Fatalf("Fields[%q] = %q; want %q (all: %v)", tc.field, got, tc.msg, ve.Fields)
			}
		})
	}
}

func TestValidateQueryRequest_OK(t *testing.T) {
	p, err := ValidateQueryRequest(QueryRequest{
		VKN: " 1234567890 ", StartDate: "2024-01-01", EndDate: "2024-01-01", UnpaidOnly: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Kind != ledger.IdentityVKN || p.Value != "1234567890" || !p.UnpaidOnly {
		t.Fatalf("params = %+v", p)
	}
	if p.Start == nil || p.End == nil || !p.Start.Equal(*p.End) {
		t.Fatalf("equal start/end should be accepted: %v %v", p.Start, p.End)
	}
}

// ---------- Query ----------

func TestQuery_ValidationHasNoSideEffects(t *testing.T) {
	db := newSvcDB(t)
	uid := seedUser(t, db, "v@x.tr")
	stub := newStub()
	s := NewCollectionService(db, stub)

	_, err := s.Query(context.Background(), uid, QueryRequest{TCKN: "1", VKN: "2"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want validation error, got %v", err)
	}
	if stub.calls != 0 {
		t.Fatalf("ledger was called %d times", stub.calls)
	}
	if n, _ := repo.CountQueries(context.Background(), db, uid); n != 0 {
		t.Fatalf("query rows = %d; want 0", n)
	}
}

func TestQuery_Success(t *testing.T) {
	db := newSvcDB(t)
	uid := seedUser(t, db, "ok@x.tr")
	s := NewCollectionService(db, newStub())
	ctx := context.Background()

	res, err := s.Query(ctx, uid, QueryRequest{TCKN: "12345678901"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Records) != 4 || res.Message != "4 adet tahsilat kaydı bulundu" {
		t.Fatalf("result = %d records, %q", len(res.Records), res.Message)
	}
	if res.Summary == nil || !res.Summary.Remaining.Equal(decimal.RequireFromString("1930417.32")) {
		t.Fatalf("summary = %+v", res.Summary)
	}
	if res.Summary.ResultCode != "001" {
		t.Fatalf("result code = %q", res.Summary.ResultCode)
	}

	q := onlyQuery(t, db, uid)
	if !q.Success || q.ResultCount != 4 || q.ErrorMessage != nil || q.FinishedAt == nil {
		t.Fatalf("query row = %+v", q)
	}
	if q.Kind != domain.KindTCKN || q.Value != "12345678901" {
		t.Fatalf("query predicates = %s/%s", q.Kind, q.Value)
	}

	// A second identical query updates in place and gets its own summary.
	res2, err := s.Query(ctx, uid, QueryRequest{TCKN: "12345678901"})
	if err != nil {
		t.Fatalf("second Query: %v", err)
	}
	if res2.Records[0].ID != res.Records[0].ID {
		t.Fatalf("record was not updated in place")
	}
	if n, _ := repo.CountActiveRecords(ctx, db, uid); n != 4 {
		t.Fatalf("active records = %d; want 4", n)
	}
	if res2.Summary == nil || res2.Summary.ID == res.Summary.ID {
		t.Fatalf("each query needs its own summary")
	}
}

func TestQuery_EmptyResult(t *testing.T) {
	db := newSvcDB(t)
	uid := seedUser(t, db, "empty@x.tr")
	stub := newStub()
	stub.list = func(context.Context, ledger.ListParams) ledger.Result[*ledger.ListPayload] {
		return ledger.Result[*ledger.ListPayload]{OK: true, Payload: &ledger.ListPayload{}}
	}
	s := NewCollectionService(db, stub)

	res, err := s.Query(context.Background(), uid, QueryRequest{VKN: "1234567890"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Records) != 0 || res.Summary == nil || !res.Summary.Principal.IsZero() {
		t.Fatalf("result = %+v", res)
	}
	if q := onlyQuery(t, db, uid); !q.Success || q.ResultCount != 0 {
		t.Fatalf("query row = %+v", q)
	}
}

func TestQuery_RemoteFailure(t *testing.T) {
	db := newSvcDB(t)
	uid := seedUser(t, db, "rf@x.tr")
	stub := newStub()
	stub.list = func(context.Context, ledger.ListParams) ledger.Result[*ledger.ListPayload] {
		return ledger.Result[*ledger.ListPayload]{Err: &ledger.Error{Kind: ledger.KindEnvelope, Message: "DSİ API Hatası: yetkisiz"}}
	}
	s := NewCollectionService(db, stub)

	_, err := s.Query(context.Background(), uid, QueryRequest{TCKN: "12345678901"})
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("want *RemoteError, got %v", err)
	}
	if re.QueryID == "" || re.Kind != ledger.KindEnvelope {
		t.Fatalf("remote error = %+v", re)
	}

	q := onlyQuery(t, db, uid)
	if q.Success || q.ErrorMessage == nil || *q.ErrorMessage != "DSİ API Hatası: yetkisiz" || q.ResultCount != 0 {
		t.Fatalf("query row = %+v", q)
	}
	if n, _ := repo.CountActiveRecords(context.Background(), db, uid); n != 0 {
		t.Fatalf("records written on failure: %d", n)
	}
}

func TestQuery_CancelledRequestStillFinalized(t *testing.T) {
	db := newSvcDB(t)
	uid := seedUser(t, db, "cx@x.tr")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stub := newStub()
	stub.list = func(context.Context, ledger.ListParams) ledger.Result[*ledger.ListPayload] {
		cancel()
		return ledger.Result[*ledger.ListPayload]{Err: &ledger.Error{Kind: ledger.KindTimeout, Message: "DSİ API zaman aşımı"}}
	}
	s := NewCollectionService(db, stub)

	if _, err := s.Query(ctx, uid, QueryRequest{TCKN: "12345678901"}); err == nil {
		t.Fatal("expected error")
	}
	q := onlyQuery(t, db, uid)
	if q.Success || q.FinishedAt == nil || q.ErrorMessage == nil {
		t.Fatalf("query row not finalized: %+v", q)
	}
}

func TestQuery_PanicBecomesInternalError(t *testing.T) {
	db := newSvcDB(t)
	uid := seedUser(t, db, "panic@x.tr")
	stub := newStub()
	stub.list = func(context.Context, ledger.ListParams) ledger.Result[*ledger.ListPayload] {
		panic("kaboom")
	}
	s := NewCollectionService(db, stub)

	res, err := s.Query(context.Background(), uid, QueryRequest{TCKN: "12345678901"})
	if res != nil || !errors.Is(err, ErrInternal) {
		t.Fatalf("want ErrInternal, got res=%v err=%v", res, err)
	}
	var ie *InternalError
	if !errors.As(err, &ie) || ie.QueryID == "" {
		t.Fatalf("want *InternalError with query id, got %v", err)
	}

	q := onlyQuery(t, db, uid)
	if q.Success || q.ErrorMessage == nil || !strings.Contains(*q.ErrorMessage, "kaboom") {
		t.Fatalf("query row = %+v", q)
	}
}

func TestQuery_SummaryFailureDegrades(t *testing.T) {
	db := newSvcDB(t)
	uid := seedUser(t, db, "sum@x.tr")

	err := db.Callback().Create().Before("gorm:create").Register("test:fail_summary", func(tx *gorm.DB) {
		if tx.Statement.Table == (domain.Summary{}).TableName() {
			_ = tx.AddError(errors.New("summary insert refused"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	s := NewCollectionService(db, newStub())
	res, err := s.Query(context.Background(), uid, QueryRequest{TCKN: "12345678901"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Summary != nil {
		t.Fatalf("summary should be nil, got %+v", res.Summary)
	}
	if len(res.Records) != 4 {
		t.Fatalf("records = %d; want 4", len(res.Records))
	}
	if n, _ := repo.CountActiveRecords(context.Background(), db, uid); n != 4 {
		t.Fatalf("records must survive summary failure, got %d", n)
	}
	if q := onlyQuery(t, db, uid); !q.Success || q.Summary != nil {
		t.Fatalf("query row = %+v", q)
	}
}

func TestQuery_StoreFailureIsInternal(t *testing.T) {
	db := newSvcDB(t)
	uid := seedUser(t, db, "store@x.tr")

	err := db.Callback().Create().Before("gorm:create").Register("test:fail_records", func(tx *gorm.DB) {
		if tx.Statement.Table == (domain.Record{}).TableName() {
			_ = tx.AddError(errors.New("disk full"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	s := NewCollectionService(db, newStub())
	_, err = s.Query(context.Background(), uid, QueryRequest{TCKN: "12345678901"})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("want ErrInternal, got %v", err)
	}
	q := onlyQuery(t, db, uid)
	if q.Success || q.ErrorMessage == nil || !strings.Contains(*q.ErrorMessage, "disk full") {
		t.Fatalf("query row = %+v", q)
	}
}

// ---------- reads ----------

func TestListRecords_HistoryAndStatistics(t *testing.T) {
	db := newSvcDB(t)
	uid := seedUser(t, db, "list@x.tr")
	other := seedUser(t, db, "other@x.tr")
	stub := newStub()
	s := NewCollectionService(db, stub)
	ctx := context.Background()

	if _, err := s.Query(ctx, uid, QueryRequest{TCKN: "12345678901"}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	stub.list = func(context.Context, ledger.ListParams) ledger.Result[*ledger.ListPayload] {
		return ledger.Result[*ledger.ListPayload]{Err: &ledger.Error{Kind: ledger.KindConnection, Message: "DSİ API bağlantı hatası"}}
	}
	_, _ = s.Query(ctx, uid, QueryRequest{TCKN: "12345678901"})

	items, total, err := s.ListRecords(ctx, uid, 0, 2)
	if err != nil || total != 4 || len(items) != 2 {
		t.Fatalf("ListRecords = %d items, total %d, err %v", len(items), total, err)
	}
	if items[0].Period == nil || items[0].Period.Year() != 2024 {
		t.Fatalf("newest period first, got %v", items[0].Period)
	}

	items, total, err = s.ListRecords(ctx, other, 1, 20)
	if err != nil || total != 0 || len(items) != 0 {
		t.Fatalf("other user sees %d records", len(items))
	}

	hist, total, err := s.History(ctx, uid, 1, 20)
	if err != nil || total != 2 || len(hist) != 2 {
		t.Fatalf("History = %d, %d, %v", len(hist), total, err)
	}
	if hist[0].Success || !hist[1].Success {
		t.Fatalf("history must be newest first: %+v", hist)
	}

	st, err := s.Statistics(ctx, uid)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if st.QueriesTotal != 2 || st.QueriesSucceeded != 1 || st.QueriesFailed != 1 {
		t.Fatalf("query counts = %+v", st)
	}
	if st.Totals.Partial != 3 || st.Totals.Unpaid != 1 || st.Totals.Paid != 0 {
		t.Fatalf("status counts = %+v", st.Totals)
	}
	if !st.Totals.Principal.Equal(decimal.RequireFromString("2180383.36")) {
		t.Fatalf("principal = %s", st.Totals.Principal)
	}
}

func TestUserTotals(t *testing.T) {
	d := decimal.RequireFromString
	got := UserTotals([]domain.Record{
		{Principal: d("100"), Collected: d("100"), Remaining: d("0")},
		{Principal: d("100"), Collected: d("40"), Remaining: d("60")},
		{Principal: d("50"), Collected: d("0"), Remaining: d("50")},
	})
	if got.Paid != 1 || got.Partial != 1 || got.Unpaid != 1 {
		t.Fatalf("counts = %+v", got)
	}
	if !got.Remaining.Equal(d("110")) || !got.Collected.Equal(d("140")) {
		t.Fatalf("sums = %+v", got)
	}
}

func TestGetRecord_RemoteDetail_Deactivate(t *testing.T) {
	db := newSvcDB(t)
	uid := seedUser(t, db, "rec@x.tr")
	other := seedUser(t, db, "rec2@x.tr")
	s := NewCollectionService(db, newStub())
	ctx := context.Background()

	res, err := s.Query(ctx, uid, QueryRequest{TCKN: "12345678901"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	rec := res.Records[0]

	if _, err := s.GetRecord(ctx, other, rec.ID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("foreign record = %v; want ErrRecordNotFound", err)
	}

	local, detail, err := s.RemoteDetail(ctx, uid, rec.RemoteID)
	if err != nil {
		t.Fatalf("RemoteDetail: %v", err)
	}
	if local.ID != rec.ID || detail.RemoteID != rec.RemoteID || len(detail.Installments) != 2 {
		t.Fatalf("detail = %+v / %+v", local, detail)
	}
	if _, _, err := s.RemoteDetail(ctx, other, rec.RemoteID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("foreign remote detail = %v", err)
	}

	if err := s.Deactivate(ctx, uid, rec.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if _, err := s.GetRecord(ctx, uid, rec.ID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("inactive record visible: %v", err)
	}
	if err := s.Deactivate(ctx, uid, rec.ID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("second Deactivate = %v", err)
	}
}

func TestDocument(t *testing.T) {
	db := newSvcDB(t)
	stub := newStub()
	s := NewCollectionService(db, stub)
	ctx := context.Background()

	doc, err := s.Document(ctx, 1228)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc.Name != "Tahsilat_Detay_1228.pdf" || !strings.HasPrefix(string(doc.Content), "%PDF") {
		t.Fatalf("doc = %q (%d bytes)", doc.Name, len(doc.Content))
	}

	stub.document = func(context.Context, int64) ledger.Result[*ledger.Document] {
		return ledger.Result[*ledger.Document]{OK: true, Payload: &ledger.Document{}}
	}
	var re *RemoteError
	if _, err := s.Document(ctx, 7); !errors.As(err, &re) || re.Message != "Belge bulunamadı" {
		t.Fatalf("empty document = %v", err)
	}

	stub.document = func(context.Context, int64) ledger.Result[*ledger.Document] {
		return ledger.Result[*ledger.Document]{OK: true, Payload: &ledger.Document{Content: "JVBERi0="}}
	}
	doc, err = s.Document(ctx, 7)
	if err != nil || doc.Name != "tahsilat_7.pdf" {
		t.Fatalf("default name = %+v, %v", doc, err)
	}
}

func TestRefresh_BypassesCacheAndUpdatesBalances(t *testing.T) {
	db := newSvcDB(t)
	uid := seedUser(t, db, "ref@x.tr")
	stub := newStub()
	cached := cache.NewLedger(stub, cache.NewMemoryStore(16, time.Minute), time.Minute)
	s := NewCollectionService(db, cached)
	ctx := context.Background()

	res, err := s.Query(ctx, uid, QueryRequest{TCKN: "12345678901"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	rec := res.Records[0]

	// Prime the cache with a stale detail.
	if _, _, err := s.RemoteDetail(ctx, uid, rec.RemoteID); err != nil {
		t.Fatalf("RemoteDetail: %v", err)
	}

	fresh := decimal.RequireFromString("1.50")
	stub.detail = func(_ context.Context, id int64) ledger.Result[*ledger.Detail] {
		it := ledger.Item{RemoteID: id, ReferenceNo: "R", Principal: fresh, Collected: decimal.Zero, Remaining: fresh}
		return ledger.Result[*ledger.Detail]{OK: true, Payload: &ledger.Detail{Item: it, Balances: ledger.BalancesOf(it)}}
	}

	got, err := s.Refresh(ctx, uid, rec.ID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !got.Remaining.Equal(fresh) || got.ID != rec.ID {
		t.Fatalf("refreshed = %+v", got)
	}

	stub.detail = func(context.Context, int64) ledger.Result[*ledger.Detail] {
		return ledger.Result[*ledger.Detail]{OK: true, Payload: &ledger.Detail{}}
	}
	var re *RemoteError
	if _, err := s.Refresh(ctx, uid, rec.ID); !errors.As(err, &re) || re.Message != msgRefreshFailed {
		t.Fatalf("empty detail = %v", err)
	}
}

func TestPageWindow(t *testing.T) {
	if off, lim := pageWindow(0, 0); off != 0 || lim != 20 {
		t.Fatalf("defaults = %d,%d", off, lim)
	}
	if off, lim := pageWindow(3, 10); off != 20 || lim != 10 {
		t.Fatalf("page 3 = %d,%d", off, lim)
	}
}

func TestRefresh_KeepsBalancesMissingFromDetail(t *testing.T) {
	db := newSvcDB(t)
	uid := seedUser(t, db, "keep@x.tr")
	stub := newStub()
	s := NewCollectionService(db, stub)
	ctx := context.Background()

	res, err := s.Query(ctx, uid, QueryRequest{TCKN: "12345678901"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	before := res.Records[0]
	if before.PaymentStatus() != domain.StatusPartial {
		t.Fatalf("fixture status = %s", before.PaymentStatus())
	}

	// Detail without any monetary field.
	stub.detail = func(_ context.Context, id int64) ledger.Result[*ledger.Detail] {
		return ledger.Result[*ledger.Detail]{OK: true, Payload: &ledger.Detail{Item: ledger.Item{RemoteID: id}}}
	}
	got, err := s.Refresh(ctx, uid, before.ID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !got.Principal.Equal(before.Principal) || !got.Collected.Equal(before.Collected) || !got.Remaining.Equal(before.Remaining) {
		t.Fatalf("balances changed: %s/%s/%s -> %s/%s/%s",
			before.Principal, before.Collected, before.Remaining, got.Principal, got.Collected, got.Remaining)
	}
	if got.PaymentStatus() != domain.StatusPartial {
		t.Fatalf("status flipped to %s", got.PaymentStatus())
	}

	// Only the remaining balance is reported.
	paid := decimal.Zero
	stub.detail = func(_ context.Context, id int64) ledger.Result[*ledger.Detail] {
		return ledger.Result[*ledger.Detail]{OK: true, Payload: &ledger.Detail{
			Item:     ledger.Item{RemoteID: id},
			Balances: ledger.Balances{Remaining: decimal.NewNullDecimal(paid)},
		}}
	}
	got, err = s.Refresh(ctx, uid, before.ID)
	if err != nil {
		t.Fatalf("Refresh partial: %v", err)
	}
	if !got.Principal.Equal(before.Principal) || !got.Remaining.IsZero() || got.PaymentStatus() != domain.StatusPaid {
		t.Fatalf("partial refresh = %s/%s/%s %s", got.Principal, got.Collected, got.Remaining, got.PaymentStatus())
	}
}
