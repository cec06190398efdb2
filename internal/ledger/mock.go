package ledger

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Mock serves a fixed fixture in-process. List applies the same predicates
// the live service applies and recomputes the totals over what is left, so
// mock and live payloads have the same shape and meaning.
type Mock struct {
	Items  []Item
	Result ResultInfo
}

// NewMock returns a Mock loaded with the default fixture.
func NewMock() *Mock {
	return &Mock{
		Items:  fixtureItems(),
		Result: ResultInfo{Code: "001", Description: "İşlem başarılıdır."},
	}
}

// List filters the fixture. The date range is inclusive on both ends and
// undated items are dropped when a range is given. UnpaidOnly keeps items
// with a positive remaining balance.
func (m *Mock) List(_ context.Context, p ListParams) Result[*ListPayload] {
	items := make([]Item, 0, len(m.Items))
	for _, it := range m.Items {
		if p.UnpaidOnly && !it.Remaining.IsPositive() {
			continue
		}
		if p.Start != nil || p.End != nil {
			if it.Period == nil || it.Period.IsZero() {
				continue
			}
			if p.Start != nil && it.Period.Before(*p.Start) {
				continue
			}
			if p.End != nil && it.Period.After(*p.End) {
				continue
			}
		}
		items = append(items, it)
	}

	info := m.Result
	out := &ListPayload{Items: items, Result: &info}
	out.Principal, out.Collected, out.Remaining = out.ItemTotals()
	return success(out)
}

// Detail returns a synthetic detail with two installments and one payment.
func (m *Mock) Detail(_ context.Context, remoteID int64) Result[*Detail] {
	d := &Detail{
		Item: Item{
			RemoteID:       remoteID,
			ReferenceNo:    fmt.Sprintf("202111808000000%d", remoteID),
			Category:       fixtureCategory,
			Subject:        fmt.Sprintf("Test tahsilat detayı - ID: %d", remoteID),
			CounterpartyID: 1792,
			Principal:      decimal.NewFromInt(100000),
			Collected:      decimal.NewFromInt(50000),
			Remaining:      decimal.NewFromInt(50000),
			Period:         ts("2024-01-31T00:00:00"),
		},
		Installments: []Installment{
			{No: 1, Amount: decimal.NewFromInt(25000), DueDate: ts("2024-02-28T00:00:00"), Status: "Ödendi", PaidDate: ts("2024-02-15T00:00:00")},
			{No: 2, Amount: decimal.NewFromInt(25000), DueDate: ts("2024-03-31T00:00:00"), Status: "Beklemede"},
		},
		Payments: []Payment{
			{Date: ts("2024-02-15T00:00:00"), Amount: decimal.NewFromInt(25000), Method: "Banka Havalesi", Reference: "REF001"},
		},
	}
	d.Balances = BalancesOf(d.Item)
	return success(d)
}

// Document returns a one-page PDF.
func (m *Mock) Document(_ context.Context, remoteID int64) Result[*Document] {
	content := base64.StdEncoding.EncodeToString(samplePDF(remoteID))
	return success(&Document{
		RemoteID:  remoteID,
		Name:      fmt.Sprintf("Tahsilat_Detay_%d.pdf", remoteID),
		Content:   content,
		Size:      int64(len(content)),
		CreatedAt: &Timestamp{time.Date(2025, 1, 19, 12, 0, 0, 0, time.UTC)},
		Result:    &ResultInfo{Code: "001", Description: "Belge başarıyla oluşturuldu."},
	})
}

const fixtureCategory = "08 - İçme Kullanma ve Endüstri Suyu Tesislerine İlişkin Yatırım Bedeli Geri Ödeme Gelirleri"

func fixtureItems() []Item {
	d := decimal.RequireFromString
	return []Item{
		{
			RemoteID: 1228, ReferenceNo: "20211180800000063", Category: fixtureCategory,
			Subject:        " 63550 nolu sondaj kuyusu yatırım geri ödemesi",
			CounterpartyID: 1792,
			Principal:      d("92822.77"), Collected: d("15799.62"), Remaining: d("77023.15"),
			Period: ts("2016-01-31T00:00:00"), ExternalID: 12364,
		},
		{
			RemoteID: 1281, ReferenceNo: "20211180800000013", Category: fixtureCategory,
			Subject:        "İhsaniye-Gazlıgöl İçmesuyu Arsenik Arıtma Tesisi (2.Aşama) yatırım geri ödemesi",
			CounterpartyID: 1792,
			Principal:      d("1123327.14"), Collected: d("175560.88"), Remaining: d("947766.26"),
			Period: ts("2017-01-31T00:00:00"), ExternalID: 12710,
		},
		{
			RemoteID: 222235, ReferenceNo: "20241180800000045", Category: fixtureCategory,
			Subject:        "İhsaniye-Gazlıgöl İçmesuyu Arsenik Arıtma Tesisi (2.Aşama) 2023 yılı Taksidi Ek tahakkuku",
			CounterpartyID: 1792,
			Principal:      d("18271.14"), Collected: d("0"), Remaining: d("18271.14"),
			Period: ts("2024-01-31T00:00:00"), ExternalID: 78260,
		},
		{
			RemoteID: 226959, ReferenceNo: "20241180800000103", Category: fixtureCategory,
			Subject:        "İhsaniye-Gazlıgöl İçmesuyu Arsenik Arıtma Tesisi (2.Aşama) yatırım geri ödemesi",
			CounterpartyID: 1792,
			Principal:      d("945962.31"), Collected: d("58605.54"), Remaining: d("887356.77"),
			Period: ts("2017-01-31T00:00:00"), ExternalID: 94467,
		},
	}
}

// ts parses a fixture timestamp and panics on a malformed literal.
func ts(s string) *Timestamp {
	t, err := ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return &t
}

// samplePDF renders a minimal single-page PDF naming the collection.
func samplePDF(remoteID int64) []byte {
	text := fmt.Sprintf("Tahsilat %d", remoteID)
	stream := fmt.Sprintf("BT /F1 18 Tf 72 720 Td (%s) Tj ET", text)
	return []byte(fmt.Sprintf(`%%PDF-1.4
1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj
2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj
3 0 obj << /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >> endobj
4 0 obj << /Length %d >> stream
%s
endstream endobj
5 0 obj << /Type /Font /Subtype /Type1 /BaseFont /Helvetica >> endobj
trailer << /Root 1 0 R >>
%%%%EOF
`, len(stream), stream))
}
