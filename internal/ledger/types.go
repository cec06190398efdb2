package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// wireLayout is the timestamp layout the ledger uses (no zone).
const wireLayout = "2006-01-02T15:04:05"

// Timestamp accepts the ledger's zone-less timestamps as well as RFC 3339
// and plain dates. Zone-less values are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{wireLayout, time.RFC3339Nano, "2006-01-02"}

// ParseTimestamp parses s with the layouts the ledger is known to emit.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, l := range timestampLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return Timestamp{t.UTC()}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("ledger: unrecognized timestamp %q", s)
}

// UnmarshalJSON implements json.Unmarshaler. null and "" leave t zero.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	ts, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = ts
	return nil
}

// MarshalJSON writes the ledger's own layout.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(wireLayout))
}

// Ptr returns a *time.Time, or nil for the zero value.
func (t *Timestamp) Ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// IdentityKind selects which national identifier the ledger searches by.
type IdentityKind string

const (
	IdentityTCKN IdentityKind = "TCKN"
	IdentityVKN  IdentityKind = "VKN"
)

// ListParams are the predicates of a list call. Exactly one identity is
// sent; the caller is responsible for validating it.
type ListParams struct {
	Kind       IdentityKind
	Value      string
	Start      *time.Time
	End        *time.Time
	UnpaidOnly bool
}

// ResultInfo is the ledger's own result code pair.
type ResultInfo struct {
	Code        string `json:"sonucKodu"`
	Description string `json:"sonucAciklamasi"`
}

// Item is one entry of a list response.
type Item struct {
	RemoteID       int64           `json:"tahsilatId"`
	ReferenceNo    string          `json:"tahakkukNo"`
	Category       string          `json:"gelirTuru"`
	Subject        string          `json:"borcunKonusu"`
	CounterpartyID int64           `json:"cariId"`
	Principal      decimal.Decimal `json:"anaParaBorc"`
	Collected      decimal.Decimal `json:"yapilanToplamTahsilat"`
	Remaining      decimal.Decimal `json:"kalanAnaparaBorc"`
	Period         *Timestamp      `json:"tahakkukDonemi"`
	ExternalID     int64           `json:"id"`
}

// ListPayload is the result body of a list call.
type ListPayload struct {
	Items     []Item          `json:"tahsilatListe"`
	Principal decimal.Decimal `json:"anaParaBorc"`
	Collected decimal.Decimal `json:"yapilanToplamTahsilat"`
	Remaining decimal.Decimal `json:"toplamKalanAnaparaBorc"`
	Result    *ResultInfo     `json:"sonucBilgisi"`
	ID        int64           `json:"id"`
}

// ItemTotals sums the three monetary fields across p.Items.
func (p *ListPayload) ItemTotals() (principal, collected, remaining decimal.Decimal) {
	for _, it := range p.Items {
		principal = principal.Add(it.Principal)
		collected = collected.Add(it.Collected)
		remaining = remaining.Add(it.Remaining)
	}
	return
}

// Installment is one scheduled payment of a collection.
type Installment struct {
	No       int             `json:"taksitNo"`
	Amount   decimal.Decimal `json:"taksitTutari"`
	DueDate  *Timestamp      `json:"vadeTarihi"`
	Status   string          `json:"odemeDurumu"`
	PaidDate *Timestamp      `json:"odemeTarihi"`
}

// Payment is one historical payment.
type Payment struct {
	Date      *Timestamp      `json:"odemeTarihi"`
	Amount    decimal.Decimal `json:"odemeTutari"`
	Method    string          `json:"odemeYontemi"`
	Reference string          `json:"referansNo"`
}

// Balances are the monetary fields of a detail. A field the ledger left out
// (or sent as null) is not Valid.
type Balances struct {
	Principal decimal.NullDecimal `json:"anaParaBorc"`
	Collected decimal.NullDecimal `json:"yapilanToplamTahsilat"`
	Remaining decimal.NullDecimal `json:"kalanAnaparaBorc"`
}

// Any reports whether at least one balance is present.
func (b Balances) Any() bool {
	return b.Principal.Valid || b.Collected.Valid || b.Remaining.Valid
}

// BalancesOf marks all three monetary fields of it as present.
func BalancesOf(it Item) Balances {
	return Balances{
		Principal: decimal.NewNullDecimal(it.Principal),
		Collected: decimal.NewNullDecimal(it.Collected),
		Remaining: decimal.NewNullDecimal(it.Remaining),
	}
}

// Detail is the result body of a detail call. Raw keeps the untouched
// payload so unknown upstream fields survive a passthrough. Balances records
// which monetary fields the payload actually carried.
type Detail struct {
	Item
	Installments []Installment `json:"taksitler,omitempty"`
	Payments     []Payment     `json:"odemeGecmisi,omitempty"`

	Balances Balances        `json:"-"`
	Raw      json.RawMessage `json:"-"`
}

// Document is the result body of a document call.
type Document struct {
	RemoteID  int64       `json:"tahsilatId"`
	Name      string      `json:"belgeAdi"`
	Content   string      `json:"belge"` // base64
	Size      int64       `json:"belgeBoyutu"`
	CreatedAt *Timestamp  `json:"olusturmaTarihi"`
	Result    *ResultInfo `json:"sonucBilgisi"`
}

// envelope is the ABP wrapper the ledger puts around every response.
type envelope struct {
	Result  json.RawMessage `json:"result"`
	Success bool            `json:"success"`
	Error   *struct {
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
	TargetURL           *string `json:"targetUrl"`
	UnAuthorizedRequest bool    `json:"unAuthorizedRequest"`
	ABP                 bool    `json:"__abp"`
}

// UnmarshalJSON decodes the typed fields and keeps the raw bytes.
func (d *Detail) UnmarshalJSON(b []byte) error {
	type plain Detail
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = Detail(p)
	if err := json.Unmarshal(b, &d.Balances); err != nil {
		return err
	}
	d.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// MarshalJSON re-emits the upstream payload unchanged when available.
func (d Detail) MarshalJSON() ([]byte, error) {
	if len(d.Raw) > 0 {
		return d.Raw, nil
	}
	type plain Detail
	return json.Marshal(plain(d))
}
