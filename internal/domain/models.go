// Package domain defines the persistence models for users, mirrored ledger
// records, query audit rows, per-query summaries and announcements. These
// types are mapped with GORM and form the core data layer of the gateway.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Identity kinds accepted by the remote ledger.
const (
	KindTCKN = "TCKN" // personal id number, 11 digits
	KindVKN  = "VKN"  // tax id number, 10 digits
)

// Payment statuses derived from a record's balances.
const (
	StatusPaid    = "Ödendi"
	StatusPartial = "Kısmi Ödendi"
	StatusUnpaid  = "Ödenmedi"
)

// User is the local projection of an identity-provider account. Users are
// resolved by e-mail; the provider owns credentials.
type User struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Email     string    `json:"email"      gorm:"type:varchar(254);not null;uniqueIndex"`
	FirstName string    `json:"first_name" gorm:"type:varchar(150)"`
	LastName  string    `json:"last_name"  gorm:"type:varchar(150)"`
	Phone     string    `json:"phone"      gorm:"type:varchar(32)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Record mirrors one collection entry from the remote ledger.
//
// Fields:
//   - RemoteID: the ledger's tahsilatId; unique and never reassigned.
//   - ReferenceNo / Category / Subject / CounterpartyID: descriptive fields
//     overwritten on every refresh.
//   - Principal, Collected, Remaining: monetary figures (15,2). Collected +
//     Remaining is expected to equal Principal but is not enforced.
//   - Period: accrual period; nullable because the ledger sometimes omits it.
//   - ExternalID: the ledger's secondary id.
//   - UserID: owner, fixed at creation.
//   - Active: soft-delete flag.
type Record struct {
	ID             string          `json:"id"                      gorm:"type:char(36);primaryKey"`
	RemoteID       int64           `json:"tahsilat_id"             gorm:"not null;uniqueIndex"`
	ReferenceNo    string          `json:"tahakkuk_no"             gorm:"type:varchar(50);not null;index"`
	Category       string          `json:"gelir_turu"              gorm:"type:varchar(500)"`
	Subject        string          `json:"borcun_konusu"           gorm:"type:text"`
	CounterpartyID int64           `json:"cari_id"                 gorm:"index"`
	Principal      decimal.Decimal `json:"ana_para_borc"           gorm:"type:decimal(15,2);not null"`
	Collected      decimal.Decimal `json:"yapilan_toplam_tahsilat" gorm:"type:decimal(15,2);not null"`
	Remaining      decimal.Decimal `json:"kalan_anapara_borc"      gorm:"type:decimal(15,2);not null"`
	Period         *time.Time      `json:"tahakkuk_donemi"         gorm:"index:idx_records_owner_period,priority:2"`
	ExternalID     int64           `json:"harici_id"`
	UserID         string          `json:"-"                       gorm:"type:char(36);not null;index:idx_records_owner_period,priority:1"`
	QueriedAt      time.Time       `json:"sorgu_tarihi"`
	RefreshedAt    time.Time       `json:"son_guncelleme"`
	Active         bool            `json:"aktif"                   gorm:"not null;index"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Record.
func (Record) TableName() string { return "tahsilat_records" }

// PaymentStatus derives the human-readable status from the balances.
func (r Record) PaymentStatus() string {
	switch {
	case r.Remaining.LessThanOrEqual(decimal.Zero):
		return StatusPaid
	case r.Collected.GreaterThan(decimal.Zero):
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// Query is the audit row written for every search against the ledger.
// Only Success, ErrorMessage, ResultCount and FinishedAt change after insert.
type Query struct {
	ID           string     `json:"id"                 gorm:"type:char(36);primaryKey"`
	UserID       string     `json:"-"                  gorm:"type:char(36);not null;index:idx_queries_owner_created,priority:1"`
	Kind         string     `json:"sorgu_tipi"         gorm:"type:varchar(4);not null;check:kind IN ('TCKN','VKN')"`
	Value        string     `json:"sorgu_degeri"       gorm:"type:varchar(11);not null"`
	StartDate    *time.Time `json:"baslangic_tarihi"`
	EndDate      *time.Time `json:"bitis_tarihi"`
	UnpaidOnly   bool       `json:"sadece_odenmemis"   gorm:"not null"`
	CreatedAt    time.Time  `json:"sorgu_tarihi"       gorm:"index:idx_queries_owner_created,priority:2"`
	Success      bool       `json:"basarili"           gorm:"not null"`
	ErrorMessage *string    `json:"hata_mesaji"        gorm:"type:text"`
	ResultCount  int        `json:"donen_kayit_sayisi" gorm:"not null"`
	FinishedAt   *time.Time `json:"tamamlanma_tarihi,omitempty"`

	User    User     `json:"-"              gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Summary *Summary `json:"ozet,omitempty" gorm:"foreignKey:QueryID"`
}

// TableName returns the database table name for Query.
func (Query) TableName() string { return "tahsilat_queries" }

// Summary holds the remote aggregate totals for exactly one Query.
type Summary struct {
	ID                string          `json:"id"                        gorm:"type:char(36);primaryKey"`
	QueryID           string          `json:"-"                         gorm:"type:char(36);not null;uniqueIndex"`
	Principal         decimal.Decimal `json:"ana_para_borc"             gorm:"type:decimal(15,2);not null"`
	Collected         decimal.Decimal `json:"yapilan_toplam_tahsilat"   gorm:"type:decimal(15,2);not null"`
	Remaining         decimal.Decimal `json:"toplam_kalan_anapara_borc" gorm:"type:decimal(15,2);not null"`
	ResultCode        string          `json:"sonuc_kodu"                gorm:"type:varchar(10)"`
	ResultDescription string          `json:"sonuc_aciklamasi"          gorm:"type:text"`
	CreatedAt         time.Time       `json:"olusturma_tarihi"`

	Query Query `json:"-" gorm:"foreignKey:QueryID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Summary.
func (Summary) TableName() string { return "tahsilat_summaries" }
