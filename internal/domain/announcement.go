package domain

import (
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Announcement types.
const (
	AnnouncementNormal    = "normal"
	AnnouncementImportant = "onemli"
	AnnouncementUrgent    = "acil"
	AnnouncementInfo      = "bilgi"
)

// announcementTypes lists the accepted types in display order with their
// label and colour.
var announcementTypes = []struct {
	Value, Name, Color string
}{
	{AnnouncementNormal, "Normal", "#28a745"},
	{AnnouncementImportant, "Önemli", "#dc3545"},
	{AnnouncementUrgent, "Acil", "#ffc107"},
	{AnnouncementInfo, "Bilgi", "#17a2b8"},
}

var turkishUpper = cases.Upper(language.Turkish)

// AnnouncementType describes one selectable announcement type.
type AnnouncementType struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Color string `json:"renk"`
}

// AnnouncementTypes returns every supported type with label and colour.
func AnnouncementTypes() []AnnouncementType {
	out := make([]AnnouncementType, 0, len(announcementTypes))
	for _, t := range announcementTypes {
		out = append(out, AnnouncementType{Value: t.Value, Label: turkishUpper.String(t.Name), Color: t.Color})
	}
	return out
}

// ValidAnnouncementType reports whether v is a supported type.
func ValidAnnouncementType(v string) bool {
	for _, t := range announcementTypes {
		if t.Value == v {
			return true
		}
	}
	return false
}

// Announcement is a news item shown in the mobile feed.
//
// Only rows that are both Active and Published appear in public listings.
// SortOrder ranks pinned items ahead of newer ones.
type Announcement struct {
	ID        string    `json:"id"               gorm:"type:char(36);primaryKey"`
	Title     string    `json:"baslik"           gorm:"type:varchar(200);not null"`
	Category  string    `json:"kategori"         gorm:"type:varchar(100);not null;index"`
	Type      string    `json:"tip"              gorm:"type:varchar(20);not null;index;check:type IN ('normal','onemli','acil','bilgi')"`
	Summary   string    `json:"ozet"             gorm:"type:varchar(500);not null"`
	Details   string    `json:"detaylar"         gorm:"type:text"`
	ImageURL  string    `json:"resim,omitempty"  gorm:"type:varchar(500)"`
	Date      time.Time `json:"tarih"            gorm:"index"`
	Active    bool      `json:"aktif"            gorm:"not null"`
	Published bool      `json:"yayinlandi"       gorm:"not null"`
	SortOrder int       `json:"sira"             gorm:"not null"`
	CreatedAt time.Time `json:"olusturma_tarihi"`
	UpdatedAt time.Time `json:"guncelleme_tarihi"`
}

// TableName returns the database table name for Announcement.
func (Announcement) TableName() string { return "announcements" }

// Color returns the display colour for the announcement type.
func (a Announcement) Color() string {
	for _, t := range announcementTypes {
		if t.Value == a.Type {
			return t.Color
		}
	}
	return announcementTypes[0].Color
}

// Label returns the upper-cased Turkish label for the announcement type.
func (a Announcement) Label() string {
	for _, t := range announcementTypes {
		if t.Value == a.Type {
			return turkishUpper.String(t.Name)
		}
	}
	return turkishUpper.String(announcementTypes[0].Name)
}
