package profiles

import (
	"strings"
	"time"
)

const (
	// PlaceholderName is shown for profiles without a name.
	PlaceholderName = "SoulMatch user"
	// PlaceholderCity is shown for profiles without a city.
	PlaceholderCity = "Location not set"
	// DefaultTag fills the interest tag and vibe when a profile carries neither.
	DefaultTag = "SoulMatch"
	// DefaultAge is displayed when a profile has no positive age.
	DefaultAge = 25

	maxInterests = 20
)

// Profile is the persisted member profile. List columns are never nil once normalized.
type Profile struct {
	ID         string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Name       string    `gorm:"column:name;size:120" json:"name"`
	Age        *int      `gorm:"column:age" json:"age"`
	City       string    `gorm:"column:city;size:120" json:"city"`
	Status     string    `gorm:"column:status;size:120" json:"status"`
	Occupation string    `gorm:"column:occupation;size:120" json:"occupation"`
	About      string    `gorm:"column:about;type:text" json:"about"`
	Interests  []string  `gorm:"column:interests;type:text;serializer:json" json:"interests"`
	MainPhoto  string    `gorm:"column:main_photo;size:512" json:"main_photo"`
	GalleryA   []string  `gorm:"column:gallery_a;type:text;serializer:json" json:"gallery_a"`
	GalleryB   []string  `gorm:"column:gallery_b;type:text;serializer:json" json:"gallery_b"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime;index" json:"updated_at"`
}

// TableName exposes the table backing profiles.
func (Profile) TableName() string {
	return "profiles"
}

// Normalize replaces absent list columns with empty lists.
func (p Profile) Normalize() Profile {
	p.Interests = nonNil(p.Interests)
	p.GalleryA = nonNil(p.GalleryA)
	p.GalleryB = nonNil(p.GalleryB)
	return p
}

// DisplayName returns the name or the placeholder.
func (p Profile) DisplayName() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return PlaceholderName
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// cleanList trims entries, drops blanks and duplicates and keeps at most limit values (0 = unlimited).
func cleanList(values []string, limit int) []string {
	cleaned := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, trimmed)
		if limit > 0 && len(cleaned) == limit {
			break
		}
	}
	return cleaned
}
