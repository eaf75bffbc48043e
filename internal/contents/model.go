// Package contents manages the articles administrators draft and publish.
package contents

import "time"

// Status values of a content entry.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Content is an administrator-authored entry.
type Content struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Title     string    `gorm:"column:title;size:200;not null" json:"title"`
	Body      string    `gorm:"column:body;type:text;not null" json:"body"`
	Status    string    `gorm:"column:status;size:16;not null;default:draft" json:"status"`
	CreatedBy string    `gorm:"column:created_by;size:64;not null;index:idx_admin_contents_owner_created,priority:1" json:"created_by"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_admin_contents_owner_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName exposes the table backing content entries.
func (Content) TableName() string {
	return "admin_contents"
}

// Input creates an entry. An empty status means draft.
type Input struct {
	Title  string `json:"title" validate:"required,max=200"`
	Body   string `json:"body"`
	Status string `json:"status" validate:"omitempty,oneof=draft published"`
}

// Patch updates the fields that are present.
type Patch struct {
	Title  *string `json:"title" validate:"omitempty,min=1,max=200"`
	Body   *string `json:"body"`
	Status *string `json:"status" validate:"omitempty,oneof=draft published"`
}

func (p Patch) empty() bool {
	return p.Title == nil && p.Body == nil && p.Status == nil
}
