package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Snippet is a catalog row for one Liquid code snippet. The catalog is
// maintained elsewhere (seeding/admin tooling); the payment core only reads
// it to enumerate published snippets when granting subscription-wide access.
type Snippet struct {
	ID          string    `gorm:"type:varchar(191);primaryKey" json:"id" validate:"required,max=191"`
	Title       string    `gorm:"type:varchar(200);not null" json:"title" validate:"required,max=200"`
	Description string    `gorm:"type:text" json:"description"`
	Category    string    `gorm:"type:varchar(100);not null;default:'';index" json:"category"`
	Price       float64   `gorm:"type:decimal(10,2);not null;default:0" json:"price" validate:"gte=0"`
	Code        string    `gorm:"type:longtext" json:"-"`
	IsPublished bool      `gorm:"default:true;index" json:"is_published"`
	ViewCount   uint      `gorm:"default:0" json:"view_count"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Snippet) Validate() error {
	v := validator.New()

	return v.Struct(s)
}
