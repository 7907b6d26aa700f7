package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product represents a product in the catalog.
// Price is expressed in integer currency units; Stock never goes below zero.
type Product struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Price        int64     `json:"price" db:"price"`
	Stock        int       `json:"stock" db:"stock"`
	ThumbnailURL *string   `json:"thumbnail_url" db:"thumbnail_url"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
