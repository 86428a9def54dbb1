// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Post is a published article.
type Post struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title       string    `gorm:"size:300;not null" json:"title"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	Excerpt     string    `gorm:"type:text;not null" json:"excerpt"`
	Category    string    `gorm:"size:64;not null;index" json:"category"`
	AuthorID    uint      `gorm:"not null;index" json:"author_id"`
	Author      string    `gorm:"size:128;not null" json:"author"`
	PublishedAt time.Time `gorm:"not null;index" json:"published_at"`
	ImageURL    string    `gorm:"size:1024" json:"image_url"`
	Tags        []string  `gorm:"type:text;serializer:json" json:"tags"`
	Views       int64     `gorm:"not null;default:0" json:"views"`
	Likes       int64     `gorm:"not null;default:0" json:"likes"`
	// Liked is per viewer and never persisted.
	Liked     bool      `gorm:"-" json:"liked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an ID and publication time when the caller left them empty.
func (p *Post) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now().UTC()
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return nil
}

// Clone returns a copy that shares no mutable state with p.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Tags != nil {
		cp.Tags = append([]string(nil), p.Tags...)
	}
	return &cp
}
