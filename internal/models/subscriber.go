package models

import "time"

// Subscriber is a newsletter address. Unsubscribing deactivates the row
// instead of deleting it, so resubscribing reuses the same record.
type Subscriber struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Email          string     `gorm:"uniqueIndex;size:254;not null" json:"email"`
	IsActive       bool       `gorm:"not null;default:true;index" json:"is_active"`
	SubscribedAt   time.Time  `gorm:"not null" json:"subscribed_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
