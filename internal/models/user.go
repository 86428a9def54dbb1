package models

import (
	"strings"
	"time"
)

// User is a registered reader; IsAdmin grants post management.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;size:30;not null" json:"username"`
	FullName  string    `gorm:"size:128" json:"full_name"`
	Email     string    `gorm:"uniqueIndex;size:254;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName is the byline used on posts the user writes.
func (u *User) DisplayName() string {
	if u == nil {
		return "Anonymous"
	}
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	if name := strings.TrimSpace(u.Username); name != "" {
		return name
	}
	return "Anonymous"
}
