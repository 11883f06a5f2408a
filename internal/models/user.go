package models

import "time"

// Roles carried in tokens.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is a login account. Only the login flow reads it.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"size:50;uniqueIndex;not null"`
	Password  string    `json:"-" gorm:"size:100;not null"` // bcrypt hash
	Email     string    `json:"email" gorm:"size:50"`
	Role      string    `json:"role" gorm:"size:20;not null"`
	Active    bool      `json:"active" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
