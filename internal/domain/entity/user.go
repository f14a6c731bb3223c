package entity

import "time"

// User is an identity known to the local identity provider.
type User struct {
	UID         string     `gorm:"primaryKey;column:uid;size:36" json:"uid"`
	Email       string     `gorm:"size:320;not null;uniqueIndex" json:"email"`
	DisplayName string     `gorm:"column:display_name;size:200;not null;default:''" json:"displayName"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	LoginCount  int64      `gorm:"not null;default:0" json:"loginCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TableName определяет имя таблицы для GORM
func (User) TableName() string {
	return "users"
}
