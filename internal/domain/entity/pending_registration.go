package entity

import "time"

// RegistrationStatus is the lifecycle state of a pending registration token.
type RegistrationStatus string

const (
	RegistrationStatusPending   RegistrationStatus = "pending"
	RegistrationStatusCompleted RegistrationStatus = "completed"
	RegistrationStatusExpired   RegistrationStatus = "expired"
)

// PendingRegistration is a single-use email link token. The token value is the primary key.
type PendingRegistration struct {
	Token       string             `gorm:"primaryKey;type:text" json:"token"`
	Email       string             `gorm:"size:320;not null;index" json:"email"`
	Name        string             `gorm:"size:200;not null" json:"name"`
	ContinueURL string             `gorm:"column:continue_url;type:text;not null" json:"continueUrl"`
	Status      RegistrationStatus `gorm:"size:16;not null;index" json:"status"`
	CreatedAt   time.Time          `gorm:"not null" json:"createdAt"`
	ExpiresAt   time.Time          `gorm:"not null;index" json:"expiresAt"`
	VerifiedAt  *time.Time         `json:"verifiedAt,omitempty"`
	IPAddress   *string            `gorm:"column:ip_address;size:64" json:"ipAddress,omitempty"`
}

func (PendingRegistration) TableName() string {
	return "pending_registrations"
}

// NewPendingRegistration builds a pending record expiring ttl after now.
func NewPendingRegistration(token, email, name, continueURL string, now time.Time, ttl time.Duration) *PendingRegistration {
	return &PendingRegistration{
		Token:       token,
		Email:       email,
		Name:        name,
		ContinueURL: continueURL,
		Status:      RegistrationStatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// IsExpired reports whether ExpiresAt is strictly before now.
func (p *PendingRegistration) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
