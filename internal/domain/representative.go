package domain

import "time"

// Representative is a class representative who owns a content subtree and
// authenticates with email/password. AccessCode is the legacy per-rep code
// field kept for records created before the access_codes index existed.
type Representative struct {
	ID           string     `gorm:"primaryKey;size:64" json:"id"`
	Name         string     `gorm:"size:128;not null" json:"name"`
	Email        string     `gorm:"size:254;uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"size:128;not null" json:"-"`
	AccessCode   string     `gorm:"size:16;uniqueIndex" json:"access_code"`
	Stage        string     `gorm:"size:4;index" json:"stage"`
	Role         string     `gorm:"size:16" json:"role"`
	LastSeen     *time.Time `gorm:"index" json:"last_seen,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Representative) TableName() string { return "representatives" }
