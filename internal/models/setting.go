package models

import "time"

// PlatformSetting is one key/value row of financial configuration.
type PlatformSetting struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Key       string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	Version   int       `gorm:"not null;default:1" json:"version"`
	UpdatedBy *uint     `json:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
