package model

import (
	"time"

	"github.com/google/uuid"
)

// User is the messaging core's read-only view of the identity system's users table
type User struct {
	ID                    uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name                  string    `json:"name" gorm:"size:100;not null"`
	Email                 string    `json:"email" gorm:"uniqueIndex;not null;size:255"`
	Avatar                string    `json:"avatar" gorm:"size:500;default:''"`
	IsNotificationEnabled bool      `json:"is_notification_enabled" gorm:"default:true"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Profile is the display data the identity resolver returns for a user
type Profile struct {
	UserID               uuid.UUID `json:"user_id" msgpack:"user_id"`
	DisplayName          string    `json:"display_name" msgpack:"display_name"`
	Avatar               string    `json:"avatar" msgpack:"avatar"`
	NotificationsEnabled bool      `json:"-" msgpack:"notifications_enabled"`
}

// ToProfile converts User to its display Profile
func (u *User) ToProfile() Profile {
	return Profile{
		UserID:               u.ID,
		DisplayName:          u.Name,
		Avatar:               u.Avatar,
		NotificationsEnabled: u.IsNotificationEnabled,
	}
}

// UnknownProfile is used when the identity system has no record of a user
func UnknownProfile(id uuid.UUID) Profile {
	return Profile{UserID: id, DisplayName: "Unknown user", NotificationsEnabled: false}
}
