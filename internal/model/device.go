package model

import (
	"time"

	"github.com/google/uuid"
)

// UserDevice is a push registration owned by the identity system. The
// messaging core reads it and removes tokens FCM reports as unregistered.
type UserDevice struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID       uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	FCMToken     string    `json:"fcm_token" gorm:"not null;uniqueIndex:idx_user_token"`
	DeviceType   string    `json:"device_type" gorm:"size:20;default:'unknown'"` // android, ios, web
	LastActiveAt time.Time `json:"last_active_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func (UserDevice) TableName() string { return "user_devices" }

// PushTokens returns the distinct non-empty tokens of devices, in order
func PushTokens(devices []UserDevice) []string {
	seen := make(map[string]bool, len(devices))
	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		if d.FCMToken == "" || seen[d.FCMToken] {
			continue
		}
		seen[d.FCMToken] = true
		tokens = append(tokens, d.FCMToken)
	}
	return tokens
}
