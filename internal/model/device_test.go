package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushTokens(t *testing.T) {
	devices := []UserDevice{
		{FCMToken: "a"},
		{FCMToken: ""},
		{FCMToken: "b"},
		{FCMToken: "a"},
	}
	assert.Equal(t, []string{"a", "b"}, PushTokens(devices))
	assert.Empty(t, PushTokens(nil))
}
