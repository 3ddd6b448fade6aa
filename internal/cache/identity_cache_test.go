package cache

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestNilIdentityCacheMissesEverything(t *testing.T) {
	var c *IdentityCache
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	found, missing, err := c.GetMany(context.Background(), ids)
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Equal(t, ids, missing)

	assert.NoError(t, c.SetMany(context.Background(), []model.Profile{{UserID: ids[0]}}))
	assert.NoError(t, c.Invalidate(context.Background(), ids...))
}

func TestProfileEncodingKeepsNotificationSetting(t *testing.T) {
	p := model.Profile{UserID: uuid.New(), DisplayName: "Ana", Avatar: "a.png", NotificationsEnabled: true}

	data, err := msgpack.Marshal(p)
	require.NoError(t, err)
	var got model.Profile
	require.NoError(t, msgpack.Unmarshal(data, &got))
	assert.Equal(t, p, got)
}

func TestIdentityKey(t *testing.T) {
	id := uuid.MustParse("6f1c1c1e-0000-4000-8000-000000000001")
	assert.Equal(t, "identity:6f1c1c1e-0000-4000-8000-000000000001", identityKey(id))
}
