package repository

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/apperr"
)

// ListCursor is the decoded position of a conversation list page.
// Ties on LastMessageAt are broken by ID.
type ListCursor struct {
	LastMessageAt time.Time
	ID            uuid.UUID
}

// EncodeCursor renders a cursor as an opaque URL-safe token
func EncodeCursor(c ListCursor) string {
	raw := strconv.FormatInt(c.LastMessageAt.UnixNano(), 10) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. Empty means first page.
func DecodeCursor(token string) (*ListCursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, apperr.InvalidArgument("malformed cursor")
	}
	at, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, apperr.InvalidArgument("malformed cursor")
	}
	nanos, err := strconv.ParseInt(at, 10, 64)
	if err != nil {
		return nil, apperr.InvalidArgument("malformed cursor")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.InvalidArgument("malformed cursor")
	}
	return &ListCursor{LastMessageAt: time.Unix(0, nanos).UTC(), ID: parsed}, nil
}

// Before reports whether a conversation at (at, id) sorts after the cursor
// in (lastMessageAt DESC, id DESC) order.
func (c *ListCursor) Before(at time.Time, id uuid.UUID) bool {
	if !at.Equal(c.LastMessageAt) {
		return at.Before(c.LastMessageAt)
	}
	return id.String() < c.ID.String()
}
