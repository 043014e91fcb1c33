package storage

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCursorGroup is returned when a page token is replayed against another
// group's event list.
var ErrCursorGroup = errors.New("cursor belongs to another group")

// Cursor marks where a group's event listing stopped. The group is carried
// along so a token cannot page through a different group.
type Cursor struct {
	GroupID string `json:"g"`
	After   int64  `json:"after"`
}

// Encode renders the page token handed to API clients.
func (c Cursor) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCursor parses a page token for groupID. An empty token starts at the
// group's first event.
func DecodeCursor(groupID, s string) (Cursor, error) {
	if s == "" {
		return Cursor{GroupID: groupID}, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("unmarshal cursor: %w", err)
	}
	if c.After < 0 {
		return Cursor{}, fmt.Errorf("cursor position %d is negative", c.After)
	}
	if c.GroupID != groupID {
		return Cursor{}, ErrCursorGroup
	}
	return c, nil
}
