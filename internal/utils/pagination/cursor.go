package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cursor is the opaque pagination state we encode/decode.
// Key (the row's tie-breaking id) + UnixMilli establish a stable cursor
// for lists ordered by (time DESC, key DESC).
type Cursor struct {
	Key       string `json:"key"`
	UnixMilli int64  `json:"unix_milli,omitempty"`
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool {
	return c.Key == "" && c.UnixMilli == 0
}

// Encode converts a Cursor into a Base64 string.
func Encode(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Decode parses a Base64 string into a Cursor.
// Empty token → empty cursor (first page).
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid pagination token")
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return Cursor{}, fmt.Errorf("invalid pagination token")
	}
	return c, nil
}

// ClampLimit applies the default and the upper bound to a requested page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Page trims a limit+1 result to limit rows and builds the next token from the
// last kept row. next is nil on the final page.
func Page[T any](rows []T, limit int, cursorOf func(T) Cursor) ([]T, *string) {
	if len(rows) <= limit {
		return rows, nil
	}
	rows = rows[:limit]
	token, err := Encode(cursorOf(rows[limit-1]))
	if err != nil {
		return rows, nil
	}
	return rows, &token
}
