package pagination

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many records any page can hold.
	MaxLimit = 100
)

// Params holds cursor pagination inputs from controllers or commands.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the position of the last record on a page. Records are ordered
// by CreatedAt, then ID.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Before reports whether c sorts strictly before other.
func (c Cursor) Before(other Cursor) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// EncodeCursor builds a base64 cursor string from the provided values.
func EncodeCursor(cursor Cursor) string {
	payload := fmt.Sprintf("%s|%s", cursor.CreatedAt.UTC().Format(time.RFC3339Nano), cursor.ID)
	return base64.URLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes the cursor string back into its components. An empty
// value is the first page.
func ParseCursor(value string) (*Cursor, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	return &Cursor{
		CreatedAt: t,
		ID:        parts[1],
	}, nil
}

// Page slices an already ordered list. It returns the records after the
// cursor and the cursor of the next page, empty on the last page.
func Page[T any](list []T, params Params, key func(T) Cursor) ([]T, string, error) {
	after, err := ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	start := 0
	if after != nil {
		for start < len(list) && !after.Before(key(list[start])) {
			start++
		}
	}
	limit := NormalizeLimit(params.Limit)
	end := start + limit
	if end >= len(list) {
		return list[start:], "", nil
	}
	page := list[start:end]
	return page, EncodeCursor(key(page[len(page)-1])), nil
}
