package pagination

import (
	"encoding/base64"
	"encoding/json"
)

// Pagination carries the cursor request parameters for list endpoints.
type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=50" validate:"gte=1,lte=250"`
}

// Cursor is the keyset position encoded into an opaque page token.
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(c Cursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func DecodeCursor(token string) (*Cursor, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// BuildCursorPageInfo inspects a result fetched with limit+1 rows,
// trims the sentinel row, and points the next token at the last row
// kept on the page.
func BuildCursorPageInfo[T any](rows []*T, limit int32, cursorOf func(*T) string) *PageInfo {
	if len(rows) == 0 {
		return &PageInfo{}
	}

	info := &PageInfo{}
	if len(rows) > int(limit) {
		info.HasMore = true
		rows = rows[:limit]
	}
	info.NextPageToken = cursorOf(rows[len(rows)-1])
	return info
}
