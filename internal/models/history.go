package models

import "time"

// HistoryEntry is an append-only audit record of a handled operation
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}
