package models

import "time"

// SearchHistoryEntry is one committed search. Entries are never updated.
type SearchHistoryEntry struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index:idx_history_user_time;not null"`
	Query     string    `json:"query" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_history_user_time"`
}

// Identity is the caller as seen by the discovery core. An empty UserID is anonymous.
type Identity struct {
	UserID string `json:"user_id,omitempty"`
}

// Anonymous reports whether the caller is not signed in
func (i Identity) Anonymous() bool {
	return i.UserID == ""
}
