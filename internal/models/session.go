package models

// SessionState is the per-client state that survives between feed requests.
// LastSector is the most recent sector the client browsed.
type SessionState struct {
	LastSector string `json:"last_sector,omitempty"`
}
