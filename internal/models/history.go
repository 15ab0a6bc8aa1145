package models

import "time"

// HistoryEntry is an append-only audit record. It is never updated or
// deleted after insertion.
type HistoryEntry struct {
	ID          string    `json:"id"`
	BookingID   string    `json:"booking_id"`
	Action      string    `json:"action"`
	PerformedBy string    `json:"performed_by,omitempty"`
	PerformedAt time.Time `json:"performed_at"`
}
