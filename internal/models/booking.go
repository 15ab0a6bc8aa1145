package models

import "time"

type Booking struct {
	ID            string     `json:"id"`
	BookingNumber string     `json:"booking_number"`
	VisitorName   string     `json:"visitor_name"`
	VisitorPhone  string     `json:"visitor_phone"`
	ServiceID     string     `json:"service_id"`
	ServiceName   string     `json:"service_name,omitempty"`
	PrefixCode    string     `json:"prefix_code,omitempty"`
	Status        string     `json:"status"`
	BookingType   string     `json:"booking_type"`
	QueuePosition int        `json:"queue_position"`
	BookingDate   string     `json:"booking_date"`
	BookingTime   string     `json:"booking_time"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CalledAt      *time.Time `json:"called_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
}

const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

const BookingTypeOnline = "online"
