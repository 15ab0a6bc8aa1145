package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/F1kro/Ngantri-DPMPTSP/internal/models"
)

type CreateBookingInput struct {
	RequestID    string
	ServiceID    string
	VisitorName  string
	VisitorPhone string
	BookingDate  string
	BookingTime  string
	CreatedAt    time.Time
}

type CallNextInput struct {
	RequestID   string
	ServiceID   string
	PerformedBy string
	CalledAt    time.Time
}

type BookingActionInput struct {
	RequestID   string
	BookingID   string
	Reason      string
	PerformedBy string
	OccurredAt  time.Time
}

type ServiceInput struct {
	Name              string
	Description       string
	EstimatedDuration int
	PrefixCode        string
}

type DailyStats struct {
	Date       string `json:"date"`
	Total      int    `json:"total"`
	Waiting    int    `json:"waiting"`
	InProgress int    `json:"in_progress"`
	Completed  int    `json:"completed"`
	Cancelled  int    `json:"cancelled"`
}

type BookingStore interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (models.Booking, bool, error)
	GetBooking(ctx context.Context, bookingID string) (models.Booking, error)
	GetBookings(ctx context.Context, bookingIDs []string) ([]models.Booking, error)
	ListBookings(ctx context.Context, date, serviceID string) ([]models.Booking, error)
	ListBookedSlots(ctx context.Context, serviceID, date string) ([]string, error)
	CallNext(ctx context.Context, input CallNextInput) (models.Booking, error)
	RecallBooking(ctx context.Context, input BookingActionInput) (models.Booking, error)
	CompleteBooking(ctx context.Context, input BookingActionInput) (models.Booking, error)
	CancelBooking(ctx context.Context, input BookingActionInput) (models.Booking, error)

	ListServices(ctx context.Context) ([]models.Service, error)
	GetService(ctx context.Context, serviceID string) (models.Service, error)
	CreateService(ctx context.Context, input ServiceInput) (models.Service, error)
	UpdateService(ctx context.Context, serviceID string, input ServiceInput) (models.Service, error)
	DeleteService(ctx context.Context, serviceID string) error

	GetDailyStats(ctx context.Context, date string) (DailyStats, error)
	ListHistory(ctx context.Context, bookingID string, limit int) ([]models.HistoryEntry, error)
	ListOutboxEvents(ctx context.Context, afterTime time.Time, afterID string, limit int) ([]OutboxEvent, error)

	Login(ctx context.Context, email, password string, expiresAt time.Time) (Session, models.AdminUser, error)
	Logout(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (Session, error)
}

type Session struct {
	SessionID string
	UserID    string
	Role      string
	ExpiresAt time.Time
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
