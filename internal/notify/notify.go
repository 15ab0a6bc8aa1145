// Package notify turns queue change events into visitor-facing alerts.
// Alerts only ever concern bookings the visitor holds in their ledger;
// everything else is plain state the client re-fetches on its own.
package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/F1kro/Ngantri-DPMPTSP/internal/models"
	"github.com/F1kro/Ngantri-DPMPTSP/internal/queue"
	"github.com/F1kro/Ngantri-DPMPTSP/internal/store"
)

const (
	KindCalled      = "called"
	KindCalledAgain = "called_again"
	KindAlmostTurn  = "almost_turn"
)

// almostTurnPosition is the 0-based waiting rank that triggers the
// get-ready alert, the visitor right behind the next call.
const almostTurnPosition = 1

type Alert struct {
	Kind          string `json:"kind"`
	BookingID     string `json:"booking_id"`
	BookingNumber string `json:"booking_number"`
	ServiceName   string `json:"service_name,omitempty"`
	Message       string `json:"message"`
	Speech        string `json:"speech,omitempty"`
	Urgent        bool   `json:"urgent"`
}

type eventPayload struct {
	BookingID     string `json:"booking_id"`
	BookingNumber string `json:"booking_number"`
	ServiceID     string `json:"service_id"`
	ServiceName   string `json:"service_name"`
}

// Dispatcher decides which alerts a single subscriber should receive.
// It remembers the last waiting rank it saw per booking so the
// almost-your-turn alert fires once per arrival at the trigger rank,
// not on every refresh while the visitor sits there.
type Dispatcher struct {
	mu      sync.Mutex
	lastPos map[string]int
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{lastPos: make(map[string]int)}
}

// HandleEvent maps a queue change event to an alert when it targets one
// of the watched bookings. Events for other bookings return nil.
func (d *Dispatcher) HandleEvent(event store.OutboxEvent, watched map[string]bool) *Alert {
	var payload eventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return nil
	}
	if !watched[payload.BookingID] {
		return nil
	}

	switch event.Type {
	case "booking.called":
		return &Alert{
			Kind:          KindCalled,
			BookingID:     payload.BookingID,
			BookingNumber: payload.BookingNumber,
			ServiceName:   payload.ServiceName,
			Message:       fmt.Sprintf("Nomor antrean Anda %s dipanggil. Silakan menuju loket.", payload.BookingNumber),
			Speech:        SpeechText(payload.BookingNumber),
			Urgent:        true,
		}
	case "booking.recalled":
		return &Alert{
			Kind:          KindCalledAgain,
			BookingID:     payload.BookingID,
			BookingNumber: payload.BookingNumber,
			ServiceName:   payload.ServiceName,
			Message:       fmt.Sprintf("Nomor antrean Anda %s dipanggil kembali. Silakan segera menuju loket.", payload.BookingNumber),
			Speech:        SpeechText(payload.BookingNumber),
			Urgent:        true,
		}
	}
	return nil
}

// CheckPositions recomputes waiting ranks for the watched bookings and
// emits a get-ready alert for each booking that just reached the
// trigger rank.
func (d *Dispatcher) CheckPositions(bookings []models.Booking, watchedIDs []string) []Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	byID := make(map[string]models.Booking, len(bookings))
	for _, b := range bookings {
		byID[b.ID] = b
	}

	var alerts []Alert
	for _, id := range watchedIDs {
		b, ok := byID[id]
		if !ok || b.Status != models.StatusWaiting {
			delete(d.lastPos, id)
			continue
		}
		pos := queue.Position(bookings, b.ServiceID, id)
		prev, seen := d.lastPos[id]
		d.lastPos[id] = pos
		if pos != almostTurnPosition {
			continue
		}
		if seen && prev == almostTurnPosition {
			continue
		}
		alerts = append(alerts, Alert{
			Kind:          KindAlmostTurn,
			BookingID:     id,
			BookingNumber: b.BookingNumber,
			ServiceName:   b.ServiceName,
			Message:       fmt.Sprintf("Sebentar lagi giliran Anda, nomor antrean %s. Mohon bersiap.", b.BookingNumber),
		})
	}
	return alerts
}

// SpeechText builds the announcement read aloud when a number is
// called. Characters are spelled out one at a time so text-to-speech
// does not read "IU-005" as a word.
func SpeechText(bookingNumber string) string {
	var spelled []string
	for _, r := range bookingNumber {
		if r == '-' {
			continue
		}
		spelled = append(spelled, string(r))
	}
	return fmt.Sprintf("Nomor antrean %s, silakan menuju loket.", strings.Join(spelled, " "))
}
