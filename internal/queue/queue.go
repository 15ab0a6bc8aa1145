// Package queue computes read-side views of a day's bookings. Every
// function recomputes from the full booking list it is given, so the
// callers can re-fetch and re-project after any change event without
// tracking deltas.
package queue

import (
	"sort"

	"github.com/F1kro/Ngantri-DPMPTSP/internal/models"
)

// ActiveFor returns the booking currently being served for a service,
// or nil when no one is. If more than one in_progress row exists the
// most recently updated wins.
func ActiveFor(bookings []models.Booking, serviceID string) *models.Booking {
	var active *models.Booking
	for i := range bookings {
		b := &bookings[i]
		if b.ServiceID != serviceID || b.Status != models.StatusInProgress {
			continue
		}
		if active == nil || b.UpdatedAt.After(active.UpdatedAt) {
			active = b
		}
	}
	if active == nil {
		return nil
	}
	copied := *active
	return &copied
}

// WaitingListFor returns the waiting bookings for a service ordered by
// appointment time, with arrival order breaking ties. Positions are
// assigned starting from 1 for display.
func WaitingListFor(bookings []models.Booking, serviceID string) []models.Booking {
	var waiting []models.Booking
	for _, b := range bookings {
		if b.ServiceID == serviceID && b.Status == models.StatusWaiting {
			waiting = append(waiting, b)
		}
	}
	sort.SliceStable(waiting, func(i, j int) bool {
		if waiting[i].BookingDate != waiting[j].BookingDate {
			return waiting[i].BookingDate < waiting[j].BookingDate
		}
		if waiting[i].BookingTime != waiting[j].BookingTime {
			return waiting[i].BookingTime < waiting[j].BookingTime
		}
		return waiting[i].CreatedAt.Before(waiting[j].CreatedAt)
	})
	for i := range waiting {
		waiting[i].QueuePosition = i + 1
	}
	return waiting
}

// HistoryFor returns every booking for a service, most recent first,
// whatever state each one is in. The log view shows the whole day's
// activity, not just the finished entries.
func HistoryFor(bookings []models.Booking, serviceID string) []models.Booking {
	var out []models.Booking
	for _, b := range bookings {
		if b.ServiceID == serviceID {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Position returns the 0-based rank of a booking in its service's
// waiting list, or -1 when the booking is not waiting.
func Position(bookings []models.Booking, serviceID, bookingID string) int {
	waiting := WaitingListFor(bookings, serviceID)
	for i, b := range waiting {
		if b.ID == bookingID {
			return i
		}
	}
	return -1
}

// OrderServices sorts services so the busiest queues come first.
// Busyness counts every booking that did not complete, cancelled ones
// included. Name order breaks ties.
func OrderServices(services []models.Service, bookings []models.Booking) []models.Service {
	pending := make(map[string]int, len(services))
	for _, b := range bookings {
		if b.Status != models.StatusCompleted {
			pending[b.ServiceID]++
		}
	}
	out := make([]models.Service, len(services))
	copy(out, services)
	sort.SliceStable(out, func(i, j int) bool {
		if pending[out[i].ID] != pending[out[j].ID] {
			return pending[out[i].ID] > pending[out[j].ID]
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// OrderServicesForVisitor orders like OrderServices but pins the
// services where the visitor holds a live booking to the front, so
// their own queue is the first thing they see.
func OrderServicesForVisitor(services []models.Service, bookings []models.Booking, ownedBookingIDs []string) []models.Service {
	owned := make(map[string]bool, len(ownedBookingIDs))
	for _, id := range ownedBookingIDs {
		owned[id] = true
	}
	mine := make(map[string]bool)
	for _, b := range bookings {
		if !owned[b.ID] {
			continue
		}
		if b.Status == models.StatusWaiting || b.Status == models.StatusInProgress {
			mine[b.ServiceID] = true
		}
	}

	ordered := OrderServices(services, bookings)
	sort.SliceStable(ordered, func(i, j int) bool {
		return mine[ordered[i].ID] && !mine[ordered[j].ID]
	})
	return ordered
}
