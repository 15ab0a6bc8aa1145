// Package ledger tracks which bookings belong to an anonymous visitor.
// There are no visitor accounts; ownership lives client-side in a
// cookie holding the booking IDs the browser created. The server only
// ever reads the cookie to scope "my bookings" views, so a lost cookie
// loses the list but never the bookings themselves.
package ledger

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

const (
	CookieName = "user_bookings"

	// maxEntries caps the cookie payload well below the 4KB browser
	// limit. Oldest entries are evicted first.
	maxEntries = 50

	maxAge = 90 * 24 * time.Hour
)

type Entry struct {
	BookingID     string `json:"booking_id"`
	BookingNumber string `json:"booking_number"`
	ServiceName   string `json:"service_name"`
	BookingDate   string `json:"booking_date"`
	BookingTime   string `json:"booking_time"`
	CreatedAt     string `json:"created_at"`
}

// FromRequest decodes the ledger cookie. A missing or malformed cookie
// yields an empty ledger rather than an error; the visitor simply
// starts over.
func FromRequest(r *http.Request) []Entry {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}
	raw, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil
	}
	return entries
}

// Append adds a booking to the front of the ledger, dropping any
// duplicate of the same booking and evicting the oldest entries past
// the cap.
func Append(entries []Entry, entry Entry) []Entry {
	out := make([]Entry, 0, len(entries)+1)
	out = append(out, entry)
	for _, e := range entries {
		if e.BookingID == entry.BookingID {
			continue
		}
		out = append(out, e)
	}
	if len(out) > maxEntries {
		out = out[:maxEntries]
	}
	return out
}

// Remove drops a booking from the ledger. The input slice is left
// untouched so callers can keep ranging over it.
func Remove(entries []Entry, bookingID string) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.BookingID != bookingID {
			out = append(out, e)
		}
	}
	return out
}

// BookingIDs extracts the IDs in ledger order, newest first.
func BookingIDs(entries []Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.BookingID)
	}
	return ids
}

// Write serializes the ledger back onto the response. An empty ledger
// expires the cookie.
func Write(w http.ResponseWriter, entries []Entry, secure bool) error {
	cookie := &http.Cookie{
		Name:     CookieName,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
		Secure:   secure,
	}
	if len(entries) == 0 {
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
		return nil
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	cookie.Value = url.QueryEscape(string(raw))
	cookie.MaxAge = int(maxAge / time.Second)
	http.SetCookie(w, cookie)
	return nil
}
