package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/F1kro/Ngantri-DPMPTSP/internal/ledger"
	"github.com/F1kro/Ngantri-DPMPTSP/internal/queue"
	"github.com/F1kro/Ngantri-DPMPTSP/internal/slots"
	"github.com/F1kro/Ngantri-DPMPTSP/internal/store"

	"github.com/google/uuid"
)

const sessionTTL = 8 * time.Hour

type Handler struct {
	store         store.BookingStore
	secureCookies bool
}

type Options struct {
	SecureCookies bool
}

func NewHandler(store store.BookingStore, options Options) *Handler {
	return &Handler{
		store:         store,
		secureCookies: options.SecureCookies,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/bookings", h.handleBookings)
	mux.HandleFunc("/api/bookings/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/bookings/", h.handleBookingByID)
	mux.HandleFunc("/api/slots", h.handleSlots)
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/my/bookings", h.handleMyBookings)
	mux.HandleFunc("/api/services", h.handleServices)
	mux.HandleFunc("/api/services/", h.handleServiceByID)
	mux.HandleFunc("/api/admin/login", h.handleLogin)
	mux.HandleFunc("/api/admin/logout", h.handleLogout)
	mux.HandleFunc("/api/admin/stats", h.handleStats)
	mux.HandleFunc("/api/admin/history", h.handleHistory)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type createBookingRequest struct {
	RequestID    string `json:"request_id"`
	ServiceID    string `json:"service_id"`
	VisitorName  string `json:"visitor_name"`
	VisitorPhone string `json:"visitor_phone"`
	BookingDate  string `json:"booking_date"`
	BookingTime  string `json:"booking_time"`
}

func (h *Handler) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateBooking(w, r)
	case http.MethodGet:
		h.handleListBookings(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.VisitorName = strings.TrimSpace(req.VisitorName)
	req.VisitorPhone = strings.TrimSpace(req.VisitorPhone)
	req.BookingDate = strings.TrimSpace(req.BookingDate)
	req.BookingTime = strings.TrimSpace(req.BookingTime)

	if req.ServiceID == "" || req.VisitorName == "" || req.VisitorPhone == "" || req.BookingDate == "" || req.BookingTime == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "service_id, visitor_name, visitor_phone, booking_date, and booking_time are required")
		return
	}
	if !isValidUUID(req.ServiceID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	} else if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID when provided")
		return
	}
	if !isValidPhone(req.VisitorPhone) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "visitor_phone must be 8-16 digits")
		return
	}
	if !slots.ValidDate(req.BookingDate, time.Now(), time.Local) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "booking_date must be today or later")
		return
	}
	if !slots.Valid(req.BookingTime) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "booking_time is not an available slot time")
		return
	}

	booking, _, err := h.store.CreateBooking(r.Context(), store.CreateBookingInput{
		RequestID:    req.RequestID,
		ServiceID:    req.ServiceID,
		VisitorName:  req.VisitorName,
		VisitorPhone: req.VisitorPhone,
		BookingDate:  req.BookingDate,
		BookingTime:  req.BookingTime,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	entries := ledger.Append(ledger.FromRequest(r), ledger.Entry{
		BookingID:     booking.ID,
		BookingNumber: booking.BookingNumber,
		ServiceName:   booking.ServiceName,
		BookingDate:   booking.BookingDate,
		BookingTime:   booking.BookingTime,
		CreatedAt:     booking.CreatedAt.Format(time.RFC3339),
	})
	_ = ledger.Write(w, entries, h.secureCookies)

	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) handleListBookings(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	if date == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "date is required")
		return
	}
	if !isValidDate(date) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}
	if serviceID != "" && !isValidUUID(serviceID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}

	bookings, err := h.store.ListBookings(r.Context(), date, serviceID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (h *Handler) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/bookings/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGetBooking(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleBookingAction(w, r, parts[0], parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetBooking(w http.ResponseWriter, r *http.Request, bookingID string) {
	if !isValidUUID(bookingID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "booking_id must be a UUID")
		return
	}
	booking, err := h.store.GetBooking(r.Context(), bookingID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type bookingActionRequest struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
}

func (h *Handler) handleBookingAction(w http.ResponseWriter, r *http.Request, bookingID, action string) {
	if !isValidUUID(bookingID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "booking_id must be a UUID")
		return
	}

	var req bookingActionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	} else if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID when provided")
		return
	}

	switch action {
	case "cancel":
		h.handleCancelBooking(w, r, bookingID, req)
	case "recall":
		h.handleRecallBooking(w, r, bookingID, req)
	case "complete":
		h.handleCompleteBooking(w, r, bookingID, req)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleCancelBooking serves both visitors and staff. A visitor may
// only cancel bookings held in their ledger cookie; staff may cancel
// any waiting booking.
func (h *Handler) handleCancelBooking(w http.ResponseWriter, r *http.Request, bookingID string, req bookingActionRequest) {
	if req.Reason == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "reason is required")
		return
	}

	performedBy := ""
	session, err := h.sessionFromRequest(r)
	switch {
	case err == nil:
		performedBy = session.UserID
	case errors.Is(err, errNoSession), errors.Is(err, store.ErrSessionNotFound):
		if !ledgerOwns(r, bookingID) {
			writeError(w, req.RequestID, http.StatusForbidden, "access_denied", "booking does not belong to this visitor")
			return
		}
	default:
		writeError(w, req.RequestID, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	booking, err := h.store.CancelBooking(r.Context(), store.BookingActionInput{
		RequestID:   req.RequestID,
		BookingID:   bookingID,
		Reason:      req.Reason,
		PerformedBy: performedBy,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	// A cancelled booking leaves the visitor's ledger so it no longer
	// shows up under "my bookings".
	if entries := ledger.FromRequest(r); len(entries) > 0 {
		if pruned := ledger.Remove(entries, bookingID); len(pruned) != len(entries) {
			_ = ledger.Write(w, pruned, h.secureCookies)
		}
	}

	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) handleRecallBooking(w http.ResponseWriter, r *http.Request, bookingID string, req bookingActionRequest) {
	session, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	booking, err := h.store.RecallBooking(r.Context(), store.BookingActionInput{
		RequestID:   req.RequestID,
		BookingID:   bookingID,
		PerformedBy: session.UserID,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) handleCompleteBooking(w http.ResponseWriter, r *http.Request, bookingID string, req bookingActionRequest) {
	session, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	booking, err := h.store.CompleteBooking(r.Context(), store.BookingActionInput{
		RequestID:   req.RequestID,
		BookingID:   bookingID,
		PerformedBy: session.UserID,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type callNextRequest struct {
	RequestID string `json:"request_id"`
	ServiceID string `json:"service_id"`
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req callNextRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.ServiceID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "service_id is required")
		return
	}
	if !isValidUUID(req.ServiceID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	} else if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID when provided")
		return
	}

	booking, err := h.store.CallNext(r.Context(), store.CallNextInput{
		RequestID:   req.RequestID,
		ServiceID:   req.ServiceID,
		PerformedBy: session.UserID,
		CalledAt:    time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrNoBooking) {
			writeError(w, req.RequestID, http.StatusConflict, "queue_empty", "no bookings waiting")
			return
		}
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type slotsResponse struct {
	ServiceID string   `json:"service_id"`
	Date      string   `json:"date"`
	All       []string `json:"all"`
	Booked    []string `json:"booked"`
	Available []string `json:"available"`
}

func (h *Handler) handleSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if serviceID == "" || date == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "service_id and date are required")
		return
	}
	if !isValidUUID(serviceID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}
	if !isValidDate(date) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	booked, err := h.store.ListBookedSlots(r.Context(), serviceID, date)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{
		ServiceID: serviceID,
		Date:      date,
		All:       slots.All(),
		Booked:    booked,
		Available: slots.Available(booked),
	})
}

type queueResponse struct {
	ServiceID string           `json:"service_id"`
	Date      string           `json:"date"`
	Active    interface{}      `json:"active"`
	Waiting   interface{}      `json:"waiting"`
	History   interface{}      `json:"history"`
	Stats     store.DailyStats `json:"stats"`
}

// handleQueue returns the live view for one service and date: who is
// being served, who waits in what order, and what already finished.
// Clients re-fetch this whole view when a change event arrives.
func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if serviceID == "" || date == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "service_id and date are required")
		return
	}
	if !isValidUUID(serviceID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}
	if !isValidDate(date) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	bookings, err := h.store.ListBookings(r.Context(), date, serviceID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	stats, err := h.store.GetDailyStats(r.Context(), date)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, queueResponse{
		ServiceID: serviceID,
		Date:      date,
		Active:    queue.ActiveFor(bookings, serviceID),
		Waiting:   queue.WaitingListFor(bookings, serviceID),
		History:   queue.HistoryFor(bookings, serviceID),
		Stats:     stats,
	})
}

// handleMyBookings resolves the visitor's ledger cookie against the
// database. Ledger entries whose booking no longer exists are pruned
// from the cookie on the way out.
func (h *Handler) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	entries := ledger.FromRequest(r)
	if len(entries) == 0 {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}

	bookings, err := h.store.GetBookings(r.Context(), ledger.BookingIDs(entries))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	found := make(map[string]bool, len(bookings))
	for _, b := range bookings {
		found[b.ID] = true
	}
	pruned := entries
	for _, entry := range entries {
		if !found[entry.BookingID] {
			pruned = ledger.Remove(pruned, entry.BookingID)
		}
	}
	if len(pruned) != len(entries) {
		_ = ledger.Write(w, pruned, h.secureCookies)
	}

	writeJSON(w, http.StatusOK, bookings)
}

type serviceRequest struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	EstimatedDuration int    `json:"estimated_duration"`
	PrefixCode        string `json:"prefix_code"`
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListServices(w, r)
	case http.MethodPost:
		h.handleCreateService(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleListServices orders the catalog for the caller. Services where
// the visitor holds a live booking come first, then the busiest queues.
func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.store.ListServices(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	today := time.Now().Format("2006-01-02")
	bookings, err := h.store.ListBookings(r.Context(), today, "")
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	owned := ledger.BookingIDs(ledger.FromRequest(r))
	writeJSON(w, http.StatusOK, queue.OrderServicesForVisitor(services, bookings, owned))
}

func (h *Handler) handleCreateService(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	req, ok := decodeServiceRequest(w, r)
	if !ok {
		return
	}
	service, err := h.store.CreateService(r.Context(), store.ServiceInput{
		Name:              req.Name,
		Description:       req.Description,
		EstimatedDuration: req.EstimatedDuration,
		PrefixCode:        req.PrefixCode,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, service)
}

func (h *Handler) handleServiceByID(w http.ResponseWriter, r *http.Request) {
	serviceID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/services/"), "/")
	if serviceID == "" || strings.Contains(serviceID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !isValidUUID(serviceID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		service, err := h.store.GetService(r.Context(), serviceID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, service)
	case http.MethodPut:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		req, ok := decodeServiceRequest(w, r)
		if !ok {
			return
		}
		service, err := h.store.UpdateService(r.Context(), serviceID, store.ServiceInput{
			Name:              req.Name,
			Description:       req.Description,
			EstimatedDuration: req.EstimatedDuration,
			PrefixCode:        req.PrefixCode,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, service)
	case http.MethodDelete:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		if err := h.store.DeleteService(r.Context(), serviceID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func decodeServiceRequest(w http.ResponseWriter, r *http.Request) (serviceRequest, bool) {
	var req serviceRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return serviceRequest{}, false
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.PrefixCode = strings.ToUpper(strings.TrimSpace(req.PrefixCode))
	if req.Name == "" || req.PrefixCode == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "name and prefix_code are required")
		return serviceRequest{}, false
	}
	if len(req.PrefixCode) > 5 || !isAlpha(req.PrefixCode) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "prefix_code must be 1-5 letters")
		return serviceRequest{}, false
	}
	if req.EstimatedDuration <= 0 {
		req.EstimatedDuration = 30
	}
	return req, true
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	if !isValidDate(date) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	stats, err := h.store.GetDailyStats(r.Context(), date)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	bookingID := strings.TrimSpace(r.URL.Query().Get("booking_id"))
	if bookingID != "" && !isValidUUID(bookingID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "booking_id must be a UUID")
		return
	}
	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := h.store.ListHistory(r.Context(), bookingID, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func ledgerOwns(r *http.Request, bookingID string) bool {
	for _, entry := range ledger.FromRequest(r) {
		if entry.BookingID == bookingID {
			return true
		}
	}
	return false
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isValidDate(value string) bool {
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}

func isValidPhone(value string) bool {
	if len(value) < 8 || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isAlpha(value string) bool {
	for _, r := range value {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrServiceNotFound):
		return http.StatusNotFound, "service_not_found", "service not found"
	case errors.Is(err, store.ErrBookingNotFound):
		return http.StatusNotFound, "booking_not_found", "booking not found"
	case errors.Is(err, store.ErrSlotTaken):
		return http.StatusConflict, "slot_taken", "this time slot is already booked"
	case errors.Is(err, store.ErrActiveCall):
		return http.StatusConflict, "active_call", "finish the booking being served first"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "booking state does not allow this action"
	case errors.Is(err, store.ErrServiceHasBookings):
		return http.StatusConflict, "service_in_use", "service still has bookings"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
