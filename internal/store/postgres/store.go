package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/F1kro/Ngantri-DPMPTSP/internal/models"
	"github.com/F1kro/Ngantri-DPMPTSP/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingNumberPad = 3

// slotUniqueConstraint is the partial unique index over
// (service_id, booking_date, booking_time) that excludes cancelled
// rows. It is the authority on slot conflicts; the pre-insert check
// only exists to fail early.
const slotUniqueConstraint = "bookings_slot_key"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const bookingColumns = `
	b.id, b.booking_number, b.visitor_name, b.visitor_phone, b.service_id,
	s.name, s.prefix_code, b.status, b.booking_type,
	to_char(b.booking_date, 'YYYY-MM-DD'), b.booking_time,
	b.created_at, b.updated_at, b.called_at, b.completed_at, b.cancelled_at, b.cancel_reason
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (models.Booking, error) {
	var booking models.Booking
	var calledAtNull sql.NullTime
	var completedAtNull sql.NullTime
	var cancelledAtNull sql.NullTime
	var cancelReasonNull sql.NullString
	err := row.Scan(
		&booking.ID, &booking.BookingNumber, &booking.VisitorName, &booking.VisitorPhone, &booking.ServiceID,
		&booking.ServiceName, &booking.PrefixCode, &booking.Status, &booking.BookingType,
		&booking.BookingDate, &booking.BookingTime,
		&booking.CreatedAt, &booking.UpdatedAt, &calledAtNull, &completedAtNull, &cancelledAtNull, &cancelReasonNull,
	)
	if err != nil {
		return models.Booking{}, err
	}
	booking.CalledAt = nullTimePtr(calledAtNull)
	booking.CompletedAt = nullTimePtr(completedAtNull)
	booking.CancelledAt = nullTimePtr(cancelledAtNull)
	if cancelReasonNull.Valid {
		booking.CancelReason = cancelReasonNull.String
	}
	return booking, nil
}

func (s *Store) CreateBooking(ctx context.Context, input store.CreateBookingInput) (models.Booking, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Booking{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findBookingByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Booking{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Booking{}, false, err
		}
		return existing, false, nil
	}

	var serviceName, prefixCode string
	row := tx.QueryRow(ctx, `SELECT name, prefix_code FROM services WHERE id = $1`, input.ServiceID)
	if err = row.Scan(&serviceName, &prefixCode); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrServiceNotFound
		}
		return models.Booking{}, false, err
	}

	var taken bool
	row = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE service_id = $1 AND booking_date = $2 AND booking_time = $3 AND status <> 'cancelled'
		)
	`, input.ServiceID, input.BookingDate, input.BookingTime)
	if err = row.Scan(&taken); err != nil {
		return models.Booking{}, false, err
	}
	if taken {
		err = store.ErrSlotTaken
		return models.Booking{}, false, err
	}

	seq, err := nextBookingNumber(ctx, tx, input.ServiceID, input.BookingDate)
	if err != nil {
		return models.Booking{}, false, err
	}
	formattedNumber := fmt.Sprintf("%s-%0*d", prefixCode, bookingNumberPad, seq)

	bookingID := uuid.NewString()
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var booking models.Booking
	row = tx.QueryRow(ctx, `
		INSERT INTO bookings (
			id, request_id, booking_number, visitor_name, visitor_phone, service_id,
			status, booking_type, booking_date, booking_time, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
		RETURNING id, booking_number, status, to_char(booking_date, 'YYYY-MM-DD'), booking_time, created_at, updated_at
	`, bookingID, input.RequestID, formattedNumber, input.VisitorName, input.VisitorPhone, input.ServiceID,
		models.StatusWaiting, models.BookingTypeOnline, input.BookingDate, input.BookingTime, createdAt)
	if err = row.Scan(&booking.ID, &booking.BookingNumber, &booking.Status, &booking.BookingDate, &booking.BookingTime, &booking.CreatedAt, &booking.UpdatedAt); err != nil {
		if isSlotConflict(err) {
			err = store.ErrSlotTaken
		}
		return models.Booking{}, false, err
	}
	booking.VisitorName = input.VisitorName
	booking.VisitorPhone = input.VisitorPhone
	booking.ServiceID = input.ServiceID
	booking.ServiceName = serviceName
	booking.PrefixCode = prefixCode
	booking.BookingType = models.BookingTypeOnline

	if err = insertHistory(ctx, tx, booking.ID, "created", ""); err != nil {
		return models.Booking{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, "booking.created", booking, nil); err != nil {
		return models.Booking{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Booking{}, false, err
	}
	return booking, true, nil
}

func (s *Store) GetBooking(ctx context.Context, bookingID string) (models.Booking, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b JOIN services s ON s.id = b.service_id
		WHERE b.id = $1
	`, bookingID)
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Booking{}, store.ErrBookingNotFound
		}
		return models.Booking{}, err
	}
	return booking, nil
}

func (s *Store) GetBookings(ctx context.Context, bookingIDs []string) ([]models.Booking, error) {
	if len(bookingIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b JOIN services s ON s.id = b.service_id
		WHERE b.id = ANY($1)
		ORDER BY b.created_at DESC
	`, bookingIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (s *Store) ListBookings(ctx context.Context, date, serviceID string) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b JOIN services s ON s.id = b.service_id
		WHERE b.booking_date = $1
	`
	args := []interface{}{date}
	if serviceID != "" {
		query += " AND b.service_id = $2"
		args = append(args, serviceID)
	}
	query += " ORDER BY b.booking_time ASC, b.created_at ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (s *Store) ListBookedSlots(ctx context.Context, serviceID, date string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT booking_time
		FROM bookings
		WHERE service_id = $1 AND booking_date = $2 AND status <> 'cancelled'
		ORDER BY booking_time ASC
	`, serviceID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Booking, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Booking{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "call_next", input.RequestID)
	if err != nil {
		return models.Booking{}, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Booking{}, err
		}
		if empty {
			return models.Booking{}, store.ErrNoBooking
		}
		return existing, nil
	}

	var exists bool
	row := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM services WHERE id = $1)`, input.ServiceID)
	if err = row.Scan(&exists); err != nil {
		return models.Booking{}, err
	}
	if !exists {
		err = store.ErrServiceNotFound
		return models.Booking{}, err
	}

	var active bool
	row = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings WHERE service_id = $1 AND status = 'in_progress'
		)
	`, input.ServiceID)
	if err = row.Scan(&active); err != nil {
		return models.Booking{}, err
	}
	if active {
		err = store.ErrActiveCall
		return models.Booking{}, err
	}

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	row = tx.QueryRow(ctx, `
		WITH next AS (
			SELECT id FROM bookings
			WHERE service_id = $1 AND status = 'waiting'
			ORDER BY booking_date ASC, booking_time ASC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE bookings b
		SET status = 'in_progress', called_at = $2, updated_at = $2
		FROM next
		WHERE b.id = next.id
		RETURNING b.id
	`, input.ServiceID, calledAt)
	var bookingID string
	if err = row.Scan(&bookingID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err = insertActionRequest(ctx, tx, "call_next", input.RequestID, ""); err != nil {
				return models.Booking{}, err
			}
			if err = tx.Commit(ctx); err != nil {
				return models.Booking{}, err
			}
			return models.Booking{}, store.ErrNoBooking
		}
		return models.Booking{}, err
	}

	booking, err := getBookingTx(ctx, tx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}

	if err = insertActionRequest(ctx, tx, "call_next", input.RequestID, booking.ID); err != nil {
		return models.Booking{}, err
	}
	if err = insertHistory(ctx, tx, booking.ID, "called", input.PerformedBy); err != nil {
		return models.Booking{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "booking.called", booking, nil); err != nil {
		return models.Booking{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Booking{}, err
	}
	return booking, nil
}

// RecallBooking repeats the call for a booking already being served.
// Only updated_at moves; status and called_at stay as they were.
func (s *Store) RecallBooking(ctx context.Context, input store.BookingActionInput) (models.Booking, error) {
	return s.applyAction(ctx, input, "recall", "booking.recalled", `
		UPDATE bookings
		SET updated_at = $2
		WHERE id = $1 AND status = ANY($3)
		RETURNING id
	`, nil)
}

func (s *Store) CompleteBooking(ctx context.Context, input store.BookingActionInput) (models.Booking, error) {
	return s.applyAction(ctx, input, "complete", "booking.completed", `
		UPDATE bookings
		SET status = 'completed', completed_at = $2, updated_at = $2
		WHERE id = $1 AND status = ANY($3)
		RETURNING id
	`, nil)
}

func (s *Store) CancelBooking(ctx context.Context, input store.BookingActionInput) (models.Booking, error) {
	return s.applyAction(ctx, input, "cancel", "booking.cancelled", `
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = $2, cancel_reason = $4, updated_at = $2
		WHERE id = $1 AND status = ANY($3)
		RETURNING id
	`, map[string]interface{}{"reason": input.Reason})
}

func (s *Store) applyAction(ctx context.Context, input store.BookingActionInput, action, eventType, query string, extra map[string]interface{}) (models.Booking, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Booking{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, action, input.RequestID)
	if err != nil {
		return models.Booking{}, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Booking{}, err
		}
		if empty {
			return models.Booking{}, store.ErrInvalidState
		}
		return existing, nil
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	args := []interface{}{input.BookingID, occurredAt, store.AllowedStatuses(action)}
	if action == "cancel" {
		args = append(args, input.Reason)
	}

	var bookingID string
	row := tx.QueryRow(ctx, query, args...)
	if err = row.Scan(&bookingID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var status string
			statusRow := tx.QueryRow(ctx, `SELECT status FROM bookings WHERE id = $1`, input.BookingID)
			if scanErr := statusRow.Scan(&status); scanErr != nil {
				if errors.Is(scanErr, pgx.ErrNoRows) {
					err = store.ErrBookingNotFound
					return models.Booking{}, err
				}
				err = scanErr
				return models.Booking{}, err
			}
			err = store.ErrInvalidState
			return models.Booking{}, err
		}
		return models.Booking{}, err
	}

	booking, err := getBookingTx(ctx, tx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}

	if err = insertActionRequest(ctx, tx, action, input.RequestID, booking.ID); err != nil {
		return models.Booking{}, err
	}
	if err = insertHistory(ctx, tx, booking.ID, historyAction(action), input.PerformedBy); err != nil {
		return models.Booking{}, err
	}
	if err = insertOutboxEvent(ctx, tx, eventType, booking, extra); err != nil {
		return models.Booking{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Booking{}, err
	}
	return booking, nil
}

func historyAction(action string) string {
	switch action {
	case "recall":
		return "recalled"
	case "complete":
		return "completed"
	case "cancel":
		return "cancelled"
	}
	return action
}

func (s *Store) GetDailyStats(ctx context.Context, date string) (store.DailyStats, error) {
	stats := store.DailyStats{Date: date}
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM bookings
		WHERE booking_date = $1
		GROUP BY status
	`, date)
	if err != nil {
		return store.DailyStats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return store.DailyStats{}, err
		}
		stats.Total += count
		switch status {
		case models.StatusWaiting:
			stats.Waiting = count
		case models.StatusInProgress:
			stats.InProgress = count
		case models.StatusCompleted:
			stats.Completed = count
		case models.StatusCancelled:
			stats.Cancelled = count
		}
	}
	if err := rows.Err(); err != nil {
		return store.DailyStats{}, err
	}
	return stats, nil
}

func (s *Store) ListHistory(ctx context.Context, bookingID string, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, booking_id, action, COALESCE(performed_by, ''), performed_at
		FROM queue_history
	`
	args := []interface{}{}
	if bookingID != "" {
		query += " WHERE booking_id = $1 ORDER BY performed_at DESC LIMIT $2"
		args = append(args, bookingID, limit)
	} else {
		query += " ORDER BY performed_at DESC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var entry models.HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.BookingID, &entry.Action, &entry.PerformedBy, &entry.PerformedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListOutboxEvents pages through the outbox in (created_at, event_id)
// order. The composite cursor keeps events sharing a timestamp from
// being skipped when a batch boundary falls between them.
func (s *Store) ListOutboxEvents(ctx context.Context, afterTime time.Time, afterID string, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	if afterID == "" {
		afterID = uuid.Nil.String()
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, type, payload_json, created_at
		FROM outbox_events
		WHERE (created_at, event_id) > ($1, $2::uuid)
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, afterTime, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// CleanupOutboxEvents removes delivered events older than the retention
// window so the table does not grow without bound.
func (s *Store) CleanupOutboxEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM outbox_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func getBookingTx(ctx context.Context, tx pgx.Tx, bookingID string) (models.Booking, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b JOIN services s ON s.id = b.service_id
		WHERE b.id = $1
	`, bookingID)
	return scanBooking(row)
}

func collectBookings(rows pgx.Rows) ([]models.Booking, error) {
	var bookings []models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}

func findBookingByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Booking, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b JOIN services s ON s.id = b.service_id
		WHERE b.request_id = $1
	`, requestID)
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Booking{}, false, nil
		}
		return models.Booking{}, false, err
	}
	return booking, true, nil
}

func findActionRequest(ctx context.Context, tx pgx.Tx, action, requestID string) (models.Booking, bool, bool, error) {
	var bookingID sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT booking_id
		FROM booking_action_requests
		WHERE request_id = $1 AND action = $2
	`, requestID, action)
	if err := row.Scan(&bookingID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Booking{}, false, false, nil
		}
		return models.Booking{}, false, false, err
	}
	if !bookingID.Valid {
		return models.Booking{}, true, true, nil
	}
	booking, err := getBookingTx(ctx, tx, bookingID.String)
	if err != nil {
		return models.Booking{}, false, false, err
	}
	return booking, true, false, nil
}

func insertActionRequest(ctx context.Context, tx pgx.Tx, action, requestID, bookingID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO booking_action_requests (request_id, action, booking_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (request_id) DO NOTHING
	`, requestID, action, nullIfEmpty(bookingID))
	return err
}

func nextBookingNumber(ctx context.Context, tx pgx.Tx, serviceID, bookingDate string) (int64, error) {
	var next int64
	row := tx.QueryRow(ctx, `
		INSERT INTO booking_sequences (service_id, booking_date, next_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (service_id, booking_date)
		DO UPDATE SET next_number = booking_sequences.next_number + 1
		RETURNING next_number
	`, serviceID, bookingDate)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, bookingID, action, performedBy string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO queue_history (id, booking_id, action, performed_by, performed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), bookingID, action, nullIfEmpty(performedBy), time.Now().UTC())
	return err
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, booking models.Booking, extra map[string]interface{}) error {
	payload := map[string]interface{}{
		"booking_id":     booking.ID,
		"booking_number": booking.BookingNumber,
		"status":         booking.Status,
		"service_id":     booking.ServiceID,
		"service_name":   booking.ServiceName,
		"booking_date":   booking.BookingDate,
		"booking_time":   booking.BookingTime,
		"updated_at":     booking.UpdatedAt,
	}
	for k, v := range extra {
		payload[k] = v
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), eventType, payloadJSON, time.Now().UTC())
	return err
}

func isSlotConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == slotUniqueConstraint
	}
	return false
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
