package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/F1kro/Ngantri-DPMPTSP/internal/models"
	"github.com/F1kro/Ngantri-DPMPTSP/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

func TestCreateBookingSlotConflict(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	serviceID := seedService(t, ctx, pool, "IU")
	date := futureDate()

	input := func() store.CreateBookingInput {
		return store.CreateBookingInput{
			RequestID:    uuid.NewString(),
			ServiceID:    serviceID,
			VisitorName:  "Budi",
			VisitorPhone: "081234567890",
			BookingDate:  date,
			BookingTime:  "09:00",
		}
	}

	if _, _, err := st.CreateBooking(ctx, input()); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	_, _, err := st.CreateBooking(ctx, input())
	if !errors.Is(err, store.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestCreateBookingConcurrentSameSlot(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	serviceID := seedService(t, ctx, pool, "IU")
	date := futureDate()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := st.CreateBooking(ctx, store.CreateBookingInput{
				RequestID:    uuid.NewString(),
				ServiceID:    serviceID,
				VisitorName:  "Budi",
				VisitorPhone: "081234567890",
				BookingDate:  date,
				BookingTime:  "10:30",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var taken, created int
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, store.ErrSlotTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 || taken != 1 {
		t.Fatalf("expected exactly one winner, got created=%d taken=%d", created, taken)
	}
}

func TestCreateBookingIdempotency(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	serviceID := seedService(t, ctx, pool, "IU")
	requestID := uuid.NewString()
	input := store.CreateBookingInput{
		RequestID:    requestID,
		ServiceID:    serviceID,
		VisitorName:  "Budi",
		VisitorPhone: "081234567890",
		BookingDate:  futureDate(),
		BookingTime:  "08:00",
	}

	first, created, err := st.CreateBooking(ctx, input)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	second, created, err := st.CreateBooking(ctx, input)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatal("duplicate request should not report a new booking")
	}
	if first.ID != second.ID {
		t.Fatalf("expected same booking, got %s and %s", first.ID, second.ID)
	}

	var count int
	row := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE type = 'booking.created'`)
	if err := row.Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 booking.created event, got %d", count)
	}
}

func TestBookingNumbersSequencePerDate(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	serviceID := seedService(t, ctx, pool, "IMB")
	date := futureDate()

	first := createBooking(t, ctx, st, serviceID, date, "08:00")
	second := createBooking(t, ctx, st, serviceID, date, "08:30")
	if first.BookingNumber != "IMB-001" || second.BookingNumber != "IMB-002" {
		t.Fatalf("unexpected numbers: %s, %s", first.BookingNumber, second.BookingNumber)
	}

	otherDate := time.Now().AddDate(0, 0, 14).Format("2006-01-02")
	third := createBooking(t, ctx, st, serviceID, otherDate, "08:00")
	if third.BookingNumber != "IMB-001" {
		t.Fatalf("sequence should restart per date, got %s", third.BookingNumber)
	}
}

func TestCallNextOrderAndGuard(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	serviceID := seedService(t, ctx, pool, "IU")
	date := futureDate()

	later := createBooking(t, ctx, st, serviceID, date, "10:00")
	earlier := createBooking(t, ctx, st, serviceID, date, "08:30")
	_ = later

	called, err := st.CallNext(ctx, store.CallNextInput{RequestID: uuid.NewString(), ServiceID: serviceID})
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if called.ID != earlier.ID {
		t.Fatalf("expected earliest slot first, got %s", called.BookingNumber)
	}
	if called.Status != models.StatusInProgress || called.CalledAt == nil {
		t.Fatalf("unexpected state: %+v", called)
	}

	_, err = st.CallNext(ctx, store.CallNextInput{RequestID: uuid.NewString(), ServiceID: serviceID})
	if !errors.Is(err, store.ErrActiveCall) {
		t.Fatalf("expected ErrActiveCall while serving, got %v", err)
	}

	if _, err := st.CompleteBooking(ctx, store.BookingActionInput{RequestID: uuid.NewString(), BookingID: called.ID}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	second, err := st.CallNext(ctx, store.CallNextInput{RequestID: uuid.NewString(), ServiceID: serviceID})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.ID != later.ID {
		t.Fatalf("expected remaining booking, got %s", second.BookingNumber)
	}

	if _, err := st.CompleteBooking(ctx, store.BookingActionInput{RequestID: uuid.NewString(), BookingID: second.ID}); err != nil {
		t.Fatalf("complete second: %v", err)
	}
	_, err = st.CallNext(ctx, store.CallNextInput{RequestID: uuid.NewString(), ServiceID: serviceID})
	if !errors.Is(err, store.ErrNoBooking) {
		t.Fatalf("expected ErrNoBooking on empty queue, got %v", err)
	}
}

func TestCancelFreesSlot(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	serviceID := seedService(t, ctx, pool, "IU")
	date := futureDate()

	booking := createBooking(t, ctx, st, serviceID, date, "09:30")
	cancelled, err := st.CancelBooking(ctx, store.BookingActionInput{
		RequestID: uuid.NewString(),
		BookingID: booking.ID,
		Reason:    "berhalangan hadir",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.StatusCancelled || cancelled.CancelReason != "berhalangan hadir" || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected cancel state: %+v", cancelled)
	}

	rebooked := createBooking(t, ctx, st, serviceID, date, "09:30")
	if rebooked.ID == booking.ID {
		t.Fatal("expected a fresh booking in the freed slot")
	}
}

func TestRecallTouchesUpdatedAtOnly(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	serviceID := seedService(t, ctx, pool, "IU")
	booking := createBooking(t, ctx, st, serviceID, futureDate(), "08:00")

	called, err := st.CallNext(ctx, store.CallNextInput{RequestID: uuid.NewString(), ServiceID: serviceID})
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if called.ID != booking.ID {
		t.Fatal("unexpected booking called")
	}

	recalled, err := st.RecallBooking(ctx, store.BookingActionInput{
		RequestID:  uuid.NewString(),
		BookingID:  booking.ID,
		OccurredAt: called.UpdatedAt.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if recalled.Status != models.StatusInProgress {
		t.Fatalf("recall must not change status, got %s", recalled.Status)
	}
	if !recalled.UpdatedAt.After(called.UpdatedAt) {
		t.Fatal("recall should advance updated_at")
	}
	if recalled.CalledAt == nil || !recalled.CalledAt.Equal(*called.CalledAt) {
		t.Fatal("recall must not change called_at")
	}
}

func TestCancelInProgressRejected(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	serviceID := seedService(t, ctx, pool, "IU")
	booking := createBooking(t, ctx, st, serviceID, futureDate(), "08:00")
	if _, err := st.CallNext(ctx, store.CallNextInput{RequestID: uuid.NewString(), ServiceID: serviceID}); err != nil {
		t.Fatalf("call next: %v", err)
	}

	_, err := st.CancelBooking(ctx, store.BookingActionInput{
		RequestID: uuid.NewString(),
		BookingID: booking.ID,
		Reason:    "batal",
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestDeleteServiceReferenceCheck(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	serviceID := seedService(t, ctx, pool, "IU")
	createBooking(t, ctx, st, serviceID, futureDate(), "08:00")

	err := st.DeleteService(ctx, serviceID)
	if !errors.Is(err, store.ErrServiceHasBookings) {
		t.Fatalf("expected ErrServiceHasBookings, got %v", err)
	}

	emptyService := seedService(t, ctx, pool, "LG")
	if err := st.DeleteService(ctx, emptyService); err != nil {
		t.Fatalf("delete unused service: %v", err)
	}
	if _, err := st.GetService(ctx, emptyService); !errors.Is(err, store.ErrServiceNotFound) {
		t.Fatalf("expected service gone, got %v", err)
	}
}

func TestLoginRoles(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	seedAdmin(t, ctx, pool, "admin@dpmptsp.go.id", "rahasia123", "admin")
	seedAdmin(t, ctx, pool, "staff@dpmptsp.go.id", "rahasia123", "staff")

	expires := time.Now().UTC().Add(8 * time.Hour)

	session, user, err := st.Login(ctx, "admin@dpmptsp.go.id", "rahasia123", expires)
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	if user.Role != "admin" || session.SessionID == "" {
		t.Fatalf("unexpected login result: %+v %+v", session, user)
	}

	got, err := st.GetSession(ctx, session.SessionID)
	if err != nil || got.UserID != session.UserID {
		t.Fatalf("get session: %+v %v", got, err)
	}

	if _, _, err := st.Login(ctx, "admin@dpmptsp.go.id", "salah", expires); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := st.Login(ctx, "staff@dpmptsp.go.id", "rahasia123", expires); !errors.Is(err, store.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for non-admin, got %v", err)
	}

	if err := st.Logout(ctx, session.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := st.GetSession(ctx, session.SessionID); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
}

func TestListOutboxEventsSameTimestampCursor(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	ts := time.Now().UTC().Truncate(time.Second)
	ids := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := pool.Exec(ctx, `
			INSERT INTO outbox_events (event_id, type, payload_json, created_at)
			VALUES ($1, 'booking.created', '{}', $2)
		`, id, ts); err != nil {
			t.Fatal(err)
		}
	}

	first, err := st.ListOutboxEvents(ctx, time.Time{}, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(first))
	}

	rest, err := st.ListOutboxEvents(ctx, first[1].CreatedAt, first[1].EventID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 || rest[0].EventID != ids[2] {
		t.Fatalf("event sharing the cursor timestamp must still be delivered, got %+v", rest)
	}
}

func createBooking(t *testing.T, ctx context.Context, st *Store, serviceID, date, slot string) models.Booking {
	t.Helper()
	booking, _, err := st.CreateBooking(ctx, store.CreateBookingInput{
		RequestID:    uuid.NewString(),
		ServiceID:    serviceID,
		VisitorName:  "Budi",
		VisitorPhone: "081234567890",
		BookingDate:  date,
		BookingTime:  slot,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return booking
}

func seedService(t *testing.T, ctx context.Context, pool *pgxpool.Pool, prefix string) string {
	t.Helper()
	serviceID := uuid.NewString()
	if _, err := pool.Exec(ctx, `
		INSERT INTO services (id, name, description, estimated_duration, prefix_code)
		VALUES ($1, $2, 'test', 30, $3)
	`, serviceID, "Layanan "+prefix, prefix); err != nil {
		t.Fatalf("insert service: %v", err)
	}
	return serviceID
}

func seedAdmin(t *testing.T, ctx context.Context, pool *pgxpool.Pool, email, password, role string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO admin_users (id, email, name, role, password_hash)
		VALUES ($1, $2, 'Petugas', $3, $4)
	`, uuid.NewString(), email, role, string(hash)); err != nil {
		t.Fatalf("insert admin user: %v", err)
	}
}

func futureDate() string {
	return time.Now().AddDate(0, 0, 7).Format("2006-01-02")
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	st := NewStore(pool)
	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return st, pool, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}
