package main

import (
	"context"
	"encoding/json"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/F1kro/Ngantri-DPMPTSP/internal/config"
	"github.com/F1kro/Ngantri-DPMPTSP/internal/httpapi"
	"github.com/F1kro/Ngantri-DPMPTSP/internal/hub"
	"github.com/F1kro/Ngantri-DPMPTSP/internal/notify"
	"github.com/F1kro/Ngantri-DPMPTSP/internal/store/postgres"
	"github.com/F1kro/Ngantri-DPMPTSP/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type eventEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("booking-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool)
	h := hub.New()
	handler := httpapi.NewHandler(st, httpapi.Options{SecureCookies: cfg.SecureCookies})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute: cfg.RateLimitPerMinute,
		IPBurst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/", handler.Routes())

	sockjsHandler := sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := h.Register(uuid.NewString())
		defer client.Close()

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				client.Update(hub.Subscription{})
				continue
			}
			client.Update(hub.Subscription{
				ServiceID:  parsed.ServiceID,
				BookingIDs: parsed.BookingIDs,
			})
		}
	})
	mux.Handle("/realtime/", sockjsHandler)

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "booking-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("booking-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go pollOutbox(st, h, cfg)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// pollOutbox reads new change events, fans them out to subscribers, and
// evaluates visitor alerts against each subscriber's watched bookings.
func pollOutbox(st *postgres.Store, h *hub.Hub, cfg config.Config) {
	offset, err := st.GetOffset(context.Background())
	if err != nil {
		log.Printf("load offset error: %v", err)
	}
	if offset.LastEventTime.IsZero() {
		offset.LastEventTime = time.Unix(0, 0).UTC()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	var running int32
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		events, err := st.ListOutboxEvents(ctx, offset.LastEventTime, offset.LastEventID, cfg.PollBatchSize)
		cancel()
		if err != nil {
			log.Printf("poll outbox error: %v", err)
			atomic.StoreInt32(&running, 0)
			continue
		}

		for _, event := range events {
			offset.LastEventTime = event.CreatedAt
			offset.LastEventID = event.EventID
			serviceID, bookingID := extractEventKeys(event.Payload)
			env := eventEnvelope{Type: event.Type, Payload: event.Payload, CreatedAt: event.CreatedAt}
			payload, _ := json.Marshal(env)
			h.Broadcast(payload, serviceID, bookingID)

			h.Each(func(client *hub.Client) {
				watched := client.Watched()
				if watched == nil {
					return
				}
				if alert := client.Dispatcher.HandleEvent(event, watched); alert != nil {
					sendAlert(client, alert)
				}
			})
		}

		if len(events) > 0 {
			dispatchPositionAlerts(st, h)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := st.UpdateOffset(ctx, offset); err != nil {
				log.Printf("update offset error: %v", err)
			}
			if cfg.OutboxRetention > 0 {
				if _, err := st.CleanupOutboxEvents(ctx, cfg.OutboxRetention); err != nil {
					log.Printf("cleanup outbox error: %v", err)
				}
			}
			cancel()
		}
		atomic.StoreInt32(&running, 0)
	}
}

func dispatchPositionAlerts(st *postgres.Store, h *hub.Hub) {
	if h.Len() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	today := time.Now().Format("2006-01-02")
	bookings, err := st.ListBookings(ctx, today, "")
	if err != nil {
		log.Printf("list bookings error: %v", err)
		return
	}

	h.Each(func(client *hub.Client) {
		sub := client.Subscription()
		if len(sub.BookingIDs) == 0 {
			return
		}
		for _, alert := range client.Dispatcher.CheckPositions(bookings, sub.BookingIDs) {
			a := alert
			sendAlert(client, &a)
		}
	})
}

func sendAlert(client *hub.Client, alert *notify.Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		return
	}
	env := eventEnvelope{Type: "alert", Payload: payload, CreatedAt: time.Now().UTC()}
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case client.Send <- raw:
	default:
	}
}

func extractEventKeys(payload []byte) (string, string) {
	var data struct {
		ServiceID string `json:"service_id"`
		BookingID string `json:"booking_id"`
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return "", ""
	}
	return data.ServiceID, data.BookingID
}
