package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// Offset marks how far the realtime poller has read into the outbox.
// It survives restarts so no change event is ever skipped or replayed
// to fresh subscribers.
type Offset struct {
	LastEventTime time.Time
	LastEventID   string
}

func (s *Store) GetOffset(ctx context.Context) (Offset, error) {
	var offset Offset
	row := s.pool.QueryRow(ctx, `
		SELECT last_event_time, last_event_id
		FROM realtime_offsets
		WHERE consumer = 'realtime'
	`)
	if err := row.Scan(&offset.LastEventTime, &offset.LastEventID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offset{}, nil
		}
		return Offset{}, err
	}
	return offset, nil
}

func (s *Store) UpdateOffset(ctx context.Context, offset Offset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO realtime_offsets (consumer, last_event_time, last_event_id)
		VALUES ('realtime', $1, $2)
		ON CONFLICT (consumer)
		DO UPDATE SET last_event_time = $1, last_event_id = $2
	`, offset.LastEventTime, offset.LastEventID)
	return err
}
