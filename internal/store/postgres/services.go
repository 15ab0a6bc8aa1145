package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/F1kro/Ngantri-DPMPTSP/internal/models"
	"github.com/F1kro/Ngantri-DPMPTSP/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const serviceColumns = `id, name, COALESCE(description, ''), estimated_duration, prefix_code, created_at, updated_at`

func scanService(row rowScanner) (models.Service, error) {
	var service models.Service
	err := row.Scan(&service.ID, &service.Name, &service.Description, &service.EstimatedDuration, &service.PrefixCode, &service.CreatedAt, &service.UpdatedAt)
	return service, err
}

func (s *Store) ListServices(ctx context.Context) ([]models.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, service)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) GetService(ctx context.Context, serviceID string) (models.Service, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE id = $1
	`, serviceID)
	service, err := scanService(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		return models.Service{}, err
	}
	return service, nil
}

func (s *Store) CreateService(ctx context.Context, input store.ServiceInput) (models.Service, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO services (id, name, description, estimated_duration, prefix_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+serviceColumns+`
	`, uuid.NewString(), input.Name, nullIfEmpty(input.Description), input.EstimatedDuration, input.PrefixCode, now)
	return scanService(row)
}

func (s *Store) UpdateService(ctx context.Context, serviceID string, input store.ServiceInput) (models.Service, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE services
		SET name = $2, description = $3, estimated_duration = $4, prefix_code = $5, updated_at = $6
		WHERE id = $1
		RETURNING `+serviceColumns+`
	`, serviceID, input.Name, nullIfEmpty(input.Description), input.EstimatedDuration, input.PrefixCode, time.Now().UTC())
	service, err := scanService(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		return models.Service{}, err
	}
	return service, nil
}

// DeleteService refuses to remove a service that still has bookings in
// any status. History must survive the service that produced it.
func (s *Store) DeleteService(ctx context.Context, serviceID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var referenced bool
	row := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE service_id = $1)`, serviceID)
	if err = row.Scan(&referenced); err != nil {
		return err
	}
	if referenced {
		err = store.ErrServiceHasBookings
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM services WHERE id = $1`, serviceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = store.ErrServiceNotFound
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return err
	}
	return nil
}
