package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/F1kro/Ngantri-DPMPTSP/internal/models"
	"github.com/F1kro/Ngantri-DPMPTSP/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

// Login verifies credentials before checking the role. A valid
// non-admin login is reported as ErrAccessDenied, distinct from
// ErrInvalidCredentials, so the handler can answer 403 rather than 401.
func (s *Store) Login(ctx context.Context, email, password string, expiresAt time.Time) (store.Session, models.AdminUser, error) {
	var user models.AdminUser
	var passwordHash string
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, name, role, password_hash, created_at
		FROM admin_users
		WHERE lower(email) = lower($1) AND active = TRUE
	`, email)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &passwordHash, &user.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, models.AdminUser{}, store.ErrInvalidCredentials
		}
		return store.Session{}, models.AdminUser{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return store.Session{}, models.AdminUser{}, store.ErrInvalidCredentials
	}

	if user.Role != "admin" {
		return store.Session{}, models.AdminUser{}, store.ErrAccessDenied
	}

	sessionID := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, sessionID, user.ID, expiresAt)
	if err != nil {
		return store.Session{}, models.AdminUser{}, err
	}
	return store.Session{SessionID: sessionID, UserID: user.ID, Role: user.Role, ExpiresAt: expiresAt}, user, nil
}

func (s *Store) Logout(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, u.role, s.expires_at
		FROM sessions s
		JOIN admin_users u ON u.id = s.user_id
		WHERE s.session_id = $1 AND s.expires_at > NOW()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.Role, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	return session, nil
}
