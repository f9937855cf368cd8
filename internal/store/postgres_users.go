package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const userColumns = `id, email, COALESCE(display_name, ''), password_hash, role, is_email_verified, COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at`

func scanUser(row rowScanner) (User, error) {
	var (
		user    User
		expires sql.NullTime
	)
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Role,
		&user.IsEmailVerified, &user.VerificationToken, &expires, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	if expires.Valid {
		t := expires.Time
		user.VerificationExpiresAt = &t
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM app_users WHERE id=$1`, id))
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", translate(err))
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM app_users WHERE email=$1`, normalizeEmail(email)))
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", translate(err))
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	role := user.Role
	if role == "" {
		role = DefaultRole
	}
	created, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO app_users (email, display_name, password_hash, role, is_email_verified)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		RETURNING `+userColumns,
		normalizeEmail(user.Email), strings.TrimSpace(user.DisplayName), user.PasswordHash, role, user.IsEmailVerified,
	))
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", translate(err))
	}
	return created, nil
}

// EnsureUser returns the profile row for email, creating it with role when
// it does not exist yet.
func (s *PostgresStore) EnsureUser(ctx context.Context, email, role string) (User, error) {
	if role == "" {
		role = DefaultRole
	}
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO app_users (email, role)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING `+userColumns,
		normalizeEmail(email), role,
	))
	if err != nil {
		return User{}, fmt.Errorf("ensure user: %w", translate(err))
	}
	return user, nil
}

func (s *PostgresStore) UpdateDisplayName(ctx context.Context, userID, displayName string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE app_users SET display_name = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		userID, strings.TrimSpace(displayName),
	))
	if err != nil {
		return User{}, fmt.Errorf("update display name: %w", translate(err))
	}
	return user, nil
}

func (s *PostgresStore) SetUserRole(ctx context.Context, userID, role string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE app_users SET role = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		userID, role,
	))
	if err != nil {
		return User{}, fmt.Errorf("set user role: %w", translate(err))
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE app_users SET verification_token = $2, verification_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return requireAffected(result)
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET is_email_verified = TRUE, verification_token = NULL, verification_expires_at = NULL, updated_at = NOW()
		WHERE verification_token = $1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	return requireAffected(result)
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE app_users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireAffected(result)
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", translate(err))
	}
	return nil
}

// GetPasswordReset returns the user id for an unused, unexpired token.
func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token = $1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", fmt.Errorf("get password reset: %w", translate(err))
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at = NOW() WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
