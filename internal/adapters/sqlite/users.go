package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mediabot/internal/core/domain"
)

// ErrUserNotFound is returned when no user has the given platform id.
var ErrUserNotFound = errors.New("user not found")

// Register creates the user or refreshes its profile fields. The stored
// preferred kind is kept.
func (s *Store) Register(ctx context.Context, u domain.User) (*domain.User, error) {
	if u.PlatformID == "" {
		return nil, errors.New("user has no platform id")
	}
	now := millis(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (platform_id, username, first_name, last_name, language_code, created_at, last_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			language_code = excluded.language_code,
			last_active = excluded.last_active`,
		u.PlatformID, u.Username, u.FirstName, u.LastName, u.LanguageCode, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register user %s: %w", u.PlatformID, err)
	}
	return s.GetUser(ctx, u.PlatformID)
}

// GetUser loads a user by platform id.
func (s *Store) GetUser(ctx context.Context, platformID string) (*domain.User, error) {
	var (
		u                   domain.User
		kind                string
		created, lastActive int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, platform_id, username, first_name, last_name, language_code, preferred_kind, created_at, last_active
		FROM users WHERE platform_id = ?`, platformID,
	).Scan(&u.ID, &u.PlatformID, &u.Username, &u.FirstName, &u.LastName, &u.LanguageCode, &kind, &created, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", platformID, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", platformID, err)
	}
	u.PreferredKind = domain.Kind(kind)
	u.CreatedAt = fromMillis(created)
	u.LastActive = fromMillis(lastActive)
	return &u, nil
}

// SetPreferredKind stores the kind a user wants by default. An empty kind
// means "ask every time".
func (s *Store) SetPreferredKind(ctx context.Context, platformID string, kind domain.Kind) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET preferred_kind = ? WHERE platform_id = ?`, string(kind), platformID)
	if err != nil {
		return fmt.Errorf("failed to update preference: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", platformID, ErrUserNotFound)
	}
	return nil
}

// UserStats summarizes the user's attempt records.
func (s *Store) UserStats(ctx context.Context, platformID string) (*domain.UserStats, error) {
	u, err := s.GetUser(ctx, platformID)
	if err != nil {
		return nil, err
	}

	var st domain.UserStats
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END), 0)
		FROM downloads WHERE user_id = ?`,
		string(domain.OutcomeSuccess), string(domain.KindVideo), string(domain.KindAudio), u.ID,
	).Scan(&st.Total, &st.Successful, &st.Video, &st.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	st.MemberSince = u.CreatedAt
	return &st, nil
}
