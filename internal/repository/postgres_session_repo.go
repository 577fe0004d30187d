package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/reserv/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したスポーツセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

const sessionColumns = `id, host_id, host_slug, title, sport, description, location,
	start_at, end_at, capacity, cover_url, COALESCE(public_code, ''), status, created_at, updated_at`

// scanSession は1行をmodel.Sessionに読み取る。
func scanSession(row *sql.Row) (*model.Session, error) {
	s := &model.Session{}
	err := row.Scan(
		&s.ID, &s.HostID, &s.HostSlug, &s.Title, &s.Sport, &s.Description, &s.Location,
		&s.StartAt, &s.EndAt, &s.Capacity, &s.CoverURL, &s.PublicCode, &s.Status,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return s, nil
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}

	var publicCode *string
	if session.PublicCode != "" {
		publicCode = &session.PublicCode
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, host_id, host_slug, title, sport, description, location,
		    start_at, end_at, capacity, cover_url, public_code, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		session.ID, session.HostID, session.HostSlug, session.Title, session.Sport,
		session.Description, session.Location, session.StartAt, session.EndAt,
		session.Capacity, session.CoverURL, publicCode, session.Status,
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// FindOpenByPublicCode は公開コードで公開中（open）のセッションを検索する。
// コードが存在しない、またはopen以外の状態の場合はnilを返す。
func (r *PostgresSessionRepo) FindOpenByPublicCode(ctx context.Context, publicCode string) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE public_code = $1 AND status = 'open'`,
		publicCode)
	return scanSession(row)
}

// ListByHostID はホストのセッション一覧を作成日時降順で返す。
func (r *PostgresSessionRepo) ListByHostID(ctx context.Context, hostID string) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE host_id = $1 ORDER BY created_at DESC`,
		hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s := &model.Session{}
		err := rows.Scan(
			&s.ID, &s.HostID, &s.HostSlug, &s.Title, &s.Sport, &s.Description, &s.Location,
			&s.StartAt, &s.EndAt, &s.Capacity, &s.CoverURL, &s.PublicCode, &s.Status,
			&s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// Update はセッションの編集可能フィールドを更新する。
func (r *PostgresSessionRepo) Update(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET title = $2, sport = $3, description = $4, location = $5,
		     start_at = $6, end_at = $7, capacity = $8, cover_url = $9, updated_at = now()
		 WHERE id = $1`,
		session.ID, session.Title, session.Sport, session.Description, session.Location,
		session.StartAt, session.EndAt, session.Capacity, session.CoverURL,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// Publish は公開コードを設定しstatusをopenに遷移させる。
func (r *PostgresSessionRepo) Publish(ctx context.Context, id, publicCode string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET public_code = $2, status = 'open', updated_at = now()
		 WHERE id = $1`,
		id, publicCode,
	)
	if err != nil {
		return fmt.Errorf("failed to publish session: %w", err)
	}
	return nil
}

// UpdateStatus はセッションの状態を更新する。
func (r *PostgresSessionRepo) UpdateStatus(ctx context.Context, id string, status model.SessionStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return nil
}

// CompletePastSessions は終了時刻を過ぎた公開中セッションをcompletedに遷移させる。
func (r *PostgresSessionRepo) CompletePastSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET status = 'completed', updated_at = now()
		 WHERE status = 'open' AND end_at IS NOT NULL AND end_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to complete past sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
