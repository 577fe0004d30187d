package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/reserv/internal/model"
)

// PostgresParticipantRepo はPostgreSQLを使用した参加者リポジトリ。
type PostgresParticipantRepo struct {
	db *sql.DB
}

// NewPostgresParticipantRepo はPostgresParticipantRepoを生成する。
func NewPostgresParticipantRepo(db *sql.DB) *PostgresParticipantRepo {
	return &PostgresParticipantRepo{db: db}
}

const participantColumns = `id, session_id, display_name, contact_phone, contact_email,
	profile_id, guest_key, notes, status, created_at`

func scanParticipant(scanner interface{ Scan(...any) error }) (*model.Participant, error) {
	p := &model.Participant{}
	err := scanner.Scan(
		&p.ID, &p.SessionID, &p.DisplayName, &p.ContactPhone, &p.ContactEmail,
		&p.ProfileID, &p.GuestKey, &p.Notes, &p.Status, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan participant: %w", err)
	}
	return p, nil
}

// FindByIdentity は(display_name, contact_phone)の完全一致で参加者を検索する。
// phoneがnilの場合はcontact_phoneがNULLの行のみ一致する。
// 電話番号なしでのリクエストが電話番号ありの行に誤って一致しないことを保証する。
func (r *PostgresParticipantRepo) FindByIdentity(ctx context.Context, sessionID, displayName string, phone *string) (*model.Participant, error) {
	var row *sql.Row
	if phone != nil {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+participantColumns+`
			 FROM participants
			 WHERE session_id = $1 AND display_name = $2 AND contact_phone = $3
			 ORDER BY created_at ASC
			 LIMIT 1`,
			sessionID, displayName, *phone,
		)
	} else {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+participantColumns+`
			 FROM participants
			 WHERE session_id = $1 AND display_name = $2 AND contact_phone IS NULL
			 ORDER BY created_at ASC
			 LIMIT 1`,
			sessionID, displayName,
		)
	}
	return scanParticipant(row)
}

// FindByID は指定IDの参加者を取得する。見つからない場合はnilを返す。
func (r *PostgresParticipantRepo) FindByID(ctx context.Context, id string) (*model.Participant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)
	return scanParticipant(row)
}

// Create は参加者レコードを無条件に作成する（定員チェックなし）。
// declineでの新規作成に使う。
func (r *PostgresParticipantRepo) Create(ctx context.Context, p *model.Participant) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO participants (id, session_id, display_name, contact_phone, contact_email,
		    profile_id, guest_key, notes, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.SessionID, p.DisplayName, p.ContactPhone, p.ContactEmail,
		p.ProfileID, p.GuestKey, p.Notes, p.Status, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

// CreateConfirmedIfCapacity はセッション行をロックした上で確定参加者数を数え、
// 定員未満の場合のみconfirmed状態の参加者を挿入する。
// SELECT ... FOR UPDATEでセッション行を押さえることで同一セッションへの
// 並行joinを直列化し、count-then-insertの競合による定員超過を防ぐ。
func (r *PostgresParticipantRepo) CreateConfirmedIfCapacity(ctx context.Context, p *model.Participant, capacity *int) (bool, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.Status = model.ParticipantStatusConfirmed

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 同一セッションの参加処理を直列化するためのロック
	var lockedID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM sessions WHERE id = $1 FOR UPDATE`,
		p.SessionID,
	).Scan(&lockedID)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("session not found: %s", p.SessionID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock session: %w", err)
	}

	if capacity != nil {
		var count int
		err = tx.QueryRowContext(ctx,
			`SELECT count(*) FROM participants WHERE session_id = $1 AND status = 'confirmed'`,
			p.SessionID,
		).Scan(&count)
		if err != nil {
			return false, fmt.Errorf("failed to count confirmed participants: %w", err)
		}
		if count >= *capacity {
			return false, nil
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO participants (id, session_id, display_name, contact_phone, contact_email,
		    profile_id, guest_key, notes, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.SessionID, p.DisplayName, p.ContactPhone, p.ContactEmail,
		p.ProfileID, p.GuestKey, p.Notes, p.Status, p.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert participant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// UpdateStatus は参加者の状態を上書きする。
func (r *PostgresParticipantRepo) UpdateStatus(ctx context.Context, id string, status model.ParticipantStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE participants SET status = $2 WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update participant status: %w", err)
	}
	return nil
}

// ListConfirmedBySessionID はconfirmedの参加者のみを作成順（昇順）で返す。
// created_atが同時刻の場合に備えidで順序を安定化する。
func (r *PostgresParticipantRepo) ListConfirmedBySessionID(ctx context.Context, sessionID string) ([]*model.Participant, error) {
	return r.list(ctx,
		`SELECT `+participantColumns+`
		 FROM participants
		 WHERE session_id = $1 AND status = 'confirmed'
		 ORDER BY created_at ASC, id ASC`,
		sessionID)
}

// ListBySessionID は全状態の参加者を作成順で返す。ホスト向け。
func (r *PostgresParticipantRepo) ListBySessionID(ctx context.Context, sessionID string) ([]*model.Participant, error) {
	return r.list(ctx,
		`SELECT `+participantColumns+`
		 FROM participants
		 WHERE session_id = $1
		 ORDER BY created_at ASC, id ASC`,
		sessionID)
}

func (r *PostgresParticipantRepo) list(ctx context.Context, query, sessionID string) ([]*model.Participant, error) {
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []*model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return participants, nil
}

// CountConfirmed はconfirmedの参加者数を返す。
func (r *PostgresParticipantRepo) CountConfirmed(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM participants WHERE session_id = $1 AND status = 'confirmed'`,
		sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count confirmed participants: %w", err)
	}
	return count, nil
}
