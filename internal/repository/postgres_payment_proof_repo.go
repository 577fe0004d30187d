package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/reserv/internal/model"
)

// PostgresPaymentProofRepo はPostgreSQLを使用した支払い証明リポジトリ。
type PostgresPaymentProofRepo struct {
	db *sql.DB
}

// NewPostgresPaymentProofRepo はPostgresPaymentProofRepoを生成する。
func NewPostgresPaymentProofRepo(db *sql.DB) *PostgresPaymentProofRepo {
	return &PostgresPaymentProofRepo{db: db}
}

const paymentProofColumns = `id, session_id, participant_id, proof_image_url, amount, currency,
	payment_status, ocr_status, bank_name, account_number, account_name, ocr_confidence,
	processed_at, created_at`

func scanPaymentProof(scanner interface{ Scan(...any) error }) (*model.PaymentProof, error) {
	proof := &model.PaymentProof{}
	err := scanner.Scan(
		&proof.ID, &proof.SessionID, &proof.ParticipantID, &proof.ProofImageURL,
		&proof.Amount, &proof.Currency, &proof.PaymentStatus, &proof.OCRStatus,
		&proof.BankName, &proof.AccountNumber, &proof.AccountName, &proof.OCRConfidence,
		&proof.ProcessedAt, &proof.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment proof: %w", err)
	}
	return proof, nil
}

// Create は支払い証明レコードを作成する。
func (r *PostgresPaymentProofRepo) Create(ctx context.Context, proof *model.PaymentProof) error {
	if proof.CreatedAt.IsZero() {
		proof.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_proofs (id, session_id, participant_id, proof_image_url, amount,
		    currency, payment_status, ocr_status, bank_name, account_number, account_name,
		    ocr_confidence, processed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		proof.ID, proof.SessionID, proof.ParticipantID, proof.ProofImageURL, proof.Amount,
		proof.Currency, proof.PaymentStatus, proof.OCRStatus, proof.BankName,
		proof.AccountNumber, proof.AccountName, proof.OCRConfidence, proof.ProcessedAt,
		proof.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment proof: %w", err)
	}
	return nil
}

// FindByID は指定IDの支払い証明を取得する。見つからない場合はnilを返す。
func (r *PostgresPaymentProofRepo) FindByID(ctx context.Context, id string) (*model.PaymentProof, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentProofColumns+` FROM payment_proofs WHERE id = $1`, id)
	return scanPaymentProof(row)
}

// ListBySessionID はセッションの支払い証明一覧を作成順で返す。
func (r *PostgresPaymentProofRepo) ListBySessionID(ctx context.Context, sessionID string) ([]*model.PaymentProof, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentProofColumns+`
		 FROM payment_proofs
		 WHERE session_id = $1
		 ORDER BY created_at ASC, id ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment proofs: %w", err)
	}
	defer rows.Close()

	var proofs []*model.PaymentProof
	for rows.Next() {
		proof, err := scanPaymentProof(rows)
		if err != nil {
			return nil, err
		}
		proofs = append(proofs, proof)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment proofs: %w", err)
	}
	return proofs, nil
}

// UpdateReview はレビュー結果（approved/rejected）と処理時刻を記録する。
func (r *PostgresPaymentProofRepo) UpdateReview(ctx context.Context, id string, status model.PaymentStatus, processedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_proofs SET payment_status = $2, processed_at = $3 WHERE id = $1`,
		id, status, processedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment review: %w", err)
	}
	return nil
}

// UpdateOCRStatus はOCR処理状態のみを更新する。
func (r *PostgresPaymentProofRepo) UpdateOCRStatus(ctx context.Context, id string, status model.OCRStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_proofs SET ocr_status = $2 WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update ocr status: %w", err)
	}
	return nil
}

// UpdateOCRResult はOCR抽出結果と確信度、処理状態を記録する。
func (r *PostgresPaymentProofRepo) UpdateOCRResult(ctx context.Context, id string, bankName, accountNumber, accountName *string, confidence float64, status model.OCRStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_proofs
		 SET bank_name = $2, account_number = $3, account_name = $4,
		     ocr_confidence = $5, ocr_status = $6
		 WHERE id = $1`,
		id, bankName, accountNumber, accountName, confidence, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update ocr result: %w", err)
	}
	return nil
}
