package model

import "time"

// PaymentProof は参加者がアップロードした支払い証明を表す。
// 画像はオブジェクトストレージに保存し、ProofImageURLで参照する。
type PaymentProof struct {
	ID            string
	SessionID     string
	ParticipantID string
	ProofImageURL string
	Amount        *int64
	Currency      *string
	PaymentStatus PaymentStatus
	OCRStatus     OCRStatus
	BankName      *string
	AccountNumber *string
	AccountName   *string
	OCRConfidence *float64
	ProcessedAt   *time.Time
	CreatedAt     time.Time
}

// PaymentStatus は支払い証明のレビュー状態を表す。
type PaymentStatus string

const (
	// PaymentStatusPendingReview はホストのレビュー待ち状態。
	PaymentStatusPendingReview PaymentStatus = "pending_review"
	// PaymentStatusApproved は承認済み状態。
	PaymentStatusApproved PaymentStatus = "approved"
	// PaymentStatusRejected は却下状態。
	PaymentStatusRejected PaymentStatus = "rejected"
)

// OCRStatus は支払い証明画像のOCR処理状態を表す。
type OCRStatus string

const (
	// OCRStatusNone は未スキャン状態。
	OCRStatusNone OCRStatus = "none"
	// OCRStatusPending はスキャン実行中状態。
	OCRStatusPending OCRStatus = "pending"
	// OCRStatusCompleted はスキャン完了状態。
	OCRStatusCompleted OCRStatus = "completed"
	// OCRStatusFailed はスキャン失敗状態。
	OCRStatusFailed OCRStatus = "failed"
)
