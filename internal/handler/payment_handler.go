package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/reserv/internal/middleware"
	"github.com/hitoshi/reserv/internal/model"
)

// PaymentServiceInterface は支払い証明ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	Review(ctx context.Context, hostID, proofID string, approve bool) (*model.PaymentProof, error)
	ListBySession(ctx context.Context, hostID, sessionID string) ([]*model.PaymentProof, error)
	Scan(ctx context.Context, hostID, proofID string) (*model.PaymentProof, error)
}

// PaymentHandler はホスト向け支払い証明レビューAPIのHTTPハンドラー。
type PaymentHandler struct {
	service PaymentServiceInterface
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentServiceInterface) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// proofResponse は支払い証明のレスポンス表現。
type proofResponse struct {
	ID            string     `json:"id"`
	SessionID     string     `json:"sessionId"`
	ParticipantID string     `json:"participantId"`
	ProofImageURL string     `json:"proofImageUrl"`
	PaymentStatus string     `json:"paymentStatus"`
	OCRStatus     string     `json:"ocrStatus"`
	BankName      *string    `json:"bankName,omitempty"`
	AccountNumber *string    `json:"accountNumber,omitempty"`
	AccountName   *string    `json:"accountName,omitempty"`
	OCRConfidence *float64   `json:"ocrConfidence,omitempty"`
	ProcessedAt   *time.Time `json:"processedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func toProofResponse(p *model.PaymentProof) proofResponse {
	return proofResponse{
		ID:            p.ID,
		SessionID:     p.SessionID,
		ParticipantID: p.ParticipantID,
		ProofImageURL: p.ProofImageURL,
		PaymentStatus: string(p.PaymentStatus),
		OCRStatus:     string(p.OCRStatus),
		BankName:      p.BankName,
		AccountNumber: p.AccountNumber,
		AccountName:   p.AccountName,
		OCRConfidence: p.OCRConfidence,
		ProcessedAt:   p.ProcessedAt,
		CreatedAt:     p.CreatedAt,
	}
}

// reviewRequest はレビューリクエストのボディ。
type reviewRequest struct {
	Status string `json:"status"` // "approved" または "rejected"
}

// Review は支払い証明を承認または却下する。
// PATCH /api/host/payments/{id}
func (h *PaymentHandler) Review(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}
	proofID := chi.URLParam(r, "id")

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	var approve bool
	switch req.Status {
	case string(model.PaymentStatusApproved):
		approve = true
	case string(model.PaymentStatusRejected):
		approve = false
	default:
		middleware.WriteAPIError(w, model.NewValidationError("statusはapprovedまたはrejectedを指定してください"))
		return
	}

	proof, err := h.service.Review(r.Context(), userID, proofID, approve)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, toProofResponse(proof))
}

// ListBySession はセッションの支払い証明一覧を返す。
// GET /api/host/sessions/{id}/payments
func (h *PaymentHandler) ListBySession(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}
	sessionID := chi.URLParam(r, "id")

	proofs, err := h.service.ListBySession(r.Context(), userID, sessionID)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	responses := make([]proofResponse, 0, len(proofs))
	for _, p := range proofs {
		responses = append(responses, toProofResponse(p))
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, responses)
}

// Scan は支払い証明画像のOCRスキャンを実行する。
// POST /api/payments/{id}/scan
func (h *PaymentHandler) Scan(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}
	proofID := chi.URLParam(r, "id")

	proof, err := h.service.Scan(r.Context(), userID, proofID)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, toProofResponse(proof))
}
