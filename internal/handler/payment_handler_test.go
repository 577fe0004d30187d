package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/reserv/internal/model"
)

// --- モック定義 ---

type mockPaymentService struct {
	reviewFn        func(ctx context.Context, hostID, proofID string, approve bool) (*model.PaymentProof, error)
	listBySessionFn func(ctx context.Context, hostID, sessionID string) ([]*model.PaymentProof, error)
	scanFn          func(ctx context.Context, hostID, proofID string) (*model.PaymentProof, error)
}

func (m *mockPaymentService) Review(ctx context.Context, hostID, proofID string, approve bool) (*model.PaymentProof, error) {
	if m.reviewFn != nil {
		return m.reviewFn(ctx, hostID, proofID, approve)
	}
	return nil, nil
}

func (m *mockPaymentService) ListBySession(ctx context.Context, hostID, sessionID string) ([]*model.PaymentProof, error) {
	if m.listBySessionFn != nil {
		return m.listBySessionFn(ctx, hostID, sessionID)
	}
	return nil, nil
}

func (m *mockPaymentService) Scan(ctx context.Context, hostID, proofID string) (*model.PaymentProof, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, hostID, proofID)
	}
	return nil, nil
}

var _ PaymentServiceInterface = (*mockPaymentService)(nil)

// --- テスト ---

func TestPaymentHandler_Review_Approve(t *testing.T) {
	var gotApprove bool
	service := &mockPaymentService{
		reviewFn: func(ctx context.Context, hostID, proofID string, approve bool) (*model.PaymentProof, error) {
			gotApprove = approve
			return &model.PaymentProof{ID: proofID, PaymentStatus: model.PaymentStatusApproved}, nil
		},
	}
	h := NewPaymentHandler(service)

	req := hostRequest(http.MethodPatch, "/api/host/payments/proof-1", "user-1", "proof-1", `{"status":"approved"}`)
	w := httptest.NewRecorder()

	h.Review(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !gotApprove {
		t.Error("approve = false, want true")
	}
	data := decodeSuccessBody(t, w)
	if data["paymentStatus"] != string(model.PaymentStatusApproved) {
		t.Errorf("paymentStatus = %v, want %q", data["paymentStatus"], model.PaymentStatusApproved)
	}
}

func TestPaymentHandler_Review_Reject(t *testing.T) {
	var gotApprove bool
	service := &mockPaymentService{
		reviewFn: func(ctx context.Context, hostID, proofID string, approve bool) (*model.PaymentProof, error) {
			gotApprove = approve
			return &model.PaymentProof{ID: proofID, PaymentStatus: model.PaymentStatusRejected}, nil
		},
	}
	h := NewPaymentHandler(service)

	req := hostRequest(http.MethodPatch, "/api/host/payments/proof-1", "user-1", "proof-1", `{"status":"rejected"}`)
	w := httptest.NewRecorder()

	h.Review(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotApprove {
		t.Error("approve = true, want false")
	}
}

func TestPaymentHandler_Review_InvalidStatus_Returns400(t *testing.T) {
	h := NewPaymentHandler(&mockPaymentService{})

	req := hostRequest(http.MethodPatch, "/api/host/payments/proof-1", "user-1", "proof-1", `{"status":"maybe"}`)
	w := httptest.NewRecorder()

	h.Review(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestPaymentHandler_Review_OtherHostsProof_Returns403(t *testing.T) {
	service := &mockPaymentService{
		reviewFn: func(ctx context.Context, hostID, proofID string, approve bool) (*model.PaymentProof, error) {
			return nil, model.NewForbiddenError()
		},
	}
	h := NewPaymentHandler(service)

	req := hostRequest(http.MethodPatch, "/api/host/payments/proof-1", "user-1", "proof-1", `{"status":"approved"}`)
	w := httptest.NewRecorder()

	h.Review(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestPaymentHandler_ListBySession(t *testing.T) {
	service := &mockPaymentService{
		listBySessionFn: func(ctx context.Context, hostID, sessionID string) ([]*model.PaymentProof, error) {
			return []*model.PaymentProof{
				{ID: "proof-1", SessionID: sessionID, PaymentStatus: model.PaymentStatusPendingReview},
			}, nil
		},
	}
	h := NewPaymentHandler(service)

	req := hostRequest(http.MethodGet, "/api/host/sessions/session-1/payments", "user-1", "session-1", "")
	w := httptest.NewRecorder()

	h.ListBySession(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		OK   bool            `json:"ok"`
		Data []proofResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Data) != 1 {
		t.Errorf("len(data) = %d, want 1", len(body.Data))
	}
}

func TestPaymentHandler_Scan_ReturnsOCRResult(t *testing.T) {
	confidence := 2.0 / 3.0
	service := &mockPaymentService{
		scanFn: func(ctx context.Context, hostID, proofID string) (*model.PaymentProof, error) {
			return &model.PaymentProof{
				ID:            proofID,
				OCRStatus:     model.OCRStatusCompleted,
				BankName:      strPtr("みずほ銀行"),
				OCRConfidence: &confidence,
			}, nil
		},
	}
	h := NewPaymentHandler(service)

	req := hostRequest(http.MethodPost, "/api/payments/proof-1/scan", "user-1", "proof-1", "")
	w := httptest.NewRecorder()

	h.Scan(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	data := decodeSuccessBody(t, w)
	if data["ocrStatus"] != string(model.OCRStatusCompleted) {
		t.Errorf("ocrStatus = %v, want %q", data["ocrStatus"], model.OCRStatusCompleted)
	}
	if data["bankName"] != "みずほ銀行" {
		t.Errorf("bankName = %v, want みずほ銀行", data["bankName"])
	}
}

func TestPaymentHandler_Scan_UpstreamFailure_Returns502(t *testing.T) {
	service := &mockPaymentService{
		scanFn: func(ctx context.Context, hostID, proofID string) (*model.PaymentProof, error) {
			return nil, model.NewUpstreamFailureError()
		},
	}
	h := NewPaymentHandler(service)

	req := hostRequest(http.MethodPost, "/api/payments/proof-1/scan", "user-1", "proof-1", "")
	w := httptest.NewRecorder()

	h.Scan(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}
