package payment

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/reserv/internal/metrics"
	"github.com/hitoshi/reserv/internal/model"
	"github.com/hitoshi/reserv/internal/repository"
	"github.com/hitoshi/reserv/internal/security"
	"github.com/hitoshi/reserv/internal/storage"
)

// --- モック定義 ---

type mockProofRepo struct {
	createFn          func(ctx context.Context, proof *model.PaymentProof) error
	findByIDFn        func(ctx context.Context, id string) (*model.PaymentProof, error)
	listBySessionIDFn func(ctx context.Context, sessionID string) ([]*model.PaymentProof, error)
	updateReviewFn    func(ctx context.Context, id string, status model.PaymentStatus, processedAt time.Time) error
	updateOCRStatusFn func(ctx context.Context, id string, status model.OCRStatus) error
	updateOCRResultFn func(ctx context.Context, id string, bankName, accountNumber, accountName *string, confidence float64, status model.OCRStatus) error
}

func (m *mockProofRepo) Create(ctx context.Context, proof *model.PaymentProof) error {
	if m.createFn != nil {
		return m.createFn(ctx, proof)
	}
	return nil
}
func (m *mockProofRepo) FindByID(ctx context.Context, id string) (*model.PaymentProof, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockProofRepo) ListBySessionID(ctx context.Context, sessionID string) ([]*model.PaymentProof, error) {
	if m.listBySessionIDFn != nil {
		return m.listBySessionIDFn(ctx, sessionID)
	}
	return nil, nil
}
func (m *mockProofRepo) UpdateReview(ctx context.Context, id string, status model.PaymentStatus, processedAt time.Time) error {
	if m.updateReviewFn != nil {
		return m.updateReviewFn(ctx, id, status, processedAt)
	}
	return nil
}
func (m *mockProofRepo) UpdateOCRStatus(ctx context.Context, id string, status model.OCRStatus) error {
	if m.updateOCRStatusFn != nil {
		return m.updateOCRStatusFn(ctx, id, status)
	}
	return nil
}
func (m *mockProofRepo) UpdateOCRResult(ctx context.Context, id string, bankName, accountNumber, accountName *string, confidence float64, status model.OCRStatus) error {
	if m.updateOCRResultFn != nil {
		return m.updateOCRResultFn(ctx, id, bankName, accountNumber, accountName, confidence, status)
	}
	return nil
}

type mockSessionRepo struct {
	findByIDFn             func(ctx context.Context, id string) (*model.Session, error)
	findOpenByPublicCodeFn func(ctx context.Context, publicCode string) (*model.Session, error)
}

func (m *mockSessionRepo) Create(_ context.Context, _ *model.Session) error { return nil }
func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockSessionRepo) FindOpenByPublicCode(ctx context.Context, publicCode string) (*model.Session, error) {
	if m.findOpenByPublicCodeFn != nil {
		return m.findOpenByPublicCodeFn(ctx, publicCode)
	}
	return nil, nil
}
func (m *mockSessionRepo) ListByHostID(_ context.Context, _ string) ([]*model.Session, error) {
	return nil, nil
}
func (m *mockSessionRepo) Update(_ context.Context, _ *model.Session) error { return nil }
func (m *mockSessionRepo) Publish(_ context.Context, _, _ string) error     { return nil }
func (m *mockSessionRepo) UpdateStatus(_ context.Context, _ string, _ model.SessionStatus) error {
	return nil
}
func (m *mockSessionRepo) CompletePastSessions(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type mockParticipantRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Participant, error)
}

func (m *mockParticipantRepo) FindByIdentity(_ context.Context, _, _ string, _ *string) (*model.Participant, error) {
	return nil, nil
}
func (m *mockParticipantRepo) FindByID(ctx context.Context, id string) (*model.Participant, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockParticipantRepo) Create(_ context.Context, _ *model.Participant) error { return nil }
func (m *mockParticipantRepo) CreateConfirmedIfCapacity(_ context.Context, _ *model.Participant, _ *int) (bool, error) {
	return true, nil
}
func (m *mockParticipantRepo) UpdateStatus(_ context.Context, _ string, _ model.ParticipantStatus) error {
	return nil
}
func (m *mockParticipantRepo) ListConfirmedBySessionID(_ context.Context, _ string) ([]*model.Participant, error) {
	return nil, nil
}
func (m *mockParticipantRepo) ListBySessionID(_ context.Context, _ string) ([]*model.Participant, error) {
	return nil, nil
}
func (m *mockParticipantRepo) CountConfirmed(_ context.Context, _ string) (int, error) {
	return 0, nil
}

type mockUploader struct {
	uploadFn func(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

func (m *mockUploader) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, key, contentType, body)
	}
	return "https://cdn.example.com/" + key, nil
}

type mockOCRClient struct {
	extractFn func(ctx context.Context, image []byte, contentType string) (*OCRResult, error)
}

func (m *mockOCRClient) Extract(ctx context.Context, image []byte, contentType string) (*OCRResult, error) {
	if m.extractFn != nil {
		return m.extractFn(ctx, image, contentType)
	}
	return &OCRResult{}, nil
}

// mockSSRFGuard はテスト用のガード。httptestサーバー（ループバック）への
// アクセスを許可するため、素のhttp.Clientを返す。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockSSRFGuard) ValidateURL(_ string) error {
	return m.validateErr
}

var (
	_ repository.PaymentProofRepository = (*mockProofRepo)(nil)
	_ repository.SessionRepository      = (*mockSessionRepo)(nil)
	_ repository.ParticipantRepository  = (*mockParticipantRepo)(nil)
	_ storage.Uploader                  = (*mockUploader)(nil)
	_ OCRClient                         = (*mockOCRClient)(nil)
	_ security.SSRFGuardService         = (*mockSSRFGuard)(nil)
)

// --- ヘルパー ---

func strPtr(s string) *string { return &s }

func testConfig() ServiceConfig {
	return ServiceConfig{FetchTimeout: 5 * time.Second, MaxImageSize: 1024 * 1024}
}

func newTestService(
	proofs *mockProofRepo,
	sessions *mockSessionRepo,
	participants *mockParticipantRepo,
	uploader *mockUploader,
	ocr *mockOCRClient,
	guard *mockSSRFGuard,
) *Service {
	if proofs == nil {
		proofs = &mockProofRepo{}
	}
	if sessions == nil {
		sessions = &mockSessionRepo{}
	}
	if participants == nil {
		participants = &mockParticipantRepo{}
	}
	if uploader == nil {
		uploader = &mockUploader{}
	}
	if ocr == nil {
		ocr = &mockOCRClient{}
	}
	if guard == nil {
		guard = &mockSSRFGuard{}
	}
	return NewService(proofs, sessions, participants, uploader, ocr, guard,
		metrics.NewCollector(prometheus.NewRegistry()), testConfig())
}

func openSession() *model.Session {
	return &model.Session{
		ID:         "session-1",
		HostID:     "host-1",
		HostSlug:   "taro",
		PublicCode: "Ab3xYz",
		Status:     model.SessionStatusOpen,
	}
}

func sessionRepoFor(session *model.Session) *mockSessionRepo {
	return &mockSessionRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Session, error) {
			if id == session.ID {
				return session, nil
			}
			return nil, nil
		},
		findOpenByPublicCodeFn: func(_ context.Context, code string) (*model.Session, error) {
			if code == session.PublicCode {
				return session, nil
			}
			return nil, nil
		},
	}
}

func pendingProof() *model.PaymentProof {
	return &model.PaymentProof{
		ID:            "proof-1",
		SessionID:     "session-1",
		ParticipantID: "participant-1",
		ProofImageURL: "https://cdn.example.com/proofs/session-1/participant-1/img",
		PaymentStatus: model.PaymentStatusPendingReview,
		OCRStatus:     model.OCRStatusNone,
	}
}

func wantAPIError(t *testing.T, err error, code string) {
	t.Helper()
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

// --- UploadProof ---

func TestUploadProof_CreatesPendingRecord(t *testing.T) {
	participants := &mockParticipantRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Participant, error) {
			return &model.Participant{ID: id, SessionID: "session-1"}, nil
		},
	}
	var uploadedKey string
	uploader := &mockUploader{
		uploadFn: func(_ context.Context, key, contentType string, _ io.Reader) (string, error) {
			uploadedKey = key
			return "https://cdn.example.com/" + key, nil
		},
	}
	var created *model.PaymentProof
	proofs := &mockProofRepo{
		createFn: func(_ context.Context, proof *model.PaymentProof) error {
			created = proof
			return nil
		},
	}
	svc := newTestService(proofs, sessionRepoFor(openSession()), participants, uploader, nil, nil)

	proof, err := svc.UploadProof(context.Background(), "Ab3xYz", "participant-1", "image/jpeg", bytes.NewReader([]byte("img")))
	if err != nil {
		t.Fatalf("UploadProof() error = %v", err)
	}

	if !strings.HasPrefix(uploadedKey, "proofs/session-1/participant-1/") {
		t.Errorf("object key = %q, want proofs/session-1/participant-1/ prefix", uploadedKey)
	}
	if created == nil {
		t.Fatal("expected proof record to be created")
	}
	if proof.PaymentStatus != model.PaymentStatusPendingReview {
		t.Errorf("payment status = %q, want pending_review", proof.PaymentStatus)
	}
	if proof.OCRStatus != model.OCRStatusNone {
		t.Errorf("ocr status = %q, want none", proof.OCRStatus)
	}
}

func TestUploadProof_ParticipantFromOtherSession_NotFound(t *testing.T) {
	participants := &mockParticipantRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Participant, error) {
			return &model.Participant{ID: id, SessionID: "other-session"}, nil
		},
	}
	svc := newTestService(nil, sessionRepoFor(openSession()), participants, nil, nil, nil)

	_, err := svc.UploadProof(context.Background(), "Ab3xYz", "participant-1", "image/jpeg", bytes.NewReader(nil))
	wantAPIError(t, err, model.ErrCodeParticipantNotFound)
}

func TestUploadProof_UnknownCode_SessionNotFound(t *testing.T) {
	svc := newTestService(nil, &mockSessionRepo{}, nil, nil, nil, nil)

	_, err := svc.UploadProof(context.Background(), "nope", "participant-1", "image/jpeg", bytes.NewReader(nil))
	wantAPIError(t, err, model.ErrCodeSessionNotFound)
}

// --- Review ---

func TestReview_Approve(t *testing.T) {
	proofs := &mockProofRepo{
		findByIDFn: func(_ context.Context, _ string) (*model.PaymentProof, error) {
			return pendingProof(), nil
		},
	}
	var reviewedStatus model.PaymentStatus
	proofs.updateReviewFn = func(_ context.Context, _ string, status model.PaymentStatus, _ time.Time) error {
		reviewedStatus = status
		return nil
	}
	svc := newTestService(proofs, sessionRepoFor(openSession()), nil, nil, nil, nil)

	proof, err := svc.Review(context.Background(), "host-1", "proof-1", true)
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if reviewedStatus != model.PaymentStatusApproved || proof.PaymentStatus != model.PaymentStatusApproved {
		t.Errorf("status = %q/%q, want approved", reviewedStatus, proof.PaymentStatus)
	}
	if proof.ProcessedAt == nil {
		t.Error("expected processed_at to be set")
	}
}

func TestReview_Reject(t *testing.T) {
	proofs := &mockProofRepo{
		findByIDFn: func(_ context.Context, _ string) (*model.PaymentProof, error) {
			return pendingProof(), nil
		},
	}
	svc := newTestService(proofs, sessionRepoFor(openSession()), nil, nil, nil, nil)

	proof, err := svc.Review(context.Background(), "host-1", "proof-1", false)
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if proof.PaymentStatus != model.PaymentStatusRejected {
		t.Errorf("status = %q, want rejected", proof.PaymentStatus)
	}
}

func TestReview_OtherHost_Forbidden(t *testing.T) {
	proofs := &mockProofRepo{
		findByIDFn: func(_ context.Context, _ string) (*model.PaymentProof, error) {
			return pendingProof(), nil
		},
	}
	svc := newTestService(proofs, sessionRepoFor(openSession()), nil, nil, nil, nil)

	_, err := svc.Review(context.Background(), "host-2", "proof-1", true)
	wantAPIError(t, err, model.ErrCodeForbidden)
}

func TestReview_ProofNotFound(t *testing.T) {
	svc := newTestService(&mockProofRepo{}, sessionRepoFor(openSession()), nil, nil, nil, nil)

	_, err := svc.Review(context.Background(), "host-1", "missing", true)
	wantAPIError(t, err, model.ErrCodePaymentNotFound)
}

// --- Scan ---

func TestScan_ExtractsAndRecordsResult(t *testing.T) {
	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes"))
	}))
	defer imageServer.Close()

	proof := pendingProof()
	proof.ProofImageURL = imageServer.URL + "/img.jpg"
	proofs := &mockProofRepo{
		findByIDFn: func(_ context.Context, _ string) (*model.PaymentProof, error) {
			return proof, nil
		},
	}
	var recordedConfidence float64
	var recordedStatus model.OCRStatus
	proofs.updateOCRResultFn = func(_ context.Context, _ string, bankName, _, _ *string, confidence float64, status model.OCRStatus) error {
		if bankName == nil || *bankName != "みずほ銀行" {
			t.Errorf("bank name = %v, want みずほ銀行", bankName)
		}
		recordedConfidence = confidence
		recordedStatus = status
		return nil
	}
	ocr := &mockOCRClient{
		extractFn: func(_ context.Context, image []byte, contentType string) (*OCRResult, error) {
			if string(image) != "jpeg-bytes" {
				t.Errorf("unexpected image payload: %q", image)
			}
			return &OCRResult{
				BankName:      strPtr("みずほ銀行"),
				AccountNumber: strPtr("1234567"),
			}, nil
		},
	}
	svc := newTestService(proofs, sessionRepoFor(openSession()), nil, nil, ocr, &mockSSRFGuard{})

	got, err := svc.Scan(context.Background(), "host-1", "proof-1")
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	// 3フィールド中2つ抽出
	want := 2.0 / 3.0
	if recordedConfidence < want-0.01 || recordedConfidence > want+0.01 {
		t.Errorf("confidence = %v, want about %v", recordedConfidence, want)
	}
	if recordedStatus != model.OCRStatusCompleted {
		t.Errorf("ocr status = %q, want completed", recordedStatus)
	}
	if got.OCRStatus != model.OCRStatusCompleted {
		t.Errorf("returned ocr status = %q, want completed", got.OCRStatus)
	}
}

func TestScan_FetchFailure_MarksFailed(t *testing.T) {
	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer imageServer.Close()

	proof := pendingProof()
	proof.ProofImageURL = imageServer.URL + "/missing.jpg"
	var statuses []model.OCRStatus
	proofs := &mockProofRepo{
		findByIDFn: func(_ context.Context, _ string) (*model.PaymentProof, error) {
			return proof, nil
		},
		updateOCRStatusFn: func(_ context.Context, _ string, status model.OCRStatus) error {
			statuses = append(statuses, status)
			return nil
		},
	}
	svc := newTestService(proofs, sessionRepoFor(openSession()), nil, nil, nil, &mockSSRFGuard{})

	_, err := svc.Scan(context.Background(), "host-1", "proof-1")
	wantAPIError(t, err, model.ErrCodeUpstreamFailure)

	if len(statuses) != 2 || statuses[0] != model.OCRStatusPending || statuses[1] != model.OCRStatusFailed {
		t.Errorf("ocr status transitions = %v, want [pending failed]", statuses)
	}
}

func TestScan_OCRFailure_MarksFailed(t *testing.T) {
	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("img"))
	}))
	defer imageServer.Close()

	proof := pendingProof()
	proof.ProofImageURL = imageServer.URL + "/img.jpg"
	var lastStatus model.OCRStatus
	proofs := &mockProofRepo{
		findByIDFn: func(_ context.Context, _ string) (*model.PaymentProof, error) {
			return proof, nil
		},
		updateOCRStatusFn: func(_ context.Context, _ string, status model.OCRStatus) error {
			lastStatus = status
			return nil
		},
	}
	ocr := &mockOCRClient{
		extractFn: func(_ context.Context, _ []byte, _ string) (*OCRResult, error) {
			return nil, errors.New("ocr service unavailable")
		},
	}
	svc := newTestService(proofs, sessionRepoFor(openSession()), nil, nil, ocr, &mockSSRFGuard{})

	_, err := svc.Scan(context.Background(), "host-1", "proof-1")
	wantAPIError(t, err, model.ErrCodeUpstreamFailure)
	if lastStatus != model.OCRStatusFailed {
		t.Errorf("last ocr status = %q, want failed", lastStatus)
	}
}

func TestScan_BlockedURL_ValidationError(t *testing.T) {
	proofs := &mockProofRepo{
		findByIDFn: func(_ context.Context, _ string) (*model.PaymentProof, error) {
			return pendingProof(), nil
		},
	}
	guard := &mockSSRFGuard{validateErr: errors.New("blocked host")}
	svc := newTestService(proofs, sessionRepoFor(openSession()), nil, nil, nil, guard)

	_, err := svc.Scan(context.Background(), "host-1", "proof-1")
	wantAPIError(t, err, model.ErrCodeValidation)
}

// --- OCRResult ---

func TestOCRResult_Confidence(t *testing.T) {
	tests := []struct {
		name   string
		result OCRResult
		want   float64
	}{
		{"no fields", OCRResult{}, 0},
		{"one field", OCRResult{BankName: strPtr("x")}, 1.0 / 3.0},
		{"all fields", OCRResult{BankName: strPtr("x"), AccountNumber: strPtr("y"), AccountName: strPtr("z")}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.result.Confidence()
			if got < tt.want-0.001 || got > tt.want+0.001 {
				t.Errorf("Confidence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStubOCRClient_ReturnsEmptyResult(t *testing.T) {
	c := NewStubOCRClient()

	result, err := c.Extract(context.Background(), []byte("img"), "image/jpeg")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Confidence() != 0 {
		t.Errorf("stub confidence = %v, want 0", result.Confidence())
	}
}
