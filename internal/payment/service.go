package payment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/reserv/internal/metrics"
	"github.com/hitoshi/reserv/internal/model"
	"github.com/hitoshi/reserv/internal/repository"
	"github.com/hitoshi/reserv/internal/security"
	"github.com/hitoshi/reserv/internal/storage"
)

// ServiceConfig は支払い証明サービスの設定。
type ServiceConfig struct {
	FetchTimeout time.Duration // OCRスキャン時の画像取得タイムアウト
	MaxImageSize int64         // 取得する画像の最大バイト数
}

// Service は支払い証明のビジネスロジックを提供する。
type Service struct {
	proofRepo       repository.PaymentProofRepository
	sessionRepo     repository.SessionRepository
	participantRepo repository.ParticipantRepository
	uploader        storage.Uploader
	ocr             OCRClient
	ssrfGuard       security.SSRFGuardService
	fetchClient     *http.Client
	collector       metrics.MetricsCollector
	config          ServiceConfig
}

// NewService はServiceを生成する。
// 証明画像の取得クライアントはSSRFガード付きで初期化される。
func NewService(
	proofRepo repository.PaymentProofRepository,
	sessionRepo repository.SessionRepository,
	participantRepo repository.ParticipantRepository,
	uploader storage.Uploader,
	ocr OCRClient,
	ssrfGuard security.SSRFGuardService,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		proofRepo:       proofRepo,
		sessionRepo:     sessionRepo,
		participantRepo: participantRepo,
		uploader:        uploader,
		ocr:             ocr,
		ssrfGuard:       ssrfGuard,
		fetchClient:     ssrfGuard.NewSafeClient(config.FetchTimeout, config.MaxImageSize),
		collector:       collector,
		config:          config,
	}
}

// UploadProof は参加者の支払い証明画像を保存し、レビュー待ちレコードを作成する。
func (s *Service) UploadProof(ctx context.Context, publicCode, participantID, contentType string, body io.Reader) (*model.PaymentProof, error) {
	session, err := s.sessionRepo.FindOpenByPublicCode(ctx, publicCode)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError()
	}

	participant, err := s.participantRepo.FindByID(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to find participant: %w", err)
	}
	if participant == nil || participant.SessionID != session.ID {
		return nil, model.NewParticipantNotFoundError()
	}

	key := fmt.Sprintf("proofs/%s/%s/%s", session.ID, participant.ID, uuid.New().String())
	imageURL, err := s.uploader.Upload(ctx, key, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("failed to upload proof image: %w", err)
	}

	proof := &model.PaymentProof{
		ID:            uuid.New().String(),
		SessionID:     session.ID,
		ParticipantID: participant.ID,
		ProofImageURL: imageURL,
		PaymentStatus: model.PaymentStatusPendingReview,
		OCRStatus:     model.OCRStatusNone,
		CreatedAt:     time.Now(),
	}
	if err := s.proofRepo.Create(ctx, proof); err != nil {
		return nil, fmt.Errorf("failed to create payment proof: %w", err)
	}

	slog.Info("payment proof uploaded",
		slog.String("proof_id", proof.ID),
		slog.String("session_id", session.ID),
		slog.String("participant_id", participant.ID),
	)
	return proof, nil
}

// Review はホストによる支払い証明の承認/却下を記録する。
func (s *Service) Review(ctx context.Context, hostID, proofID string, approve bool) (*model.PaymentProof, error) {
	proof, err := s.findOwnedProof(ctx, hostID, proofID)
	if err != nil {
		return nil, err
	}

	status := model.PaymentStatusRejected
	if approve {
		status = model.PaymentStatusApproved
	}
	now := time.Now()
	if err := s.proofRepo.UpdateReview(ctx, proof.ID, status, now); err != nil {
		return nil, fmt.Errorf("failed to record review: %w", err)
	}

	proof.PaymentStatus = status
	proof.ProcessedAt = &now
	return proof, nil
}

// ListBySession はホスト向けにセッションの支払い証明一覧を返す。
func (s *Service) ListBySession(ctx context.Context, hostID, sessionID string) ([]*model.PaymentProof, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError()
	}
	if session.HostID != hostID {
		return nil, model.NewForbiddenError()
	}
	return s.proofRepo.ListBySessionID(ctx, sessionID)
}

// Scan は証明画像をOCRにかけ、抽出した振込情報を記録する。
// 画像はSSRFガード付きクライアントで取得する。OCRや取得に失敗した場合は
// ocr_statusをfailedにしてUPSTREAM_FAILUREを返す。
func (s *Service) Scan(ctx context.Context, hostID, proofID string) (*model.PaymentProof, error) {
	proof, err := s.findOwnedProof(ctx, hostID, proofID)
	if err != nil {
		return nil, err
	}

	if err := s.ssrfGuard.ValidateURL(proof.ProofImageURL); err != nil {
		s.collector.RecordPaymentScan("blocked")
		return nil, model.NewValidationError("証明画像のURLが不正です")
	}

	if err := s.proofRepo.UpdateOCRStatus(ctx, proof.ID, model.OCRStatusPending); err != nil {
		return nil, fmt.Errorf("failed to mark ocr pending: %w", err)
	}

	image, contentType, err := s.fetchImage(ctx, proof.ProofImageURL)
	if err != nil {
		s.failScan(ctx, proof.ID, "fetch", err)
		return nil, model.NewUpstreamFailureError()
	}

	result, err := s.ocr.Extract(ctx, image, contentType)
	if err != nil {
		s.failScan(ctx, proof.ID, "extract", err)
		return nil, model.NewUpstreamFailureError()
	}

	confidence := result.Confidence()
	if err := s.proofRepo.UpdateOCRResult(ctx, proof.ID,
		result.BankName, result.AccountNumber, result.AccountName,
		confidence, model.OCRStatusCompleted,
	); err != nil {
		return nil, fmt.Errorf("failed to record ocr result: %w", err)
	}

	s.collector.RecordPaymentScan("completed")
	slog.Info("payment proof scanned",
		slog.String("proof_id", proof.ID),
		slog.Float64("confidence", confidence),
	)

	proof.BankName = result.BankName
	proof.AccountNumber = result.AccountNumber
	proof.AccountName = result.AccountName
	proof.OCRConfidence = &confidence
	proof.OCRStatus = model.OCRStatusCompleted
	return proof, nil
}

// findOwnedProof は証明レコードを取得し、紐づくセッションの所有者チェックを行う。
func (s *Service) findOwnedProof(ctx context.Context, hostID, proofID string) (*model.PaymentProof, error) {
	proof, err := s.proofRepo.FindByID(ctx, proofID)
	if err != nil {
		return nil, fmt.Errorf("failed to find payment proof: %w", err)
	}
	if proof == nil {
		return nil, model.NewPaymentNotFoundError()
	}

	session, err := s.sessionRepo.FindByID(ctx, proof.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError()
	}
	if session.HostID != hostID {
		return nil, model.NewForbiddenError()
	}
	return proof, nil
}

// fetchImage は証明画像をサイズ上限付きで取得する。
func (s *Service) fetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create image request: %w", err)
	}

	resp, err := s.fetchClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("image fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	// 上限+1バイト読んで超過を検知する
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > s.config.MaxImageSize {
		return nil, "", fmt.Errorf("image exceeds size limit of %d bytes", s.config.MaxImageSize)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// failScan はOCR失敗を記録する。記録自体の失敗はログに残すだけにする。
func (s *Service) failScan(ctx context.Context, proofID, stage string, cause error) {
	s.collector.RecordPaymentScan("failed")
	slog.Error("payment proof scan failed",
		slog.String("proof_id", proofID),
		slog.String("stage", stage),
		slog.String("error", cause.Error()),
	)
	if err := s.proofRepo.UpdateOCRStatus(ctx, proofID, model.OCRStatusFailed); err != nil {
		slog.Error("failed to mark ocr failed",
			slog.String("proof_id", proofID),
			slog.String("error", err.Error()),
		)
	}
}
