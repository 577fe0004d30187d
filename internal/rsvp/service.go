// Package rsvp はセッション公開コード経由のRSVP受付を提供する。
//
// 参加者の同一性は(表示名, 電話番号)の組で判定する。認証は要求しない。
// 定員チェックと参加レコード作成は単一トランザクションで行い、
// 同時リクエストによる定員超過を防ぐ。
package rsvp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/reserv/internal/cache"
	"github.com/hitoshi/reserv/internal/metrics"
	"github.com/hitoshi/reserv/internal/model"
	"github.com/hitoshi/reserv/internal/repository"
	"github.com/hitoshi/reserv/internal/security"
)

// Service はRSVP受付のビジネスロジックを提供する。
type Service struct {
	sessionRepo     repository.SessionRepository
	participantRepo repository.ParticipantRepository
	sanitizer       security.InputSanitizerService
	revalidator     cache.Revalidator
	collector       metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(
	sessionRepo repository.SessionRepository,
	participantRepo repository.ParticipantRepository,
	sanitizer security.InputSanitizerService,
	revalidator cache.Revalidator,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		sessionRepo:     sessionRepo,
		participantRepo: participantRepo,
		sanitizer:       sanitizer,
		revalidator:     revalidator,
		collector:       collector,
	}
}

// JoinParams はRSVP受付時の入力値。
type JoinParams struct {
	DisplayName string
	Phone       string // 空文字はNULL扱い
	Email       string // 認証済みユーザーの場合のみ
	GuestKey    string // ゲストのデバイス相関ヒント。同一性判定には使わない
	ProfileID   string // ゲストプロファイルID。未指定なら新規発行
}

// Join はセッションへの参加を受け付ける。
//
// 既存の参加者（同じ表示名・電話番号）が見つかった場合は
// ステータスをconfirmedに戻すだけで、定員チェックは行わない。
// 「同じ人が再送したら同じ参加者」の冪等性を優先する意図的な挙動で、
// 辞退済みからの復帰も定員を素通りする。
//
// 新規参加の場合は定員チェックと行挿入を1トランザクションで行い、
// 定員超過ならCAPACITY_EXCEEDEDを返す。
func (s *Service) Join(ctx context.Context, publicCode string, params JoinParams) (*model.Participant, error) {
	name := s.sanitizer.SanitizeName(params.DisplayName)
	if name == "" {
		s.collector.RecordJoin(metrics.JoinResultError)
		return nil, model.NewValidationError("表示名を入力してください")
	}
	phone := normalizePhone(params.Phone)

	session, err := s.sessionRepo.FindOpenByPublicCode(ctx, publicCode)
	if err != nil {
		s.collector.RecordJoin(metrics.JoinResultError)
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		s.collector.RecordJoin(metrics.JoinResultError)
		return nil, model.NewSessionNotFoundError()
	}

	existing, err := s.participantRepo.FindByIdentity(ctx, session.ID, name, phone)
	if err != nil {
		s.collector.RecordJoin(metrics.JoinResultError)
		return nil, fmt.Errorf("failed to match participant: %w", err)
	}

	if existing != nil {
		// 再送・復帰はステータス更新のみ。定員は再チェックしない。
		if existing.Status != model.ParticipantStatusConfirmed {
			if err := s.participantRepo.UpdateStatus(ctx, existing.ID, model.ParticipantStatusConfirmed); err != nil {
				s.collector.RecordJoin(metrics.JoinResultError)
				return nil, fmt.Errorf("failed to confirm participant: %w", err)
			}
			existing.Status = model.ParticipantStatusConfirmed
		}
		s.collector.RecordJoin(metrics.JoinResultRejoined)
		s.revalidate(ctx, session)
		return existing, nil
	}

	participant := s.buildParticipant(session.ID, name, phone, params)
	inserted, err := s.participantRepo.CreateConfirmedIfCapacity(ctx, participant, session.Capacity)
	if err != nil {
		s.collector.RecordJoin(metrics.JoinResultError)
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}
	if !inserted {
		s.collector.RecordJoin(metrics.JoinResultRejected)
		s.collector.RecordCapacityRejection(publicCode)
		return nil, model.NewCapacityExceededError()
	}

	slog.Info("participant joined",
		slog.String("session_id", session.ID),
		slog.String("participant_id", participant.ID),
	)
	s.collector.RecordJoin(metrics.JoinResultCreated)
	s.revalidate(ctx, session)
	return participant, nil
}

// Decline はセッションへの辞退を受け付ける。
// 既存の参加者が見つかればcancelledに更新し、見つからなければ
// cancelledの参加レコードを新規作成する。定員チェックは行わない。
func (s *Service) Decline(ctx context.Context, publicCode string, params JoinParams) (*model.Participant, error) {
	name := s.sanitizer.SanitizeName(params.DisplayName)
	if name == "" {
		return nil, model.NewValidationError("表示名を入力してください")
	}
	phone := normalizePhone(params.Phone)

	session, err := s.sessionRepo.FindOpenByPublicCode(ctx, publicCode)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError()
	}

	existing, err := s.participantRepo.FindByIdentity(ctx, session.ID, name, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to match participant: %w", err)
	}

	var participant *model.Participant
	if existing != nil {
		if existing.Status != model.ParticipantStatusCancelled {
			if err := s.participantRepo.UpdateStatus(ctx, existing.ID, model.ParticipantStatusCancelled); err != nil {
				return nil, fmt.Errorf("failed to cancel participant: %w", err)
			}
			existing.Status = model.ParticipantStatusCancelled
		}
		participant = existing
	} else {
		participant = s.buildParticipant(session.ID, name, phone, params)
		participant.Status = model.ParticipantStatusCancelled
		if err := s.participantRepo.Create(ctx, participant); err != nil {
			return nil, fmt.Errorf("failed to create declined participant: %w", err)
		}
	}

	s.collector.RecordDecline()
	s.revalidate(ctx, session)
	return participant, nil
}

// Status は(表示名, 電話番号)に対応する参加者の現在ステータスを返す。
// レコードが存在しない場合は空のステータスとnilエラーを返す。
func (s *Service) Status(ctx context.Context, publicCode, displayName, phone string) (model.ParticipantStatus, error) {
	name := s.sanitizer.SanitizeName(displayName)
	if name == "" {
		return "", model.NewValidationError("表示名を入力してください")
	}

	session, err := s.sessionRepo.FindOpenByPublicCode(ctx, publicCode)
	if err != nil {
		return "", fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return "", model.NewSessionNotFoundError()
	}

	participant, err := s.participantRepo.FindByIdentity(ctx, session.ID, name, normalizePhone(phone))
	if err != nil {
		return "", fmt.Errorf("failed to match participant: %w", err)
	}
	if participant == nil {
		return "", nil
	}
	return participant.Status, nil
}

// ListConfirmed はconfirmedの参加者一覧を受付順で返す。
func (s *Service) ListConfirmed(ctx context.Context, publicCode string) ([]*model.Participant, error) {
	session, err := s.sessionRepo.FindOpenByPublicCode(ctx, publicCode)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError()
	}
	return s.participantRepo.ListConfirmedBySessionID(ctx, session.ID)
}

// buildParticipant は新規参加レコードを組み立てる。
func (s *Service) buildParticipant(sessionID, name string, phone *string, params JoinParams) *model.Participant {
	p := &model.Participant{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		DisplayName:  name,
		ContactPhone: phone,
		Status:       model.ParticipantStatusConfirmed,
		CreatedAt:    time.Now(),
	}
	if params.Email != "" {
		email := params.Email
		p.ContactEmail = &email
	}
	if params.GuestKey != "" {
		key := params.GuestKey
		p.GuestKey = &key
	}
	profileID := params.ProfileID
	if profileID == "" {
		profileID = uuid.New().String()
	}
	p.ProfileID = &profileID
	return p
}

// revalidate は公開ページキャッシュを破棄する。
// 失敗してもRSVP自体は成功として扱い、警告ログのみ残す。
func (s *Service) revalidate(ctx context.Context, session *model.Session) {
	if err := s.revalidator.RevalidateSessionPage(ctx, session.HostSlug, session.PublicCode); err != nil {
		slog.Warn("failed to revalidate session page",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}
}

// normalizePhone は電話番号入力を正規化する。空文字はNULL扱い。
func normalizePhone(phone string) *string {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
