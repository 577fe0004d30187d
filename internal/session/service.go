// Package session はホスト向けのセッションライフサイクル管理を提供する。
//
// セッションはdraftで作成され、公開（publish）時に公開コードが採番されて
// openに遷移する。RSVPを受け付けるのはopenの間だけ。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/reserv/internal/cache"
	"github.com/hitoshi/reserv/internal/model"
	"github.com/hitoshi/reserv/internal/repository"
	"github.com/hitoshi/reserv/internal/security"
	"github.com/hitoshi/reserv/internal/shortcode"
)

// Service はセッションライフサイクルのビジネスロジックを提供する。
type Service struct {
	sessionRepo     repository.SessionRepository
	participantRepo repository.ParticipantRepository
	sanitizer       security.InputSanitizerService
	revalidator     cache.Revalidator
}

// NewService はServiceを生成する。
func NewService(
	sessionRepo repository.SessionRepository,
	participantRepo repository.ParticipantRepository,
	sanitizer security.InputSanitizerService,
	revalidator cache.Revalidator,
) *Service {
	return &Service{
		sessionRepo:     sessionRepo,
		participantRepo: participantRepo,
		sanitizer:       sanitizer,
		revalidator:     revalidator,
	}
}

// CreateParams はセッション作成・更新時の入力値。
type CreateParams struct {
	Title       string
	Sport       string
	Description string
	Location    string
	StartAt     time.Time
	EndAt       *time.Time
	Capacity    *int
	CoverURL    string
}

// Create は下書き状態のセッションを作成する。
func (s *Service) Create(ctx context.Context, host *model.User, params CreateParams) (*model.Session, error) {
	title := s.sanitizer.SanitizeName(params.Title)
	if title == "" {
		return nil, model.NewValidationError("タイトルを入力してください")
	}
	if params.Capacity != nil && *params.Capacity < 1 {
		return nil, model.NewValidationError("定員は1以上で指定してください")
	}

	now := time.Now()
	session := &model.Session{
		ID:          uuid.New().String(),
		HostID:      host.ID,
		HostSlug:    host.HostSlug,
		Title:       title,
		Sport:       s.sanitizer.SanitizeName(params.Sport),
		Description: s.sanitizer.SanitizeDescription(params.Description),
		Location:    s.sanitizer.SanitizeName(params.Location),
		StartAt:     params.StartAt,
		EndAt:       params.EndAt,
		Capacity:    params.Capacity,
		CoverURL:    params.CoverURL,
		Status:      model.SessionStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("session created",
		slog.String("session_id", session.ID),
		slog.String("host_id", host.ID),
	)
	return session, nil
}

// Get はホスト自身のセッションを取得する。他ホストのセッションはFORBIDDEN。
func (s *Service) Get(ctx context.Context, hostID, sessionID string) (*model.Session, error) {
	return s.findOwned(ctx, hostID, sessionID)
}

// List はホストのセッション一覧を作成日時降順で返す。
func (s *Service) List(ctx context.Context, hostID string) ([]*model.Session, error) {
	return s.sessionRepo.ListByHostID(ctx, hostID)
}

// Update はセッションの編集可能フィールドを更新する。
// completed/cancelledのセッションは編集できない。
func (s *Service) Update(ctx context.Context, hostID, sessionID string, params CreateParams) (*model.Session, error) {
	session, err := s.findOwned(ctx, hostID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionStatusCompleted || session.Status == model.SessionStatusCancelled {
		return nil, model.NewInvalidTransitionError(string(session.Status), string(session.Status))
	}

	title := s.sanitizer.SanitizeName(params.Title)
	if title == "" {
		return nil, model.NewValidationError("タイトルを入力してください")
	}
	if params.Capacity != nil && *params.Capacity < 1 {
		return nil, model.NewValidationError("定員は1以上で指定してください")
	}

	session.Title = title
	session.Sport = s.sanitizer.SanitizeName(params.Sport)
	session.Description = s.sanitizer.SanitizeDescription(params.Description)
	session.Location = s.sanitizer.SanitizeName(params.Location)
	session.StartAt = params.StartAt
	session.EndAt = params.EndAt
	session.Capacity = params.Capacity
	session.CoverURL = params.CoverURL
	session.UpdatedAt = time.Now()

	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	s.revalidate(ctx, session)
	return session, nil
}

// Publish は下書きセッションを公開する。公開コードを採番しopenに遷移させる。
// draft以外からの公開はINVALID_TRANSITION。
func (s *Service) Publish(ctx context.Context, hostID, sessionID string) (*model.Session, error) {
	session, err := s.findOwned(ctx, hostID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionStatusDraft {
		return nil, model.NewInvalidTransitionError(string(session.Status), string(model.SessionStatusOpen))
	}

	code, err := shortcode.NewPublicCode()
	if err != nil {
		return nil, fmt.Errorf("failed to mint public code: %w", err)
	}

	if err := s.sessionRepo.Publish(ctx, session.ID, code); err != nil {
		return nil, fmt.Errorf("failed to publish session: %w", err)
	}

	session.PublicCode = code
	session.Status = model.SessionStatusOpen
	slog.Info("session published",
		slog.String("session_id", session.ID),
		slog.String("public_code", code),
	)
	return session, nil
}

// Close は公開中のセッションの受付を終了する。open以外はINVALID_TRANSITION。
func (s *Service) Close(ctx context.Context, hostID, sessionID string) (*model.Session, error) {
	return s.transition(ctx, hostID, sessionID, model.SessionStatusOpen, model.SessionStatusClosed)
}

// Cancel はセッションを中止する。completed以外のどの状態からでも遷移できる。
func (s *Service) Cancel(ctx context.Context, hostID, sessionID string) (*model.Session, error) {
	session, err := s.findOwned(ctx, hostID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionStatusCompleted {
		return nil, model.NewInvalidTransitionError(string(session.Status), string(model.SessionStatusCancelled))
	}

	if err := s.sessionRepo.UpdateStatus(ctx, session.ID, model.SessionStatusCancelled); err != nil {
		return nil, fmt.Errorf("failed to cancel session: %w", err)
	}
	session.Status = model.SessionStatusCancelled
	s.revalidate(ctx, session)
	return session, nil
}

// ListParticipants はホスト向けに全状態の参加者一覧を返す。
func (s *Service) ListParticipants(ctx context.Context, hostID, sessionID string) ([]*model.Participant, error) {
	session, err := s.findOwned(ctx, hostID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.participantRepo.ListBySessionID(ctx, session.ID)
}

// GetPublic は公開コードで公開中のセッションを取得する。参加者向けの読み取りモデル。
func (s *Service) GetPublic(ctx context.Context, publicCode string) (*model.Session, int, error) {
	session, err := s.sessionRepo.FindOpenByPublicCode(ctx, publicCode)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, 0, model.NewSessionNotFoundError()
	}
	count, err := s.participantRepo.CountConfirmed(ctx, session.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return session, count, nil
}

// transition はfrom状態のセッションのみをto状態へ遷移させる。
func (s *Service) transition(ctx context.Context, hostID, sessionID string, from, to model.SessionStatus) (*model.Session, error) {
	session, err := s.findOwned(ctx, hostID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != from {
		return nil, model.NewInvalidTransitionError(string(session.Status), string(to))
	}

	if err := s.sessionRepo.UpdateStatus(ctx, session.ID, to); err != nil {
		return nil, fmt.Errorf("failed to update session status: %w", err)
	}
	session.Status = to
	s.revalidate(ctx, session)
	return session, nil
}

// findOwned はセッションを取得し、所有者チェックを行う。
func (s *Service) findOwned(ctx context.Context, hostID, sessionID string) (*model.Session, error) {
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
	return session, nil
}

// revalidate は公開済みセッションのページキャッシュを破棄する。
func (s *Service) revalidate(ctx context.Context, session *model.Session) {
	if session.PublicCode == "" {
		return
	}
	if err := s.revalidator.RevalidateSessionPage(ctx, session.HostSlug, session.PublicCode); err != nil {
		slog.Warn("failed to revalidate session page",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}
}
