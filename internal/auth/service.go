// Package auth はOAuth認証フロー、ログインセッション管理、
// コールバック後のリダイレクト先解決を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/reserv/internal/model"
	"github.com/hitoshi/reserv/internal/repository"
	"github.com/hitoshi/reserv/internal/shortcode"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Picture        string
	Provider       string // "google", "github" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // ログインセッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth           OAuthProvider
	userRepo        repository.UserRepository
	identRepo       repository.IdentityRepository
	authSessionRepo repository.AuthSessionRepository
	config          ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	authSessionRepo repository.AuthSessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:           oauth,
		userRepo:        userRepo,
		identRepo:       identRepo,
		authSessionRepo: authSessionRepo,
		config:          config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、ログインセッションを発行する。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同時に自動作成し、
// 名前からホストスラグを発行する。登録済みユーザーの場合は
// identitiesテーブルで既存ユーザーを特定しログインする。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.AuthSession, error) {
	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. identitiesテーブルで既存ユーザーを検索
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var userID string

	if identity != nil {
		// 3a. 既存ユーザー: identityからユーザーIDを取得
		userID = identity.UserID
		slog.Info("existing user logged in",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		// 3b. 新規ユーザー: usersレコードとidentitiesレコードを同時に作成
		hostSlug, err := s.mintHostSlug(ctx, userInfo.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to mint host slug: %w", err)
		}

		newUserID := uuid.New().String()
		now := time.Now()

		newUser := &model.User{
			ID:        newUserID,
			Email:     userInfo.Email,
			Name:      userInfo.Name,
			HostSlug:  hostSlug,
			CreatedAt: now,
			UpdatedAt: now,
		}

		newIdentity := &model.Identity{
			ID:             uuid.New().String(),
			UserID:         newUserID,
			Provider:       userInfo.Provider,
			ProviderUserID: userInfo.ProviderUserID,
			CreatedAt:      now,
		}

		if err := s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
			return nil, fmt.Errorf("failed to create user and identity: %w", err)
		}

		userID = newUserID
		slog.Info("new host registered",
			slog.String("user_id", userID),
			slog.String("email", userInfo.Email),
			slog.String("host_slug", hostSlug),
			slog.String("provider", userInfo.Provider),
		)
	}

	// 4. ログインセッションを発行
	session, err := s.createAuthSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth session: %w", err)
	}

	return session, nil
}

// SignOut はログインセッションを破棄する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.authSessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete auth session: %w", err)
	}

	slog.Info("user signed out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はログインセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.authSessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find auth session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

// mintHostSlug はユーザー名からホストスラグを発行する。
// 既存スラグと衝突する場合はランダムサフィックス付きで再試行する。
func (s *Service) mintHostSlug(ctx context.Context, name string) (string, error) {
	base := shortcode.NewHostSlug(name)

	exists, err := s.userRepo.HostSlugExists(ctx, base)
	if err != nil {
		return "", fmt.Errorf("failed to check host slug: %w", err)
	}
	if !exists {
		return base, nil
	}

	// サフィックス4文字で62^4通り。数回の再試行で実用上必ず空きが見つかる。
	for i := 0; i < 5; i++ {
		candidate, err := shortcode.NewHostSlugWithSuffix(name)
		if err != nil {
			return "", err
		}
		exists, err := s.userRepo.HostSlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check host slug: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not mint unique host slug for %q", name)
}

// createAuthSession はログインセッションを作成し永続化する。
func (s *Service) createAuthSession(ctx context.Context, userID string) (*model.AuthSession, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.AuthSession{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.authSessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save auth session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
