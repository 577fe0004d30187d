// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hitoshi/reserv/internal/auth"
	"github.com/hitoshi/reserv/internal/identity"
	"github.com/hitoshi/reserv/internal/metrics"
	"github.com/hitoshi/reserv/internal/middleware"
	"github.com/hitoshi/reserv/internal/model"
)

const (
	oauthStateCookie       = "reserv_oauth_state"
	postAuthRedirectCookie = "reserv_post_auth_redirect"
)

// コールバック処理の結果。メトリクスのoutcomeラベルに使う。
const (
	callbackOutcomeSuccess        = "success"
	callbackOutcomeNoCode         = "no_code"
	callbackOutcomeExchangeFailed = "exchange_failed"
	callbackOutcomeNoSession      = "no_session"
	callbackOutcomeException      = "exception"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.AuthSession, error)
	SignOut(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOAuth認証フローのHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	config    AuthHandlerConfig
	collector metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, collector metrics.MetricsCollector) *AuthHandler {
	return &AuthHandler{
		service:   service,
		config:    config,
		collector: collector,
	}
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login?redirectTo=/path
// redirectToが指定されている場合はコールバック後の遷移先候補として
// Cookieに保存する（検証はコールバック側で行う）。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 認証後の遷移先候補を保存。ここでは検証せず、
	// コールバック側の単一の妥当性述語に委ねる。
	if redirectTo := r.URL.Query().Get("redirectTo"); redirectTo != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     postAuthRedirectCookie,
			Value:    redirectTo,
			Path:     "/",
			MaxAge:   600,
			HttpOnly: true,
			Secure:   h.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}

	url := h.service.GetLoginURL(state)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/callback?code=xxx&state=yyy
//
// どの結果でも必ずリダイレクトで応答する（エラーページは描画しない）。
// 遷移先は候補（redirectToクエリ > nextクエリ > Cookie > Referer）を
// 1パスで検証した最初の合格値、全滅時は"/"。
// 失敗時は遷移先に?error=マーカーを付与する。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	target := auth.ResolveRedirect([]string{
		r.URL.Query().Get("redirectTo"),
		r.URL.Query().Get("next"),
		cookieValue(r, postAuthRedirectCookie),
		r.Header.Get("Referer"),
	}, h.config.BaseURL)

	// 使用済みの一時Cookieを削除
	h.clearTransientCookie(w, oauthStateCookie)
	h.clearTransientCookie(w, postAuthRedirectCookie)

	// panicしても必ずリダイレクトで応答する
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in oauth callback", slog.Any("panic", rec))
			h.recordOutcome(callbackOutcomeException)
			http.Redirect(w, r, auth.AppendErrorMarker(target, "exception"), http.StatusTemporaryRedirect)
		}
	}()

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	if stateCookie := cookieValue(r, oauthStateCookie); stateCookie == "" || stateCookie != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		h.recordOutcome(callbackOutcomeException)
		http.Redirect(w, r, auth.AppendErrorMarker(target, "exception"), http.StatusTemporaryRedirect)
		return
	}

	// 2. 認可コードの取得。欠落時はトークン交換を呼ばずに短絡する。
	code := r.URL.Query().Get("code")
	if code == "" {
		slog.Warn("oauth callback missing authorization code")
		h.recordOutcome(callbackOutcomeNoCode)
		http.Redirect(w, r, auth.AppendErrorMarker(target, "no_code"), http.StatusTemporaryRedirect)
		return
	}

	// 3. トークン交換とログインセッション発行
	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth code exchange failed", slog.String("error", err.Error()))
		h.recordOutcome(callbackOutcomeExchangeFailed)
		http.Redirect(w, r, auth.AppendErrorMarker(target, "auth_failed"), http.StatusTemporaryRedirect)
		return
	}
	if session == nil {
		slog.Error("oauth callback returned no session")
		h.recordOutcome(callbackOutcomeNoSession)
		http.Redirect(w, r, auth.AppendErrorMarker(target, "no_session"), http.StatusTemporaryRedirect)
		return
	}

	// 4. アイデンティティ遷移: 前のゲストのデバイスローカル状態を消去する
	h.resetDeviceIdentity(w, r)

	// 5. セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	h.recordOutcome(callbackOutcomeSuccess)
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// SignOut はログインセッションを破棄する。
// POST /auth/signout
// 遷移先は同一オリジンかつ非/authのRefererがあればそこ、なければ"/"。
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if signOutErr := h.service.SignOut(r.Context(), cookie.Value); signOutErr != nil {
			slog.Error("failed to sign out", slog.String("error", signOutErr.Error()))
			// 破棄に失敗してもCookieはクリアする
		}
	}

	// アイデンティティ遷移: ゲストキー・スコープ・RSVPキャッシュを消去する。
	// 共有デバイスで次のユーザーに前のアイデンティティが漏れるのを防ぐ
	h.resetDeviceIdentity(w, r)

	// セッションCookieをクリア
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	target := auth.ResolveRedirect([]string{r.Header.Get("Referer")}, h.config.BaseURL)
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil {
		slog.Warn("failed to get current user", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, map[string]string{
		"id":       user.ID,
		"email":    user.Email,
		"name":     user.Name,
		"hostSlug": user.HostSlug,
	})
}

// resetDeviceIdentity はデバイスローカルのアイデンティティ状態をハードリセットする。
// サインイン・サインアウトはアイデンティティ遷移であり、必ず呼ぶこと。
func (h *AuthHandler) resetDeviceIdentity(w http.ResponseWriter, r *http.Request) {
	store := NewCookieStore(w, r, CookieConfig{
		Secure: h.config.CookieSecure,
		Domain: h.config.CookieDomain,
	})
	identity.NewManager(store).ResetScope()
}

// recordOutcome はコールバック結果をメトリクスに記録する。
func (h *AuthHandler) recordOutcome(outcome string) {
	if h.collector != nil {
		h.collector.RecordAuthCallback(outcome)
	}
}

// clearTransientCookie はOAuthフロー用の一時Cookieを失効させる。
func (h *AuthHandler) clearTransientCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// cookieValue はCookieの値を返す。存在しない場合は空文字。
func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
