package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/reserv/internal/identity"
	"github.com/hitoshi/reserv/internal/middleware"
	"github.com/hitoshi/reserv/internal/model"
	"github.com/hitoshi/reserv/internal/rsvp"
)

// RSVPServiceInterface はRSVPハンドラーが必要とするサービスインターフェース。
type RSVPServiceInterface interface {
	Join(ctx context.Context, publicCode string, params rsvp.JoinParams) (*model.Participant, error)
	Decline(ctx context.Context, publicCode string, params rsvp.JoinParams) (*model.Participant, error)
	Status(ctx context.Context, publicCode, displayName, phone string) (model.ParticipantStatus, error)
	ListConfirmed(ctx context.Context, publicCode string) ([]*model.Participant, error)
}

// PublicSessionReader は公開セッションページの読み取りインターフェース。
type PublicSessionReader interface {
	GetPublic(ctx context.Context, publicCode string) (*model.Session, int, error)
}

// ProofUploader は支払い証明アップロードのインターフェース。
// ストレージ未設定の場合はnilのままにできる。
type ProofUploader interface {
	UploadProof(ctx context.Context, publicCode, participantID, contentType string, body io.Reader) (*model.PaymentProof, error)
}

// RSVPHandlerConfig はRSVPハンドラーの設定。
type RSVPHandlerConfig struct {
	// GuestKeyPersist がtrueの場合、同一デバイスからの再訪で
	// ゲストキーを再利用する。falseの場合は参加のたびに新規発行する。
	GuestKeyPersist bool
	Cookie          CookieConfig
	// MaxUploadSize は支払い証明アップロードの最大サイズ（バイト）。
	MaxUploadSize int64
}

// RSVPHandler は公開RSVP APIのHTTPハンドラー。
type RSVPHandler struct {
	service       RSVPServiceInterface
	sessionReader PublicSessionReader
	uploader      ProofUploader
	authService   AuthServiceInterface
	config        RSVPHandlerConfig
}

// NewRSVPHandler はRSVPHandlerを生成する。
func NewRSVPHandler(
	service RSVPServiceInterface,
	sessionReader PublicSessionReader,
	uploader ProofUploader,
	authService AuthServiceInterface,
	config RSVPHandlerConfig,
) *RSVPHandler {
	if config.MaxUploadSize == 0 {
		config.MaxUploadSize = 10 << 20 // 10MiB
	}
	return &RSVPHandler{
		service:       service,
		sessionReader: sessionReader,
		uploader:      uploader,
		authService:   authService,
		config:        config,
	}
}

// joinRequest は参加/不参加リクエストのボディ。
type joinRequest struct {
	DisplayName string `json:"displayName"`
	Phone       string `json:"phone"`
}

// participantResponse は参加者のレスポンス表現。
type participantResponse struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toParticipantResponse(p *model.Participant) participantResponse {
	return participantResponse{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
	}
}

// publicSessionResponse は公開セッションページのレスポンス表現。
type publicSessionResponse struct {
	Title          string     `json:"title"`
	Sport          string     `json:"sport"`
	Description    string     `json:"description"`
	Location       string     `json:"location"`
	StartAt        time.Time  `json:"startAt"`
	EndAt          *time.Time `json:"endAt,omitempty"`
	Capacity       *int       `json:"capacity,omitempty"`
	ConfirmedCount int        `json:"confirmedCount"`
	Status         string     `json:"status"`
	PublicCode     string     `json:"publicCode"`
	CoverURL       string     `json:"coverUrl,omitempty"`
	HostSlug       string     `json:"hostSlug"`
}

// GetSession は公開セッションページを返す。
// GET /api/sessions/{code}
func (h *RSVPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	session, confirmedCount, err := h.sessionReader.GetPublic(r.Context(), code)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, publicSessionResponse{
		Title:          session.Title,
		Sport:          session.Sport,
		Description:    session.Description,
		Location:       session.Location,
		StartAt:        session.StartAt,
		EndAt:          session.EndAt,
		Capacity:       session.Capacity,
		ConfirmedCount: confirmedCount,
		Status:         string(session.Status),
		PublicCode:     session.PublicCode,
		CoverURL:       session.CoverURL,
		HostSlug:       session.HostSlug,
	})
}

// Join はセッションへの参加を受け付ける。
// POST /api/sessions/{code}/join
func (h *RSVPHandler) Join(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	manager, email, userID := h.resolveIdentity(w, r)

	params := rsvp.JoinParams{
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
		Email:       email,
	}
	if email == "" {
		// ゲスト参加: 設定に応じてゲストキーを再利用または新規発行する。
		if h.config.GuestKeyPersist {
			params.GuestKey = manager.GetOrCreateGuestKey()
		} else {
			// 新規発行はアイデンティティ遷移。前のゲストのスコープと
			// RSVPキャッシュを残したままキーだけ替えると漏えいする
			manager.ResetScope()
			params.GuestKey = manager.GenerateNewGuestKey()
		}
	}

	participant, err := h.service.Join(r.Context(), code, params)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	h.rememberIdentity(manager, code, participant, email, userID, req.Phone)

	middleware.WriteSuccessResponse(w, http.StatusOK, toParticipantResponse(participant))
}

// Decline はセッションへの不参加を受け付ける。定員チェックは行わない。
// POST /api/sessions/{code}/decline
func (h *RSVPHandler) Decline(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	manager, email, userID := h.resolveIdentity(w, r)

	params := rsvp.JoinParams{
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
		Email:       email,
	}
	if email == "" && h.config.GuestKeyPersist {
		params.GuestKey = manager.GetOrCreateGuestKey()
	}

	participant, err := h.service.Decline(r.Context(), code, params)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	h.rememberIdentity(manager, code, participant, email, userID, req.Phone)

	middleware.WriteSuccessResponse(w, http.StatusOK, toParticipantResponse(participant))
}

// Status は指定した表示名・電話番号の参加状態を返す。
// 参加者レコードがない場合はstatus空文字の成功レスポンス。
// GET /api/sessions/{code}/rsvp?displayName=xxx&phone=yyy
func (h *RSVPHandler) Status(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	displayName := r.URL.Query().Get("displayName")
	phone := r.URL.Query().Get("phone")

	status, err := h.service.Status(r.Context(), code, displayName, phone)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, map[string]string{
		"status": string(status),
	})
}

// Participants は参加確定者の一覧を登録順で返す。
// GET /api/sessions/{code}/participants
func (h *RSVPHandler) Participants(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	participants, err := h.service.ListConfirmed(r.Context(), code)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	responses := make([]participantResponse, 0, len(participants))
	for _, p := range participants {
		responses = append(responses, toParticipantResponse(p))
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, responses)
}

// UploadPayment は支払い証明画像のアップロードを受け付ける。
// POST /api/sessions/{code}/payments
// multipart/form-data: participantId フィールド + proof ファイル
func (h *RSVPHandler) UploadPayment(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		middleware.WriteAPIError(w, model.NewValidationError("支払い証明アップロードは利用できません"))
		return
	}

	code := chi.URLParam(r, "code")

	if err := r.ParseMultipartForm(h.config.MaxUploadSize); err != nil {
		middleware.WriteAPIError(w, model.NewValidationError("マルチパートフォームの解析に失敗しました"))
		return
	}

	participantID := r.FormValue("participantId")
	if participantID == "" {
		middleware.WriteAPIError(w, model.NewValidationError("participantIdを指定してください"))
		return
	}

	file, header, err := r.FormFile("proof")
	if err != nil {
		middleware.WriteAPIError(w, model.NewValidationError("proofファイルを添付してください"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")

	proof, err := h.uploader.UploadProof(r.Context(), code, participantID, contentType, file)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusCreated, toProofResponse(proof))
}

// resolveIdentity はリクエストのアイデンティティを解決する。
// 有効なログインセッションがあれば認証済みユーザーのメールアドレスを返し、
// なければゲストとして扱う。
func (h *RSVPHandler) resolveIdentity(w http.ResponseWriter, r *http.Request) (*identity.Manager, string, string) {
	manager := identity.NewManager(NewCookieStore(w, r, h.config.Cookie))

	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return manager, "", ""
	}

	user, err := h.authService.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil || user == nil {
		// 期限切れセッションはゲスト扱いにフォールバック
		return manager, "", ""
	}
	return manager, user.Email, user.ID
}

// rememberIdentity はRSVP成功後のデバイスローカル状態を更新する。
// 認証済みならauthスコープ、ゲストならguestスコープと入力値キャッシュを保存する。
func (h *RSVPHandler) rememberIdentity(manager *identity.Manager, publicCode string, p *model.Participant, email, userID, phone string) {
	if email != "" {
		manager.SetAuthScope(userID)
		return
	}

	profileID := ""
	if p.ProfileID != nil {
		profileID = *p.ProfileID
	}
	manager.SetGuestScope(profileID, p.SessionID, p.DisplayName)
	manager.SetCachedRSVP(publicCode, &identity.RSVPPayload{
		Name:  p.DisplayName,
		Phone: phone,
	})
	slog.Debug("guest identity remembered",
		slog.String("public_code", publicCode),
		slog.String("profile_id", profileID),
	)
}
