package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/reserv/internal/middleware"
	"github.com/hitoshi/reserv/internal/model"
	"github.com/hitoshi/reserv/internal/session"
)

// SessionServiceInterface はセッションハンドラーが必要とするサービスインターフェース。
type SessionServiceInterface interface {
	Create(ctx context.Context, host *model.User, params session.CreateParams) (*model.Session, error)
	Get(ctx context.Context, hostID, sessionID string) (*model.Session, error)
	List(ctx context.Context, hostID string) ([]*model.Session, error)
	Update(ctx context.Context, hostID, sessionID string, params session.CreateParams) (*model.Session, error)
	Publish(ctx context.Context, hostID, sessionID string) (*model.Session, error)
	Close(ctx context.Context, hostID, sessionID string) (*model.Session, error)
	Cancel(ctx context.Context, hostID, sessionID string) (*model.Session, error)
	ListParticipants(ctx context.Context, hostID, sessionID string) ([]*model.Participant, error)
}

// UserFinder はホストユーザーの取得インターフェース。
// repository.UserRepositoryの部分集合。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// SessionHandler はホスト向けセッション管理APIのHTTPハンドラー。
type SessionHandler struct {
	service    SessionServiceInterface
	userFinder UserFinder
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionServiceInterface, userFinder UserFinder) *SessionHandler {
	return &SessionHandler{
		service:    service,
		userFinder: userFinder,
	}
}

// sessionRequest はセッション作成・更新リクエストのボディ。
type sessionRequest struct {
	Title       string     `json:"title"`
	Sport       string     `json:"sport"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	StartAt     time.Time  `json:"startAt"`
	EndAt       *time.Time `json:"endAt"`
	Capacity    *int       `json:"capacity"`
	CoverURL    string     `json:"coverUrl"`
}

func (req *sessionRequest) toParams() session.CreateParams {
	return session.CreateParams{
		Title:       req.Title,
		Sport:       req.Sport,
		Description: req.Description,
		Location:    req.Location,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		Capacity:    req.Capacity,
		CoverURL:    req.CoverURL,
	}
}

// sessionResponse はホスト向けセッションのレスポンス表現。
type sessionResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Sport       string     `json:"sport"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	StartAt     time.Time  `json:"startAt"`
	EndAt       *time.Time `json:"endAt,omitempty"`
	Capacity    *int       `json:"capacity,omitempty"`
	CoverURL    string     `json:"coverUrl,omitempty"`
	PublicCode  string     `json:"publicCode,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func toSessionResponse(s *model.Session) sessionResponse {
	return sessionResponse{
		ID:          s.ID,
		Title:       s.Title,
		Sport:       s.Sport,
		Description: s.Description,
		Location:    s.Location,
		StartAt:     s.StartAt,
		EndAt:       s.EndAt,
		Capacity:    s.Capacity,
		CoverURL:    s.CoverURL,
		PublicCode:  s.PublicCode,
		Status:      string(s.Status),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// Create はセッションを下書き状態で作成する。
// POST /api/host/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}

	host, err := h.userFinder.FindByID(r.Context(), userID)
	if err != nil || host == nil {
		middleware.WriteAPIError(w, model.NewUserNotFoundError())
		return
	}

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	created, err := h.service.Create(r.Context(), host, req.toParams())
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusCreated, toSessionResponse(created))
}

// List はホストのセッション一覧を返す。
// GET /api/host/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}

	sessions, err := h.service.List(r.Context(), userID)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	responses := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		responses = append(responses, toSessionResponse(s))
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, responses)
}

// Get はホスト自身のセッションを返す。
// GET /api/host/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.respondWithSession(w, r, h.service.Get)
}

// Update はセッション情報を更新する。
// PATCH /api/host/sessions/{id}
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}
	sessionID := chi.URLParam(r, "id")

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	updated, err := h.service.Update(r.Context(), userID, sessionID, req.toParams())
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, toSessionResponse(updated))
}

// Publish はセッションを公開し、公開コードを採番する。
// POST /api/host/sessions/{id}/publish
func (h *SessionHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.respondWithSession(w, r, h.service.Publish)
}

// Close はセッションの受付を終了する。
// POST /api/host/sessions/{id}/close
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.respondWithSession(w, r, h.service.Close)
}

// Cancel はセッションを中止する。
// POST /api/host/sessions/{id}/cancel
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.respondWithSession(w, r, h.service.Cancel)
}

// Participants はセッションの全参加者（全ステータス）を返す。
// GET /api/host/sessions/{id}/participants
func (h *SessionHandler) Participants(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}
	sessionID := chi.URLParam(r, "id")

	participants, err := h.service.ListParticipants(r.Context(), userID, sessionID)
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

// respondWithSession はユーザーID+セッションIDを取る操作の共通パターン。
func (h *SessionHandler) respondWithSession(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, hostID, sessionID string) (*model.Session, error),
) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}
	sessionID := chi.URLParam(r, "id")

	result, err := op(r.Context(), userID, sessionID)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, toSessionResponse(result))
}
