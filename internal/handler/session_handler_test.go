package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/reserv/internal/middleware"
	"github.com/hitoshi/reserv/internal/model"
	"github.com/hitoshi/reserv/internal/session"
)

// --- モック定義 ---

type mockSessionService struct {
	createFn           func(ctx context.Context, host *model.User, params session.CreateParams) (*model.Session, error)
	getFn              func(ctx context.Context, hostID, sessionID string) (*model.Session, error)
	listFn             func(ctx context.Context, hostID string) ([]*model.Session, error)
	updateFn           func(ctx context.Context, hostID, sessionID string, params session.CreateParams) (*model.Session, error)
	publishFn          func(ctx context.Context, hostID, sessionID string) (*model.Session, error)
	closeFn            func(ctx context.Context, hostID, sessionID string) (*model.Session, error)
	cancelFn           func(ctx context.Context, hostID, sessionID string) (*model.Session, error)
	listParticipantsFn func(ctx context.Context, hostID, sessionID string) ([]*model.Participant, error)
}

func (m *mockSessionService) Create(ctx context.Context, host *model.User, params session.CreateParams) (*model.Session, error) {
	if m.createFn != nil {
		return m.createFn(ctx, host, params)
	}
	return nil, nil
}

func (m *mockSessionService) Get(ctx context.Context, hostID, sessionID string) (*model.Session, error) {
	if m.getFn != nil {
		return m.getFn(ctx, hostID, sessionID)
	}
	return nil, model.NewSessionNotFoundError()
}

func (m *mockSessionService) List(ctx context.Context, hostID string) ([]*model.Session, error) {
	if m.listFn != nil {
		return m.listFn(ctx, hostID)
	}
	return nil, nil
}

func (m *mockSessionService) Update(ctx context.Context, hostID, sessionID string, params session.CreateParams) (*model.Session, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, hostID, sessionID, params)
	}
	return nil, nil
}

func (m *mockSessionService) Publish(ctx context.Context, hostID, sessionID string) (*model.Session, error) {
	if m.publishFn != nil {
		return m.publishFn(ctx, hostID, sessionID)
	}
	return nil, nil
}

func (m *mockSessionService) Close(ctx context.Context, hostID, sessionID string) (*model.Session, error) {
	if m.closeFn != nil {
		return m.closeFn(ctx, hostID, sessionID)
	}
	return nil, nil
}

func (m *mockSessionService) Cancel(ctx context.Context, hostID, sessionID string) (*model.Session, error) {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, hostID, sessionID)
	}
	return nil, nil
}

func (m *mockSessionService) ListParticipants(ctx context.Context, hostID, sessionID string) ([]*model.Participant, error) {
	if m.listParticipantsFn != nil {
		return m.listParticipantsFn(ctx, hostID, sessionID)
	}
	return nil, nil
}

var _ SessionServiceInterface = (*mockSessionService)(nil)

type mockUserFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return &model.User{ID: id, Email: "host@example.com", Name: "Host", HostSlug: "host"}, nil
}

var _ UserFinder = (*mockUserFinder)(nil)

// hostRequest は認証済みコンテキストとchi URLパラメータ{id}付きのリクエストを組み立てる。
func hostRequest(method, path, userID, sessionID, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	ctx := middleware.ContextWithUserID(req.Context(), userID)
	if sessionID != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", sessionID)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

// --- テスト ---

func TestSessionHandler_Create_ReturnsDraft(t *testing.T) {
	service := &mockSessionService{
		createFn: func(ctx context.Context, host *model.User, params session.CreateParams) (*model.Session, error) {
			if host.ID != "user-1" {
				t.Errorf("host.ID = %q, want %q", host.ID, "user-1")
			}
			if params.Title != "朝フットサル" {
				t.Errorf("title = %q, want %q", params.Title, "朝フットサル")
			}
			return &model.Session{
				ID:        "session-1",
				HostID:    host.ID,
				Title:     params.Title,
				Status:    model.SessionStatusDraft,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}, nil
		},
	}
	h := NewSessionHandler(service, &mockUserFinder{})

	req := hostRequest(http.MethodPost, "/api/host/sessions", "user-1", "",
		`{"title":"朝フットサル","sport":"futsal","startAt":"2026-09-01T07:00:00Z"}`)
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	data := decodeSuccessBody(t, w)
	if data["status"] != string(model.SessionStatusDraft) {
		t.Errorf("status = %v, want %q", data["status"], model.SessionStatusDraft)
	}
}

func TestSessionHandler_Create_NoAuthContext_Returns401(t *testing.T) {
	h := NewSessionHandler(&mockSessionService{}, &mockUserFinder{})

	req := httptest.NewRequest(http.MethodPost, "/api/host/sessions", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestSessionHandler_Create_ValidationError_Returns400(t *testing.T) {
	service := &mockSessionService{
		createFn: func(ctx context.Context, host *model.User, params session.CreateParams) (*model.Session, error) {
			return nil, model.NewValidationError("タイトルを入力してください")
		},
	}
	h := NewSessionHandler(service, &mockUserFinder{})

	req := hostRequest(http.MethodPost, "/api/host/sessions", "user-1", "", `{"title":""}`)
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSessionHandler_Get_OtherHostsSession_Returns403(t *testing.T) {
	service := &mockSessionService{
		getFn: func(ctx context.Context, hostID, sessionID string) (*model.Session, error) {
			return nil, model.NewForbiddenError()
		},
	}
	h := NewSessionHandler(service, &mockUserFinder{})

	req := hostRequest(http.MethodGet, "/api/host/sessions/session-2", "user-1", "session-2", "")
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestSessionHandler_List_ReturnsSessions(t *testing.T) {
	service := &mockSessionService{
		listFn: func(ctx context.Context, hostID string) ([]*model.Session, error) {
			return []*model.Session{
				{ID: "session-1", Status: model.SessionStatusOpen},
				{ID: "session-2", Status: model.SessionStatusDraft},
			}, nil
		},
	}
	h := NewSessionHandler(service, &mockUserFinder{})

	req := hostRequest(http.MethodGet, "/api/host/sessions", "user-1", "", "")
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		OK   bool              `json:"ok"`
		Data []sessionResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Data) != 2 {
		t.Errorf("len(data) = %d, want 2", len(body.Data))
	}
}

func TestSessionHandler_Publish_ReturnsPublicCode(t *testing.T) {
	service := &mockSessionService{
		publishFn: func(ctx context.Context, hostID, sessionID string) (*model.Session, error) {
			return &model.Session{
				ID:         sessionID,
				PublicCode: "Xy12Ab",
				Status:     model.SessionStatusOpen,
			}, nil
		},
	}
	h := NewSessionHandler(service, &mockUserFinder{})

	req := hostRequest(http.MethodPost, "/api/host/sessions/session-1/publish", "user-1", "session-1", "")
	w := httptest.NewRecorder()

	h.Publish(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	data := decodeSuccessBody(t, w)
	if data["publicCode"] != "Xy12Ab" {
		t.Errorf("publicCode = %v, want %q", data["publicCode"], "Xy12Ab")
	}
}

func TestSessionHandler_Publish_NotDraft_Returns409(t *testing.T) {
	service := &mockSessionService{
		publishFn: func(ctx context.Context, hostID, sessionID string) (*model.Session, error) {
			return nil, model.NewInvalidTransitionError("open", "open")
		},
	}
	h := NewSessionHandler(service, &mockUserFinder{})

	req := hostRequest(http.MethodPost, "/api/host/sessions/session-1/publish", "user-1", "session-1", "")
	w := httptest.NewRecorder()

	h.Publish(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestSessionHandler_Participants_ReturnsAllStatuses(t *testing.T) {
	service := &mockSessionService{
		listParticipantsFn: func(ctx context.Context, hostID, sessionID string) ([]*model.Participant, error) {
			return []*model.Participant{
				{ID: "p1", DisplayName: "参加者A", Status: model.ParticipantStatusConfirmed},
				{ID: "p2", DisplayName: "参加者B", Status: model.ParticipantStatusCancelled},
			}, nil
		},
	}
	h := NewSessionHandler(service, &mockUserFinder{})

	req := hostRequest(http.MethodGet, "/api/host/sessions/session-1/participants", "user-1", "session-1", "")
	w := httptest.NewRecorder()

	h.Participants(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		OK   bool                  `json:"ok"`
		Data []participantResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Data) != 2 {
		t.Errorf("len(data) = %d, want 2", len(body.Data))
	}
}
