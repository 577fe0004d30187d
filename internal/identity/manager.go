package identity

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hitoshi/reserv/internal/model"
)

// Storeで使用するキー
const (
	guestKeyKey   = "reserv_guest_key"
	scopeKey      = "reserv_current_identity"
	rsvpKeyPrefix = "reserv_rsvp_"
)

// ScopeType はアイデンティティスコープの種別。
type ScopeType string

const (
	// ScopeTypeAuth は認証済みユーザーのスコープ。IDはユーザーID。
	ScopeTypeAuth ScopeType = "auth"
	// ScopeTypeGuest はゲストのスコープ。IDはProfileID。
	ScopeTypeGuest ScopeType = "guest"
)

// Scope は「このデバイスは今誰として振る舞っているか」を表す。
// 参加者レコードとは独立した、デバイスローカルの状態。
type Scope struct {
	Type      ScopeType `json:"type"`
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId,omitempty"` // ゲストのみ
	GuestName string    `json:"guestName,omitempty"` // ゲストのみ
}

// RSVPPayload はセッションごとにキャッシュするRSVP入力値。
type RSVPPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Manager はStore上でゲストキーとスコープのライフサイクルを管理する。
type Manager struct {
	store Store
}

// NewManager はManagerを生成する。
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// GetOrCreateGuestKey はデバイスのゲストキーを返す。
// 未設定の場合は新しいキーを発行して保存する。
// 明示的にクリアされるまで、同じデバイスでは同じキーを返し続ける。
func (m *Manager) GetOrCreateGuestKey() string {
	if existing, ok := m.store.Get(guestKeyKey); ok && existing != "" {
		return existing
	}
	return m.GenerateNewGuestKey()
}

// GenerateNewGuestKey は無条件に新しいゲストキーを発行して保存する。
// 共有デバイスで前のゲストのキーを引き継いでしまう置き換えバグを防ぐため、
// 新規ゲスト参加の開始時にはこちらを使う。
func (m *Manager) GenerateNewGuestKey() string {
	key := uuid.NewString()
	m.store.Set(guestKeyKey, key)
	return key
}

// GuestKey は現在のゲストキーを返す。未設定の場合は発行しない。
func (m *Manager) GuestKey() (string, bool) {
	v, ok := m.store.Get(guestKeyKey)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Scope は現在のアイデンティティスコープを返す。
// 未設定または壊れたJSONの場合はfalseを返す。
func (m *Manager) Scope() (*Scope, bool) {
	raw, ok := m.store.Get(scopeKey)
	if !ok || raw == "" {
		return nil, false
	}
	var scope Scope
	if err := json.Unmarshal([]byte(raw), &scope); err != nil {
		return nil, false
	}
	return &scope, true
}

// SetAuthScope は認証済みユーザーのスコープを設定する。
func (m *Manager) SetAuthScope(userID string) {
	m.setScope(&Scope{Type: ScopeTypeAuth, ID: userID})
}

// SetGuestScope はゲストのスコープを設定する。
func (m *Manager) SetGuestScope(profileID, sessionID, guestName string) {
	m.setScope(&Scope{
		Type:      ScopeTypeGuest,
		ID:        profileID,
		SessionID: sessionID,
		GuestName: guestName,
	})
}

func (m *Manager) setScope(scope *Scope) {
	raw, err := json.Marshal(scope)
	if err != nil {
		return
	}
	m.store.Set(scopeKey, string(raw))
}

// CachedRSVP はセッション公開コードに紐づくRSVP入力値キャッシュを返す。
func (m *Manager) CachedRSVP(publicCode string) (*RSVPPayload, bool) {
	raw, ok := m.store.Get(rsvpKeyPrefix + publicCode)
	if !ok || raw == "" {
		return nil, false
	}
	var payload RSVPPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, false
	}
	return &payload, true
}

// SetCachedRSVP はセッション公開コードに紐づくRSVP入力値を保存する。
func (m *Manager) SetCachedRSVP(publicCode string, payload *RSVPPayload) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	m.store.Set(rsvpKeyPrefix+publicCode, string(raw))
}

// ResetScope はアイデンティティ遷移時のハードリセットを行う。
// スコープとゲストキーを消去し、RSVPキャッシュは公開コードを指定した場合は
// そのセッションのみ、省略した場合は全セッション分を消去する。
// サインイン、サインアウト、新規ゲスト参加のすべてで必ず呼ぶこと。
// 呼び忘れは前のアイデンティティが次のユーザーに漏れる正しさのバグになる。
func (m *Manager) ResetScope(publicCodes ...string) {
	m.store.Delete(scopeKey)
	m.store.Delete(guestKeyKey)

	if len(publicCodes) == 0 {
		DeleteByPrefix(m.store, rsvpKeyPrefix)
		return
	}
	for _, code := range publicCodes {
		m.store.Delete(rsvpKeyPrefix + code)
	}
}

// MatchesParticipant は参加者レコードが現在のスコープの本人かを判定する。
// 認証スコープはメールアドレスの一致、ゲストスコープはProfileIDの一致で判定する。
// 純粋関数であり、I/Oを行わない。
func MatchesParticipant(p *model.Participant, scope *Scope, currentUserEmail string) bool {
	if p == nil || scope == nil {
		return false
	}

	switch scope.Type {
	case ScopeTypeAuth:
		if currentUserEmail == "" || p.ContactEmail == nil {
			return false
		}
		return *p.ContactEmail == currentUserEmail
	case ScopeTypeGuest:
		if p.ProfileID == nil {
			return false
		}
		return *p.ProfileID == scope.ID
	default:
		return false
	}
}
