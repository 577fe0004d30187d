package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/reserv/internal/identity"
)

// CookieConfig はデバイスローカル状態Cookieの属性設定。
type CookieConfig struct {
	Secure bool
	Domain string
	// MaxAge はゲストキー等の保持期間（秒）。0の場合はデフォルト1年。
	MaxAge int
}

const defaultStoreCookieMaxAge = 365 * 24 * 60 * 60

// cookieStore はHTTP CookieをバックエンドとするStore実装。
// ゲストキーやアイデンティティスコープなどのデバイスローカル状態を
// ブラウザCookieに載せる。1リクエストのスコープで生成し、
// 書き込みは即座にSet-Cookieヘッダーへ反映する。
//
// 同一リクエスト内での読み戻しに対応するため、書き込みは
// オーバーレイマップにも記録する（Cookieヘッダーは後から書き換えられない）。
type cookieStore struct {
	w       http.ResponseWriter
	r       *http.Request
	config  CookieConfig
	overlay map[string]*string // nilは削除済みを表す
}

var _ identity.Store = (*cookieStore)(nil)

// NewCookieStore はリクエスト・レスポンスに紐づくStoreを生成する。
func NewCookieStore(w http.ResponseWriter, r *http.Request, config CookieConfig) identity.Store {
	return &cookieStore{
		w:       w,
		r:       r,
		config:  config,
		overlay: make(map[string]*string),
	}
}

// Get はキーに対応する値を返す。
// このリクエスト内で書き込まれた値が優先される。
func (s *cookieStore) Get(key string) (string, bool) {
	if v, ok := s.overlay[key]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}

	cookie, err := s.r.Cookie(key)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	decoded, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return "", false
	}
	return decoded, true
}

// Set はキーに値を保存し、Set-Cookieヘッダーへ反映する。
func (s *cookieStore) Set(key, value string) {
	v := value
	s.overlay[key] = &v

	maxAge := s.config.MaxAge
	if maxAge == 0 {
		maxAge = defaultStoreCookieMaxAge
	}

	http.SetCookie(s.w, &http.Cookie{
		Name:     key,
		Value:    url.QueryEscape(value),
		Path:     "/",
		Domain:   s.config.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Delete はキーを削除し、Cookieを失効させる。
func (s *cookieStore) Delete(key string) {
	s.overlay[key] = nil

	http.SetCookie(s.w, &http.Cookie{
		Name:     key,
		Value:    "",
		Path:     "/",
		Domain:   s.config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Keys はリクエストCookieとこのリクエスト内の書き込みを合わせた全キーを返す。
// アプリケーション由来のCookie（reserv_プレフィックス）のみを対象とする。
func (s *cookieStore) Keys() []string {
	seen := make(map[string]bool)
	var keys []string

	for _, c := range s.r.Cookies() {
		if !strings.HasPrefix(c.Name, "reserv_") {
			continue
		}
		if deleted, ok := s.overlay[c.Name]; ok && deleted == nil {
			continue
		}
		if !seen[c.Name] {
			seen[c.Name] = true
			keys = append(keys, c.Name)
		}
	}

	for k, v := range s.overlay {
		if v == nil || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}

	return keys
}
