package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	PublicRate      rate.Limit    // 公開RSVP APIのレート（req/sec）。IPごと
	PublicBurst     int           // 公開APIのバーストサイズ
	HostRate        rate.Limit    // ホストAPIのレート（req/sec）。ユーザーごと
	HostBurst       int           // ホストAPIのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 公開API 60 req/min/IP、ホストAPI 120 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		PublicRate:      rate.Limit(60.0 / 60.0), // 1 req/sec
		PublicBurst:     60,
		HostRate:        rate.Limit(120.0 / 60.0), // 2 req/sec
		HostBurst:       120,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyedLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はキー単位のレート制限を管理する。
// 公開API（IPキー）とホストAPI（ユーザーIDキー）の2種類を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	publicMu       sync.RWMutex
	publicLimiters map[string]*keyedLimiter

	hostMu       sync.RWMutex
	hostLimiters map[string]*keyedLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:         config,
		publicLimiters: make(map[string]*keyedLimiter),
		hostLimiters:   make(map[string]*keyedLimiter),
		stopCh:         make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// PublicMiddleware は公開RSVP API向けのIP単位レート制限ミドルウェアを返す。
// 認証を要求しないルートに配置する。
func (rl *RateLimiter) PublicMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			limiter := rl.getOrCreate(&rl.publicMu, rl.publicLimiters, ip, rl.config.PublicRate, rl.config.PublicBurst)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.PublicRate)
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", "public"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HostMiddleware はホストAPI向けのユーザー単位レート制限ミドルウェアを返す。
// リクエストコンテキストにユーザーIDが含まれている必要がある
// （SessionMiddlewareの後に配置）。
func (rl *RateLimiter) HostMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter := rl.getOrCreate(&rl.hostMu, rl.hostLimiters, userID, rl.config.HostRate, rl.config.HostBurst)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.HostRate)
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", "host"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PublicLimiterCount は現在管理されている公開APIリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) PublicLimiterCount() int {
	rl.publicMu.RLock()
	defer rl.publicMu.RUnlock()
	return len(rl.publicLimiters)
}

// HostLimiterCount は現在管理されているホストAPIリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) HostLimiterCount() int {
	rl.hostMu.RLock()
	defer rl.hostMu.RUnlock()
	return len(rl.hostLimiters)
}

// getOrCreate はキーのリミッターを取得または作成する。
func (rl *RateLimiter) getOrCreate(mu *sync.RWMutex, limiters map[string]*keyedLimiter, key string, r rate.Limit, burst int) *rate.Limiter {
	mu.RLock()
	kl, exists := limiters[key]
	mu.RUnlock()

	if exists {
		mu.Lock()
		kl.lastAccess = time.Now()
		mu.Unlock()
		return kl.limiter
	}

	mu.Lock()
	defer mu.Unlock()

	// ダブルチェック
	if kl, exists := limiters[key]; exists {
		kl.lastAccess = time.Now()
		return kl.limiter
	}

	limiter := rate.NewLimiter(r, burst)
	limiters[key] = &keyedLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.publicMu.Lock()
	for key, kl := range rl.publicLimiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(rl.publicLimiters, key)
		}
	}
	rl.publicMu.Unlock()

	rl.hostMu.Lock()
	for key, kl := range rl.hostLimiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(rl.hostLimiters, key)
		}
	}
	rl.hostMu.Unlock()
}

// clientIP はリクエストからクライアントIPを取り出す。
// リバースプロキシ背後ではX-Forwarded-Forの先頭値を使う。
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]any{
		"ok":    false,
		"error": "リクエストが多すぎます。しばらく待ってから再度お試しください。",
		"code":  "RATE_LIMIT_EXCEEDED",
	})
}
