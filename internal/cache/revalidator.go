// Package cache はセッション公開ページのキャッシュ無効化を提供する。
//
// RSVPの確定・辞退やセッション更新のたびに、公開ページの
// キャッシュエントリ（page:{hostSlug}:{publicCode}）を破棄する。
// 無効化の失敗は書き込み自体の失敗にはしない。
package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Revalidator は公開ページキャッシュの無効化インターフェース。
type Revalidator interface {
	// RevalidateSessionPage は指定セッションの公開ページキャッシュを破棄する。
	RevalidateSessionPage(ctx context.Context, hostSlug, publicCode string) error
}

// pageKey はキャッシュキーを組み立てる。
func pageKey(hostSlug, publicCode string) string {
	return fmt.Sprintf("page:%s:%s", hostSlug, publicCode)
}

// RedisRevalidator はRedis上のページキャッシュを削除するRevalidator実装。
type RedisRevalidator struct {
	client *redis.Client
}

// NewRedisRevalidator はRedisRevalidatorを生成する。
func NewRedisRevalidator(client *redis.Client) *RedisRevalidator {
	return &RedisRevalidator{client: client}
}

// NewRedisClient は接続URL（redis://host:port/db形式）からRedisクライアントを生成する。
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// RevalidateSessionPage は指定セッションの公開ページキャッシュを破棄する。
// キーが存在しない場合も成功として扱う。
func (r *RedisRevalidator) RevalidateSessionPage(ctx context.Context, hostSlug, publicCode string) error {
	key := pageKey(hostSlug, publicCode)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to revalidate %s: %w", key, err)
	}
	slog.Debug("session page revalidated", slog.String("key", key))
	return nil
}

// NoopRevalidator はRedis未設定環境向けの何もしないRevalidator実装。
type NoopRevalidator struct{}

// NewNoopRevalidator はNoopRevalidatorを生成する。
func NewNoopRevalidator() *NoopRevalidator {
	return &NoopRevalidator{}
}

// RevalidateSessionPage は何もしない。
func (r *NoopRevalidator) RevalidateSessionPage(_ context.Context, _, _ string) error {
	return nil
}

var (
	_ Revalidator = (*RedisRevalidator)(nil)
	_ Revalidator = (*NoopRevalidator)(nil)
)
