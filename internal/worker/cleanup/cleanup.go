// Package cleanup は定期クリーンアップジョブを提供する。
// 期限切れのログインセッションの削除と、終了時刻を過ぎた公開中
// セッションの自動完了を一定間隔のバッチで実行する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AuthSessionCleaner は期限切れログインセッションの削除インターフェース。
// repository.AuthSessionRepositoryの部分集合。
type AuthSessionCleaner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionCompleter は終了済みセッションの自動完了インターフェース。
// repository.SessionRepositoryの部分集合。
type SessionCompleter interface {
	CompletePastSessions(ctx context.Context, now time.Time) (int64, error)
}

// Job は定期クリーンアップのバッチジョブ。
// 冪等であり、対象が0件でもエラーにならない。
type Job struct {
	authSessions AuthSessionCleaner
	sessions     SessionCompleter
	logger       *slog.Logger
}

// NewJob は新しいJobを生成する。
func NewJob(authSessions AuthSessionCleaner, sessions SessionCompleter, logger *slog.Logger) *Job {
	return &Job{
		authSessions: authSessions,
		sessions:     sessions,
		logger:       logger,
	}
}

// Run はクリーンアップを1回実行する。
// 片方の処理が失敗しても、もう片方は実行したうえでエラーを返す。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()
	now := time.Now()

	var firstErr error

	deletedSessions, err := j.authSessions.DeleteExpired(ctx, now)
	if err != nil {
		j.logger.Error("期限切れログインセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		firstErr = fmt.Errorf("期限切れログインセッションの削除に失敗: %w", err)
	}

	completedSessions, err := j.sessions.CompletePastSessions(ctx, now)
	if err != nil {
		j.logger.Error("終了済みセッションの自動完了に失敗しました",
			slog.String("error", err.Error()),
		)
		if firstErr == nil {
			firstErr = fmt.Errorf("終了済みセッションの自動完了に失敗: %w", err)
		}
	}

	if firstErr != nil {
		return firstErr
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_auth_sessions", deletedSessions),
		slog.Int64("completed_sessions", completedSessions),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// RunLoop は指定間隔でRunを繰り返し実行する。
// 起動直後に1回実行し、以降はinterval間隔で実行する。
// コンテキストのキャンセルで停止する。
func (j *Job) RunLoop(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("クリーンアップジョブの初回実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("クリーンアップジョブの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		case <-ctx.Done():
			j.logger.Info("クリーンアップワーカーを停止します")
			return
		}
	}
}
