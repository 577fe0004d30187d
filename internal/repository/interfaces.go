// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/reserv/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// HostSlugExists は指定のホストスラッグが使用済みかを返す。
	HostSlugExists(ctx context.Context, slug string) (bool, error)
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// AuthSessionRepository はログインセッションの永続化インターフェース。
type AuthSessionRepository interface {
	// Create はログインセッションを作成する。
	Create(ctx context.Context, session *model.AuthSession) error
	// FindByID は指定IDのログインセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.AuthSession, error)
	// DeleteByID は指定IDのログインセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れのログインセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionRepository はスポーツセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// FindOpenByPublicCode は公開コードで公開中（open）のセッションを検索する。
	// コードが存在しない、またはopen以外の状態の場合はnilを返す。
	FindOpenByPublicCode(ctx context.Context, publicCode string) (*model.Session, error)

	// ListByHostID はホストのセッション一覧を作成日時降順で返す。
	ListByHostID(ctx context.Context, hostID string) ([]*model.Session, error)

	// Update はセッションの編集可能フィールドを更新する。
	Update(ctx context.Context, session *model.Session) error

	// Publish は公開コードを設定しstatusをopenに遷移させる。
	Publish(ctx context.Context, id, publicCode string) error

	// UpdateStatus はセッションの状態を更新する。
	UpdateStatus(ctx context.Context, id string, status model.SessionStatus) error

	// CompletePastSessions は終了時刻を過ぎた公開中セッションをcompletedに遷移させ、
	// 更新件数を返す。クリーンアップワーカーから呼ばれる。
	CompletePastSessions(ctx context.Context, now time.Time) (int64, error)
}

// ParticipantRepository は参加者レコードの永続化インターフェース。
type ParticipantRepository interface {
	// FindByIdentity は(display_name, contact_phone)の完全一致で参加者を検索する。
	// phoneがnilの場合はcontact_phoneがNULLの行のみ一致する（ワイルドカードにはならない）。
	// 見つからない場合はnilを返す。
	FindByIdentity(ctx context.Context, sessionID, displayName string, phone *string) (*model.Participant, error)

	// FindByID は指定IDの参加者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Participant, error)

	// Create は参加者レコードを無条件に作成する（定員チェックなし）。
	Create(ctx context.Context, p *model.Participant) error

	// CreateConfirmedIfCapacity はセッション行をロックした上で確定参加者数を数え、
	// 定員未満の場合のみconfirmed状態の参加者を挿入する。挿入できた場合trueを返す。
	// capacityがnilの場合は定員なしとして必ず挿入する。
	// 定員チェックと挿入は同一トランザクションで行い、並行joinでの超過を防ぐ。
	CreateConfirmedIfCapacity(ctx context.Context, p *model.Participant, capacity *int) (bool, error)

	// UpdateStatus は参加者の状態を上書きする。
	UpdateStatus(ctx context.Context, id string, status model.ParticipantStatus) error

	// ListConfirmedBySessionID はconfirmedの参加者のみを作成順（昇順）で返す。
	// 先着順の表示保証に使う。
	ListConfirmedBySessionID(ctx context.Context, sessionID string) ([]*model.Participant, error)

	// ListBySessionID は全状態の参加者を作成順で返す。ホスト向け。
	ListBySessionID(ctx context.Context, sessionID string) ([]*model.Participant, error)

	// CountConfirmed はconfirmedの参加者数を返す。
	CountConfirmed(ctx context.Context, sessionID string) (int, error)
}

// PaymentProofRepository は支払い証明の永続化インターフェース。
type PaymentProofRepository interface {
	// Create は支払い証明レコードを作成する。
	Create(ctx context.Context, proof *model.PaymentProof) error

	// FindByID は指定IDの支払い証明を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.PaymentProof, error)

	// ListBySessionID はセッションの支払い証明一覧を作成順で返す。
	ListBySessionID(ctx context.Context, sessionID string) ([]*model.PaymentProof, error)

	// UpdateReview はレビュー結果（approved/rejected）と処理時刻を記録する。
	UpdateReview(ctx context.Context, id string, status model.PaymentStatus, processedAt time.Time) error

	// UpdateOCRStatus はOCR処理状態のみを更新する。
	UpdateOCRStatus(ctx context.Context, id string, status model.OCRStatus) error

	// UpdateOCRResult はOCR抽出結果と確信度、処理状態を記録する。
	UpdateOCRResult(ctx context.Context, id string, bankName, accountNumber, accountName *string, confidence float64, status model.OCRStatus) error
}
