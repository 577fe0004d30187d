// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// SESSION_NOT_FOUNDとCAPACITY_EXCEEDEDは機械可読なコードとして
// 呼び出し側が文字列照合なしで分岐できることを保証する。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, rsvp, payment, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSessionNotFound     = "SESSION_NOT_FOUND"
	ErrCodeCapacityExceeded    = "CAPACITY_EXCEEDED"
	ErrCodeParticipantNotFound = "PARTICIPANT_NOT_FOUND"
	ErrCodePaymentNotFound     = "PAYMENT_NOT_FOUND"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeUpstreamFailure     = "UPSTREAM_FAILURE"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
)

// NewSessionNotFoundError はセッション未検出エラーを生成する。
// 存在しない公開コード、および公開中（open）以外のセッションの両方に使う。
func NewSessionNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  "セッションが見つからないか、受付を終了しています。",
		Category: "rsvp",
		Action:   "招待リンクが正しいかホストに確認してください。",
	}
}

// NewCapacityExceededError は定員超過エラーを生成する。
func NewCapacityExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeCapacityExceeded,
		Message:  "このセッションは満員です。",
		Category: "rsvp",
		Action:   "キャンセルが出るのを待つか、ホストに連絡してください。",
	}
}

// NewParticipantNotFoundError は参加者未検出エラーを生成する。
func NewParticipantNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeParticipantNotFound,
		Message:  "参加者が見つかりません。",
		Category: "rsvp",
		Action:   "名前と電話番号が登録時と一致しているか確認してください。",
	}
}

// NewPaymentNotFoundError は支払い証明未検出エラーを生成する。
func NewPaymentNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodePaymentNotFound,
		Message:  "支払い証明が見つかりません。",
		Category: "payment",
		Action:   "支払い証明のIDを確認してください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
// セッションのホスト以外が管理操作を行った場合などに使う。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "セッションのホストとしてログインしているか確認してください。",
	}
}

// NewInvalidTransitionError は不正な状態遷移エラーを生成する。
func NewInvalidTransitionError(from, to string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("セッションを %s から %s に変更することはできません。", from, to),
		Category: "validation",
		Action:   "セッションの現在の状態を確認してください。",
	}
}

// NewUpstreamFailureError は外部サービス障害エラーを生成する。
// 元のエラー詳細はログにのみ残し、ユーザーには一般的な説明を返す。
func NewUpstreamFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailure,
		Message:  "外部サービスとの通信に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
