package model

import "time"

// Session はホストが主催するスポーツセッション（イベント）を表す。
// 公開コード（PublicCode）は公開時に採番され、参加者はこのコードで
// セッションにアクセスする。
type Session struct {
	ID          string
	HostID      string
	HostSlug    string
	Title       string
	Sport       string
	Description string
	Location    string
	StartAt     time.Time
	EndAt       *time.Time
	Capacity    *int // nilは定員なし
	CoverURL    string
	PublicCode  string // 公開前は空
	Status      SessionStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SessionStatus はセッションのライフサイクル状態を表す。
type SessionStatus string

const (
	// SessionStatusDraft は下書き状態。ホストのみ閲覧可能。
	SessionStatusDraft SessionStatus = "draft"
	// SessionStatusOpen は公開中。参加/不参加の受付が可能な唯一の状態。
	SessionStatusOpen SessionStatus = "open"
	// SessionStatusClosed は受付終了状態。
	SessionStatusClosed SessionStatus = "closed"
	// SessionStatusCompleted は開催終了状態。
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusCancelled は中止状態。
	SessionStatusCancelled SessionStatus = "cancelled"
)

// AcceptsRSVP は参加/不参加アクションを受け付ける状態かを返す。
func (s SessionStatus) AcceptsRSVP() bool {
	return s == SessionStatusOpen
}
