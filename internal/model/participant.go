package model

import "time"

// Participant はセッションへの参加者レコードを表す。
// 同一性は(DisplayName, ContactPhone)の完全一致で近似する（電話番号なしは
// NULL同士のみ一致）。ProfileID/GuestKeyは安定識別子への移行用のキーで、
// 名前+電話の照合は互換目的の仕組みとして残している。
type Participant struct {
	ID           string
	SessionID    string
	DisplayName  string
	ContactPhone *string
	ContactEmail *string
	ProfileID    *string
	GuestKey     *string
	Notes        string
	Status       ParticipantStatus
	CreatedAt    time.Time
}

// ParticipantStatus は参加者のRSVP状態を表す。
type ParticipantStatus string

const (
	// ParticipantStatusInvited は招待済み（未回答）状態。
	ParticipantStatusInvited ParticipantStatus = "invited"
	// ParticipantStatusConfirmed は参加確定状態。定員を消費する唯一の状態。
	ParticipantStatusConfirmed ParticipantStatus = "confirmed"
	// ParticipantStatusCancelled は不参加状態。
	ParticipantStatusCancelled ParticipantStatus = "cancelled"
	// ParticipantStatusWaitlisted はキャンセル待ち状態。
	ParticipantStatusWaitlisted ParticipantStatus = "waitlisted"
)
