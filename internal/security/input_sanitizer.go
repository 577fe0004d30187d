// Package security はアプリケーションのセキュリティ機能を提供する。
//
// InputSanitizerService はユーザー入力（表示名・セッション説明文）をサニタイズし、
// XSS攻撃などのセキュリティリスクから参加者一覧ページを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 表示名は全HTMLを除去、説明文は安全なタグのみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// InputSanitizerService はユーザー入力のサニタイズ機能のインターフェースを定義する。
// RSVP受付時の表示名と、セッション作成・更新時の説明文に使用される。
type InputSanitizerService interface {
	// SanitizeName は参加者の表示名をサニタイズする。
	// 全てのHTMLタグを除去し、前後の空白を削除、連続する空白を1つに畳む。
	// 表示名は同一性判定のキーになるため、ここでの正規化が
	// 「同じ名前で再送したら同じ参加者」という判定の前提になる。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeName(raw string) string

	// SanitizeDescription はセッション説明文をサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, ul, ol, li, strong, em, a）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	// 空文字列の入力には空文字列を返す。
	SanitizeDescription(rawHTML string) string
}

// inputSanitizer はInputSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type inputSanitizer struct {
	namePolicy        *bluemonday.Policy
	descriptionPolicy *bluemonday.Policy
}

// NewInputSanitizer はInputSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのポリシーを構築する。
// ポリシーの内容:
//   - 表示名: StrictPolicy（全タグ除去）
//   - 説明文: p, br, ul, ol, li, strong, em, a のみ許可
//   - aタグ: target="_blank" と rel="noreferrer noopener" を強制付与
func NewInputSanitizer() *inputSanitizer {
	desc := bluemonday.NewPolicy()

	desc.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em",
	)

	// aタグはhref属性のみ許可し、相対URLは不許可
	desc.AllowAttrs("href").OnElements("a")
	desc.AllowStandardURLs()
	desc.AllowRelativeURLs(false)
	desc.AddTargetBlankToFullyQualifiedLinks(true)
	desc.RequireNoReferrerOnLinks(true)

	return &inputSanitizer{
		namePolicy:        bluemonday.StrictPolicy(),
		descriptionPolicy: desc,
	}
}

// SanitizeName は参加者の表示名をサニタイズする。
func (s *inputSanitizer) SanitizeName(raw string) string {
	cleaned := s.namePolicy.Sanitize(raw)
	return strings.Join(strings.Fields(cleaned), " ")
}

// SanitizeDescription はセッション説明文をサニタイズして安全なHTMLを返す。
func (s *inputSanitizer) SanitizeDescription(rawHTML string) string {
	return s.descriptionPolicy.Sanitize(rawHTML)
}
