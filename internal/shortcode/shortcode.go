// Package shortcode はセッション公開コードとホストスラグの生成を提供する。
package shortcode

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// base62Alphabet は公開コードに使用する文字集合。
// URLにそのまま埋め込めるよう英数字のみで構成する。
const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// PublicCodeLength は公開コードの文字数。
// 62^6 ≈ 5.6×10^10 通りで、招待リンク用途には十分な空間を持つ。
const PublicCodeLength = 6

// NewPublicCode はセッション公開時に発行する公開コードを生成する。
// base62の6文字で、口頭やメッセージでの共有に耐える短さを優先している。
func NewPublicCode() (string, error) {
	code, err := gonanoid.Generate(base62Alphabet, PublicCodeLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate public code: %w", err)
	}
	return code, nil
}

// NewHostSlug はホスト名からURL安全なスラグを生成する。
// 日本語名はローマ字化され、空になる場合は"host"にフォールバックする。
func NewHostSlug(name string) string {
	s := slug.Make(name)
	if s == "" {
		return "host"
	}
	return s
}

// NewHostSlugWithSuffix は衝突時に使うランダムサフィックス付きスラグを生成する。
func NewHostSlugWithSuffix(name string) (string, error) {
	suffix, err := gonanoid.Generate(base62Alphabet, 4)
	if err != nil {
		return "", fmt.Errorf("failed to generate slug suffix: %w", err)
	}
	return NewHostSlug(name) + "-" + strings.ToLower(suffix), nil
}
