// Package payment は支払い証明のアップロード、レビュー、OCRスキャンを提供する。
package payment

import "context"

// OCRResult は証明画像から抽出した振込情報。
// 読み取れなかったフィールドはnilのまま残る。
type OCRResult struct {
	BankName      *string
	AccountNumber *string
	AccountName   *string
}

// Confidence は抽出できたフィールド数に基づく確信度を返す（0.0〜1.0）。
// 3フィールド中いくつ読み取れたかの単純な比率。
func (r *OCRResult) Confidence() float64 {
	detected := 0
	if r.BankName != nil {
		detected++
	}
	if r.AccountNumber != nil {
		detected++
	}
	if r.AccountName != nil {
		detected++
	}
	return float64(detected) / 3.0
}

// OCRClient は証明画像からの文字抽出インターフェース。
type OCRClient interface {
	// Extract は画像データから振込情報を抽出する。
	Extract(ctx context.Context, image []byte, contentType string) (*OCRResult, error)
}

// StubOCRClient は外部OCRサービス統合前のスタブ実装。
// 常に空の抽出結果を返す。確信度は0になり、ホストの手動レビューに委ねられる。
// TODO: Cloud Vision APIクライアントに差し替える
type StubOCRClient struct{}

// NewStubOCRClient はStubOCRClientを生成する。
func NewStubOCRClient() *StubOCRClient {
	return &StubOCRClient{}
}

// Extract は常に空のOCRResultを返す。
func (c *StubOCRClient) Extract(_ context.Context, _ []byte, _ string) (*OCRResult, error) {
	return &OCRResult{}, nil
}

var _ OCRClient = (*StubOCRClient)(nil)
