// Package storage は支払い証明画像などのオブジェクトストレージ保存を提供する。
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader はオブジェクト保存のインターフェース。
type Uploader interface {
	// Upload はオブジェクトを保存し、公開URLを返す。
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// S3Config はS3互換ストレージの接続設定。
// EndpointにはMinIOやCloudflare R2などS3互換サービスのURLも指定できる。
type S3Config struct {
	Endpoint      string // 空の場合はAWS標準エンドポイント
	Region        string
	Bucket        string
	AccessKeyID   string
	SecretKey     string
	PublicBaseURL string // 公開URL組み立てのベース。末尾スラッシュ不要
}

// S3Uploader はS3互換ストレージへのUploader実装。
type S3Uploader struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

// NewS3Uploader はS3Uploaderを生成する。
func NewS3Uploader(cfg S3Config) *S3Uploader {
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		// MinIO等の互換実装はバケット名をパスに置く形式のみ対応する
		opts.UsePathStyle = true
	}

	return &S3Uploader{
		client:        s3.New(opts),
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

// Upload はオブジェクトを保存し、公開URLを返す。
func (u *S3Uploader) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return u.PublicURL(key), nil
}

// PublicURL はオブジェクトキーから公開URLを組み立てる。
func (u *S3Uploader) PublicURL(key string) string {
	return u.publicBaseURL + "/" + strings.TrimLeft(key, "/")
}

var _ Uploader = (*S3Uploader)(nil)
