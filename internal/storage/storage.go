// Package storage は画像のオブジェクトストレージへの保存を提供する。
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrNotConfigured はバケットが未設定の状態で保存しようとした場合のエラー。
var ErrNotConfigured = errors.New("object storage is not configured")

// ImageStore は画像の保存先のインターフェース。
type ImageStore interface {
	// Put は画像を保存し、公開URLを返す。
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)

	// Delete は画像を削除する。存在しないキーはエラーにしない。
	Delete(ctx context.Context, key string) error

	// TransformURL は一時的な署名付き取得URLを返す。
	TransformURL(ctx context.Context, key string) (string, error)
}

// s3API はS3Storeが使うS3クライアントのメソッド。
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// presignAPI はS3Storeが使う署名クライアントのメソッド。
type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config はS3Storeの設定。
type Config struct {
	Bucket        string
	Region        string
	PublicBaseURL string
	PresignTTL    time.Duration
}

// S3Store はS3互換ストレージに画像を保存する。
type S3Store struct {
	client     s3API
	presigner  presignAPI
	bucket     string
	publicBase string
	presignTTL time.Duration
}

// NewS3Store はAWSの既定の認証情報チェーンでS3Storeを生成する。
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return newS3Store(client, s3.NewPresignClient(client), cfg), nil
}

func newS3Store(client s3API, presigner presignAPI, cfg Config) *S3Store {
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &S3Store{
		client:     client,
		presigner:  presigner,
		bucket:     cfg.Bucket,
		publicBase: base,
		presignTTL: ttl,
	}
}

// Put は画像を保存し、公開URLを返す。
func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	return s.publicBase + "/" + key, nil
}

// Delete は画像を削除する。
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// TransformURL は署名付き取得URLを返す。
func (s *S3Store) TransformURL(ctx context.Context, key string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", key, err)
	}
	return req.URL, nil
}

// Disabled はバケット未設定時に使うImageStore。保存はErrNotConfiguredを返す。
type Disabled struct{}

// Put はErrNotConfiguredを返す。
func (Disabled) Put(context.Context, string, string, []byte) (string, error) {
	return "", ErrNotConfigured
}

// Delete は何もしない。
func (Disabled) Delete(context.Context, string) error { return nil }

// TransformURL はErrNotConfiguredを返す。
func (Disabled) TransformURL(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

// ClothingKey は衣類画像のオブジェクトキーを生成する。
func ClothingKey(userID, filename string) string {
	return objectKey("clothing", userID, filename)
}

// ProfileKey はプロフィール画像のオブジェクトキーを生成する。
func ProfileKey(userID, filename string) string {
	return objectKey("profiles", userID, filename)
}

func objectKey(prefix, userID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 5 {
		ext = ""
	}
	return fmt.Sprintf("closetiq/%s/%s/%s%s", prefix, userID, uuid.New().String(), ext)
}

// compile-time interface check
var (
	_ ImageStore = (*S3Store)(nil)
	_ ImageStore = Disabled{}
)
