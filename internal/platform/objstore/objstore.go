// Package objstore 封装 R2/S3 兼容的对象存储。
// 原图放私有桶（只能通过签名 URL 下载），缩略图/预览图放公有桶。
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

var ErrNotFound = errors.New("object not found")

type Config struct {
	Endpoint  string // R2 形如 https://<account>.r2.cloudflarestorage.com
	Region    string
	AccessKey string
	SecretKey string
}

// Store 持有进程级的 S3 客户端；所有方法都以 bucket+key 操作。
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("objstore: endpoint required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("objstore: access key and secret key required")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("objstore: load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
	})

	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

// Put 上传完整对象。
func (s *Store) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return mapError(err)
	}
	return nil
}

// Delete 删除对象；对象不存在时 S3 语义也返回成功，这里不特殊处理。
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return mapError(err)
}

// Stat 只取元数据，用于下载前确认对象存在。
func (s *Store) Stat(ctx context.Context, bucket, key string) (int64, error) {
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, mapError(err)
	}
	return aws.ToInt64(resp.ContentLength), nil
}

// PresignGet 生成带附件文件名的签名下载 URL。
// filename/contentType 通过响应头覆盖参数注入，客户端拿到的就是正确的下载文件名。
func (s *Store) PresignGet(ctx context.Context, bucket, key, filename, contentType string, ttl time.Duration) (string, error) {
	input := &s3.GetObjectInput{
		Bucket:                     aws.String(bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", filename)),
	}
	if contentType != "" {
		input.ResponseContentType = aws.String(contentType)
	}

	req, err := s.presign.PresignGetObject(ctx, input, func(o *s3.PresignOptions) {
		o.Expires = ttl
	})
	if err != nil {
		return "", mapError(err)
	}
	return req.URL, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch strings.ToLower(apiErr.ErrorCode()) {
		case "nosuchkey", "notfound", "404":
			return ErrNotFound
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return ErrNotFound
	}

	return err
}
