// Пакет storage — доступ к объектному хранилищу файлов.
// Содержимое файлов лежит в S3-совместимом хранилище; реляционная БД
// хранит только реестр. Выдача файлов идёт через подписанные ссылки,
// через сервис содержимое не проксируется.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/bigkaa/fileguard/internal/config"
)

// ObjectStore — интерфейс объектного хранилища.
// Реализации должны быть безопасны для конкурентного использования.
type ObjectStore interface {
	// Upload загружает содержимое под указанным ключом.
	Upload(ctx context.Context, key, contentType string, body io.Reader) error
	// SignedURL возвращает подписанную ссылку на скачивание объекта.
	SignedURL(ctx context.Context, key string) (string, error)
	// Remove удаляет объекты по ключам. Пустой список — no-op.
	Remove(ctx context.Context, keys []string) error
	// Ping проверяет доступность bucket.
	Ping(ctx context.Context) error
}

// S3Store — реализация ObjectStore поверх aws-sdk-go-v2.
// Работает и с AWS S3, и с MinIO (path-style адресация).
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	bucket   string
	urlTTL   time.Duration
	logger   *slog.Logger
}

// NewS3Store создаёт клиент объектного хранилища по конфигурации.
func NewS3Store(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка конфигурации S3-клиента: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	logger.Info("Клиент объектного хранилища создан",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("endpoint", cfg.S3Endpoint),
		slog.String("region", cfg.S3Region))

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
		bucket:   cfg.S3Bucket,
		urlTTL:   cfg.SignedURLTTL,
		logger:   logger.With(slog.String("component", "s3store")),
	}, nil
}

func (s *S3Store) Upload(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("ошибка загрузки объекта %s: %w", key, err)
	}
	s.logger.Debug("Объект загружен", slog.String("key", key))
	return nil
}

func (s *S3Store) SignedURL(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.urlTTL))
	if err != nil {
		return "", fmt.Errorf("ошибка подписи ссылки на объект %s: %w", key, err)
	}
	return req.URL, nil
}

// maxDeleteBatch — лимит DeleteObjects в S3 API.
const maxDeleteBatch = 1000

func (s *S3Store) Remove(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(keys) {
			end = len(keys)
		}

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("ошибка удаления объектов: %w", err)
		}
		for _, e := range out.Errors {
			s.logger.Warn("Объект не удалён",
				slog.String("key", aws.ToString(e.Key)),
				slog.String("message", aws.ToString(e.Message)))
		}
	}

	if len(keys) > 0 {
		s.logger.Debug("Объекты удалены", slog.Int("count", len(keys)))
	}
	return nil
}

func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("хранилище недоступно: %w", err)
	}
	return nil
}
