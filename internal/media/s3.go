package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	appcfg "github.com/adserve/adzone/internal/config"
)

var allowedContentTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var ErrUnsupportedContentType = errors.New("unsupported creative content type")

// Store issues presigned PUT URLs for banner creatives. The API server never
// proxies image bytes; advertiser tooling uploads straight to object storage
// and registers the resulting key on the ad.
type Store struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	cdnBaseURL string
	presignTTL time.Duration
}

func NewStore(ctx context.Context, cfg *appcfg.Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	return &Store{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.CreativeBucket,
		cdnBaseURL: strings.TrimRight(cfg.CDNBaseURL, "/"),
		presignTTL: cfg.PresignTTL,
	}, nil
}

// EnsureBucket creates the creative bucket if it does not exist yet. MinIO
// in dev starts empty; in real AWS the bucket is provisioned out of band and
// this is a no-op.
func (s *Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

type UploadTicket struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	PublicURL string    `json:"public_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PresignCreativeUpload returns a one-shot PUT URL for a new creative. The
// key embeds the advertiser so storage stays browsable per account.
func (s *Store) PresignCreativeUpload(ctx context.Context, advertiserID uuid.UUID, contentType string) (UploadTicket, error) {
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return UploadTicket{}, ErrUnsupportedContentType
	}

	key := fmt.Sprintf("creatives/%s/%s%s", advertiserID, uuid.New(), ext)

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return UploadTicket{}, fmt.Errorf("presign put: %w", err)
	}

	return UploadTicket{
		Key:       key,
		UploadURL: req.URL,
		PublicURL: s.PublicURL(key),
		ExpiresAt: time.Now().UTC().Add(s.presignTTL),
	}, nil
}

// PublicURL maps a stored key to its CDN-facing URL.
func (s *Store) PublicURL(key string) string {
	return s.cdnBaseURL + "/" + strings.TrimLeft(key, "/")
}
