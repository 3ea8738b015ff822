package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
)

// s3API is the subset of *s3.Client used directly by S3Store.
type s3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// uploader and downloader are satisfied by the transfer manager, which
// splits multi-GB rasters into parts.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, opts ...func(*manager.Downloader)) (int64, error)
}

// ProjectTagging is the URL-encoded cost-allocation tag set on every object
// the converter writes.
const ProjectTagging = "Project=raster-cog-converter"

// Timeouts bound every network call made by S3Store.
type Timeouts struct {
	// Request bounds list pages, head and small get/put calls.
	Request time.Duration
	// Transfer bounds a whole raster download or upload.
	Transfer time.Duration
}

// S3Store implements Store on one S3 bucket.
type S3Store struct {
	api        s3API
	uploader   uploader
	downloader downloader
	bucket     string
	timeouts   Timeouts
}

// Compile-time interface check.
var _ Store = (*S3Store)(nil)

// NewS3Store wraps client for bucket. Large transfers go through the S3
// transfer manager.
func NewS3Store(client *s3.Client, bucket string, timeouts Timeouts) *S3Store {
	return &S3Store{
		api:        client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		timeouts:   timeouts,
	}
}

// Bucket returns the bucket name.
func (s *S3Store) Bucket() string { return s.bucket }

func (s *S3Store) requestCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeouts.Request <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeouts.Request)
}

func (s *S3Store) transferCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeouts.Transfer <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeouts.Transfer)
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var objects []Object
	pages := 0
	for paginator.HasMorePages() {
		pctx, cancel := s.requestCtx(ctx)
		page, err := paginator.NextPage(pctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("S3 ListObjectsV2 s3://%s/%s (page %d): %w", s.bucket, prefix, pages+1, err)
		}
		pages++
		for _, obj := range page.Contents {
			objects = append(objects, Object{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}

	log.Debug().
		Str("bucket", s.bucket).
		Str("prefix", prefix).
		Int("pages", pages).
		Int("objects", len(objects)).
		Msg("S3 listing complete")
	return objects, nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	rctx, cancel := s.requestCtx(ctx)
	defer cancel()

	_, err := s.api.HeadObject(rctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("S3 HeadObject %s: %w", key, err)
	}
	return true, nil
}

func (s *S3Store) Download(ctx context.Context, key, localPath string) (int64, error) {
	log.Debug().Str("bucket", s.bucket).Str("key", key).Str("localPath", localPath).Msg("Downloading from S3")

	f, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	tctx, cancel := s.transferCtx(ctx)
	defer cancel()

	n, err := s.downloader.Download(tctx, f, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("S3 GetObject %s: %w", key, ErrNotFound)
		}
		return 0, fmt.Errorf("S3 GetObject %s: %w", key, err)
	}
	return n, nil
}

func (s *S3Store) Upload(ctx context.Context, key, localPath string, opts UploadOptions) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()

	tctx, cancel := s.transferCtx(ctx)
	defer cancel()

	_, err = s.uploader.Upload(tctx, s.putInput(key, f, opts))
	if err != nil {
		return fmt.Errorf("S3 upload %s: %w", key, err)
	}
	log.Debug().Str("bucket", s.bucket).Str("key", key).Msg("Uploaded to S3")
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	rctx, cancel := s.requestCtx(ctx)
	defer cancel()

	out, err := s.api.GetObject(rctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("S3 GetObject %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("S3 GetObject %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	rctx, cancel := s.requestCtx(ctx)
	defer cancel()

	in := s.putInput(key, bytes.NewReader(data), opts)
	in.ContentLength = aws.Int64(int64(len(data)))
	if _, err := s.api.PutObject(rctx, in); err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) putInput(key string, body io.Reader, opts UploadOptions) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket:  aws.String(s.bucket),
		Key:     aws.String(key),
		Body:    body,
		Tagging: aws.String(ProjectTagging),
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		in.Metadata = opts.Metadata
	}
	return in
}

// isNotFound recognizes both the modeled 404 types and the bare "NotFound"
// code HeadObject returns (HEAD responses carry no error body).
func isNotFound(err error) bool {
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}
