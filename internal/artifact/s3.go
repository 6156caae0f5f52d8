package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"shortvideo/internal/services"
)

// S3Options configures an S3 compatible backend (R2, MinIO, AWS).
type S3Options struct {
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	PublicBaseURL   string
	PresignExpiry   time.Duration
}

// objectClient is the slice of the object API the store relies on.
type objectClient interface {
	put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (int64, error)
	copy(ctx context.Context, bucket, from, to string) error
	remove(ctx context.Context, bucket, key string) error
	stat(ctx context.Context, bucket, key string) (minio.ObjectInfo, bool, error)
	get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	presign(ctx context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error)
	bucketExists(ctx context.Context, bucket string) (bool, error)
}

// S3Store stores artifacts as objects in a single bucket.
type S3Store struct {
	client        objectClient
	bucket        string
	publicBaseURL string
	expiry        time.Duration
}

// NewS3Store connects to the configured endpoint.
func NewS3Store(opts S3Options) (*S3Store, error) {
	if strings.TrimSpace(opts.Endpoint) == "" || strings.TrimSpace(opts.Bucket) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "artifact store", "s3 endpoint and bucket are required", nil)
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "artifact store", "create s3 client", err)
	}
	return newS3Store(&minioClient{client: client}, opts), nil
}

func newS3Store(client objectClient, opts S3Options) *S3Store {
	expiry := opts.PresignExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &S3Store{
		client:        client,
		bucket:        opts.Bucket,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(opts.PublicBaseURL), "/"),
		expiry:        expiry,
	}
}

// Backend names the storage backend.
func (s *S3Store) Backend() string { return "s3" }

// Put uploads the artifact under its primary key.
func (s *S3Store) Put(ctx context.Context, ns Namespace, kind Kind, r io.Reader) (Ref, error) {
	key, err := ns.Key(kind)
	if err != nil {
		return Ref{}, err
	}
	return s.upload(ctx, key, kind, r)
}

// Stage uploads the artifact below the attempt's staging prefix.
func (s *S3Store) Stage(ctx context.Context, ns Namespace, kind Kind, attempt int, r io.Reader) (Ref, error) {
	key, err := ns.StagingKey(kind, attempt)
	if err != nil {
		return Ref{}, err
	}
	return s.upload(ctx, key, kind, r)
}

// Promote copies a staged object onto the primary key server side and
// deletes the staged copy.
func (s *S3Store) Promote(ctx context.Context, ns Namespace, staged Ref) (Ref, error) {
	key, err := promotionKey(ns, staged)
	if err != nil {
		return Ref{}, err
	}
	if err := s.client.copy(ctx, s.bucket, staged.Key, key); err != nil {
		return Ref{}, services.Wrap(services.ErrStorage, "", "promote artifact", key, err)
	}
	if err := s.client.remove(ctx, s.bucket, staged.Key); err != nil {
		return Ref{}, services.Wrap(services.ErrStorage, "", "promote artifact", "remove "+staged.Key, err)
	}
	promoted := staged
	promoted.Key = key
	return promoted, nil
}

// Discard deletes a staged object.
func (s *S3Store) Discard(ctx context.Context, staged Ref) error {
	if err := s.client.remove(ctx, s.bucket, staged.Key); err != nil {
		return services.Wrap(services.ErrStorage, "", "discard artifact", staged.Key, err)
	}
	return nil
}

func (s *S3Store) upload(ctx context.Context, key string, kind Kind, r io.Reader) (Ref, error) {
	size, err := s.client.put(ctx, s.bucket, key, r, readerSize(r), kind.ContentType())
	if err != nil {
		return Ref{}, services.Wrap(services.ErrStorage, "", "put artifact", key, err)
	}
	return Ref{
		Kind:        kind,
		Key:         key,
		Size:        size,
		ContentType: kind.ContentType(),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Resolve returns a public or presigned URL for the artifact.
func (s *S3Store) Resolve(ctx context.Context, ns Namespace, kind Kind) (Handle, error) {
	ref, err := lookup(ctx, ns, kind, s.stat)
	if err != nil {
		return Handle{}, err
	}
	filename := DownloadName(ns, kind)
	handle := Handle{
		Ref:      ref,
		Filename: filename,
		open: func() (io.ReadCloser, error) {
			return s.client.get(ctx, s.bucket, ref.Key)
		},
	}

	if s.publicBaseURL != "" {
		handle.URL = s.publicBaseURL + "/" + escapeKey(ref.Key)
		return handle, nil
	}
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	params.Set("response-content-type", ref.ContentType)
	signed, err := s.client.presign(ctx, s.bucket, ref.Key, s.expiry, params)
	if err != nil {
		return Handle{}, services.Wrap(services.ErrStorage, "", "presign artifact", ref.Key, err)
	}
	handle.URL = signed.String()
	return handle, nil
}

// Exists reports whether the artifact is present under either key layout.
func (s *S3Store) Exists(ctx context.Context, ns Namespace, kind Kind) (bool, error) {
	return exists(ctx, ns, kind, s.stat)
}

// Open streams the object content directly.
func (s *S3Store) Open(ctx context.Context, ns Namespace, kind Kind) (io.ReadCloser, Ref, error) {
	ref, err := lookup(ctx, ns, kind, s.stat)
	if err != nil {
		return nil, Ref{}, err
	}
	rc, err := s.client.get(ctx, s.bucket, ref.Key)
	if err != nil {
		return nil, Ref{}, services.Wrap(services.ErrStorage, "", "open artifact", ref.Key, err)
	}
	return rc, ref, nil
}

// CheckBucket verifies the bucket is reachable.
func (s *S3Store) CheckBucket(ctx context.Context) error {
	ok, err := s.client.bucketExists(ctx, s.bucket)
	if err != nil {
		return services.Wrap(services.ErrStorage, "", "check bucket", s.bucket, err)
	}
	if !ok {
		return services.Wrap(services.ErrConfiguration, "", "check bucket", fmt.Sprintf("bucket %q does not exist", s.bucket), nil)
	}
	return nil
}

func (s *S3Store) stat(ctx context.Context, key string) (Ref, bool, error) {
	info, ok, err := s.client.stat(ctx, s.bucket, key)
	if err != nil || !ok {
		return Ref{}, ok, err
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	return Ref{
		Size:        info.Size,
		ContentType: contentType,
		CreatedAt:   info.LastModified.UTC(),
	}, true, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

type minioClient struct {
	client *minio.Client
}

// uploadPartSize bounds the buffer minio allocates per multipart upload when
// the object size is unknown. Without it the client sizes parts for a 5 TiB
// object.
const uploadPartSize = 16 << 20

func (m *minioClient) put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (int64, error) {
	info, err := m.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
		PartSize:    uploadPartSize,
	})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (m *minioClient) copy(ctx context.Context, bucket, from, to string) error {
	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: bucket, Object: to},
		minio.CopySrcOptions{Bucket: bucket, Object: from},
	)
	return err
}

func (m *minioClient) remove(ctx context.Context, bucket, key string) error {
	return m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

func (m *minioClient) stat(ctx context.Context, bucket, key string) (minio.ObjectInfo, bool, error) {
	info, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return minio.ObjectInfo{}, false, nil
		}
		return minio.ObjectInfo{}, false, err
	}
	return info, true, nil
}

func (m *minioClient) get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
}

func (m *minioClient) presign(ctx context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error) {
	return m.client.PresignedGetObject(ctx, bucket, key, expiry, params)
}

func (m *minioClient) bucketExists(ctx context.Context, bucket string) (bool, error) {
	return m.client.BucketExists(ctx, bucket)
}
