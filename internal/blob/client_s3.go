package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/openmined/treeup/internal/contenthash"
	"github.com/openmined/treeup/internal/remote"
)

const (
	// sessions are assembled here and copied to the destination on finish
	stagingPrefix = ".treeup-sessions"

	metaClientModified = "client-modified"
	metaContentHash    = "content-hash"
)

// s3API is the part of *s3.Client the storage uses
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type multipartSession struct {
	key    string
	offset int64
	parts  []types.CompletedPart
	hash   *contenthash.Hash
}

// S3Storage maps the upload session protocol onto s3 multipart uploads.
// A session is staged under its own key and copied into place on finish, since the
// destination is only known at that point. CopyObject caps such files at 5 GiB.
type S3Storage struct {
	s3Client s3API
	config   *S3BlobConfig

	mu       sync.Mutex
	sessions map[string]*multipartSession
}

var _ remote.Storage = (*S3Storage)(nil)

func NewS3Storage(s3Client s3API, cfg *S3BlobConfig) *S3Storage {
	return &S3Storage{
		s3Client: s3Client,
		config:   cfg,
		sessions: make(map[string]*multipartSession),
	}
}

func NewS3StorageWithConfig(ctx context.Context, cfg *S3BlobConfig) (*S3Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          16,
			MaxIdleConnsPerHost:   4, // uploads are sequential
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 10 * time.Minute,
	}

	opts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	awsClient := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UseAccelerate {
			o.UseAccelerate = true
		}
	})

	return NewS3Storage(awsClient, cfg), nil
}

// ===================================================================================================

func (s *S3Storage) UploadOneshot(ctx context.Context, data []byte, commit *remote.CommitInfo) (*remote.Metadata, error) {
	key := s.objectKey(commit.Path)
	if err := s.checkConflict(ctx, key, commit); err != nil {
		return nil, err
	}

	hash := contenthash.Bytes(data)
	resp, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.config.BucketName,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      objectMetadata(commit, hash),
	})
	if err != nil {
		return nil, s3Error("put object", err)
	}

	return s.metadata(key, commit, int64(len(data)), hash, aws.ToString(resp.VersionId), aws.ToString(resp.ETag), time.Now()), nil
}

func (s *S3Storage) SessionStart(ctx context.Context, data []byte) (string, error) {
	key := path.Join(s.config.Prefix, stagingPrefix, uuid.NewString())

	result, err := s.s3Client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
	})
	if err != nil {
		return "", s3Error("create multipart upload", err)
	}

	session := &multipartSession{key: key, hash: contenthash.New()}
	uploadID := aws.ToString(result.UploadId)
	if err := s.uploadPart(ctx, uploadID, session, data); err != nil {
		s.abort(uploadID, session)
		return "", err
	}

	s.mu.Lock()
	s.sessions[uploadID] = session
	s.mu.Unlock()

	slog.Debug("s3 session start", "uploadId", uploadID, "key", key)
	return uploadID, nil
}

func (s *S3Storage) SessionAppend(ctx context.Context, data []byte, cursor *remote.Cursor) error {
	session, err := s.session(cursor)
	if err != nil {
		return err
	}

	if err := s.uploadPart(ctx, cursor.SessionID, session, data); err != nil {
		s.mu.Lock()
		delete(s.sessions, cursor.SessionID)
		s.mu.Unlock()
		s.abort(cursor.SessionID, session)
		return err
	}
	return nil
}

func (s *S3Storage) SessionFinish(ctx context.Context, data []byte, cursor *remote.Cursor, commit *remote.CommitInfo) (*remote.Metadata, error) {
	session, err := s.session(cursor)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.sessions, cursor.SessionID)
	s.mu.Unlock()

	if len(data) > 0 {
		if err := s.uploadPart(ctx, cursor.SessionID, session, data); err != nil {
			s.abort(cursor.SessionID, session)
			return nil, err
		}
	}

	key := s.objectKey(commit.Path)
	if err := s.checkConflict(ctx, key, commit); err != nil {
		s.abort(cursor.SessionID, session)
		return nil, err
	}

	_, err = s.s3Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   &s.config.BucketName,
		Key:      &session.key,
		UploadId: &cursor.SessionID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: session.parts,
		},
	})
	if err != nil {
		s.abort(cursor.SessionID, session)
		return nil, s3Error("complete multipart upload", err)
	}
	defer s.deleteStaged(session.key)

	hash := session.hash.Hex()
	resp, err := s.s3Client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            &s.config.BucketName,
		CopySource:        aws.String(fmt.Sprintf("%s/%s", s.config.BucketName, session.key)),
		Key:               &key,
		Metadata:          objectMetadata(commit, hash),
		MetadataDirective: types.MetadataDirectiveReplace,
	})
	if err != nil {
		return nil, s3Error("copy object", err)
	}

	var etag string
	lastModified := time.Now()
	if resp.CopyObjectResult != nil {
		etag = aws.ToString(resp.CopyObjectResult.ETag)
		lastModified = aws.ToTime(resp.CopyObjectResult.LastModified)
	}
	return s.metadata(key, commit, session.offset, hash, aws.ToString(resp.VersionId), etag, lastModified), nil
}

// ===================================================================================================

func (s *S3Storage) session(cursor *remote.Cursor) (*multipartSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[cursor.SessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", remote.ErrRejected, ErrUnknownUpload, cursor.SessionID)
	}
	if session.offset != cursor.Offset {
		return nil, fmt.Errorf("%w: incorrect offset %d, expected %d", remote.ErrRejected, cursor.Offset, session.offset)
	}
	return session, nil
}

func (s *S3Storage) uploadPart(ctx context.Context, uploadID string, session *multipartSession, data []byte) error {
	partNumber := aws.Int32(int32(len(session.parts) + 1))
	resp, err := s.s3Client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        &s.config.BucketName,
		Key:           &session.key,
		UploadId:      &uploadID,
		PartNumber:    partNumber,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return s3Error("upload part", err)
	}

	session.parts = append(session.parts, types.CompletedPart{
		ETag:       resp.ETag,
		PartNumber: partNumber,
	})
	session.offset += int64(len(data))
	session.hash.Write(data)
	return nil
}

// checkConflict enforces add mode, s3 itself always overwrites.
func (s *S3Storage) checkConflict(ctx context.Context, key string, commit *remote.CommitInfo) error {
	if commit.Mode == remote.ModeOverwrite {
		return nil
	}

	_, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
	})
	if err == nil {
		return fmt.Errorf("%w: path/conflict/file/: %s", remote.ErrRejected, commit.Path)
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return nil
	}
	return s3Error("head object", err)
}

func (s *S3Storage) abort(uploadID string, session *multipartSession) {
	// the session already failed, a fresh context lets the cleanup run regardless
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.s3Client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   &s.config.BucketName,
		Key:      &session.key,
		UploadId: &uploadID,
	})
	if err != nil {
		slog.Warn("abort multipart upload", "uploadId", uploadID, "key", session.key, "error", err)
	}
}

func (s *S3Storage) deleteStaged(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
	}); err != nil {
		slog.Warn("delete staged object", "key", key, "error", err)
	}
}

func (s *S3Storage) objectKey(p string) string {
	return path.Join(s.config.Prefix, strings.TrimPrefix(path.Clean("/"+p), "/"))
}

func (s *S3Storage) metadata(key string, commit *remote.CommitInfo, size int64, hash, version, etag string, serverModified time.Time) *remote.Metadata {
	etag = strings.ReplaceAll(etag, "\"", "")
	rev := version
	if rev == "" {
		rev = etag
	}
	return &remote.Metadata{
		ID:             "s3://" + s.config.BucketName + "/" + key,
		Name:           path.Base(key),
		PathDisplay:    commit.Path,
		Size:           size,
		ContentHash:    hash,
		Rev:            rev,
		ClientModified: commit.ClientModified,
		ServerModified: serverModified.UTC().Truncate(time.Second),
	}
}

func objectMetadata(commit *remote.CommitInfo, hash string) map[string]string {
	meta := map[string]string{metaContentHash: hash}
	if !commit.ClientModified.IsZero() {
		meta[metaClientModified] = commit.ClientModified.UTC().Format(time.RFC3339)
	}
	return meta
}

func s3Error(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w: %s: %w", op, remote.ErrRejected, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("%s: %w: %w", op, remote.ErrRejected, err)
}
