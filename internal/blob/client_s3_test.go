package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/openmined/treeup/internal/contenthash"
	"github.com/openmined/treeup/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	data []byte
	meta map[string]string
}

type fakeUpload struct {
	key   string
	parts map[int32][]byte
}

// fakeS3 is an in-memory bucket with just enough multipart support
type fakeS3 struct {
	objects map[string]*fakeObject
	uploads map[string]*fakeUpload
	aborted []string
	nextID  int
	failOn  string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: make(map[string]*fakeObject),
		uploads: make(map[string]*fakeUpload),
	}
}

func (f *fakeS3) fail(op string) error {
	if f.failOn == op {
		return fmt.Errorf("%s: injected failure", op)
	}
	return nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if err := f.fail("put"); err != nil {
		return nil, err
	}
	data, _ := io.ReadAll(in.Body)
	f.objects[*in.Key] = &fakeObject{data: data, meta: in.Metadata}
	return &s3.PutObjectOutput{ETag: aws.String(`"etag-put"`)}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(obj.data)))}, nil
}

func (f *fakeS3) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.nextID++
	id := fmt.Sprintf("upload-%d", f.nextID)
	f.uploads[id] = &fakeUpload{key: *in.Key, parts: make(map[int32][]byte)}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeS3) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	if err := f.fail("part"); err != nil {
		return nil, err
	}
	up, ok := f.uploads[*in.UploadId]
	if !ok {
		return nil, fmt.Errorf("NoSuchUpload")
	}
	data, _ := io.ReadAll(in.Body)
	up.parts[*in.PartNumber] = data
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf(`"part-%d"`, *in.PartNumber))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	up, ok := f.uploads[*in.UploadId]
	if !ok {
		return nil, fmt.Errorf("NoSuchUpload")
	}
	var buf bytes.Buffer
	for _, part := range in.MultipartUpload.Parts {
		buf.Write(up.parts[*part.PartNumber])
	}
	f.objects[up.key] = &fakeObject{data: buf.Bytes()}
	delete(f.uploads, *in.UploadId)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.aborted = append(f.aborted, *in.UploadId)
	delete(f.uploads, *in.UploadId)
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	_, srcKey, _ := strings.Cut(*in.CopySource, "/")
	src, ok := f.objects[srcKey]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey")
	}
	f.objects[*in.Key] = &fakeObject{data: src.data, meta: in.Metadata}
	return &s3.CopyObjectOutput{
		VersionId: aws.String("v2"),
		CopyObjectResult: &types.CopyObjectResult{
			ETag:         aws.String(`"etag-copy"`),
			LastModified: aws.Time(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)),
		},
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func newTestStorage() (*S3Storage, *fakeS3) {
	fake := newFakeS3()
	return NewS3Storage(fake, &S3BlobConfig{BucketName: "bucket", Prefix: "backup"}), fake
}

func TestS3Storage_Oneshot(t *testing.T) {
	storage, fake := newTestStorage()
	mtime := time.Date(2017, 3, 28, 19, 50, 58, 0, time.UTC)

	meta, err := storage.UploadOneshot(context.Background(), []byte("hello"), &remote.CommitInfo{
		Path:           "/docs/a.txt",
		ClientModified: mtime,
		Mode:           remote.ModeAdd,
	})
	require.NoError(t, err)

	obj := fake.objects["backup/docs/a.txt"]
	require.NotNil(t, obj)
	assert.Equal(t, "hello", string(obj.data))
	assert.Equal(t, "2017-03-28T19:50:58Z", obj.meta[metaClientModified])

	assert.Equal(t, "s3://bucket/backup/docs/a.txt", meta.ID)
	assert.Equal(t, "a.txt", meta.Name)
	assert.EqualValues(t, 5, meta.Size)
	assert.Equal(t, "etag-put", meta.Rev)
	assert.Equal(t, contenthash.Bytes([]byte("hello")), meta.ContentHash)
	assert.Equal(t, mtime, meta.ClientModified)
}

func TestS3Storage_AddModeConflicts(t *testing.T) {
	storage, fake := newTestStorage()
	fake.objects["backup/a.txt"] = &fakeObject{data: []byte("old")}

	_, err := storage.UploadOneshot(context.Background(), []byte("new"), &remote.CommitInfo{Path: "/a.txt", Mode: remote.ModeAdd})
	assert.ErrorIs(t, err, remote.ErrRejected)
	assert.Equal(t, "old", string(fake.objects["backup/a.txt"].data))

	_, err = storage.UploadOneshot(context.Background(), []byte("new"), &remote.CommitInfo{Path: "/a.txt", Mode: remote.ModeOverwrite})
	require.NoError(t, err)
	assert.Equal(t, "new", string(fake.objects["backup/a.txt"].data))
}

func TestS3Storage_SessionRoundTrip(t *testing.T) {
	storage, fake := newTestStorage()
	ctx := context.Background()

	id, err := storage.SessionStart(ctx, []byte("aaaa"))
	require.NoError(t, err)
	require.NoError(t, storage.SessionAppend(ctx, []byte("bbbb"), &remote.Cursor{SessionID: id, Offset: 4}))

	meta, err := storage.SessionFinish(ctx, []byte("cc"), &remote.Cursor{SessionID: id, Offset: 8}, &remote.CommitInfo{Path: "/big.bin"})
	require.NoError(t, err)

	assert.Equal(t, "aaaabbbbcc", string(fake.objects["backup/big.bin"].data))
	assert.EqualValues(t, 10, meta.Size)
	assert.Equal(t, "v2", meta.Rev)
	assert.Equal(t, contenthash.Bytes([]byte("aaaabbbbcc")), meta.ContentHash)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), meta.ServerModified)

	// only the destination is left behind
	assert.Len(t, fake.objects, 1)
	assert.Empty(t, fake.uploads)
}

func TestS3Storage_EmptyFinish(t *testing.T) {
	storage, fake := newTestStorage()
	ctx := context.Background()

	id, err := storage.SessionStart(ctx, []byte("aaaa"))
	require.NoError(t, err)

	meta, err := storage.SessionFinish(ctx, nil, &remote.Cursor{SessionID: id, Offset: 4}, &remote.CommitInfo{Path: "/exact.bin"})
	require.NoError(t, err)
	assert.EqualValues(t, 4, meta.Size)
	assert.Equal(t, "aaaa", string(fake.objects["backup/exact.bin"].data))
}

func TestS3Storage_CursorChecks(t *testing.T) {
	storage, _ := newTestStorage()
	ctx := context.Background()

	err := storage.SessionAppend(ctx, []byte("x"), &remote.Cursor{SessionID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownUpload)
	assert.ErrorIs(t, err, remote.ErrRejected)

	id, err := storage.SessionStart(ctx, []byte("aaaa"))
	require.NoError(t, err)
	err = storage.SessionAppend(ctx, []byte("x"), &remote.Cursor{SessionID: id, Offset: 3})
	assert.ErrorIs(t, err, remote.ErrRejected)
	assert.ErrorContains(t, err, "incorrect offset")
}

func TestS3Storage_FailedFinishAborts(t *testing.T) {
	storage, fake := newTestStorage()
	ctx := context.Background()
	fake.objects["backup/taken.bin"] = &fakeObject{data: []byte("x")}

	id, err := storage.SessionStart(ctx, []byte("aaaa"))
	require.NoError(t, err)

	_, err = storage.SessionFinish(ctx, []byte("b"), &remote.Cursor{SessionID: id, Offset: 4}, &remote.CommitInfo{Path: "/taken.bin"})
	assert.ErrorIs(t, err, remote.ErrRejected)
	assert.Equal(t, []string{id}, fake.aborted)
}

func TestS3Storage_FailedAppendAborts(t *testing.T) {
	storage, fake := newTestStorage()
	ctx := context.Background()

	id, err := storage.SessionStart(ctx, []byte("aaaa"))
	require.NoError(t, err)

	fake.failOn = "part"
	err = storage.SessionAppend(ctx, []byte("bbbb"), &remote.Cursor{SessionID: id, Offset: 4})
	assert.ErrorIs(t, err, remote.ErrRejected)
	assert.Equal(t, []string{id}, fake.aborted)

	// the session is gone, a retry from the same cursor is refused
	fake.failOn = ""
	err = storage.SessionAppend(ctx, []byte("bbbb"), &remote.Cursor{SessionID: id, Offset: 4})
	assert.ErrorIs(t, err, ErrUnknownUpload)
}

func TestS3Storage_FailedStartAborts(t *testing.T) {
	storage, fake := newTestStorage()
	fake.failOn = "part"

	_, err := storage.SessionStart(context.Background(), []byte("aaaa"))
	assert.ErrorIs(t, err, remote.ErrRejected)
	assert.Len(t, fake.aborted, 1)
}

func TestConfig(t *testing.T) {
	assert.ErrorIs(t, (&S3BlobConfig{}).Validate(), ErrNoBucket)
	assert.NoError(t, (&S3BlobConfig{BucketName: "b"}).Validate())
	assert.ErrorIs(t, ValidateChunkSize(MinPartSize-1), ErrPartTooSmall)
	assert.NoError(t, ValidateChunkSize(MinPartSize))
}
