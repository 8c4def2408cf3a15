package blob

import (
	"errors"

	"github.com/openmined/treeup/internal/uploader"
)

// S3 rejects multipart parts below 5 MiB, except the last one
const MinPartSize = 5 * uploader.MiB

var (
	ErrNoBucket      = errors.New("blob: bucket name missing")
	ErrPartTooSmall  = errors.New("blob: chunk size below the s3 minimum part size")
	ErrUnknownUpload = errors.New("blob: unknown upload session")
)

type S3BlobConfig struct {
	BucketName    string
	Region        string
	AccessKey     string // optional, the default credential chain is used when empty
	SecretKey     string
	Endpoint      string // optional, for minio and other s3 compatible stores
	Prefix        string // prepended to every destination path
	UseAccelerate bool
}

func (c *S3BlobConfig) Validate() error {
	if c.BucketName == "" {
		return ErrNoBucket
	}
	return nil
}

// ValidateChunkSize reports whether chunkSize can be used as a multipart part size.
func ValidateChunkSize(chunkSize int) error {
	if chunkSize < MinPartSize {
		return ErrPartTooSmall
	}
	return nil
}
