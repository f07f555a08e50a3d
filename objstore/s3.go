package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"

	"github.com/SnellerInc/sneller/aws"
	"github.com/SnellerInc/sneller/aws/s3"
)

// S3 is a Bucket backed by the AWS S3 API. Credentials and region are
// resolved once from the ambient environment at construction.
type S3 struct {
	key    *aws.SigningKey
	bucket string
	fs     *s3.BucketFS
}

var _ Bucket = (*S3)(nil)

// NewS3 derives a signing key for the bucket's region from ambient
// credentials and returns a reusable handle.
func NewS3(ctx context.Context, bucket string) (*S3, error) {
	if !s3.ValidBucket(bucket) {
		return nil, fmt.Errorf("%w: %s", s3.ErrInvalidBucket, bucket)
	}
	key, err := aws.AmbientKey("s3", s3.DeriveForBucket(bucket))
	if err != nil {
		return nil, err
	}
	return &S3{
		key:    key,
		bucket: bucket,
		fs:     &s3.BucketFS{Key: key, Bucket: bucket, Ctx: ctx},
	}, nil
}

func (b *S3) Put(ctx context.Context, key string, body []byte) error {
	_, err := b.fs.Put(path.Clean(key), body)
	return err
}

func (b *S3) Get(ctx context.Context, key string) ([]byte, error) {
	f, err := s3.Open(b.key, b.bucket, path.Clean(key), true)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (b *S3) Stat(ctx context.Context, key string) (bool, error) {
	_, err := s3.Stat(b.key, b.bucket, path.Clean(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *S3) List(ctx context.Context, dir string) ([]string, error) {
	var keys []string
	err := fs.WalkDir(b.fs, path.Clean(dir), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			keys = append(keys, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
