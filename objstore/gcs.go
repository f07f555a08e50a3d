package objstore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCS is a Bucket backed by Google Cloud Storage, authenticating via
// application default credentials.
type GCS struct {
	bkt *storage.BucketHandle
}

var _ Bucket = (*GCS)(nil)

// NewGCS creates a storage client once and returns a reusable handle.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCS{bkt: client.Bucket(bucket)}, nil
}

func (b *GCS) Put(ctx context.Context, key string, body []byte) error {
	w := b.bkt.Object(key).NewWriter(ctx)
	if _, err := w.Write(body); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (b *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.bkt.Object(key).NewReader(ctx)
	if err != nil {
		return nil, wrapMissing("get", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *GCS) Stat(ctx context.Context, key string) (bool, error) {
	_, err := b.bkt.Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *GCS) List(ctx context.Context, dir string) ([]string, error) {
	prefix := dir
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	it := b.bkt.Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, attrs.Name)
	}
	sort.Strings(keys)
	return keys, nil
}

func wrapMissing(op, key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return &fs.PathError{Op: op, Path: key, Err: fs.ErrNotExist}
	}
	return err
}
