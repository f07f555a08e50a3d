package objstore

import (
	"context"
	"io/fs"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Bucket used in tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

var _ Bucket = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{objects: map[string][]byte{}}
}

// Len returns the number of stored objects.
func (b *Memory) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

func (b *Memory) Put(ctx context.Context, key string, body []byte) error {
	cp := make([]byte, len(body))
	copy(cp, body)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = cp
	return nil
}

func (b *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.objects[key]
	if !ok {
		return nil, &fs.PathError{Op: "get", Path: key, Err: fs.ErrNotExist}
	}
	cp := make([]byte, len(body))
	copy(cp, body)
	return cp, nil
}

func (b *Memory) Stat(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok, nil
}

func (b *Memory) List(ctx context.Context, dir string) ([]string, error) {
	prefix := dir
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
