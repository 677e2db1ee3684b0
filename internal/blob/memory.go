package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// Memory is an in-process store for tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return Info{}, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, readerWithContext(ctx, r)); err != nil {
		return Info{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[k]; exists {
		return Info{}, fmt.Errorf("blob %s already exists", k)
	}
	m.objects[k] = buf.Bytes()
	return Info{Key: k, Ref: "mem://" + k, Size: int64(buf.Len()), ContentType: opts.ContentType}, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Keys returns the stored keys.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
