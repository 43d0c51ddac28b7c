package adapters

import (
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/soultalk/voicechat/domain/repositories"
)

const defaultClipCacheSize = 32

// MemoryClipStore keeps the most recently used voice containers in memory.
// Local recordings are stored under generated handles and fetched backend clips
// under their path. Safe for concurrent use.
type MemoryClipStore struct {
	clips  *lru.Cache[string, []byte]
	logger *zap.Logger
}

var _ repositories.ClipStore = (*MemoryClipStore)(nil)

// NewMemoryClipStore creates a store holding up to size containers
func NewMemoryClipStore(size int, logger *zap.Logger) (*MemoryClipStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = defaultClipCacheSize
	}

	store := &MemoryClipStore{logger: logger}
	clips, err := lru.NewWithEvict[string, []byte](size, store.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create clip cache: %w", err)
	}
	store.clips = clips
	return store, nil
}

// Put stores a copy of container under a new local handle
func (m *MemoryClipStore) Put(container []byte) string {
	handle := "local-" + uuid.NewString()
	m.Store(handle, container)
	return handle
}

// Store keeps a copy of container under key
func (m *MemoryClipStore) Store(key string, container []byte) {
	if key == "" {
		return
	}
	clipCopy := make([]byte, len(container))
	copy(clipCopy, container)
	m.clips.Add(key, clipCopy)
}

// Get returns a copy of the container stored under key
func (m *MemoryClipStore) Get(key string) ([]byte, bool) {
	container, ok := m.clips.Get(key)
	if !ok {
		return nil, false
	}
	clipCopy := make([]byte, len(container))
	copy(clipCopy, container)
	return clipCopy, true
}

// Len returns the number of stored containers
func (m *MemoryClipStore) Len() int {
	return m.clips.Len()
}

func (m *MemoryClipStore) onEvict(key string, container []byte) {
	m.logger.Debug("Evicted clip", zap.String("key", key), zap.Int("bytes", len(container)))
}
