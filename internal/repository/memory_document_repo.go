package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/booruvault/internal/model"
)

// MemoryDocumentStore はプロセス内メモリに保持するDocumentStore。
// 開発時の動作確認と STORE_DRIVER=memory で使用する。プロセス終了で内容は失われる。
type MemoryDocumentStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*model.Record
	now         func() time.Time
}

// NewMemoryDocumentStore はMemoryDocumentStoreを生成する。
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		collections: make(map[string]map[string]*model.Record),
		now:         time.Now,
	}
}

// Collection は指定名のコレクションを返す。
func (s *MemoryDocumentStore) Collection(name string) Collection {
	return &memoryCollection{store: s, name: name}
}

// Ping は常に成功する。
func (s *MemoryDocumentStore) Ping(_ context.Context) error { return nil }

// Len はコレクション内のレコード数を返す。
func (s *MemoryDocumentStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

type memoryCollection struct {
	store *MemoryDocumentStore
	name  string
}

// Upsert はドキュメントの複製を保存する。
func (c *memoryCollection) Upsert(ctx context.Context, key string, doc *model.Metadata) error {
	if err := validateKey(c.name, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	record := &model.Record{
		Collection: c.name,
		Key:        key,
		Document:   doc.Clone(),
		UpdatedAt:  c.store.now().UTC(),
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	docs, ok := c.store.collections[c.name]
	if !ok {
		docs = make(map[string]*model.Record)
		c.store.collections[c.name] = docs
	}
	docs[key] = record
	return nil
}

// FindByKey はレコードの複製を返す。見つからない場合はnilを返す。
func (c *memoryCollection) FindByKey(_ context.Context, key string) (*model.Record, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	record, ok := c.store.collections[c.name][key]
	if !ok {
		return nil, nil
	}
	out := *record
	out.Document = record.Document.Clone()
	return &out, nil
}
