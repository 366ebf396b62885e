// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metadata

import (
	"context"
	"sort"
	"sync"

	"filesearch-gateway/pkg/errors"
)

// MemoryStore 内存元数据存储实现
type MemoryStore struct {
	mu      sync.RWMutex
	stores  map[string]*FileStore
	current string
}

// NewMemoryStore 创建内存元数据存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stores: make(map[string]*FileStore),
	}
}

// Get 按名获取
func (s *MemoryStore) Get(ctx context.Context, name string) (*FileStore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fs, exists := s.stores[name]
	if !exists {
		return nil, errors.Wrapf(errors.ErrNotFound, "store %q", name)
	}
	return fs.Clone(), nil
}

// Put 保存；Version 语义见接口注释
func (s *MemoryStore) Put(ctx context.Context, store *FileStore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.stores[store.StoreName]
	if store.Version == 0 {
		if exists {
			return errors.Wrapf(errors.ErrConflict, "store %q", store.StoreName)
		}
		store.Version = 1
		s.stores[store.StoreName] = store.Clone()
		return nil
	}
	if !exists {
		return errors.Wrapf(errors.ErrNotFound, "store %q", store.StoreName)
	}
	if existing.Version != store.Version {
		return errors.Wrapf(errors.ErrVersionMismatch, "store %q: have %d, want %d",
			store.StoreName, existing.Version, store.Version)
	}
	store.Version++
	s.stores[store.StoreName] = store.Clone()
	return nil
}

// Delete 按名删除
func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stores[name]; !exists {
		return errors.Wrapf(errors.ErrNotFound, "store %q", name)
	}
	delete(s.stores, name)
	return nil
}

// List 返回全部 store，按名排序保证稳定输出
func (s *MemoryStore) List(ctx context.Context) ([]*FileStore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*FileStore, 0, len(s.stores))
	for _, fs := range s.stores {
		out = append(out, fs.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoreName < out[j].StoreName })
	return out, nil
}

// CurrentStore 返回最近创建的 store 名
func (s *MemoryStore) CurrentStore(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

// SetCurrentStore 设置最近创建的 store 名
func (s *MemoryStore) SetCurrentStore(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = name
	return nil
}

// Close 无连接可关
func (s *MemoryStore) Close() error {
	return nil
}
