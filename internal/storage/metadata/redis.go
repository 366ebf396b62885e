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
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"filesearch-gateway/pkg/config"
	"filesearch-gateway/pkg/errors"
)

// redisStore Redis 实现：每个 FileStore 一个 JSON blob，WATCH/MULTI 做版本校验
type redisStore struct {
	client *redis.Client
	prefix string
}

// redisRecord 存储层载荷，版本随 blob 一起落盘
type redisRecord struct {
	Store   *FileStore `json:"store"`
	Version int64      `json:"version"`
}

// NewRedisStore 创建 Redis 元数据存储并验证连通性
func NewRedisStore(ctx context.Context, cfg config.MetadataConfig) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "fsgw"
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) storeKey(name string) string {
	return s.prefix + ":store:" + name
}

func (s *redisStore) namesKey() string {
	return s.prefix + ":stores"
}

func (s *redisStore) currentKey() string {
	return s.prefix + ":current_store"
}

func (s *redisStore) Get(ctx context.Context, name string) (*FileStore, error) {
	data, err := s.client.Get(ctx, s.storeKey(name)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.Wrapf(errors.ErrNotFound, "store %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("读取 store %q 失败: %w", name, err)
	}
	return decodeRedisRecord(data)
}

func (s *redisStore) Put(ctx context.Context, store *FileStore) error {
	key := s.storeKey(store.StoreName)
	expected := store.Version

	txFn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case stderrors.Is(err, redis.Nil):
			if expected != 0 {
				return errors.Wrapf(errors.ErrNotFound, "store %q", store.StoreName)
			}
		case err != nil:
			return err
		default:
			if expected == 0 {
				return errors.Wrapf(errors.ErrConflict, "store %q", store.StoreName)
			}
			existing, derr := decodeRedisRecord(data)
			if derr != nil {
				return derr
			}
			if existing.Version != expected {
				return errors.Wrapf(errors.ErrVersionMismatch, "store %q: have %d, want %d",
					store.StoreName, existing.Version, expected)
			}
		}

		next := expected + 1
		payload, err := json.Marshal(redisRecord{Store: store, Version: next})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.SAdd(ctx, s.namesKey(), store.StoreName)
			return nil
		})
		if err != nil {
			return err
		}
		store.Version = next
		return nil
	}

	err := s.client.Watch(ctx, txFn, key)
	if stderrors.Is(err, redis.TxFailedErr) {
		// WATCH 期间有并发写，等价于版本冲突
		return errors.Wrapf(errors.ErrVersionMismatch, "store %q", store.StoreName)
	}
	return err
}

func (s *redisStore) Delete(ctx context.Context, name string) error {
	deleted, err := s.client.Del(ctx, s.storeKey(name)).Result()
	if err != nil {
		return fmt.Errorf("删除 store %q 失败: %w", name, err)
	}
	if deleted == 0 {
		return errors.Wrapf(errors.ErrNotFound, "store %q", name)
	}
	return s.client.SRem(ctx, s.namesKey(), name).Err()
}

func (s *redisStore) List(ctx context.Context) ([]*FileStore, error) {
	names, err := s.client.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("列出 store 失败: %w", err)
	}
	sort.Strings(names)
	out := make([]*FileStore, 0, len(names))
	for _, name := range names {
		fs, err := s.Get(ctx, name)
		if errors.IsNotFound(err) {
			// 名字集合与 blob 可能短暂不一致，跳过即可
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
	return out, nil
}

func (s *redisStore) CurrentStore(ctx context.Context) (string, error) {
	name, err := s.client.Get(ctx, s.currentKey()).Result()
	if stderrors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

func (s *redisStore) SetCurrentStore(ctx context.Context, name string) error {
	if name == "" {
		return s.client.Del(ctx, s.currentKey()).Err()
	}
	return s.client.Set(ctx, s.currentKey(), name, 0).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

func decodeRedisRecord(data []byte) (*FileStore, error) {
	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("解析 store 元数据失败: %w", err)
	}
	if rec.Store == nil {
		return nil, fmt.Errorf("store 元数据为空")
	}
	rec.Store.Version = rec.Version
	return rec.Store, nil
}
