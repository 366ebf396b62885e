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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"filesearch-gateway/pkg/config"
	"filesearch-gateway/pkg/errors"
)

// pgStore PostgreSQL 实现：file_stores 表按 store 一行，version 列做乐观并发
type pgStore struct {
	pool *pgxpool.Pool
}

const currentStoreKey = "current_store"

// NewPostgresStore 创建 PostgreSQL 元数据存储并确保表结构
func NewPostgresStore(ctx context.Context, cfg config.MetadataConfig) (Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.PoolSize > 0 {
		pcfg.MaxConns = int32(cfg.PoolSize)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := &pgStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *pgStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS file_stores (
			store_name TEXT PRIMARY KEY,
			payload    JSONB NOT NULL,
			version    BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS gateway_state (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("初始化表结构失败: %w", err)
		}
	}
	return nil
}

func (s *pgStore) Get(ctx context.Context, name string) (*FileStore, error) {
	var payload []byte
	var version int64
	err := s.pool.QueryRow(ctx,
		`SELECT payload, version FROM file_stores WHERE store_name = $1`, name).
		Scan(&payload, &version)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "store %q", name)
	}
	if err != nil {
		return nil, err
	}
	return decodePgPayload(payload, version)
}

func (s *pgStore) Put(ctx context.Context, store *FileStore) error {
	payload, err := json.Marshal(store)
	if err != nil {
		return err
	}

	if store.Version == 0 {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO file_stores (store_name, payload, version) VALUES ($1, $2, 1)
			 ON CONFLICT (store_name) DO NOTHING`,
			store.StoreName, payload)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(errors.ErrConflict, "store %q", store.StoreName)
		}
		store.Version = 1
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE file_stores SET payload = $2, version = version + 1, updated_at = now()
		 WHERE store_name = $1 AND version = $3`,
		store.StoreName, payload, store.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if qerr := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM file_stores WHERE store_name = $1)`,
			store.StoreName).Scan(&exists); qerr == nil && !exists {
			return errors.Wrapf(errors.ErrNotFound, "store %q", store.StoreName)
		}
		return errors.Wrapf(errors.ErrVersionMismatch, "store %q", store.StoreName)
	}
	store.Version++
	return nil
}

func (s *pgStore) Delete(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM file_stores WHERE store_name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errors.ErrNotFound, "store %q", name)
	}
	return nil
}

func (s *pgStore) List(ctx context.Context) ([]*FileStore, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload, version FROM file_stores ORDER BY store_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*FileStore
	for rows.Next() {
		var payload []byte
		var version int64
		if err := rows.Scan(&payload, &version); err != nil {
			return nil, err
		}
		fs, err := decodePgPayload(payload, version)
		if err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}

func (s *pgStore) CurrentStore(ctx context.Context) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM gateway_state WHERE key = $1`, currentStoreKey).Scan(&value)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *pgStore) SetCurrentStore(ctx context.Context, name string) error {
	if name == "" {
		_, err := s.pool.Exec(ctx,
			`DELETE FROM gateway_state WHERE key = $1`, currentStoreKey)
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO gateway_state (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		currentStoreKey, name)
	return err
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}

func decodePgPayload(payload []byte, version int64) (*FileStore, error) {
	var fs FileStore
	if err := json.Unmarshal(payload, &fs); err != nil {
		return nil, fmt.Errorf("解析 store 元数据失败: %w", err)
	}
	fs.Version = version
	return &fs, nil
}
