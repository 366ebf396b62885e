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
)

// Store 店面元数据存储接口；Put 带乐观版本校验
type Store interface {
	// Get 按 store 名获取；不存在返回 errors.ErrNotFound
	Get(ctx context.Context, name string) (*FileStore, error)
	// Put 保存整个 FileStore。Version==0 视为新建（已存在返回 ErrConflict）；
	// 否则要求与存储中版本一致（不一致返回 ErrVersionMismatch），成功后递增 store.Version
	Put(ctx context.Context, store *FileStore) error
	// Delete 按名删除；不存在返回 ErrNotFound
	Delete(ctx context.Context, name string) error
	// List 返回全部 FileStore
	List(ctx context.Context) ([]*FileStore, error)
	// CurrentStore 返回最近创建的 store 名；无则空串
	CurrentStore(ctx context.Context) (string, error)
	// SetCurrentStore 设置最近创建的 store 名；空串表示清除
	SetCurrentStore(ctx context.Context, name string) error
	// Close 关闭存储连接
	Close() error
}

// FileStore 一个文档集合的本地元数据；StoreName 为唯一键
type FileStore struct {
	StoreName           string      `json:"store_name"`
	FileSearchStoreName string      `json:"file_search_store_name"` // vendor 资源名，创建后不变
	CreatedAt           string      `json:"created_at"`             // RFC3339 UTC
	Files               []FileEntry `json:"files"`

	// Version 乐观并发令牌，由存储层维护，不序列化给调用方
	Version int64 `json:"-"`
}

// FileEntry 单个上传文件的本地状态
type FileEntry struct {
	DisplayName      string `json:"display_name"` // 已经过 CleanFilename 规整
	SizeBytes        int64  `json:"size_bytes"`
	UploadedAt       string `json:"uploaded_at"`
	GeminiIndexed    bool   `json:"gemini_indexed"`
	DocumentResource string `json:"document_resource,omitempty"`
	DocumentID       string `json:"document_id,omitempty"`
	GeminiError      string `json:"gemini_error,omitempty"`
	// OperationName 仅在索引未落定期间存在；落定后清空
	OperationName string `json:"operation_name,omitempty"`
}

// Clone 深拷贝，避免调用方与存储内部共享切片
func (s *FileStore) Clone() *FileStore {
	if s == nil {
		return nil
	}
	out := *s
	out.Files = make([]FileEntry, len(s.Files))
	copy(out.Files, s.Files)
	return &out
}
