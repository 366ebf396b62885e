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

package app

import (
	"context"
	"strings"
	"time"

	"filesearch-gateway/internal/gemini"
	"filesearch-gateway/internal/indexer"
	"filesearch-gateway/internal/storage/metadata"
	"filesearch-gateway/pkg/errors"
	"filesearch-gateway/pkg/log"
	"filesearch-gateway/pkg/metrics"
	"filesearch-gateway/pkg/secrets"
	"filesearch-gateway/pkg/utils"
)

// VendorClient File Search vendor 操作集合；按请求方 API Key 创建
type VendorClient interface {
	CreateStore(ctx context.Context, displayName string) (string, error)
	DeleteStore(ctx context.Context, resourceName string) error
	UploadFile(ctx context.Context, storeResource, displayName, mimeType string, data []byte) (string, error)
	GetOperation(ctx context.Context, name string) (*gemini.Operation, error)
	ListDocuments(ctx context.Context, storeResource string) ([]gemini.Document, error)
	DeleteDocument(ctx context.Context, documentResource string) error
	Generate(ctx context.Context, question, systemPrompt string, storeResources []string) (*gemini.GenerateResult, error)
}

// ClientFactory 按 API Key 构造 VendorClient
type ClientFactory func(apiKey string) (VendorClient, error)

// ServiceOptions StoreService 可选依赖
type ServiceOptions struct {
	Secrets      secrets.Store // 请求未携带 API Key 时的兜底来源，可为 nil
	APIKeyName   string        // 兜底 key 在 Secrets 中的名字
	SystemPrompt string        // ask 默认 system prompt，空则用内置
}

const defaultSystemPrompt = "Answer strictly from the provided document stores. " +
	"If the stores do not contain the answer, say so."

// StoreService store 编排服务：请求同步路径 + 后台索引收尾的提交方
type StoreService struct {
	meta    metadata.Store
	poller  *indexer.Poller
	factory ClientFactory
	opts    ServiceOptions
}

// NewStoreService 创建服务；factory 必填
func NewStoreService(meta metadata.Store, poller *indexer.Poller, factory ClientFactory, opts ServiceOptions) *StoreService {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	return &StoreService{meta: meta, poller: poller, factory: factory, opts: opts}
}

// NewStoreServiceFromBootstrap 用 Bootstrap 与 Gemini 配置装配服务
func NewStoreServiceFromBootstrap(b *Bootstrap) *StoreService {
	gcfg := b.Config.Gemini
	factory := func(apiKey string) (VendorClient, error) {
		return gemini.NewClient(apiKey, gemini.Options{
			BaseURL:       gcfg.BaseURL,
			UploadBaseURL: gcfg.UploadBaseURL,
			Model:         gcfg.Model,
			Timeout:       parseDurationOr(gcfg.Timeout, 0),
			RetryCount:    gcfg.RetryCount,
		})
	}
	return NewStoreService(b.MetadataStore, b.Poller, factory, ServiceOptions{
		Secrets:      b.Secrets,
		APIKeyName:   b.Config.Secrets.APIKeyName,
		SystemPrompt: gcfg.SystemPrompt,
	})
}

// resolveAPIKey 请求优先；未携带且配置了 secrets 兜底时从兜底读取
func (s *StoreService) resolveAPIKey(ctx context.Context, apiKey string) (string, error) {
	if apiKey != "" {
		return apiKey, nil
	}
	if s.opts.Secrets != nil && s.opts.APIKeyName != "" {
		key, err := s.opts.Secrets.Get(ctx, s.opts.APIKeyName)
		if err == nil && key != "" {
			return key, nil
		}
	}
	return "", errors.Wrap(errors.ErrInvalidArg, "api_key is required")
}

func (s *StoreService) clientFor(ctx context.Context, apiKey string) (VendorClient, error) {
	key, err := s.resolveAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return s.factory(key)
}

// CreateStore 创建 vendor store 并登记本地元数据；重名返回 ErrConflict
func (s *StoreService) CreateStore(ctx context.Context, apiKey, storeName string) (*StoreSummary, error) {
	if storeName == "" {
		return nil, errors.Wrap(errors.ErrInvalidArg, "store_name is required")
	}
	client, err := s.clientFor(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if _, err := s.meta.Get(ctx, storeName); err == nil {
		return nil, errors.Wrapf(errors.ErrConflict, "store %q", storeName)
	} else if !errors.IsNotFound(err) {
		return nil, err
	}

	resource, err := client.CreateStore(ctx, storeName)
	if err != nil {
		return nil, errors.Wrap(err, "create vendor store")
	}

	fs := &metadata.FileStore{
		StoreName:           storeName,
		FileSearchStoreName: resource,
		CreatedAt:           time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.meta.Put(ctx, fs); err != nil {
		return nil, err
	}
	if err := s.meta.SetCurrentStore(ctx, storeName); err != nil {
		log.Warn("set current store failed", "store", storeName, "error", err)
	}
	return &StoreSummary{
		StoreName:           fs.StoreName,
		FileSearchStoreName: fs.FileSearchStoreName,
		CreatedAt:           fs.CreatedAt,
	}, nil
}

// ListStores 返回全部 store 概要；api_key 仅校验存在，不发 vendor 请求
func (s *StoreService) ListStores(ctx context.Context, apiKey string) ([]StoreSummary, error) {
	if _, err := s.resolveAPIKey(ctx, apiKey); err != nil {
		return nil, err
	}
	stores, err := s.meta.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]StoreSummary, 0, len(stores))
	for _, fs := range stores {
		out = append(out, StoreSummary{
			StoreName:           fs.StoreName,
			FileSearchStoreName: fs.FileSearchStoreName,
			CreatedAt:           fs.CreatedAt,
			FileCount:           len(fs.Files),
		})
	}
	return out, nil
}

// DeleteStore 删除 store：vendor 删除尽力而为，本地删除为准
func (s *StoreService) DeleteStore(ctx context.Context, apiKey, storeName string) error {
	client, err := s.clientFor(ctx, apiKey)
	if err != nil {
		return err
	}
	fs, err := s.meta.Get(ctx, storeName)
	if err != nil {
		return err
	}

	if err := client.DeleteStore(ctx, fs.FileSearchStoreName); err != nil {
		log.Warn("vendor store delete failed, removing local record anyway",
			"store", storeName, "error", err)
	}
	if err := s.meta.Delete(ctx, storeName); err != nil && !errors.IsNotFound(err) {
		return err
	}
	if cur, err := s.meta.CurrentStore(ctx); err == nil && cur == storeName {
		if err := s.meta.SetCurrentStore(ctx, ""); err != nil {
			log.Warn("clear current store failed", "store", storeName, "error", err)
		}
	}
	return nil
}

// UploadFiles 批量上传：同步只提交，立即返回；索引结果由后台轮询写回
func (s *StoreService) UploadFiles(ctx context.Context, apiKey, storeName string, files []UploadFile) ([]UploadResult, error) {
	if len(files) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidArg, "no files provided")
	}
	client, err := s.clientFor(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	fs, err := s.meta.Get(ctx, storeName)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	results := make([]UploadResult, 0, len(files))
	var entries []metadata.FileEntry
	var tasks []indexer.Task

	for _, f := range files {
		displayName := utils.CleanFilename(f.Name)
		mimeType := utils.MIMETypeFor(displayName)

		opName, err := client.UploadFile(ctx, fs.FileSearchStoreName, displayName, mimeType, f.Data)
		if err != nil {
			metrics.UploadTotal.WithLabelValues("failed").Inc()
			log.Warn("file upload failed", "store", storeName, "file", displayName, "error", err)
			results = append(results, UploadResult{
				DisplayName: displayName,
				GeminiError: err.Error(),
			})
			continue
		}
		metrics.UploadTotal.WithLabelValues("submitted").Inc()
		entries = append(entries, metadata.FileEntry{
			DisplayName:   displayName,
			SizeBytes:     int64(len(f.Data)),
			UploadedAt:    now,
			OperationName: opName,
		})
		tasks = append(tasks, indexer.Task{
			StoreName:     storeName,
			DisplayName:   displayName,
			OperationName: opName,
			Ops:           client,
		})
		results = append(results, UploadResult{
			DisplayName:   displayName,
			Uploaded:      true,
			SizeBytes:     int64(len(f.Data)),
			OperationName: opName,
		})
	}

	if len(entries) > 0 {
		err := s.updateStore(ctx, storeName, func(fresh *metadata.FileStore) {
			fresh.Files = append(fresh.Files, entries...)
		})
		if err != nil {
			return nil, err
		}
		if s.poller != nil {
			for _, t := range tasks {
				s.poller.Submit(t)
			}
		}
	}
	return results, nil
}

// DeleteDocument 删除已索引文档并移除对应本地条目；vendor 非 2xx 错误原样上抛
func (s *StoreService) DeleteDocument(ctx context.Context, apiKey, storeName, documentID string) error {
	if documentID == "" {
		return errors.Wrap(errors.ErrInvalidArg, "document id is required")
	}
	client, err := s.clientFor(ctx, apiKey)
	if err != nil {
		return err
	}
	fs, err := s.meta.Get(ctx, storeName)
	if err != nil {
		return err
	}

	resource := fs.FileSearchStoreName + "/documents/" + documentID
	if err := client.DeleteDocument(ctx, resource); err != nil {
		return err
	}
	return s.updateStore(ctx, storeName, func(fresh *metadata.FileStore) {
		kept := fresh.Files[:0]
		for _, e := range fresh.Files {
			if e.DocumentID != documentID {
				kept = append(kept, e)
			}
		}
		fresh.Files = kept
	})
}

// Ask 以 file-search 工具对给定 store 提问；stores 为空时回退到最近创建的 store
func (s *StoreService) Ask(ctx context.Context, apiKey, question, systemPrompt string, storeNames []string) (*AskResult, error) {
	if question == "" {
		return nil, errors.Wrap(errors.ErrInvalidArg, "question is required")
	}
	client, err := s.clientFor(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	if len(storeNames) == 0 {
		if cur, err := s.meta.CurrentStore(ctx); err == nil && cur != "" {
			storeNames = []string{cur}
		}
	}

	var resources []string
	for _, name := range storeNames {
		fs, err := s.meta.Get(ctx, name)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		resources = append(resources, fs.FileSearchStoreName)
	}
	if len(resources) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidArg, "no resolvable stores")
	}

	if systemPrompt == "" {
		systemPrompt = s.opts.SystemPrompt
	}
	result, err := client.Generate(ctx, question, systemPrompt, resources)
	if err != nil {
		return nil, errors.Wrap(err, "generate answer")
	}
	return &AskResult{
		ResponseText:      result.Text,
		GroundingMetadata: result.GroundingMetadata,
	}, nil
}

// SyncStore 以 vendor 文档列表对账本地元数据，补齐缺失的 document_id
func (s *StoreService) SyncStore(ctx context.Context, apiKey, storeName string) (*SyncResult, error) {
	client, err := s.clientFor(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	fs, err := s.meta.Get(ctx, storeName)
	if err != nil {
		return nil, err
	}

	docs, err := client.ListDocuments(ctx, fs.FileSearchStoreName)
	if err != nil {
		// 对账从不失败：取不到远端列表就按空列表处理
		log.Warn("list vendor documents failed", "store", storeName, "error", err)
		docs = nil
	}

	updated := 0
	err = s.updateStore(ctx, storeName, func(fresh *metadata.FileStore) {
		updated = matchRemoteDocuments(fresh, docs)
	})
	if err != nil {
		return nil, err
	}
	if updated > 0 {
		metrics.SyncMatchedTotal.Add(float64(updated))
	}
	return &SyncResult{UpdatedCount: updated, TotalRemoteDocuments: len(docs)}, nil
}

// matchRemoteDocuments 把远端文档匹配到缺 document_id 的本地条目。
// 先做 display_name 全等，再做远端资源名包含本地名的回退；每个远端文档至多被消费一次，
// 同一规则内按文件顺序取第一个未匹配条目。返回修复条目数。
func matchRemoteDocuments(fs *metadata.FileStore, docs []gemini.Document) int {
	consumed := make([]bool, len(docs))
	updated := 0

	apply := func(e *metadata.FileEntry, d gemini.Document) {
		e.DocumentResource = d.Name
		e.DocumentID = gemini.DocumentIDFromResource(d.Name)
		e.GeminiIndexed = true
		e.OperationName = ""
		updated++
	}

	for i := range fs.Files {
		e := &fs.Files[i]
		if e.DocumentID != "" {
			continue
		}
		for j, d := range docs {
			if !consumed[j] && d.DisplayName == e.DisplayName {
				consumed[j] = true
				apply(e, d)
				break
			}
		}
	}
	for i := range fs.Files {
		e := &fs.Files[i]
		if e.DocumentID != "" {
			continue
		}
		for j, d := range docs {
			// 回退看资源名：vendor 可能重写展示名，但资源路径仍可能嵌着原文件名
			if !consumed[j] && e.DisplayName != "" && strings.Contains(d.Name, e.DisplayName) {
				consumed[j] = true
				apply(e, d)
				break
			}
		}
	}
	return updated
}

// updateStore 读-改-写，版本冲突时重读重试
func (s *StoreService) updateStore(ctx context.Context, name string, mutate func(*metadata.FileStore)) error {
	for attempt := 0; attempt < 5; attempt++ {
		fs, err := s.meta.Get(ctx, name)
		if err != nil {
			return err
		}
		mutate(fs)
		err = s.meta.Put(ctx, fs)
		if err == nil {
			return nil
		}
		if errors.Is(err, errors.ErrVersionMismatch) {
			metrics.StoreSaveConflictTotal.Inc()
			continue
		}
		return err
	}
	return errors.Wrapf(errors.ErrVersionMismatch, "store %q: save retries exhausted", name)
}
