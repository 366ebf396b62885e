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
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filesearch-gateway/internal/gemini"
	"filesearch-gateway/internal/indexer"
	"filesearch-gateway/internal/storage/metadata"
	"filesearch-gateway/pkg/errors"
	"filesearch-gateway/pkg/secrets"
)

// fakeVendor 可编程的 VendorClient 测试替身
type fakeVendor struct {
	apiKey string

	createResource string
	createErr      error

	deleteStoreErr error
	deletedStores  []string

	uploadOps  map[string]string // display name → operation name
	uploadErrs map[string]error
	uploaded   []string

	getOps map[string]*gemini.Operation

	docs    []gemini.Document
	listErr error

	deleteDocErr error
	deletedDocs  []string

	genResult *gemini.GenerateResult
	genErr    error
	genCalls  int
	lastQ     string
	lastSys   string
	lastRes   []string
}

func (f *fakeVendor) CreateStore(ctx context.Context, displayName string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	if f.createResource != "" {
		return f.createResource, nil
	}
	return "fileSearchStores/" + displayName, nil
}

func (f *fakeVendor) DeleteStore(ctx context.Context, resourceName string) error {
	f.deletedStores = append(f.deletedStores, resourceName)
	return f.deleteStoreErr
}

func (f *fakeVendor) UploadFile(ctx context.Context, storeResource, displayName, mimeType string, data []byte) (string, error) {
	if err, ok := f.uploadErrs[displayName]; ok {
		return "", err
	}
	f.uploaded = append(f.uploaded, displayName)
	if op, ok := f.uploadOps[displayName]; ok {
		return op, nil
	}
	return "operations/" + displayName, nil
}

func (f *fakeVendor) GetOperation(ctx context.Context, name string) (*gemini.Operation, error) {
	if op, ok := f.getOps[name]; ok {
		return op, nil
	}
	return &gemini.Operation{Name: name, Done: false}, nil
}

func (f *fakeVendor) ListDocuments(ctx context.Context, storeResource string) ([]gemini.Document, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.docs, nil
}

func (f *fakeVendor) DeleteDocument(ctx context.Context, documentResource string) error {
	if f.deleteDocErr != nil {
		return f.deleteDocErr
	}
	f.deletedDocs = append(f.deletedDocs, documentResource)
	return nil
}

func (f *fakeVendor) Generate(ctx context.Context, question, systemPrompt string, storeResources []string) (*gemini.GenerateResult, error) {
	f.genCalls++
	f.lastQ, f.lastSys, f.lastRes = question, systemPrompt, storeResources
	if f.genErr != nil {
		return nil, f.genErr
	}
	if f.genResult != nil {
		return f.genResult, nil
	}
	return &gemini.GenerateResult{Text: "answer"}, nil
}

func newService(vendor *fakeVendor) (*StoreService, *metadata.MemoryStore) {
	meta := metadata.NewMemoryStore()
	factory := func(apiKey string) (VendorClient, error) {
		vendor.apiKey = apiKey
		return vendor, nil
	}
	return NewStoreService(meta, nil, factory, ServiceOptions{}), meta
}

func TestCreateStore(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{}
	svc, meta := newService(vendor)

	summary, err := svc.CreateStore(ctx, "key-1", "docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", summary.StoreName)
	assert.Equal(t, "fileSearchStores/docs", summary.FileSearchStoreName)
	assert.Equal(t, 0, summary.FileCount)
	assert.Equal(t, "key-1", vendor.apiKey)

	cur, err := meta.CurrentStore(ctx)
	require.NoError(t, err)
	assert.Equal(t, "docs", cur)
}

func TestCreateStoreValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(&fakeVendor{})

	_, err := svc.CreateStore(ctx, "key-1", "")
	assert.ErrorIs(t, err, errors.ErrInvalidArg)

	_, err = svc.CreateStore(ctx, "", "docs")
	assert.ErrorIs(t, err, errors.ErrInvalidArg)
}

func TestCreateStoreDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(&fakeVendor{})

	_, err := svc.CreateStore(ctx, "key-1", "docs")
	require.NoError(t, err)

	_, err = svc.CreateStore(ctx, "key-1", "docs")
	assert.True(t, errors.IsConflict(err))
}

func TestCreateStoreVendorError(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(&fakeVendor{createErr: fmt.Errorf("quota exceeded")})

	_, err := svc.CreateStore(ctx, "key-1", "docs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestAPIKeyFallbackFromSecrets(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{}
	meta := metadata.NewMemoryStore()

	sec := secrets.NewMemoryStore()
	require.NoError(t, sec.Set(ctx, "gemini_api_key", "fallback-key"))

	factory := func(apiKey string) (VendorClient, error) {
		vendor.apiKey = apiKey
		return vendor, nil
	}
	svc := NewStoreService(meta, nil, factory, ServiceOptions{
		Secrets:    sec,
		APIKeyName: "gemini_api_key",
	})

	_, err := svc.CreateStore(ctx, "", "docs")
	require.NoError(t, err)
	assert.Equal(t, "fallback-key", vendor.apiKey)
}

func TestListStores(t *testing.T) {
	ctx := context.Background()
	svc, meta := newService(&fakeVendor{})

	_, err := svc.CreateStore(ctx, "key-1", "beta")
	require.NoError(t, err)
	_, err = svc.CreateStore(ctx, "key-1", "alpha")
	require.NoError(t, err)

	fs, err := meta.Get(ctx, "alpha")
	require.NoError(t, err)
	fs.Files = append(fs.Files, metadata.FileEntry{DisplayName: "a.txt"})
	require.NoError(t, meta.Put(ctx, fs))

	stores, err := svc.ListStores(ctx, "key-1")
	require.NoError(t, err)
	require.Len(t, stores, 2)
	assert.Equal(t, "alpha", stores[0].StoreName)
	assert.Equal(t, 1, stores[0].FileCount)
	assert.Equal(t, "beta", stores[1].StoreName)
	assert.Equal(t, 0, stores[1].FileCount)

	_, err = svc.ListStores(ctx, "")
	assert.ErrorIs(t, err, errors.ErrInvalidArg)
}

func TestDeleteStore(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{deleteStoreErr: fmt.Errorf("vendor unavailable")}
	svc, meta := newService(vendor)

	_, err := svc.CreateStore(ctx, "key-1", "docs")
	require.NoError(t, err)

	// vendor 删除失败不影响本地删除
	require.NoError(t, svc.DeleteStore(ctx, "key-1", "docs"))
	assert.Equal(t, []string{"fileSearchStores/docs"}, vendor.deletedStores)

	_, err = meta.Get(ctx, "docs")
	assert.True(t, errors.IsNotFound(err))

	cur, err := meta.CurrentStore(ctx)
	require.NoError(t, err)
	assert.Empty(t, cur)

	err = svc.DeleteStore(ctx, "key-1", "docs")
	assert.True(t, errors.IsNotFound(err))
}

func TestUploadFiles(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{
		uploadErrs: map[string]error{"bad.bin": fmt.Errorf("unsupported")},
	}
	svc, meta := newService(vendor)

	_, err := svc.CreateStore(ctx, "key-1", "docs")
	require.NoError(t, err)

	results, err := svc.UploadFiles(ctx, "key-1", "docs", []UploadFile{
		{Name: "  annual report.pdf ", Data: []byte("pdf-bytes")},
		{Name: "bad.bin", Data: []byte("junk")},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "annual_report.pdf", results[0].DisplayName)
	assert.True(t, results[0].Uploaded)
	assert.False(t, results[0].Indexed)
	assert.Equal(t, "operations/annual_report.pdf", results[0].OperationName)
	assert.Equal(t, int64(len("pdf-bytes")), results[0].SizeBytes)

	assert.Equal(t, "bad.bin", results[1].DisplayName)
	assert.False(t, results[1].Uploaded)
	assert.Equal(t, "unsupported", results[1].GeminiError)

	// 仅提交成功的文件被登记
	fs, err := meta.Get(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, fs.Files, 1)
	entry := fs.Files[0]
	assert.Equal(t, "annual_report.pdf", entry.DisplayName)
	assert.False(t, entry.GeminiIndexed)
	assert.Equal(t, "operations/annual_report.pdf", entry.OperationName)
}

func TestUploadFilesValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(&fakeVendor{})

	_, err := svc.UploadFiles(ctx, "key-1", "docs", nil)
	assert.ErrorIs(t, err, errors.ErrInvalidArg)

	_, err = svc.UploadFiles(ctx, "key-1", "missing", []UploadFile{{Name: "a.txt"}})
	assert.True(t, errors.IsNotFound(err))
}

func TestUploadFilesBackgroundIndexing(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{
		getOps: map[string]*gemini.Operation{
			"operations/a.txt": {Name: "operations/a.txt", Done: true,
				Response: &gemini.OperationResponse{DocumentName: "fileSearchStores/docs/documents/doc-1"}},
		},
	}
	meta := metadata.NewMemoryStore()
	poller := indexer.NewPoller(meta, indexer.Config{PollInterval: 10 * time.Millisecond, PollTimeout: time.Second})
	poller.Start(ctx)
	defer poller.Stop()

	factory := func(apiKey string) (VendorClient, error) { return vendor, nil }
	svc := NewStoreService(meta, poller, factory, ServiceOptions{})

	_, err := svc.CreateStore(ctx, "key-1", "docs")
	require.NoError(t, err)
	_, err = svc.UploadFiles(ctx, "key-1", "docs", []UploadFile{{Name: "a.txt", Data: []byte("x")}})
	require.NoError(t, err)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		fs, err := meta.Get(ctx, "docs")
		require.NoError(t, err)
		if fs.Files[0].GeminiIndexed {
			assert.Equal(t, "doc-1", fs.Files[0].DocumentID)
			assert.Empty(t, fs.Files[0].OperationName)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("file never marked indexed")
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{}
	svc, meta := newService(vendor)

	_, err := svc.CreateStore(ctx, "key-1", "docs")
	require.NoError(t, err)

	fs, err := meta.Get(ctx, "docs")
	require.NoError(t, err)
	fs.Files = []metadata.FileEntry{
		{DisplayName: "a.txt", DocumentID: "doc-1"},
		{DisplayName: "b.txt", DocumentID: "doc-2"},
	}
	require.NoError(t, meta.Put(ctx, fs))

	require.NoError(t, svc.DeleteDocument(ctx, "key-1", "docs", "doc-1"))
	assert.Equal(t, []string{"fileSearchStores/docs/documents/doc-1"}, vendor.deletedDocs)

	fs, err = meta.Get(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, fs.Files, 1)
	assert.Equal(t, "doc-2", fs.Files[0].DocumentID)
}

func TestDeleteDocumentVendorStatusRelayed(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{deleteDocErr: &gemini.StatusError{Code: 404, Body: `{"error":"doc gone"}`}}
	svc, _ := newService(vendor)

	_, err := svc.CreateStore(ctx, "key-1", "docs")
	require.NoError(t, err)

	err = svc.DeleteDocument(ctx, "key-1", "docs", "doc-x")
	var se *gemini.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 404, se.Code)
}

func TestAsk(t *testing.T) {
	ctx := context.Background()
	grounding := json.RawMessage(`{"chunks":[1]}`)
	vendor := &fakeVendor{genResult: &gemini.GenerateResult{Text: "42", GroundingMetadata: grounding}}
	svc, _ := newService(vendor)

	_, err := svc.CreateStore(ctx, "key-1", "docs")
	require.NoError(t, err)

	// 未知 store 名静默跳过
	res, err := svc.Ask(ctx, "key-1", "what is the answer", "", []string{"docs", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, "42", res.ResponseText)
	assert.JSONEq(t, `{"chunks":[1]}`, string(res.GroundingMetadata))
	assert.Equal(t, []string{"fileSearchStores/docs"}, vendor.lastRes)
	assert.NotEmpty(t, vendor.lastSys)
}

func TestAskDefaultsToCurrentStore(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{}
	svc, _ := newService(vendor)

	_, err := svc.CreateStore(ctx, "key-1", "docs")
	require.NoError(t, err)

	_, err = svc.Ask(ctx, "key-1", "q", "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"fileSearchStores/docs"}, vendor.lastRes)
}

func TestAskValidation(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{}
	svc, _ := newService(vendor)

	_, err := svc.Ask(ctx, "key-1", "", "", []string{"docs"})
	assert.ErrorIs(t, err, errors.ErrInvalidArg)

	// 无可解析 store 时不发 vendor 请求
	_, err = svc.Ask(ctx, "key-1", "q", "", []string{"ghost"})
	assert.ErrorIs(t, err, errors.ErrInvalidArg)
	assert.Zero(t, vendor.genCalls)
}

func TestSyncStoreExactBeforeSubstring(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{docs: []gemini.Document{
		{Name: "fileSearchStores/docs/documents/report.pdf-4f2a", DisplayName: "Quarterly Review"},
		{Name: "fileSearchStores/docs/documents/d-exact", DisplayName: "report.pdf"},
	}}
	svc, meta := newService(vendor)

	_, err := svc.CreateStore(ctx, "key-1", "docs")
	require.NoError(t, err)

	fs, err := meta.Get(ctx, "docs")
	require.NoError(t, err)
	fs.Files = []metadata.FileEntry{
		{DisplayName: "report.pdf", OperationName: "operations/op-1"},
		{DisplayName: "report.pdf", OperationName: "operations/op-2"},
	}
	require.NoError(t, meta.Put(ctx, fs))

	res, err := svc.SyncStore(ctx, "key-1", "docs")
	require.NoError(t, err)
	assert.Equal(t, 2, res.UpdatedCount)
	assert.Equal(t, 2, res.TotalRemoteDocuments)

	fs, err = meta.Get(ctx, "docs")
	require.NoError(t, err)
	// 第一个条目拿到全等匹配，第二个走资源名包含回退；每个远端文档只消费一次
	assert.Equal(t, "d-exact", fs.Files[0].DocumentID)
	assert.Equal(t, "report.pdf-4f2a", fs.Files[1].DocumentID)
	for _, e := range fs.Files {
		assert.True(t, e.GeminiIndexed)
		assert.Empty(t, e.OperationName)
	}
}

func TestSyncStoreMatchesByResourceName(t *testing.T) {
	ctx := context.Background()
	// vendor 改写了展示名，但资源路径里仍嵌着原始文件名
	vendor := &fakeVendor{docs: []gemini.Document{
		{Name: "fileSearchStores/docs/documents/report.pdf-4f2a", DisplayName: "Quarterly Review"},
	}}
	svc, meta := newService(vendor)

	_, err := svc.CreateStore(ctx, "key-1", "docs")
	require.NoError(t, err)

	fs, err := meta.Get(ctx, "docs")
	require.NoError(t, err)
	fs.Files = []metadata.FileEntry{
		{DisplayName: "report.pdf", OperationName: "operations/op-1"},
	}
	require.NoError(t, meta.Put(ctx, fs))

	res, err := svc.SyncStore(ctx, "key-1", "docs")
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)

	fs, err = meta.Get(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, "fileSearchStores/docs/documents/report.pdf-4f2a", fs.Files[0].DocumentResource)
	assert.Equal(t, "report.pdf-4f2a", fs.Files[0].DocumentID)
	assert.True(t, fs.Files[0].GeminiIndexed)
	assert.Empty(t, fs.Files[0].OperationName)
}

func TestSyncStoreSkipsEntriesWithDocumentID(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{docs: []gemini.Document{
		{Name: "fileSearchStores/docs/documents/d-1", DisplayName: "a.txt"},
	}}
	svc, meta := newService(vendor)

	_, err := svc.CreateStore(ctx, "key-1", "docs")
	require.NoError(t, err)

	fs, err := meta.Get(ctx, "docs")
	require.NoError(t, err)
	fs.Files = []metadata.FileEntry{
		{DisplayName: "a.txt", DocumentID: "existing", GeminiIndexed: true},
	}
	require.NoError(t, meta.Put(ctx, fs))

	res, err := svc.SyncStore(ctx, "key-1", "docs")
	require.NoError(t, err)
	assert.Equal(t, 0, res.UpdatedCount)
	assert.Equal(t, 1, res.TotalRemoteDocuments)

	fs, err = meta.Get(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, "existing", fs.Files[0].DocumentID)
}

func TestSyncStoreListErrorTreatedAsEmpty(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{listErr: fmt.Errorf("backend down")}
	svc, _ := newService(vendor)

	_, err := svc.CreateStore(ctx, "key-1", "docs")
	require.NoError(t, err)

	res, err := svc.SyncStore(ctx, "key-1", "docs")
	require.NoError(t, err)
	assert.Equal(t, 0, res.UpdatedCount)
	assert.Equal(t, 0, res.TotalRemoteDocuments)
}

func TestSyncStoreUnknownStore(t *testing.T) {
	svc, _ := newService(&fakeVendor{})
	_, err := svc.SyncStore(context.Background(), "key-1", "ghost")
	assert.True(t, errors.IsNotFound(err))
}
