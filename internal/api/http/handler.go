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

package http

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	svc "filesearch-gateway/internal/app"
	"filesearch-gateway/internal/gemini"
	"filesearch-gateway/pkg/errors"
	"filesearch-gateway/pkg/metrics"
)

// Handler HTTP 处理器
type Handler struct {
	service *svc.StoreService
}

// NewHandler 创建 HTTP 处理器
func NewHandler(service *svc.StoreService) *Handler {
	return &Handler{service: service}
}

// writeError 按错误类别映射状态码；vendor 非 2xx 错误原样透传
func writeError(ctx *app.RequestContext, err error) {
	var se *gemini.StatusError
	switch {
	case errors.Is(err, errors.ErrInvalidArg), errors.IsConflict(err):
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.IsNotFound(err):
		ctx.JSON(consts.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &se):
		ctx.Data(se.Code, "application/json", []byte(se.Body))
	default:
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// apiKeyFrom 请求携带的 API Key：query 优先，其次表单字段
func apiKeyFrom(ctx *app.RequestContext) string {
	if key := ctx.Query("api_key"); key != "" {
		return key
	}
	return string(ctx.FormValue("api_key"))
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "filesearch-gateway",
	})
}

// Metrics Prometheus 指标导出
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// CreateStore 创建 store
// POST /stores/create
func (h *Handler) CreateStore(c context.Context, ctx *app.RequestContext) {
	var req struct {
		APIKey    string `json:"api_key"`
		StoreName string `json:"store_name"`
	}
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	summary, err := h.service.CreateStore(c, req.APIKey, req.StoreName)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, summary)
}

// ListStores 列出全部 store
// GET /stores?api_key=
func (h *Handler) ListStores(c context.Context, ctx *app.RequestContext) {
	stores, err := h.service.ListStores(c, apiKeyFrom(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{"stores": stores})
}

// DeleteStore 删除 store
// DELETE /stores/:name?api_key=
func (h *Handler) DeleteStore(c context.Context, ctx *app.RequestContext) {
	name := ctx.Param("name")
	if err := h.service.DeleteStore(c, apiKeyFrom(ctx), name); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]string{"deleted_store": name})
}

// UploadFiles 批量上传文件（multipart 表单：api_key + files）
// POST /stores/:name/upload
func (h *Handler) UploadFiles(c context.Context, ctx *app.RequestContext) {
	name := ctx.Param("name")
	form, err := ctx.MultipartForm()
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "multipart form is required"})
		return
	}

	apiKey := apiKeyFrom(ctx)
	headers := form.File["files"]
	files := make([]svc.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "unreadable file: " + fh.Filename})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "unreadable file: " + fh.Filename})
			return
		}
		files = append(files, svc.UploadFile{Name: fh.Filename, Data: data})
	}

	results, err := h.service.UploadFiles(c, apiKey, name, files)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{"results": results})
}

// DeleteDocument 删除已索引文档
// DELETE /stores/:name/documents/:docId?api_key=
func (h *Handler) DeleteDocument(c context.Context, ctx *app.RequestContext) {
	name := ctx.Param("name")
	docID := ctx.Param("docId")
	if err := h.service.DeleteDocument(c, apiKeyFrom(ctx), name, docID); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]string{"deleted_document_id": docID})
}

// Ask 基于 file-search 的问答
// POST /ask
func (h *Handler) Ask(c context.Context, ctx *app.RequestContext) {
	var req struct {
		APIKey       string   `json:"api_key"`
		Question     string   `json:"question"`
		Stores       []string `json:"stores"`
		SystemPrompt string   `json:"system_prompt"`
	}
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	result, err := h.service.Ask(c, req.APIKey, req.Question, req.SystemPrompt, req.Stores)
	if err != nil {
		if !errors.Is(err, errors.ErrInvalidArg) {
			hlog.CtxErrorf(c, "ask failed: %v", err)
		}
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, result)
}

// SyncStore 与 vendor 文档列表对账
// POST /stores/:name/sync
func (h *Handler) SyncStore(c context.Context, ctx *app.RequestContext) {
	name := ctx.Param("name")
	var req struct {
		APIKey string `json:"api_key"`
	}
	// body 可省略，api_key 允许走 query
	_ = ctx.BindJSON(&req)
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = apiKeyFrom(ctx)
	}
	result, err := h.service.SyncStore(c, apiKey, name)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, result)
}
