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

package gemini

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Operation File Search 上传返回的长时操作（LRO）
type Operation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Error    *OperationError    `json:"error,omitempty"`
	Response *OperationResponse `json:"response,omitempty"`
}

// OperationError LRO 失败详情
type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OperationResponse LRO 完成后的载荷；documentName 为入库文档资源名
type OperationResponse struct {
	DocumentName string `json:"documentName"`
}

// DocumentName 返回操作产出的文档资源名，未完成或失败时为空
func (o *Operation) DocumentName() string {
	if o == nil || o.Response == nil {
		return ""
	}
	return o.Response.DocumentName
}

// Document File Search store 内的已索引文档
type Document struct {
	Name        string `json:"name"`        // 资源名，如 fileSearchStores/x/documents/y
	DisplayName string `json:"displayName"` // 上传时的展示名（vendor 侧可能加前缀）
}

// GenerateResult 生成结果：文本与原样透传的 grounding 元数据
type GenerateResult struct {
	Text              string          `json:"text"`
	GroundingMetadata json.RawMessage `json:"grounding_metadata,omitempty"`
}

// StatusError 非 2xx 响应；Code 与 Body 原样保留，供上层按需透传
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini api status %d: %s", e.Code, e.Body)
}

// DocumentIDFromResource 取资源名最后一段作为文档 ID；空资源名返回空串
func DocumentIDFromResource(resource string) string {
	if resource == "" {
		return ""
	}
	idx := strings.LastIndex(resource, "/")
	return resource[idx+1:]
}
