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

import "encoding/json"

// StoreSummary store 列表项
type StoreSummary struct {
	StoreName           string `json:"store_name"`
	FileSearchStoreName string `json:"file_search_store_name"`
	CreatedAt           string `json:"created_at"`
	FileCount           int    `json:"file_count"`
}

// UploadFile 一次上传请求中的单个文件
type UploadFile struct {
	Name string
	Data []byte
}

// UploadResult 单个文件的上传结果；Indexed 在响应时刻恒为 false（后台收尾）
type UploadResult struct {
	DisplayName   string `json:"display_name"`
	Uploaded      bool   `json:"uploaded"`
	Indexed       bool   `json:"indexed"`
	SizeBytes     int64  `json:"size_bytes,omitempty"`
	OperationName string `json:"operation_name,omitempty"`
	GeminiError   string `json:"gemini_error,omitempty"`
}

// AskResult 问答结果；GroundingMetadata 原样透传 vendor 返回
type AskResult struct {
	ResponseText      string          `json:"response_text"`
	GroundingMetadata json.RawMessage `json:"grounding_metadata,omitempty"`
}

// SyncResult 对账结果
type SyncResult struct {
	UpdatedCount         int `json:"updated_count"`
	TotalRemoteDocuments int `json:"total_remote_documents"`
}
