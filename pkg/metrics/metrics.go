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

package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，API 进程注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		VendorRequestDuration, VendorRequestTotal,
		UploadTotal, IndexPollTotal, IndexPollDuration,
		SyncMatchedTotal, StoreSaveConflictTotal,
	)
}

// VendorRequestDuration 调用 Gemini File Search API 的耗时（秒）
var VendorRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "fsgw_vendor_request_duration_seconds",
		Help:    "Gemini File Search API 调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"op"}, // create_store | upload | get_operation | list_documents | delete_document | delete_store | generate
)

// VendorRequestTotal 调用 Gemini File Search API 的次数（按结果）
var VendorRequestTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fsgw_vendor_request_total",
		Help: "Gemini File Search API 调用次数",
	},
	[]string{"op", "outcome"}, // outcome: ok | error
)

// UploadTotal 上传文件数（按提交结果）
var UploadTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fsgw_upload_total",
		Help: "上传文件数（按提交结果）",
	},
	[]string{"outcome"}, // submitted | failed
)

// IndexPollTotal 后台索引轮询结果数
var IndexPollTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fsgw_index_poll_total",
		Help: "后台索引轮询结果数",
	},
	[]string{"outcome"}, // resolved | timeout | error
)

// IndexPollDuration 单个文件后台轮询总耗时（秒）
var IndexPollDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "fsgw_index_poll_duration_seconds",
		Help:    "单个文件后台轮询总耗时（秒）",
		Buckets: []float64{1, 2, 5, 10, 15, 20, 25, 30},
	},
)

// SyncMatchedTotal Sync 对账修复的条目数
var SyncMatchedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "fsgw_sync_matched_total",
		Help: "Sync 对账修复的 FileEntry 条目数",
	},
)

// StoreSaveConflictTotal 元数据保存时的版本冲突次数（CAS 重试前）
var StoreSaveConflictTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "fsgw_store_save_conflict_total",
		Help: "元数据保存版本冲突次数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 路由复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
