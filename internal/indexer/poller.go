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

package indexer

import (
	"context"
	"sync"
	"time"

	"filesearch-gateway/internal/gemini"
	"filesearch-gateway/internal/storage/metadata"
	"filesearch-gateway/pkg/errors"
	"filesearch-gateway/pkg/log"
	"filesearch-gateway/pkg/metrics"
)

// OperationGetter 查询一次挂起索引操作的状态
type OperationGetter interface {
	GetOperation(ctx context.Context, name string) (*gemini.Operation, error)
}

// Task 一条待轮询的索引任务；Ops 由提交方注入（携带其 API Key 的 vendor 客户端）
type Task struct {
	StoreName     string
	DisplayName   string
	OperationName string
	Ops           OperationGetter
}

// Config 轮询器配置
type Config struct {
	PollInterval   time.Duration // 两次查询之间的间隔，<=0 取 2s
	PollTimeout    time.Duration // 单个任务的轮询预算，<=0 取 25s
	MaxConcurrency int           // 并发轮询上限，<=0 取 4
	QueueSize      int           // 任务队列容量，<=0 取 64
}

// Poller 后台索引轮询器：上传请求返回后接管 operation 的收尾。
// 每个任务独立轮询，结果写回元数据；任何失败只记录日志，不影响已返回的请求。
type Poller struct {
	store   metadata.Store
	config  Config
	tasks   chan Task
	stopCh  chan struct{}
	wg      sync.WaitGroup
	limiter chan struct{} // 信号量，限制并发
}

// NewPoller 创建轮询器
func NewPoller(store metadata.Store, config Config) *Poller {
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 25 * time.Second
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	return &Poller{
		store:   store,
		config:  config,
		tasks:   make(chan Task, config.QueueSize),
		stopCh:  make(chan struct{}),
		limiter: make(chan struct{}, config.MaxConcurrency),
	}
}

// Start 启动派发循环
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case task := <-p.tasks:
				p.limiter <- struct{}{}
				p.wg.Add(1)
				go func(t Task) {
					defer p.wg.Done()
					defer func() { <-p.limiter }()
					defer func() {
						if r := recover(); r != nil {
							log.Error("index poll panic",
								"store", t.StoreName, "file", t.DisplayName, "panic", r)
						}
					}()
					p.poll(ctx, t)
				}(task)
			}
		}
	}()
}

// Stop 停止接收新任务并等待在途轮询结束
func (p *Poller) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// Submit 入队一个任务；队列满时丢弃并记录，由 Sync 兜底对账
func (p *Poller) Submit(task Task) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		log.Warn("index poll queue full, task dropped",
			"store", task.StoreName, "file", task.DisplayName)
		metrics.IndexPollTotal.WithLabelValues("dropped").Inc()
		return false
	}
}

// poll 以固定间隔查询 operation 直至落定或预算耗尽
func (p *Poller) poll(ctx context.Context, task Task) {
	start := time.Now()
	deadline := time.NewTimer(p.config.PollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-deadline.C:
			// 预算耗尽：保留 operation_name，等待 Sync 对账收尾
			log.Warn("index poll budget exhausted",
				"store", task.StoreName, "file", task.DisplayName, "operation", task.OperationName)
			metrics.IndexPollTotal.WithLabelValues("timeout").Inc()
			metrics.IndexPollDuration.Observe(time.Since(start).Seconds())
			return
		case <-ticker.C:
			op, err := task.Ops.GetOperation(ctx, task.OperationName)
			if err != nil {
				log.Warn("index poll query failed",
					"store", task.StoreName, "operation", task.OperationName, "error", err)
				continue
			}
			if !op.Done {
				continue
			}
			metrics.IndexPollDuration.Observe(time.Since(start).Seconds())
			if op.Error != nil {
				metrics.IndexPollTotal.WithLabelValues("error").Inc()
				p.record(ctx, task, func(e *metadata.FileEntry) {
					e.GeminiIndexed = false
					e.GeminiError = op.Error.Message
					e.OperationName = ""
				})
				return
			}
			metrics.IndexPollTotal.WithLabelValues("resolved").Inc()
			resource := op.DocumentName()
			p.record(ctx, task, func(e *metadata.FileEntry) {
				// 操作完成但没带回文档资源时不算已索引，留给 sync 兜底
				e.GeminiIndexed = resource != ""
				e.GeminiError = ""
				e.OperationName = ""
				if resource != "" {
					e.DocumentResource = resource
					e.DocumentID = gemini.DocumentIDFromResource(resource)
				}
			})
			return
		}
	}
}

// record 重新加载 store、定位条目并保存；版本冲突时重读重试
func (p *Poller) record(ctx context.Context, task Task, update func(*metadata.FileEntry)) {
	for attempt := 0; attempt < 5; attempt++ {
		fs, err := p.store.Get(ctx, task.StoreName)
		if err != nil {
			// store 在轮询期间被删除属正常情形
			if !errors.IsNotFound(err) {
				log.Error("index poll load store failed", "store", task.StoreName, "error", err)
			}
			return
		}
		found := false
		for i := range fs.Files {
			e := &fs.Files[i]
			if e.OperationName == task.OperationName && e.DisplayName == task.DisplayName {
				update(e)
				found = true
				break
			}
		}
		if !found {
			// 条目已被 Sync 或删除操作处理
			return
		}
		err = p.store.Put(ctx, fs)
		if err == nil {
			return
		}
		if errors.Is(err, errors.ErrVersionMismatch) {
			metrics.StoreSaveConflictTotal.Inc()
			continue
		}
		log.Error("index poll save failed", "store", task.StoreName, "error", err)
		return
	}
	log.Error("index poll save gave up after retries", "store", task.StoreName, "file", task.DisplayName)
}
