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
	"fmt"
	"time"

	"filesearch-gateway/internal/indexer"
	"filesearch-gateway/internal/storage/metadata"
	"filesearch-gateway/pkg/config"
	"filesearch-gateway/pkg/log"
	"filesearch-gateway/pkg/secrets"
)

// Bootstrap 统一初始化：供 api 与 cli 复用，避免在 cmd 内写业务装配
type Bootstrap struct {
	Config        *config.Config
	Logger        *log.Logger
	MetadataStore metadata.Store
	Secrets       secrets.Store
	Poller        *indexer.Poller
}

// NewBootstrap 根据配置创建 Bootstrap（日志/元数据存储/密钥兜底/轮询器）
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	log.SetDefault(logger)

	metaStore, err := metadata.NewStore(ctx, cfg.Storage.Metadata)
	if err != nil {
		return nil, fmt.Errorf("初始化元数据存储失败: %w", err)
	}

	// secrets 仅在配置了 provider 时启用，作为请求未携带 API Key 的兜底
	var secretStore secrets.Store
	if cfg.Secrets.Provider != "" {
		secretStore, err = secrets.NewStore(secrets.Config{
			Provider: cfg.Secrets.Provider,
			Config:   cfg.Secrets.Config,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化密钥存储失败: %w", err)
		}
	}

	poller := indexer.NewPoller(metaStore, indexer.Config{
		PollInterval:   parseDurationOr(cfg.Indexer.PollInterval, 2*time.Second),
		PollTimeout:    parseDurationOr(cfg.Indexer.PollTimeout, 25*time.Second),
		MaxConcurrency: cfg.Indexer.MaxConcurrency,
		QueueSize:      cfg.Indexer.QueueSize,
	})

	return &Bootstrap{
		Config:        cfg,
		Logger:        logger,
		MetadataStore: metaStore,
		Secrets:       secretStore,
		Poller:        poller,
	}, nil
}

// Close 释放 Bootstrap 持有的资源
func (b *Bootstrap) Close() error {
	if b.Poller != nil {
		b.Poller.Stop()
	}
	if b.MetadataStore != nil {
		return b.MetadataStore.Close()
	}
	return nil
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
