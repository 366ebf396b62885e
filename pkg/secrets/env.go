// Copyright 2026 fanjia1024
// Process environment backed secret store

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// envStore 直接读写进程环境变量，适合容器注入环境传递密钥的部署
type envStore struct{}

// NewEnvStore 创建环境变量 secret store
func NewEnvStore() Store {
	return &envStore{}
}

func (e *envStore) Get(ctx context.Context, key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("secret %s: 环境变量未设置", key)
	}
	return v, nil
}

func (e *envStore) Set(ctx context.Context, key string, value string) error {
	return os.Setenv(key, value)
}

func (e *envStore) Delete(ctx context.Context, key string) error {
	return os.Unsetenv(key)
}

// List 扫描整个环境，只返回匹配前缀的变量名
func (e *envStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for _, kv := range os.Environ() {
		name, _, found := strings.Cut(kv, "=")
		if found && strings.HasPrefix(name, prefix) {
			keys = append(keys, name)
		}
	}
	return keys, nil
}
