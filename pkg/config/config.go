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

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Indexer    IndexerConfig    `mapstructure:"indexer"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port       int              `mapstructure:"port"`
	Host       string           `mapstructure:"host"`
	Timeout    string           `mapstructure:"timeout"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	Auth          bool   `mapstructure:"auth"`
	RateLimit     bool   `mapstructure:"rate_limit"`
	RateLimitRPS  int    `mapstructure:"rate_limit_rps"`
	JWTKey        string `mapstructure:"jwt_key"`
	JWTTimeout    string `mapstructure:"jwt_timeout"`     // 如 "1h"
	JWTMaxRefresh string `mapstructure:"jwt_max_refresh"` // 如 "1h"
}

// GeminiConfig File Search API 访问配置；api_key 始终由请求方携带，不落配置
type GeminiConfig struct {
	BaseURL       string `mapstructure:"base_url"`        // 默认 https://generativelanguage.googleapis.com/v1beta
	UploadBaseURL string `mapstructure:"upload_base_url"` // 默认 https://generativelanguage.googleapis.com/upload/v1beta
	Model         string `mapstructure:"model"`           // ask 用的生成模型，默认 gemini-2.5-flash
	Timeout       string `mapstructure:"timeout"`         // 单次请求超时，如 "30s"
	RetryCount    int    `mapstructure:"retry_count"`     // resty 重试次数
	SystemPrompt  string `mapstructure:"system_prompt"`   // ask 默认 system prompt，空则用内置
}

// IndexerConfig 后台索引轮询配置
type IndexerConfig struct {
	PollInterval   string `mapstructure:"poll_interval"`   // 轮询间隔，默认 "2s"
	PollTimeout    string `mapstructure:"poll_timeout"`    // 单文件轮询总预算，默认 "25s"
	MaxConcurrency int    `mapstructure:"max_concurrency"` // 并发轮询上限，<=0 默认 8
	QueueSize      int    `mapstructure:"queue_size"`      // 任务队列长度，<=0 默认 256
}

// StorageConfig 存储配置
type StorageConfig struct {
	Metadata MetadataConfig `mapstructure:"metadata"`
}

// MetadataConfig 元数据存储配置
type MetadataConfig struct {
	Type      string `mapstructure:"type"`       // memory | redis | postgres
	Addr      string `mapstructure:"addr"`       // redis 地址
	DB        int    `mapstructure:"db"`         // redis DB 编号
	Password  string `mapstructure:"password"`   // redis 密码，可选
	KeyPrefix string `mapstructure:"key_prefix"` // redis key 前缀，默认 "fsgw"
	DSN       string `mapstructure:"dsn"`        // postgres 连接串
	PoolSize  int    `mapstructure:"pool_size"`
}

// SecretsConfig 可选的服务端兜底 API Key 来源；仅在显式开启时使用
type SecretsConfig struct {
	Provider   string            `mapstructure:"provider"`     // env | memory | vault；空则不启用兜底
	APIKeyName string            `mapstructure:"api_key_name"` // 兜底 key 在 secret store 中的名字
	Config     map[string]string `mapstructure:"config"`       // provider 相关配置
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置（GET /metrics）
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// replaceEnvVars 替换配置中的 ${VAR} 形式环境变量（DSN、密码、secret 配置）
func replaceEnvVars(config *Config) {
	config.Storage.Metadata.DSN = expandEnv(config.Storage.Metadata.DSN)
	config.Storage.Metadata.Password = expandEnv(config.Storage.Metadata.Password)
	for k, v := range config.Secrets.Config {
		config.Secrets.Config[k] = expandEnv(v)
	}
}

func expandEnv(v string) string {
	if !strings.HasPrefix(v, "${") || !strings.HasSuffix(v, "}") {
		return v
	}
	envVar := strings.TrimSuffix(strings.TrimPrefix(v, "${"), "}")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return v
}

// LoadAPIConfig 加载 API 配置（configs/api.yaml）
func LoadAPIConfig() (*Config, error) {
	return LoadConfig("configs/api.yaml")
}
