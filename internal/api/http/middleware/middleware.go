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

package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Middleware 中间件管理器
type Middleware struct{}

// NewMiddleware 创建中间件管理器
func NewMiddleware() *Middleware {
	return &Middleware{}
}

// CORS 跨域中间件；allowOrigins 为空时放行所有来源
func (m *Middleware) CORS(allowOrigins []string) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		origin := string(ctx.Request.Header.Get("Origin"))
		allowed := "*"
		if len(allowOrigins) > 0 {
			allowed = ""
			for _, o := range allowOrigins {
				if o == "*" || o == origin {
					allowed = origin
					break
				}
			}
		}
		if allowed != "" {
			ctx.Header("Access-Control-Allow-Origin", allowed)
			ctx.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			ctx.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID")
			ctx.Header("Access-Control-Max-Age", "86400")
		}
		if string(ctx.Method()) == "OPTIONS" {
			ctx.AbortWithStatus(consts.StatusNoContent)
			return
		}
		ctx.Next(c)
	}
}

// RequestID 为每个请求补全 X-Request-ID，便于日志串联
func (m *Middleware) RequestID() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		id := string(ctx.Request.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Set("request_id", id)
		ctx.Header("X-Request-ID", id)
		ctx.Next(c)
	}
}

// RateLimit 全局令牌桶限流；rps<=0 时不限流
func (m *Middleware) RateLimit(rps int) app.HandlerFunc {
	if rps <= 0 {
		return func(c context.Context, ctx *app.RequestContext) {
			ctx.Next(c)
		}
	}
	limiter := rate.NewLimiter(rate.Limit(rps), rps)
	return func(c context.Context, ctx *app.RequestContext) {
		if !limiter.Allow() {
			ctx.AbortWithStatusJSON(consts.StatusTooManyRequests, map[string]string{
				"error": "too many requests",
			})
			return
		}
		ctx.Next(c)
	}
}

// AccessLog 访问日志；api_key 只记录是否携带，不落值
func (m *Middleware) AccessLog() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)

		path := string(ctx.Path())
		// 指标与健康检查刷屏，不记
		if strings.HasPrefix(path, "/metrics") || strings.HasPrefix(path, "/health") {
			return
		}
		reqID, _ := ctx.Get("request_id")
		hlog.CtxInfof(c, "%s %s status=%d latency=%s request_id=%v",
			string(ctx.Method()), path, ctx.Response.StatusCode(),
			time.Since(start), reqID)
	}
}
