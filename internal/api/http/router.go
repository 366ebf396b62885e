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
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/jwt"

	"filesearch-gateway/internal/api/http/middleware"
)

// RouterOptions 路由可选项
type RouterOptions struct {
	CORSEnable    bool
	AllowOrigins  []string
	RateLimitRPS  int  // <=0 不限流
	EnableMetrics bool // 暴露 GET /metrics
}

// Router HTTP 路由器
type Router struct {
	handler *Handler
	mw      *middleware.Middleware
	opts    RouterOptions
	jwtAuth *jwt.HertzJWTMiddleware
}

// NewRouter 创建路由器
func NewRouter(handler *Handler, mw *middleware.Middleware, opts RouterOptions) *Router {
	return &Router{handler: handler, mw: mw, opts: opts}
}

// SetJWT 启用管理面 JWT 认证（可选）
func (r *Router) SetJWT(auth *jwt.HertzJWTMiddleware) {
	r.jwtAuth = auth
}

// Build 构建 Hertz server 并挂载全部路由
func (r *Router) Build(addr string, opts ...hertzconfig.Option) *server.Hertz {
	serverOpts := append([]hertzconfig.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(serverOpts...)

	h.Use(r.mw.RequestID())
	h.Use(r.mw.AccessLog())
	if r.opts.CORSEnable {
		h.Use(r.mw.CORS(r.opts.AllowOrigins))
	}
	if r.opts.RateLimitRPS > 0 {
		h.Use(r.mw.RateLimit(r.opts.RateLimitRPS))
	}

	h.GET("/health", r.handler.HealthCheck)
	if r.opts.EnableMetrics {
		h.GET("/metrics", r.handler.Metrics)
	}

	if r.jwtAuth != nil {
		h.POST("/auth/login", r.jwtAuth.LoginHandler)
		h.POST("/auth/refresh", r.jwtAuth.RefreshHandler)
	}

	stores := h.Group("/stores")
	if r.jwtAuth != nil {
		stores.Use(r.jwtAuth.MiddlewareFunc())
	}
	stores.POST("/create", r.handler.CreateStore)
	stores.GET("", r.handler.ListStores)
	stores.POST("/:name/upload", r.handler.UploadFiles)
	stores.POST("/:name/sync", r.handler.SyncStore)
	stores.DELETE("/:name", r.handler.DeleteStore)
	stores.DELETE("/:name/documents/:docId", r.handler.DeleteDocument)

	ask := h.Group("/ask")
	if r.jwtAuth != nil {
		ask.Use(r.jwtAuth.MiddlewareFunc())
	}
	ask.POST("", r.handler.Ask)

	h.NoRoute(func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusNotFound, map[string]string{"error": "Route not found"})
	})
	return h
}
