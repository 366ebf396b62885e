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
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/jwt"
)

// NewJWTAuth 可选的 JWT 管理面认证；凭据来自 GATEWAY_ADMIN_USER / GATEWAY_ADMIN_PASSWORD
func NewJWTAuth(key []byte, timeout, maxRefresh time.Duration) (*jwt.HertzJWTMiddleware, error) {
	return jwt.New(&jwt.HertzJWTMiddleware{
		Realm:       "filesearch-gateway",
		Key:         key,
		Timeout:     timeout,
		MaxRefresh:  maxRefresh,
		IdentityKey: "user",
		Authenticator: func(c context.Context, ctx *app.RequestContext) (interface{}, error) {
			var login struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := ctx.BindJSON(&login); err != nil {
				return nil, jwt.ErrMissingLoginValues
			}
			user := os.Getenv("GATEWAY_ADMIN_USER")
			pass := os.Getenv("GATEWAY_ADMIN_PASSWORD")
			if user == "" || login.Username != user || login.Password != pass {
				return nil, jwt.ErrFailedAuthentication
			}
			return login.Username, nil
		},
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if name, ok := data.(string); ok {
				return jwt.MapClaims{"user": name}
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(c context.Context, ctx *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(c, ctx)
			return claims["user"]
		},
		Unauthorized: func(c context.Context, ctx *app.RequestContext, code int, message string) {
			ctx.JSON(code, map[string]string{"error": message})
		},
		HTTPStatusMessageFunc: func(e error, c context.Context, ctx *app.RequestContext) string {
			return e.Error()
		},
		LoginResponse: func(c context.Context, ctx *app.RequestContext, code int, token string, expire time.Time) {
			ctx.JSON(consts.StatusOK, map[string]interface{}{
				"token":  token,
				"expire": expire.Format(time.RFC3339),
			})
		},
	})
}
