/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the gin engine with all status routes registered.
// NewRouter 构建注册了所有状态路由的 gin 引擎。
func NewRouter(handler *Handler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(loggerMiddleware(logger))

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/health", handler.Health)

		processRouter := apiV1.Group("/processes")
		{
			processRouter.GET("", handler.ListProcesses)
			processRouter.GET("/:name", handler.GetProcess)
			processRouter.POST("/:name/stop", handler.StopProcess)
			processRouter.POST("/:name/restart", handler.RestartProcess)
			processRouter.GET("/:name/restart-history", handler.GetRestartHistory)
		}

		apiV1.GET("/events", handler.ListEvents)
		apiV1.GET("/launches/:launch_id", handler.GetLaunch)
	}

	return r
}

// loggerMiddleware logs each request through zap
// loggerMiddleware 通过 zap 记录每个请求
func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// Server wraps the HTTP status server lifecycle.
// Server 封装 HTTP 状态服务器的生命周期。
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer creates the status API server listening on addr.
// NewServer 创建监听 addr 的状态 API 服务器。
func NewServer(addr string, handler *Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(handler, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start starts serving in a background goroutine.
// Start 在后台 goroutine 中开始服务。
func (s *Server) Start() {
	go func() {
		s.logger.Info("status API listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status API server error", zap.Error(err))
		}
	}()
}

// Shutdown gracefully shuts down the server.
// Shutdown 优雅关闭服务器。
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
