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
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/procpilot/procpilot/internal/store"
	"github.com/procpilot/procpilot/internal/supervisor"
)

// Handler handles HTTP requests for process status and event history.
// Handler 处理进程状态和事件历史的 HTTP 请求。
type Handler struct {
	sup       supervisor.Supervisor
	restarter *supervisor.Restarter
	repo      *store.Repository
}

// NewHandler creates a new status handler. repo may be nil when the event
// store is disabled.
// NewHandler 创建新的状态处理器。事件存储禁用时 repo 可以为 nil。
func NewHandler(sup supervisor.Supervisor, restarter *supervisor.Restarter, repo *store.Repository) *Handler {
	return &Handler{sup: sup, restarter: restarter, repo: repo}
}

// Health handles GET /api/v1/health
// Health 处理 GET /api/v1/health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListProcesses handles GET /api/v1/processes
// ListProcesses 处理 GET /api/v1/processes
// @Summary List supervised processes
// @Description Get status for all supervised processes
// @Tags Process
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/processes [get]
func (h *Handler) ListProcesses(c *gin.Context) {
	infos := h.sup.List()
	c.JSON(http.StatusOK, gin.H{
		"processes": infos,
		"total":     len(infos),
	})
}

// GetProcess handles GET /api/v1/processes/:name
// GetProcess 处理 GET /api/v1/processes/:name
// @Summary Get process status
// @Description Get status for a single supervised process
// @Tags Process
// @Produce json
// @Param name path string true "Process name"
// @Success 200 {object} supervisor.Info
// @Failure 404 {object} map[string]string
// @Router /api/v1/processes/{name} [get]
func (h *Handler) GetProcess(c *gin.Context) {
	name := c.Param("name")

	info, err := h.sup.Status(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, supervisor.ErrProcessNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "process not found / 进程未找到"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, info)
}

// StopProcess handles POST /api/v1/processes/:name/stop
// StopProcess 处理 POST /api/v1/processes/:name/stop
// @Summary Stop a process
// @Description Gracefully stop a supervised process
// @Tags Process
// @Produce json
// @Param name path string true "Process name"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/processes/{name}/stop [post]
func (h *Handler) StopProcess(c *gin.Context) {
	name := c.Param("name")

	if err := h.sup.Stop(c.Request.Context(), name); err != nil {
		switch {
		case errors.Is(err, supervisor.ErrProcessNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "process not found / 进程未找到"})
		case errors.Is(err, supervisor.ErrProcessNotRunning):
			c.JSON(http.StatusConflict, gin.H{"error": "process is not running / 进程未在运行"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "process stopped / 进程已停止"})
}

// RestartProcess handles POST /api/v1/processes/:name/restart
// RestartProcess 处理 POST /api/v1/processes/:name/restart
// @Summary Restart a process
// @Description Restart a crashed or stopped process with its original spec
// @Tags Process
// @Produce json
// @Param name path string true "Process name"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/processes/{name}/restart [post]
func (h *Handler) RestartProcess(c *gin.Context) {
	name := c.Param("name")

	if err := h.restarter.DoRestart(c.Request.Context(), name); err != nil {
		switch {
		case errors.Is(err, supervisor.ErrProcessNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "process not found / 进程未找到"})
		case errors.Is(err, supervisor.ErrRestartBudgetExhausted):
			c.JSON(http.StatusConflict, gin.H{"error": "restart budget exhausted / 重启预算已耗尽"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "process restarted / 进程已重启"})
}

// GetRestartHistory handles GET /api/v1/processes/:name/restart-history
// GetRestartHistory 处理 GET /api/v1/processes/:name/restart-history
// @Summary Get restart history
// @Description Get the auto restart history for a process
// @Tags Process
// @Produce json
// @Param name path string true "Process name"
// @Success 200 {object} supervisor.RestartHistory
// @Failure 404 {object} map[string]string
// @Router /api/v1/processes/{name}/restart-history [get]
func (h *Handler) GetRestartHistory(c *gin.Context) {
	name := c.Param("name")

	history := h.restarter.GetRestartHistory(name)
	if history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no restart history / 无重启历史"})
		return
	}

	c.JSON(http.StatusOK, history)
}

// ListEvents handles GET /api/v1/events
// ListEvents 处理 GET /api/v1/events
// @Summary List process events
// @Description Get a list of recorded process lifecycle events
// @Tags Event
// @Produce json
// @Param launch_id query string false "Launch ID filter"
// @Param app_name query string false "App name filter"
// @Param event_type query string false "Event type filter"
// @Param start_time query string false "Start time (RFC3339)"
// @Param end_time query string false "End time (RFC3339)"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(50)
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]string
// @Router /api/v1/events [get]
func (h *Handler) ListEvents(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event store is disabled / 事件存储已禁用"})
		return
	}

	filter := &store.ProcessEventFilter{
		LaunchID: c.Query("launch_id"),
		AppName:  c.Query("app_name"),
	}

	// Parse query parameters / 解析查询参数
	if eventType := c.Query("event_type"); eventType != "" {
		filter.EventType = store.ProcessEventType(eventType)
	}
	if startTimeStr := c.Query("start_time"); startTimeStr != "" {
		if startTime, err := time.Parse(time.RFC3339, startTimeStr); err == nil {
			filter.StartTime = &startTime
		}
	}
	if endTimeStr := c.Query("end_time"); endTimeStr != "" {
		if endTime, err := time.Parse(time.RFC3339, endTimeStr); err == nil {
			filter.EndTime = &endTime
		}
	}
	if pageStr := c.Query("page"); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil {
			filter.Page = page
		}
	}
	if pageSizeStr := c.Query("page_size"); pageSizeStr != "" {
		if pageSize, err := strconv.Atoi(pageSizeStr); err == nil {
			filter.PageSize = pageSize
		}
	}

	events, total, err := h.repo.ListEvents(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":    events,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

// GetLaunch handles GET /api/v1/launches/:launch_id
// GetLaunch 处理 GET /api/v1/launches/:launch_id
// @Summary Get launch record
// @Description Get a launch record by launch ID
// @Tags Event
// @Produce json
// @Param launch_id path string true "Launch ID"
// @Success 200 {object} store.LaunchRecord
// @Failure 404 {object} map[string]string
// @Router /api/v1/launches/{launch_id} [get]
func (h *Handler) GetLaunch(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event store is disabled / 事件存储已禁用"})
		return
	}

	record, err := h.repo.GetLaunchByID(c.Request.Context(), c.Param("launch_id"))
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "launch record not found / 启动记录未找到"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, record)
}
