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

package store

import (
	"time"
)

// LaunchRecord represents one launcher run for an application.
// LaunchRecord 表示应用的一次启动器运行。
type LaunchRecord struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	LaunchID    string    `json:"launch_id" gorm:"size:36;uniqueIndex;not null"` // 启动运行的唯一标识 / Unique identifier of the launch run
	AppName     string    `json:"app_name" gorm:"size:100;index"`                // 应用名称 / Application name
	Entry       string    `json:"entry" gorm:"size:255"`                         // 入口点引用 / Entry point reference
	CommandLine string    `json:"command_line" gorm:"type:text"`                 // 完整命令行 / Full command line
	Host        string    `json:"host" gorm:"size:100"`                          // 绑定地址 / Bind address
	Port        int       `json:"port"`                                          // 监听端口 / Listen port
	Workers     int       `json:"workers"`                                       // worker 数量 / Worker count
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for LaunchRecord.
// TableName 指定 LaunchRecord 的表名。
func (LaunchRecord) TableName() string {
	return "launch_records"
}

// ProcessEventType represents the type of process event.
// ProcessEventType 表示进程事件类型。
type ProcessEventType string

const (
	// EventTypeInstalled indicates dependencies were installed.
	// EventTypeInstalled 表示依赖已安装。
	EventTypeInstalled ProcessEventType = "installed"

	// EventTypeInstallFailed indicates dependency installation failed.
	// EventTypeInstallFailed 表示依赖安装失败。
	EventTypeInstallFailed ProcessEventType = "install_failed"

	// EventTypeStarted indicates the process has started.
	// EventTypeStarted 表示进程已启动。
	EventTypeStarted ProcessEventType = "started"

	// EventTypeStopped indicates the process has stopped normally.
	// EventTypeStopped 表示进程已正常停止。
	EventTypeStopped ProcessEventType = "stopped"

	// EventTypeCrashed indicates the process has crashed unexpectedly.
	// EventTypeCrashed 表示进程意外崩溃。
	EventTypeCrashed ProcessEventType = "crashed"

	// EventTypeRestarted indicates the process has been auto-restarted.
	// EventTypeRestarted 表示进程已被自动重启。
	EventTypeRestarted ProcessEventType = "restarted"

	// EventTypeRestartFailed indicates the auto-restart attempt failed.
	// EventTypeRestartFailed 表示自动重启尝试失败。
	EventTypeRestartFailed ProcessEventType = "restart_failed"

	// EventTypeRestartLimitReached indicates the restart budget was exhausted.
	// EventTypeRestartLimitReached 表示重启预算已用尽。
	EventTypeRestartLimitReached ProcessEventType = "restart_limit_reached"
)

// ProcessEvent represents a process lifecycle event.
// ProcessEvent 表示进程生命周期事件。
type ProcessEvent struct {
	ID        uint             `json:"id" gorm:"primaryKey;autoIncrement"`
	LaunchID  string           `json:"launch_id" gorm:"size:36;index"`         // 关联的启动运行 / Associated launch run
	AppName   string           `json:"app_name" gorm:"size:100;index"`         // 应用名称 / Application name
	EventType ProcessEventType `json:"event_type" gorm:"size:30;index"`        // 事件类型 / Event type
	PID       int              `json:"pid"`                                    // 进程 PID / Process PID
	ExitCode  int              `json:"exit_code"`                              // 退出码 / Exit code
	Details   string           `json:"details" gorm:"type:text"`               // 事件详情 / Event details
	CreatedAt time.Time        `json:"created_at" gorm:"autoCreateTime;index"` // 事件时间 / Event time
}

// TableName specifies the table name for ProcessEvent.
// TableName 指定 ProcessEvent 的表名。
func (ProcessEvent) TableName() string {
	return "process_events"
}

// ProcessEventFilter represents filter criteria for querying process events.
// ProcessEventFilter 表示查询进程事件的过滤条件。
type ProcessEventFilter struct {
	LaunchID  string           `json:"launch_id"`
	AppName   string           `json:"app_name"`
	EventType ProcessEventType `json:"event_type"`
	StartTime *time.Time       `json:"start_time"`
	EndTime   *time.Time       `json:"end_time"`
	Page      int              `json:"page"`
	PageSize  int              `json:"page_size"`
}
