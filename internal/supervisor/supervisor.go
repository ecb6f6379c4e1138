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

// Package supervisor provides process lifecycle management for launched
// applications.
// supervisor 包提供被启动应用的进程生命周期管理功能。
//
// This package provides:
// 此包提供：
// - Start, Stop methods with graceful shutdown / 启动、停止方法与优雅关闭
// - Crash detection and automatic restart / 崩溃检测与自动重启
// - Restart budget with cooldown / 带冷却的重启预算
// - Process status reporting / 进程状态上报
package supervisor

import (
	"context"
	"errors"
	"time"
)

// Common errors for process supervision
// 进程监管的常见错误
var (
	// ErrProcessNotFound indicates the process was not found
	// ErrProcessNotFound 表示进程未找到
	ErrProcessNotFound = errors.New("process not found")

	// ErrProcessAlreadyRunning indicates the process is already running
	// ErrProcessAlreadyRunning 表示进程已在运行
	ErrProcessAlreadyRunning = errors.New("process is already running")

	// ErrProcessNotRunning indicates the process is not running
	// ErrProcessNotRunning 表示进程未运行
	ErrProcessNotRunning = errors.New("process is not running")

	// ErrStartFailed indicates the process failed to start
	// ErrStartFailed 表示进程启动失败
	ErrStartFailed = errors.New("process failed to start")

	// ErrStopTimeout indicates the process stop timed out
	// ErrStopTimeout 表示进程停止超时
	ErrStopTimeout = errors.New("process stop timed out")

	// ErrRestartBudgetExhausted indicates the restart budget is used up and
	// the process is terminal failed; manual intervention is required
	// ErrRestartBudgetExhausted 表示重启预算已用尽，进程进入终态 failed，
	// 需要人工介入
	ErrRestartBudgetExhausted = errors.New("restart budget exhausted")
)

// State represents the lifecycle state of a supervised process
// State 表示被监管进程的生命周期状态
type State string

const (
	// StateStopped indicates the process is stopped by request
	// StateStopped 表示进程已按请求停止
	StateStopped State = "stopped"

	// StateStarting indicates the process is starting
	// StateStarting 表示进程正在启动
	StateStarting State = "starting"

	// StateRunning indicates the process is running
	// StateRunning 表示进程正在运行
	StateRunning State = "running"

	// StateStopping indicates the process is shutting down
	// StateStopping 表示进程正在关闭
	StateStopping State = "stopping"

	// StateCrashed indicates the process exited unexpectedly and may be
	// restarted
	// StateCrashed 表示进程意外退出，可能会被重启
	StateCrashed State = "crashed"

	// StateFailed indicates the restart budget is exhausted; terminal
	// StateFailed 表示重启预算已用尽；终态
	StateFailed State = "failed"
)

// Terminal reports whether the state accepts no further automatic transitions
// Terminal 报告该状态是否不再接受自动转换
func (s State) Terminal() bool {
	return s == StateFailed
}

// Event represents a process lifecycle event
// Event 表示进程生命周期事件
type Event string

const (
	// EventStarted indicates the process has started
	// EventStarted 表示进程已启动
	EventStarted Event = "started"

	// EventStopped indicates the process has stopped on request
	// EventStopped 表示进程已按请求停止
	EventStopped Event = "stopped"

	// EventCrashed indicates the process exited unexpectedly
	// EventCrashed 表示进程意外退出
	EventCrashed Event = "crashed"

	// EventRestarted indicates the process was restarted after a crash
	// EventRestarted 表示进程在崩溃后被重启
	EventRestarted Event = "restarted"

	// EventRestartFailed indicates a restart attempt did not produce a
	// running process
	// EventRestartFailed 表示重启尝试未能产生运行中的进程
	EventRestartFailed Event = "restart_failed"

	// EventRestartLimitReached indicates the restart budget was exhausted
	// EventRestartLimitReached 表示重启预算已用尽
	EventRestartLimitReached Event = "restart_limit_reached"
)

// Spec describes what to run under supervision
// Spec 描述监管下要运行的内容
type Spec struct {
	// Name is the stable process name / Name 是稳定的进程名
	Name string `json:"name"`

	// Program is the executable to run / Program 是要运行的可执行程序
	Program string `json:"program"`

	// Args are the program arguments / Args 是程序参数
	Args []string `json:"args"`

	// WorkDir is the working directory / WorkDir 是工作目录
	WorkDir string `json:"work_dir,omitempty"`

	// Environment variables set for the process, on top of the parent's
	// Environment 是在父进程环境之上为进程设置的环境变量
	Environment map[string]string `json:"environment,omitempty"`

	// LogDir is where process output is written (optional, defaults to
	// WorkDir/logs)
	// LogDir 是进程输出写入的目录（可选，默认为 WorkDir/logs）
	LogDir string `json:"log_dir,omitempty"`
}

// Info contains information about a supervised process for external use
// Info 包含用于外部使用的被监管进程信息
type Info struct {
	Name         string        `json:"name"`
	PID          int           `json:"pid"`
	State        State         `json:"state"`
	StartTime    time.Time     `json:"start_time"`
	Uptime       time.Duration `json:"uptime"`
	RestartCount int           `json:"restart_count"`
	CPUPercent   float64       `json:"cpu_percent"`
	MemoryRSS    uint64        `json:"memory_rss"`
	ExitCode     int           `json:"exit_code,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

// Supervisor manages the lifecycle of named processes. Implementations must
// be safe for concurrent use.
// Supervisor 管理具名进程的生命周期。实现必须是并发安全的。
type Supervisor interface {
	// Start launches the process described by spec under supervision.
	// Returns ErrProcessAlreadyRunning when a live process with the same
	// name is registered.
	// Start 在监管下启动 spec 描述的进程。
	// 当同名进程已存活注册时返回 ErrProcessAlreadyRunning。
	Start(ctx context.Context, spec *Spec) error

	// Stop stops the named process, gracefully first, forcefully on
	// timeout. A stop marks the process as manually stopped so no restart
	// is attempted.
	// Stop 停止指定进程，先优雅后强制。停止会将进程标记为手工停止，
	// 不再尝试重启。
	Stop(ctx context.Context, name string) error

	// Status returns the current information for the named process
	// Status 返回指定进程的当前信息
	Status(ctx context.Context, name string) (*Info, error)

	// List returns information for all registered processes
	// List 返回所有已注册进程的信息
	List() []*Info
}
