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

// Package launcher orchestrates the application launch sequence: dependency
// installation, configuration validation, command construction and supervised
// process start. Dependency installation is fatal on failure; the process is
// never started on top of a broken environment.
// launcher 包编排应用启动序列：依赖安装、配置验证、命令构建和受监管的
// 进程启动。依赖安装失败是致命的；绝不在损坏的环境上启动进程。
package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procpilot/procpilot/internal/command"
	"github.com/procpilot/procpilot/internal/config"
	"github.com/procpilot/procpilot/internal/installer"
	"github.com/procpilot/procpilot/internal/store"
	"github.com/procpilot/procpilot/internal/supervisor"
)

// Launch sequence errors
// 启动序列错误
var (
	// ErrConfigInvalid indicates the configuration failed validation
	// ErrConfigInvalid 表示配置验证失败
	ErrConfigInvalid = errors.New("configuration is invalid")

	// ErrInstallFatal indicates dependency installation failed; the launch
	// must abort
	// ErrInstallFatal 表示依赖安装失败；启动必须中止
	ErrInstallFatal = errors.New("dependency installation failed")

	// ErrSupervisorStart indicates the supervisor could not start the process
	// ErrSupervisorStart 表示监管器无法启动进程
	ErrSupervisorStart = errors.New("supervisor failed to start process")
)

// Process exit codes for the launch sequence
// 启动序列的进程退出码
const (
	ExitCodeOK           = 0
	ExitCodeConfigError  = 1
	ExitCodeInstallError = 2
	ExitCodeStartError   = 3
)

// ExitCodeFor maps a launch error to the process exit code.
// ExitCodeFor 将启动错误映射为进程退出码。
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitCodeOK
	case errors.Is(err, ErrConfigInvalid):
		return ExitCodeConfigError
	case errors.Is(err, ErrInstallFatal):
		return ExitCodeInstallError
	case errors.Is(err, ErrSupervisorStart):
		return ExitCodeStartError
	default:
		return ExitCodeStartError
	}
}

// Launcher drives the launch sequence for one application.
// Launcher 驱动单个应用的启动序列。
type Launcher struct {
	cfg      *config.Config
	sup      supervisor.Supervisor
	repo     *store.Repository // nil 表示事件存储禁用 / nil means the event store is disabled
	logger   *zap.Logger
	launchID string
	cmdLine  command.Command
}

// New creates a launcher. repo may be nil when the event store is disabled.
// New 创建启动器。事件存储禁用时 repo 可以为 nil。
func New(cfg *config.Config, sup supervisor.Supervisor, repo *store.Repository, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{
		cfg:      cfg,
		sup:      sup,
		repo:     repo,
		logger:   logger,
		launchID: uuid.NewString(),
	}
}

// LaunchID returns the unique ID of this launch.
// LaunchID 返回本次启动的唯一 ID。
func (l *Launcher) LaunchID() string {
	return l.launchID
}

// Run executes the full launch sequence in order: validate, install
// dependencies, build the command and start the process under supervision.
// Run 按顺序执行完整的启动序列：验证、安装依赖、构建命令、在监管下启动进程。
func (l *Launcher) Run(ctx context.Context) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if err := l.InstallDependencies(ctx); err != nil {
		return err
	}
	return l.StartSupervised(ctx)
}

// Validate checks the configuration, including the fork safety rule: an app
// marked fork unsafe must not run with more than one worker.
// Validate 检查配置，包括 fork 安全规则：标记为 fork 不安全的应用
// 不得以多于一个 worker 运行。
func (l *Launcher) Validate() error {
	if err := l.cfg.Validate(); err != nil {
		l.logger.Error("configuration validation failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return nil
}

// InstallDependencies installs the application's dependencies from the
// manifest. Any failure is fatal for the launch.
// InstallDependencies 从清单安装应用依赖。任何失败对启动都是致命的。
func (l *Launcher) InstallDependencies(ctx context.Context) error {
	inst := installer.New(l.cfg.Install, l.cfg.App.WorkDir, l.logger)

	result, err := inst.Install(ctx)
	if err != nil {
		l.logger.Error("dependency installation failed, aborting launch",
			zap.String("manifest", inst.ManifestPath()),
			zap.Error(err),
		)
		l.journal(ctx, store.EventTypeInstallFailed, 0, 0, fmt.Sprintf("install failed: %v", err))
		return fmt.Errorf("%w: %v", ErrInstallFatal, err)
	}

	if result.Skipped {
		l.logger.Info("dependency installation skipped")
		return nil
	}

	l.logger.Info("dependencies installed",
		zap.String("manifest", result.Manifest),
		zap.Duration("duration", result.Duration),
	)
	l.journal(ctx, store.EventTypeInstalled, 0, 0, result.Manifest)
	return nil
}

// BuildCommand builds the launch command from the configuration. The result
// depends only on the configuration.
// BuildCommand 从配置构建启动命令。结果只取决于配置。
func (l *Launcher) BuildCommand() command.Command {
	return command.Build(l.cfg)
}

// StartSupervised builds the command, records the launch and starts the
// process under supervision.
// StartSupervised 构建命令、记录启动并在监管下启动进程。
func (l *Launcher) StartSupervised(ctx context.Context) error {
	l.cmdLine = l.BuildCommand()

	l.logger.Info("starting supervised process",
		zap.String("name", l.cfg.App.Name),
		zap.String("command", l.cmdLine.String()),
		zap.String("launch_id", l.launchID),
	)

	l.recordLaunch(ctx)

	spec := &supervisor.Spec{
		Name:        l.cfg.App.Name,
		Program:     l.cmdLine.Program,
		Args:        l.cmdLine.Args,
		WorkDir:     l.cfg.App.WorkDir,
		Environment: l.cfg.App.Environment,
	}

	if err := l.sup.Start(ctx, spec); err != nil {
		l.logger.Error("supervisor failed to start process",
			zap.String("name", l.cfg.App.Name),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrSupervisorStart, err)
	}

	return nil
}

// Status reports the current status of the supervised process.
// Status 报告受监管进程的当前状态。
func (l *Launcher) Status(ctx context.Context) (*supervisor.Info, error) {
	return l.sup.Status(ctx, l.cfg.App.Name)
}

// ReportStatus logs the current process status and returns it.
// ReportStatus 记录并返回当前进程状态。
func (l *Launcher) ReportStatus(ctx context.Context) (*supervisor.Info, error) {
	info, err := l.Status(ctx)
	if err != nil {
		return nil, err
	}

	l.logger.Info("process status",
		zap.String("name", info.Name),
		zap.String("state", string(info.State)),
		zap.Int("pid", info.PID),
		zap.Duration("uptime", info.Uptime),
		zap.Int("restart_count", info.RestartCount),
		zap.Float64("cpu_percent", info.CPUPercent),
		zap.Uint64("memory_rss", info.MemoryRSS),
	)
	return info, nil
}

// HandleEvent journals supervisor lifecycle events to the store. Intended to
// be chained with the auto restarter's event hook.
// HandleEvent 将监管器生命周期事件记入存储。旨在与自动重启器的事件钩子串联。
func (l *Launcher) HandleEvent(name string, event supervisor.Event, info *supervisor.Info) {
	eventType, ok := eventTypeFor(event)
	if !ok {
		return
	}

	pid := 0
	exitCode := 0
	details := ""
	if info != nil {
		pid = info.PID
		exitCode = info.ExitCode
		details = info.LastError
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l.journal(ctx, eventType, pid, exitCode, details)
}

// eventTypeFor maps supervisor events to stored event types
// eventTypeFor 将监管器事件映射为存储的事件类型
func eventTypeFor(event supervisor.Event) (store.ProcessEventType, bool) {
	switch event {
	case supervisor.EventStarted:
		return store.EventTypeStarted, true
	case supervisor.EventStopped:
		return store.EventTypeStopped, true
	case supervisor.EventCrashed:
		return store.EventTypeCrashed, true
	case supervisor.EventRestarted:
		return store.EventTypeRestarted, true
	case supervisor.EventRestartFailed:
		return store.EventTypeRestartFailed, true
	case supervisor.EventRestartLimitReached:
		return store.EventTypeRestartLimitReached, true
	default:
		return "", false
	}
}

// recordLaunch persists the launch record, best effort
// recordLaunch 尽力持久化启动记录
func (l *Launcher) recordLaunch(ctx context.Context) {
	if l.repo == nil {
		return
	}

	record := &store.LaunchRecord{
		LaunchID:    l.launchID,
		AppName:     l.cfg.App.Name,
		Entry:       l.cfg.App.Entry,
		CommandLine: l.cmdLine.String(),
		Host:        l.cfg.Server.Host,
		Port:        l.cfg.Server.Port,
		Workers:     l.cfg.Server.Workers,
	}
	if err := l.repo.CreateLaunch(ctx, record); err != nil {
		l.logger.Warn("failed to record launch", zap.Error(err))
	}
}

// journal persists a process event, best effort
// journal 尽力持久化进程事件
func (l *Launcher) journal(ctx context.Context, eventType store.ProcessEventType, pid, exitCode int, details string) {
	if l.repo == nil {
		return
	}

	event := &store.ProcessEvent{
		LaunchID:  l.launchID,
		AppName:   l.cfg.App.Name,
		EventType: eventType,
		PID:       pid,
		ExitCode:  exitCode,
		Details:   details,
	}
	if err := l.repo.CreateEvent(ctx, event); err != nil {
		l.logger.Warn("failed to record process event",
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
	}
}

// DescribeCommand renders the launch command as JSON, used by the dry run
// subcommand.
// DescribeCommand 将启动命令渲染为 JSON，由 dry run 子命令使用。
func (l *Launcher) DescribeCommand() (string, error) {
	cmd := l.BuildCommand()
	data, err := json.MarshalIndent(map[string]interface{}{
		"program":      cmd.Program,
		"args":         cmd.Args,
		"command_line": cmd.String(),
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
