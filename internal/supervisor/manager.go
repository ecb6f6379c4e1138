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

package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/procpilot/procpilot/internal/collector"
)

// Default configuration values
// 默认配置值
const (
	// DefaultGracefulTimeout is the default timeout for graceful shutdown
	// DefaultGracefulTimeout 是优雅关闭的默认超时时间
	DefaultGracefulTimeout = 30 * time.Second

	// DefaultMonitorInterval is the default interval for metrics refresh
	// DefaultMonitorInterval 是指标刷新的默认间隔
	DefaultMonitorInterval = 5 * time.Second
)

// EventHandler is called when process lifecycle events occur
// EventHandler 在进程生命周期事件发生时被调用
type EventHandler func(name string, event Event, info *Info)

// managedProcess represents a process managed by the Manager
// managedProcess 表示由 Manager 管理的进程
type managedProcess struct {
	// spec is the launch specification, kept for restarts
	// spec 是启动规格，保留用于重启
	spec *Spec

	// pid is the process ID / pid 是进程 ID
	pid int

	// state is the current lifecycle state / state 是当前生命周期状态
	state State

	// startTime is when the process was started / startTime 是进程启动的时间
	startTime time.Time

	// restartCount counts restarts since registration
	// restartCount 统计注册以来的重启次数
	restartCount int

	// exitCode is the last exit code / exitCode 是最近一次退出码
	exitCode int

	// lastError is the last error encountered / lastError 是最后遇到的错误
	lastError string

	// cpuPercent and memoryRSS are refreshed by the monitor loop
	// cpuPercent 和 memoryRSS 由监控循环刷新
	cpuPercent float64
	memoryRSS  uint64

	// manuallyStopped marks a requested stop so the exit is not treated as
	// a crash
	// manuallyStopped 标记按请求的停止，退出不会被视为崩溃
	manuallyStopped bool

	// cmd is the underlying exec.Cmd (internal use)
	// cmd 是底层的 exec.Cmd（内部使用）
	cmd *exec.Cmd

	// mu protects the process state / mu 保护进程状态
	mu sync.RWMutex
}

func (p *managedProcess) info() *Info {
	info := &Info{
		Name:         p.spec.Name,
		PID:          p.pid,
		State:        p.state,
		StartTime:    p.startTime,
		RestartCount: p.restartCount,
		CPUPercent:   p.cpuPercent,
		MemoryRSS:    p.memoryRSS,
		ExitCode:     p.exitCode,
		LastError:    p.lastError,
	}
	if p.state == StateRunning {
		info.Uptime = time.Since(p.startTime)
	}
	return info
}

// Manager is the native Supervisor implementation. It launches processes as
// direct children and watches them with a Wait goroutine per process.
// Manager 是原生的 Supervisor 实现。它将进程作为直接子进程启动，
// 每个进程由一个 Wait goroutine 监视。
type Manager struct {
	// processes stores managed processes by name
	// processes 按名称存储托管进程
	processes sync.Map

	// monitorCtx is the context for the monitor goroutine
	// monitorCtx 是监控 goroutine 的上下文
	monitorCtx context.Context

	// monitorCancel cancels the monitor goroutine
	// monitorCancel 取消监控 goroutine
	monitorCancel context.CancelFunc

	// monitorInterval is the interval for the metrics refresh loop
	// monitorInterval 是指标刷新循环的间隔
	monitorInterval time.Duration

	// gracefulTimeout is the timeout for graceful shutdown
	// gracefulTimeout 是优雅关闭的超时时间
	gracefulTimeout time.Duration

	// eventHandler is called when process events occur
	// eventHandler 在进程事件发生时被调用
	eventHandler EventHandler

	// logger is the shared logger / logger 是共享日志器
	logger *zap.Logger

	// mu protects manager state / mu 保护管理器状态
	mu sync.RWMutex

	// running indicates if the manager is running
	// running 表示管理器是否正在运行
	running bool
}

// NewManager creates a new Manager instance
// NewManager 创建一个新的 Manager 实例
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		monitorInterval: DefaultMonitorInterval,
		gracefulTimeout: DefaultGracefulTimeout,
		logger:          logger,
	}
}

// SetMonitorInterval sets the metrics refresh interval
// SetMonitorInterval 设置指标刷新间隔
func (m *Manager) SetMonitorInterval(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitorInterval = interval
}

// SetGracefulTimeout sets the graceful shutdown timeout
// SetGracefulTimeout 设置优雅关闭超时时间
func (m *Manager) SetGracefulTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gracefulTimeout = timeout
}

// SetEventHandler sets the event handler callback
// SetEventHandler 设置事件处理回调
func (m *Manager) SetEventHandler(handler EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventHandler = handler
}

// Run starts the metrics refresh loop
// Run 启动指标刷新循环
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil // Already running / 已经在运行
	}

	m.monitorCtx, m.monitorCancel = context.WithCancel(ctx)
	m.running = true

	// Start the monitor goroutine / 启动监控 goroutine
	go m.monitorLoop()

	return nil
}

// Shutdown stops the metrics loop and all supervised processes
// Shutdown 停止指标循环和所有被监管的进程
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.monitorCancel != nil {
		m.monitorCancel()
	}
	m.running = false
	m.mu.Unlock()

	return m.StopAll(ctx)
}

// monitorLoop refreshes metrics for running processes
// monitorLoop 为运行中的进程刷新指标
func (m *Manager) monitorLoop() {
	ticker := time.NewTicker(m.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.monitorCtx.Done():
			return
		case <-ticker.C:
			m.refreshMetrics()
		}
	}
}

// refreshMetrics samples CPU and memory for all running processes
// refreshMetrics 为所有运行中的进程采样 CPU 和内存
func (m *Manager) refreshMetrics() {
	m.processes.Range(func(key, value interface{}) bool {
		proc := value.(*managedProcess)

		proc.mu.Lock()
		defer proc.mu.Unlock()

		if proc.state != StateRunning || proc.pid <= 0 {
			return true
		}

		sample, err := collector.Sample(proc.pid)
		if err != nil {
			return true
		}
		proc.cpuPercent = sample.CPUPercent
		proc.memoryRSS = sample.MemoryRSS

		return true
	})
}

// notifyEvent notifies the event handler of a process event
// notifyEvent 通知事件处理程序进程事件
func (m *Manager) notifyEvent(name string, event Event, proc *managedProcess) {
	m.mu.RLock()
	handler := m.eventHandler
	m.mu.RUnlock()

	if handler != nil {
		proc.mu.RLock()
		info := proc.info()
		proc.mu.RUnlock()
		handler(name, event, info)
	}
}

// Start launches the process described by spec under supervision
// Start 在监管下启动 spec 描述的进程
func (m *Manager) Start(ctx context.Context, spec *Spec) error {
	if spec == nil {
		return fmt.Errorf("%w: spec is nil", ErrStartFailed)
	}
	if spec.Name == "" || spec.Program == "" {
		return fmt.Errorf("%w: spec requires name and program", ErrStartFailed)
	}

	// Check if process already exists and is live
	// 检查进程是否已存在且存活
	if existing, ok := m.processes.Load(spec.Name); ok {
		proc := existing.(*managedProcess)
		proc.mu.RLock()
		state := proc.state
		proc.mu.RUnlock()

		if state == StateRunning || state == StateStarting || state == StateStopping {
			return ErrProcessAlreadyRunning
		}
	}

	proc := &managedProcess{
		spec:  spec,
		state: StateStarting,
	}
	m.processes.Store(spec.Name, proc)

	if err := m.launch(ctx, proc); err != nil {
		return err
	}

	m.notifyEvent(spec.Name, EventStarted, proc)
	return nil
}

// launch starts the child process and arranges the exit watcher. The caller
// must have registered proc already.
// launch 启动子进程并安排退出监视。调用方必须已注册 proc。
func (m *Manager) launch(ctx context.Context, proc *managedProcess) error {
	spec := proc.spec

	cmd := exec.Command(spec.Program, spec.Args...)
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}

	// Inherit parent environment, then apply spec overrides
	// 继承父进程环境，再应用 spec 覆盖
	cmd.Env = os.Environ()
	for k, v := range spec.Environment {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	// Own process group so signals to the launcher don't reach the child
	// 独立进程组，发给启动器的信号不会波及子进程
	setProcGroupAttr(cmd)

	// Set up log capture / 设置日志捕获
	logDir := spec.LogDir
	if logDir == "" {
		logDir = filepath.Join(spec.WorkDir, "logs")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		proc.mu.Lock()
		proc.state = StateCrashed
		proc.lastError = fmt.Sprintf("failed to create log directory: %v", err)
		proc.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	logFile := filepath.Join(logDir, fmt.Sprintf("%s-%s.log", spec.Name, time.Now().Format("20060102-150405")))
	logWriter, err := os.Create(logFile)
	if err != nil {
		proc.mu.Lock()
		proc.state = StateCrashed
		proc.lastError = fmt.Sprintf("failed to create log file: %v", err)
		proc.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}
	cmd.Stdout = logWriter
	cmd.Stderr = logWriter

	if err := cmd.Start(); err != nil {
		logWriter.Close()
		proc.mu.Lock()
		proc.state = StateCrashed
		proc.lastError = fmt.Sprintf("failed to start process: %v", err)
		proc.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	proc.mu.Lock()
	proc.cmd = cmd
	proc.pid = cmd.Process.Pid
	proc.startTime = time.Now()
	proc.state = StateRunning
	proc.lastError = ""
	proc.manuallyStopped = false
	proc.mu.Unlock()

	m.logger.Info("process started",
		zap.String("name", spec.Name),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("program", spec.Program),
		zap.String("log_file", logFile),
	)

	// Watch for exit / 监视退出
	go m.waitForExit(proc, cmd, logWriter)

	return nil
}

// waitForExit blocks until the child exits and classifies the exit
// waitForExit 阻塞直到子进程退出并对退出进行分类
func (m *Manager) waitForExit(proc *managedProcess, cmd *exec.Cmd, logWriter *os.File) {
	err := cmd.Wait()
	logWriter.Close()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	proc.mu.Lock()
	// A newer cmd means the process was already restarted; this watcher is
	// stale
	// cmd 已更新表示进程已被重启；此监视器已过期
	if proc.cmd != cmd {
		proc.mu.Unlock()
		return
	}
	manual := proc.manuallyStopped
	proc.pid = 0
	proc.exitCode = exitCode
	if manual {
		proc.state = StateStopped
	} else {
		proc.state = StateCrashed
		proc.lastError = fmt.Sprintf("process exited unexpectedly with code %d", exitCode)
	}
	name := proc.spec.Name
	proc.mu.Unlock()

	if manual {
		m.logger.Info("process stopped", zap.String("name", name), zap.Int("exit_code", exitCode))
		m.notifyEvent(name, EventStopped, proc)
		return
	}

	m.logger.Warn("process crashed",
		zap.String("name", name),
		zap.Int("exit_code", exitCode),
	)
	m.notifyEvent(name, EventCrashed, proc)
}

// Restart starts a crashed or stopped process again with its original spec.
// Used by the auto restarter.
// Restart 使用原始 spec 再次启动已崩溃或已停止的进程。由自动重启器使用。
func (m *Manager) Restart(ctx context.Context, name string) error {
	value, ok := m.processes.Load(name)
	if !ok {
		return ErrProcessNotFound
	}
	proc := value.(*managedProcess)

	proc.mu.Lock()
	switch proc.state {
	case StateRunning, StateStarting, StateStopping:
		proc.mu.Unlock()
		return ErrProcessAlreadyRunning
	case StateFailed:
		proc.mu.Unlock()
		return ErrRestartBudgetExhausted
	}
	proc.state = StateStarting
	proc.restartCount++
	proc.mu.Unlock()

	if err := m.launch(ctx, proc); err != nil {
		// No exit watcher exists for a process that never started, so
		// this is the only place the failed attempt can be reported
		// 启动失败的进程没有退出监视器，失败只能在此处上报
		m.notifyEvent(name, EventRestartFailed, proc)
		return err
	}

	m.notifyEvent(name, EventRestarted, proc)
	return nil
}

// MarkFailed moves a process to the terminal failed state. Used when the
// restart budget is exhausted.
// MarkFailed 将进程置为终态 failed。在重启预算耗尽时使用。
func (m *Manager) MarkFailed(name string, reason string) {
	value, ok := m.processes.Load(name)
	if !ok {
		return
	}
	proc := value.(*managedProcess)

	proc.mu.Lock()
	proc.state = StateFailed
	proc.lastError = reason
	proc.mu.Unlock()

	m.logger.Error("process marked failed",
		zap.String("name", name),
		zap.String("reason", reason),
	)
	m.notifyEvent(name, EventRestartLimitReached, proc)
}

// Stop stops the named process, gracefully first, forcefully on timeout
// Stop 停止指定进程，先优雅后强制
func (m *Manager) Stop(ctx context.Context, name string) error {
	value, ok := m.processes.Load(name)
	if !ok {
		return ErrProcessNotFound
	}
	proc := value.(*managedProcess)

	proc.mu.Lock()
	if proc.state != StateRunning && proc.state != StateStarting {
		proc.mu.Unlock()
		return ErrProcessNotRunning
	}
	proc.state = StateStopping
	proc.manuallyStopped = true
	pid := proc.pid
	proc.mu.Unlock()

	if pid <= 0 {
		return ErrProcessNotRunning
	}

	m.mu.RLock()
	timeout := m.gracefulTimeout
	m.mu.RUnlock()

	// Send SIGTERM first / 先发送 SIGTERM
	if err := sendSignal(pid, syscall.SIGTERM); err != nil {
		m.logger.Warn("failed to send SIGTERM", zap.String("name", name), zap.Int("pid", pid), zap.Error(err))
	}

	// Wait for graceful exit / 等待优雅退出
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !isProcessAlive(pid) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	// Force kill / 强制杀死
	if isProcessAlive(pid) {
		m.logger.Warn("graceful stop timed out, sending SIGKILL",
			zap.String("name", name),
			zap.Int("pid", pid),
		)
		if err := sendSignal(pid, syscall.SIGKILL); err != nil {
			return fmt.Errorf("%w: %v", ErrStopTimeout, err)
		}
	}

	return nil
}

// StopAll stops all running processes
// StopAll 停止所有运行中的进程
func (m *Manager) StopAll(ctx context.Context) error {
	var lastErr error

	m.processes.Range(func(key, value interface{}) bool {
		name := key.(string)
		proc := value.(*managedProcess)

		proc.mu.RLock()
		state := proc.state
		proc.mu.RUnlock()

		if state == StateRunning || state == StateStarting {
			if err := m.Stop(ctx, name); err != nil {
				lastErr = err
			}
		}
		return true
	})

	return lastErr
}

// Status returns the current information for the named process
// Status 返回指定进程的当前信息
func (m *Manager) Status(ctx context.Context, name string) (*Info, error) {
	value, ok := m.processes.Load(name)
	if !ok {
		return nil, ErrProcessNotFound
	}
	proc := value.(*managedProcess)

	proc.mu.Lock()
	defer proc.mu.Unlock()

	// Refresh metrics on demand / 按需刷新指标
	if proc.state == StateRunning && proc.pid > 0 {
		if sample, err := collector.Sample(proc.pid); err == nil {
			proc.cpuPercent = sample.CPUPercent
			proc.memoryRSS = sample.MemoryRSS
		}
	}

	return proc.info(), nil
}

// List returns information for all registered processes
// List 返回所有已注册进程的信息
func (m *Manager) List() []*Info {
	var infos []*Info

	m.processes.Range(func(key, value interface{}) bool {
		proc := value.(*managedProcess)
		proc.mu.RLock()
		infos = append(infos, proc.info())
		proc.mu.RUnlock()
		return true
	})

	return infos
}

// Remove removes a process from supervision (does not stop it)
// Remove 从监管中移除进程（不停止它）
func (m *Manager) Remove(name string) {
	m.processes.Delete(name)
}

// IsRunning checks if a process is running
// IsRunning 检查进程是否正在运行
func (m *Manager) IsRunning(name string) bool {
	value, ok := m.processes.Load(name)
	if !ok {
		return false
	}
	proc := value.(*managedProcess)

	proc.mu.RLock()
	defer proc.mu.RUnlock()

	return proc.state == StateRunning && proc.pid > 0 && isProcessAlive(proc.pid)
}

// isProcessAlive checks if a process with the given PID is alive
// isProcessAlive 检查给定 PID 的进程是否存活
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so send signal 0 to check
	// 在 Unix 上，FindProcess 总是成功，所以发送信号 0 来检查
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// sendSignal sends a signal to a process
// sendSignal 向进程发送信号
func sendSignal(pid int, sig syscall.Signal) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Signal(sig)
}
