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
	"errors"
	"fmt"
	"sync"
	"time"
)

// Default restart policy values
// 默认重启策略值
const (
	DefaultRestartDelay   = 5 * time.Second  // 默认重启延迟 / Default restart delay
	DefaultMaxRestarts    = 10               // 默认最大重启次数 / Default max restarts
	DefaultTimeWindow     = 5 * time.Minute  // 默认时间窗口 / Default time window
	DefaultCooldownPeriod = 30 * time.Minute // 默认冷却时间 / Default cooldown period
)

// RestartPolicy holds the automatic restart policy
// RestartPolicy 保存自动重启策略
type RestartPolicy struct {
	Enabled     bool          `json:"enabled"`      // 是否启用自动重启 / Enable auto restart
	Delay       time.Duration `json:"delay"`        // 重启延迟 / Restart delay
	MaxRestarts int           `json:"max_restarts"` // 最大重启次数 / Max restart count
	TimeWindow  time.Duration `json:"time_window"`  // 时间窗口 / Time window
	Cooldown    time.Duration `json:"cooldown"`     // 冷却时间 / Cooldown period
}

// DefaultRestartPolicy returns the default restart policy
// DefaultRestartPolicy 返回默认重启策略
func DefaultRestartPolicy() *RestartPolicy {
	return &RestartPolicy{
		Enabled:     true,
		Delay:       DefaultRestartDelay,
		MaxRestarts: DefaultMaxRestarts,
		TimeWindow:  DefaultTimeWindow,
		Cooldown:    DefaultCooldownPeriod,
	}
}

// RestartHistory tracks restart history for a process
// RestartHistory 跟踪进程的重启历史
type RestartHistory struct {
	ProcessName   string      `json:"process_name"`
	RestartCount  int         `json:"restart_count"`
	LastRestart   time.Time   `json:"last_restart"`
	WindowStart   time.Time   `json:"window_start"`
	CooldownUntil time.Time   `json:"cooldown_until"`
	RestartTimes  []time.Time `json:"restart_times"` // 重启时间列表 / List of restart times
}

// RestartCallback is called after each restart attempt and when the budget
// is exhausted
// RestartCallback 在每次重启尝试后以及预算耗尽时被调用
type RestartCallback func(processName string, success bool, err error)

// Restarter handles automatic process restart on crash. Once the restart
// budget within the time window is exhausted, the process is marked terminal
// failed and no further restarts are attempted.
// Restarter 处理进程崩溃时的自动重启。时间窗口内的重启预算耗尽后，
// 进程被置为终态 failed，不再尝试重启。
type Restarter struct {
	manager  *Manager
	policy   *RestartPolicy
	history  map[string]*RestartHistory
	callback RestartCallback
	mu       sync.RWMutex
}

// NewRestarter creates a new Restarter instance
// NewRestarter 创建一个新的 Restarter 实例
func NewRestarter(m *Manager) *Restarter {
	return &Restarter{
		manager: m,
		policy:  DefaultRestartPolicy(),
		history: make(map[string]*RestartHistory),
	}
}

// SetPolicy sets the restart policy
// SetPolicy 设置重启策略
func (r *Restarter) SetPolicy(policy *RestartPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policy = policy
}

// GetPolicy returns a copy of the current policy
// GetPolicy 返回当前策略的副本
func (r *Restarter) GetPolicy() *RestartPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	policyCopy := *r.policy
	return &policyCopy
}

// SetCallback sets the restart callback
// SetCallback 设置重启回调
func (r *Restarter) SetCallback(callback RestartCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callback = callback
}

// OnProcessCrashed handles a process crash event. It waits for the restart
// delay, then restarts the process with its original spec, or marks it
// failed when the budget is exhausted.
// OnProcessCrashed 处理进程崩溃事件。它等待重启延迟后使用原始 spec
// 重启进程，预算耗尽时将其置为 failed。
func (r *Restarter) OnProcessCrashed(name string) error {
	r.mu.RLock()
	policy := *r.policy
	callback := r.callback
	r.mu.RUnlock()

	if !policy.Enabled {
		return nil
	}

	// Check the budget before waiting / 等待前检查预算
	if !r.ShouldRestart(name) {
		reason := fmt.Sprintf("restart budget exhausted: %d restarts within %v", policy.MaxRestarts, policy.TimeWindow)
		r.manager.MarkFailed(name, reason)
		if callback != nil {
			callback(name, false, ErrRestartBudgetExhausted)
		}
		return ErrRestartBudgetExhausted
	}

	// Wait for restart delay / 等待重启延迟
	time.Sleep(policy.Delay)

	// Re-check enabled after delay: policy may have been disabled meanwhile
	// 延迟后再次检查是否启用：策略可能已被禁用
	r.mu.RLock()
	stillEnabled := r.policy.Enabled
	r.mu.RUnlock()
	if !stillEnabled {
		return nil
	}

	return r.DoRestart(context.Background(), name)
}

// ShouldRestart checks if a process may be restarted under the policy
// ShouldRestart 检查进程是否允许按策略重启
func (r *Restarter) ShouldRestart(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.policy.Enabled {
		return false
	}

	history, exists := r.history[name]
	if !exists {
		// No history, can restart / 无历史，可以重启
		return true
	}

	now := time.Now()

	// Check if in cooldown / 检查是否在冷却中
	if now.Before(history.CooldownUntil) {
		return false
	}

	// Cooldown passed, reset counter / 冷却已过，重置计数器
	if !history.CooldownUntil.IsZero() && now.After(history.CooldownUntil) {
		r.resetHistoryLocked(name)
		return true
	}

	// Count restarts within time window / 计算时间窗口内的重启次数
	windowStart := now.Add(-r.policy.TimeWindow)
	restartsInWindow := 0
	for _, t := range history.RestartTimes {
		if t.After(windowStart) {
			restartsInWindow++
		}
	}

	// Budget exhausted: enter cooldown / 预算耗尽：进入冷却
	if restartsInWindow >= r.policy.MaxRestarts {
		history.CooldownUntil = now.Add(r.policy.Cooldown)
		return false
	}

	return true
}

// DoRestart performs the actual restart with the original spec
// DoRestart 使用原始 spec 执行实际的重启
func (r *Restarter) DoRestart(ctx context.Context, name string) error {
	r.mu.RLock()
	callback := r.callback
	r.mu.RUnlock()

	err := r.manager.Restart(ctx, name)
	if err != nil {
		if errors.Is(err, ErrProcessAlreadyRunning) {
			// Already back up, treat as success / 已恢复运行，视为成功
			if callback != nil {
				callback(name, true, nil)
			}
			return nil
		}
		r.recordRestart(name)
		if callback != nil {
			callback(name, false, err)
		}
		// The launch itself failed, so no exit watcher will fire another
		// crash event; drive the budget from here
		// 启动本身失败，不会再有退出监视器触发崩溃事件；从这里继续消耗预算
		go r.OnProcessCrashed(name) //nolint:errcheck
		return err
	}

	r.recordRestart(name)
	if callback != nil {
		callback(name, true, nil)
	}
	return nil
}

// recordRestart records a restart in history
// recordRestart 在历史中记录重启
func (r *Restarter) recordRestart(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	history, exists := r.history[name]
	if !exists {
		history = &RestartHistory{
			ProcessName:  name,
			WindowStart:  now,
			RestartTimes: make([]time.Time, 0),
		}
		r.history[name] = history
	}

	history.RestartCount++
	history.LastRestart = now
	history.RestartTimes = append(history.RestartTimes, now)

	// Clean up old restart times / 清理旧的重启时间
	windowStart := now.Add(-r.policy.TimeWindow)
	var newTimes []time.Time
	for _, t := range history.RestartTimes {
		if t.After(windowStart) {
			newTimes = append(newTimes, t)
		}
	}
	history.RestartTimes = newTimes
}

// ResetRestartCount resets the restart count for a process
// ResetRestartCount 重置进程的重启计数
func (r *Restarter) ResetRestartCount(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetHistoryLocked(name)
}

// resetHistoryLocked resets history (must be called with lock held)
// resetHistoryLocked 重置历史（必须在持有锁的情况下调用）
func (r *Restarter) resetHistoryLocked(name string) {
	if history, exists := r.history[name]; exists {
		history.RestartCount = 0
		history.RestartTimes = make([]time.Time, 0)
		history.WindowStart = time.Now()
		history.CooldownUntil = time.Time{}
	}
}

// GetRestartHistory returns a copy of the restart history for a process
// GetRestartHistory 返回进程重启历史的副本
func (r *Restarter) GetRestartHistory(name string) *RestartHistory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if history, exists := r.history[name]; exists {
		historyCopy := *history
		historyCopy.RestartTimes = make([]time.Time, len(history.RestartTimes))
		copy(historyCopy.RestartTimes, history.RestartTimes)
		return &historyCopy
	}
	return nil
}

// IsInCooldown checks if a process is in cooldown
// IsInCooldown 检查进程是否在冷却中
func (r *Restarter) IsInCooldown(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if history, exists := r.history[name]; exists {
		return time.Now().Before(history.CooldownUntil)
	}
	return false
}

// IsEnabled returns whether auto restart is enabled
// IsEnabled 返回是否启用了自动重启
func (r *Restarter) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy.Enabled
}

// HandleEvent is the manager event hook. Crash handling runs in its own
// goroutine so the exit watcher is not blocked by the restart delay.
// HandleEvent 是管理器的事件钩子。崩溃处理在独立 goroutine 中运行，
// 避免退出监视器被重启延迟阻塞。
func (r *Restarter) HandleEvent(name string, event Event, info *Info) {
	if event == EventCrashed {
		go r.OnProcessCrashed(name) //nolint:errcheck
	}
}
