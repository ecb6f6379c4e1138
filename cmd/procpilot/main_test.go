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

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/procpilot/procpilot/internal/config"
	"github.com/procpilot/procpilot/internal/store"
)

// testDaemonConfig 返回不触碰全局路径的测试配置
func testDaemonConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.App.WorkDir = t.TempDir()
	cfg.Install.Skip = true
	cfg.API.Enabled = false
	cfg.Store.Enabled = false
	return cfg
}

// TestNewDaemon tests daemon creation
// TestNewDaemon 测试守护进程创建
func TestNewDaemon(t *testing.T) {
	cfg := testDaemonConfig(t)

	daemon, err := NewDaemon(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, daemon)
	assert.NotNil(t, daemon.manager)
	assert.NotNil(t, daemon.restarter)
	assert.NotNil(t, daemon.launcher)
	assert.Nil(t, daemon.apiServer)
	assert.Nil(t, daemon.db)
	assert.NotNil(t, daemon.ctx)
	assert.NotNil(t, daemon.cancel)

	// Restart policy is wired from the configuration
	// 重启策略从配置接入
	policy := daemon.restarter.GetPolicy()
	assert.Equal(t, cfg.Restart.Enabled, policy.Enabled)
	assert.Equal(t, cfg.Restart.MaxRestarts, policy.MaxRestarts)
	assert.Equal(t, cfg.Restart.Delay, policy.Delay)

	daemon.Shutdown()
}

// TestNewDaemonWithStore tests daemon creation with the event store enabled
// TestNewDaemonWithStore 测试启用事件存储时的守护进程创建
func TestNewDaemonWithStore(t *testing.T) {
	cfg := testDaemonConfig(t)
	cfg.Store.Enabled = true
	cfg.Store.Type = store.DatabaseTypeSQLite
	cfg.Store.Path = filepath.Join(t.TempDir(), "events.db")
	cfg.Store.LogLevel = "silent"

	daemon, err := NewDaemon(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, daemon.db)
	assert.NotNil(t, daemon.repo)

	daemon.Shutdown()
}

// TestPruneEventsOnStartup tests that expired journal events are removed
// per the configured retention
// TestPruneEventsOnStartup 测试按配置的保留时长清理过期的日志事件
func TestPruneEventsOnStartup(t *testing.T) {
	cfg := testDaemonConfig(t)
	cfg.Store.Enabled = true
	cfg.Store.Type = store.DatabaseTypeSQLite
	cfg.Store.Path = filepath.Join(t.TempDir(), "events.db")
	cfg.Store.LogLevel = "silent"
	cfg.Store.EventRetention = 24 * time.Hour

	daemon, err := NewDaemon(cfg, zap.NewNop())
	require.NoError(t, err)
	defer daemon.Shutdown()

	expired := &store.ProcessEvent{
		AppName:   cfg.App.Name,
		EventType: store.EventTypeCrashed,
	}
	expired.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, daemon.repo.CreateEvent(context.Background(), expired))

	kept := &store.ProcessEvent{
		AppName:   cfg.App.Name,
		EventType: store.EventTypeStarted,
	}
	require.NoError(t, daemon.repo.CreateEvent(context.Background(), kept))

	daemon.pruneEvents()

	_, err = daemon.repo.GetEventByID(context.Background(), expired.ID)
	assert.ErrorIs(t, err, store.ErrEventNotFound)
	_, err = daemon.repo.GetEventByID(context.Background(), kept.ID)
	assert.NoError(t, err)
}

// TestNewDaemonWithAPI tests daemon creation with the status API enabled
// TestNewDaemonWithAPI 测试启用状态 API 时的守护进程创建
func TestNewDaemonWithAPI(t *testing.T) {
	cfg := testDaemonConfig(t)
	cfg.API.Enabled = true
	cfg.API.Addr = "127.0.0.1:0"

	daemon, err := NewDaemon(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, daemon.apiServer)

	daemon.Shutdown()
}

// TestFlagOverrides tests that only changed flags become overrides
// TestFlagOverrides 测试只有更改过的标志才成为覆盖
func TestFlagOverrides(t *testing.T) {
	cmd := rootCmd
	require.NoError(t, cmd.PersistentFlags().Set("port", "9000"))
	require.NoError(t, cmd.PersistentFlags().Set("no-install", "true"))

	overrides := flagOverrides()
	assert.Equal(t, 9000, overrides["server.port"])
	assert.Equal(t, true, overrides["install.skip"])
	assert.NotContains(t, overrides, "server.host")
	assert.NotContains(t, overrides, "app.work_dir")
}
