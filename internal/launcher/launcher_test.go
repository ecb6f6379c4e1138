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

package launcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procpilot/procpilot/internal/config"
	"github.com/procpilot/procpilot/internal/installer"
	"github.com/procpilot/procpilot/internal/store"
	"github.com/procpilot/procpilot/internal/supervisor"
)

// recordingSupervisor 记录调用的假监管器
type recordingSupervisor struct {
	started  []*supervisor.Spec
	startErr error
	info     *supervisor.Info
}

func (r *recordingSupervisor) Start(ctx context.Context, spec *supervisor.Spec) error {
	if r.startErr != nil {
		return r.startErr
	}
	r.started = append(r.started, spec)
	return nil
}

func (r *recordingSupervisor) Stop(ctx context.Context, name string) error { return nil }

func (r *recordingSupervisor) Status(ctx context.Context, name string) (*supervisor.Info, error) {
	if r.info == nil {
		return nil, supervisor.ErrProcessNotFound
	}
	return r.info, nil
}

func (r *recordingSupervisor) List() []*supervisor.Info {
	if r.info == nil {
		return nil
	}
	return []*supervisor.Info{r.info}
}

// testConfig 返回跳过安装的最小可用配置
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.App.WorkDir = t.TempDir()
	cfg.Install.Skip = true
	return cfg
}

func TestRunHappyPath(t *testing.T) {
	cfg := testConfig(t)
	sup := &recordingSupervisor{}

	l := New(cfg, sup, nil, nil)
	require.NotEmpty(t, l.LaunchID())

	err := l.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sup.started, 1)
	spec := sup.started[0]
	assert.Equal(t, cfg.App.Name, spec.Name)
	assert.Equal(t, "uvicorn", spec.Program)
	assert.Equal(t, []string{"main:app", "--host", "0.0.0.0", "--port", "8000"}, spec.Args)
}

func TestRunInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.Entry = "no-colon-here"
	sup := &recordingSupervisor{}

	err := New(cfg, sup, nil, nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.Empty(t, sup.started)
}

func TestRunForkUnsafeMultiWorker(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.ForkUnsafe = true
	cfg.Server.Workers = 4
	sup := &recordingSupervisor{}

	err := New(cfg, sup, nil, nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.Equal(t, ExitCodeConfigError, ExitCodeFor(err))
	assert.Empty(t, sup.started)
}

func TestRunInstallFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Install.Skip = false
	cfg.Install.Installer = "false" // always fails / 总是失败
	cfg.Install.Manifest = "requirements.txt"
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.App.WorkDir, "requirements.txt"), []byte("fastapi\n"), 0o644))

	sup := &recordingSupervisor{}
	err := New(cfg, sup, nil, nil).Run(context.Background())

	assert.ErrorIs(t, err, ErrInstallFatal)
	assert.Equal(t, ExitCodeInstallError, ExitCodeFor(err))
	// The process must never start after a failed install
	// 安装失败后绝不能启动进程
	assert.Empty(t, sup.started)
}

func TestRunInstallManifestMissing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Install.Skip = false
	cfg.Install.Installer = "true"
	cfg.Install.Manifest = "requirements.txt"

	err := New(cfg, &recordingSupervisor{}, nil, nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrInstallFatal)
	assert.ErrorIs(t, err, installer.ErrManifestNotFound)
}

func TestRunSupervisorStartFailure(t *testing.T) {
	cfg := testConfig(t)
	sup := &recordingSupervisor{startErr: supervisor.ErrStartFailed}

	err := New(cfg, sup, nil, nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrSupervisorStart)
	assert.Equal(t, ExitCodeStartError, ExitCodeFor(err))
}

func TestBuildCommandPassthrough(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Workers = 4
	cfg.Server.KeepAliveTimeout = 30 * time.Second

	cmd := New(cfg, &recordingSupervisor{}, nil, nil).BuildCommand()
	assert.Equal(t, "uvicorn", cmd.Program)
	assert.Contains(t, cmd.Args, "--workers")
	assert.Contains(t, cmd.Args, "--timeout-keep-alive")
}

func TestReportStatus(t *testing.T) {
	cfg := testConfig(t)
	sup := &recordingSupervisor{info: &supervisor.Info{
		Name:         cfg.App.Name,
		PID:          4242,
		State:        supervisor.StateRunning,
		RestartCount: 1,
	}}

	info, err := New(cfg, sup, nil, nil).ReportStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4242, info.PID)
	assert.Equal(t, supervisor.StateRunning, info.State)
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, ExitCodeOK},
		{"config error", ErrConfigInvalid, ExitCodeConfigError},
		{"install error", ErrInstallFatal, ExitCodeInstallError},
		{"start error", ErrSupervisorStart, ExitCodeStartError},
		{"unknown error", context.Canceled, ExitCodeStartError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

func TestJournalEvents(t *testing.T) {
	cfg := testConfig(t)

	db, err := store.Open(config.StoreConfig{
		Enabled:  true,
		Type:     store.DatabaseTypeSQLite,
		Path:     filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(db) })
	repo := store.NewRepository(db)

	sup := &recordingSupervisor{}
	l := New(cfg, sup, repo, nil)
	require.NoError(t, l.Run(context.Background()))

	// The launch record is persisted / 启动记录被持久化
	record, err := repo.GetLaunchByID(context.Background(), l.LaunchID())
	require.NoError(t, err)
	assert.Equal(t, cfg.App.Name, record.AppName)
	assert.Equal(t, "uvicorn main:app --host 0.0.0.0 --port 8000", record.CommandLine)

	// Lifecycle events are journaled through the event hook
	// 生命周期事件通过事件钩子记入
	l.HandleEvent(cfg.App.Name, supervisor.EventCrashed, &supervisor.Info{
		Name:     cfg.App.Name,
		PID:      4242,
		ExitCode: 1,
		State:    supervisor.StateCrashed,
	})

	events, total, err := repo.ListEvents(context.Background(), &store.ProcessEventFilter{
		LaunchID:  l.LaunchID(),
		EventType: store.EventTypeCrashed,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, events, 1)
	assert.Equal(t, 4242, events[0].PID)
	assert.Equal(t, 1, events[0].ExitCode)

	// A failed restart attempt is journaled too / 失败的重启尝试同样记入
	l.HandleEvent(cfg.App.Name, supervisor.EventRestartFailed, &supervisor.Info{
		Name:      cfg.App.Name,
		State:     supervisor.StateCrashed,
		LastError: "failed to start process: no such file or directory",
	})

	_, total, err = repo.ListEvents(context.Background(), &store.ProcessEventFilter{
		LaunchID:  l.LaunchID(),
		EventType: store.EventTypeRestartFailed,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestDescribeCommand(t *testing.T) {
	cfg := testConfig(t)
	out, err := New(cfg, &recordingSupervisor{}, nil, nil).DescribeCommand()
	require.NoError(t, err)
	assert.Contains(t, out, "uvicorn")
	assert.Contains(t, out, "--port")
}
