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

package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/procpilot/procpilot/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:   "deeplink-service",
			Entry:  "main:app",
			Runner: "uvicorn",
		},
		Server: config.ServerConfig{
			Host:    "0.0.0.0",
			Port:    8000,
			Workers: 1,
		},
	}
}

// TestBuildSingleWorker verifies that a single-process run never passes
// --workers.
// TestBuildSingleWorker 验证单进程运行不传 --workers。
func TestBuildSingleWorker(t *testing.T) {
	cmd := Build(baseConfig())

	assert.Equal(t, "uvicorn", cmd.Program)
	assert.Equal(t, []string{"main:app", "--host", "0.0.0.0", "--port", "8000"}, cmd.Args)
	assert.Equal(t, "uvicorn main:app --host 0.0.0.0 --port 8000", cmd.String())
	assert.NotContains(t, cmd.Args, "--workers")
	assert.NotContains(t, cmd.Args, "--timeout-keep-alive")
}

// TestBuildMultiWorkerWithKeepAlive verifies worker and keep-alive rendering.
// TestBuildMultiWorkerWithKeepAlive 验证 worker 和保活超时的渲染。
func TestBuildMultiWorkerWithKeepAlive(t *testing.T) {
	cfg := baseConfig()
	cfg.Server.Workers = 4
	cfg.Server.KeepAliveTimeout = 30 * time.Second

	cmd := Build(cfg)

	assert.Equal(t, []string{
		"main:app",
		"--host", "0.0.0.0",
		"--port", "8000",
		"--workers", "4",
		"--timeout-keep-alive", "30",
	}, cmd.Args)
}

// TestBuildFlagRules exercises the conditional flags.
// TestBuildFlagRules 测试条件性参数。
func TestBuildFlagRules(t *testing.T) {
	tests := []struct {
		name          string
		workers       int
		keepAlive     time.Duration
		wantWorkers   bool
		wantKeepAlive bool
	}{
		{name: "zero workers", workers: 0},
		{name: "one worker", workers: 1},
		{name: "two workers", workers: 2, wantWorkers: true},
		{name: "keep alive only", workers: 1, keepAlive: 15 * time.Second, wantKeepAlive: true},
		{name: "both", workers: 8, keepAlive: 60 * time.Second, wantWorkers: true, wantKeepAlive: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			cfg.Server.Workers = tt.workers
			cfg.Server.KeepAliveTimeout = tt.keepAlive

			cmd := Build(cfg)

			if tt.wantWorkers {
				assert.Contains(t, cmd.Args, "--workers")
			} else {
				assert.NotContains(t, cmd.Args, "--workers")
			}
			if tt.wantKeepAlive {
				assert.Contains(t, cmd.Args, "--timeout-keep-alive")
			} else {
				assert.NotContains(t, cmd.Args, "--timeout-keep-alive")
			}
		})
	}
}

// TestBuildDoesNotMutateConfig verifies the builder leaves its input alone.
// TestBuildDoesNotMutateConfig 验证构建器不修改输入。
func TestBuildDoesNotMutateConfig(t *testing.T) {
	cfg := baseConfig()
	before := *cfg

	_ = Build(cfg)

	assert.Equal(t, before, *cfg)
}
