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
	"strconv"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/procpilot/procpilot/internal/config"
)

func genConfig(t *rapid.T) *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:   "app",
			Entry:  rapid.SampledFrom([]string{"main:app", "api.server:create_app", "svc:application"}).Draw(t, "entry"),
			Runner: rapid.SampledFrom([]string{"uvicorn", "gunicorn", "hypercorn"}).Draw(t, "runner"),
		},
		Server: config.ServerConfig{
			Host:             rapid.SampledFrom([]string{"0.0.0.0", "127.0.0.1", "::"}).Draw(t, "host"),
			Port:             rapid.IntRange(1, 65535).Draw(t, "port"),
			Workers:          rapid.IntRange(0, 64).Draw(t, "workers"),
			KeepAliveTimeout: time.Duration(rapid.IntRange(0, 600).Draw(t, "keepAliveSec")) * time.Second,
		},
	}
}

// TestBuildDeterministic: building twice from the same configuration yields
// identical commands.
// TestBuildDeterministic：同一配置构建两次产生相同的命令。
func TestBuildDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := genConfig(t)

		first := Build(cfg)
		second := Build(cfg)

		if first.String() != second.String() {
			t.Fatalf("build not deterministic: %q vs %q", first.String(), second.String())
		}
	})
}

// TestBuildFlagInvariants: --workers appears exactly when workers > 1,
// --timeout-keep-alive exactly when a timeout is set, and --host/--port are
// always present with the configured values.
// TestBuildFlagInvariants：--workers 当且仅当 workers > 1 时出现，
// --timeout-keep-alive 当且仅当设置了超时时出现，--host/--port 始终存在。
func TestBuildFlagInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := genConfig(t)

		cmd := Build(cfg)

		flags := map[string]string{}
		for i := 0; i+1 < len(cmd.Args); i++ {
			if len(cmd.Args[i]) > 2 && cmd.Args[i][:2] == "--" {
				flags[cmd.Args[i]] = cmd.Args[i+1]
			}
		}

		if cmd.Program != cfg.App.Runner {
			t.Fatalf("program = %q, want %q", cmd.Program, cfg.App.Runner)
		}
		if cmd.Args[0] != cfg.App.Entry {
			t.Fatalf("entry = %q, want %q", cmd.Args[0], cfg.App.Entry)
		}
		if flags["--host"] != cfg.Server.Host {
			t.Fatalf("--host = %q, want %q", flags["--host"], cfg.Server.Host)
		}
		if flags["--port"] != strconv.Itoa(cfg.Server.Port) {
			t.Fatalf("--port = %q, want %d", flags["--port"], cfg.Server.Port)
		}

		workersVal, hasWorkers := flags["--workers"]
		if cfg.Server.Workers > 1 {
			if !hasWorkers || workersVal != strconv.Itoa(cfg.Server.Workers) {
				t.Fatalf("--workers = %q (present=%v), want %d", workersVal, hasWorkers, cfg.Server.Workers)
			}
		} else if hasWorkers {
			t.Fatalf("--workers present for %d workers", cfg.Server.Workers)
		}

		kaVal, hasKA := flags["--timeout-keep-alive"]
		if cfg.Server.KeepAliveTimeout > 0 {
			want := strconv.Itoa(int(cfg.Server.KeepAliveTimeout.Seconds()))
			if !hasKA || kaVal != want {
				t.Fatalf("--timeout-keep-alive = %q (present=%v), want %s", kaVal, hasKA, want)
			}
		} else if hasKA {
			t.Fatalf("--timeout-keep-alive present with zero timeout")
		}
	})
}
