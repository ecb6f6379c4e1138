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

// Package command builds the runner command line from a launch configuration.
// command 包从启动配置构建运行器命令行。
//
// Building is pure: the same configuration always yields the same command,
// and nothing here touches the environment or the filesystem.
// 构建是纯函数：相同的配置总是产生相同的命令，且不访问环境或文件系统。
package command

import (
	"strconv"
	"strings"

	"github.com/procpilot/procpilot/internal/config"
)

// Command is a fully assembled runner invocation
// Command 是完整组装的运行器调用
type Command struct {
	// Program is the runner executable / Program 是运行器可执行程序
	Program string

	// Args are the arguments, entry point first / Args 是参数列表，入口点在最前
	Args []string
}

// String renders the command the way it would appear on a shell line
// String 以 shell 命令行的形式渲染命令
func (c Command) String() string {
	return strings.Join(append([]string{c.Program}, c.Args...), " ")
}

// Build assembles the runner command line from the configuration.
// Flag rules:
//   - --host and --port are always present
//   - --workers is emitted only when workers > 1; a single-process run must
//     not pass the flag, so fork-unsafe apps never see a worker pool
//   - --timeout-keep-alive is emitted only when a keep-alive timeout is set,
//     rendered as whole seconds
//
// Build 从配置组装运行器命令行。
// 参数规则：
//   - --host 和 --port 始终存在
//   - 仅当 workers > 1 时输出 --workers；单进程运行不传该参数，
//     因此非 fork 安全的应用永远不会遇到 worker 池
//   - 仅当设置了保活超时时输出 --timeout-keep-alive，按整秒渲染
func Build(cfg *config.Config) Command {
	args := []string{
		cfg.App.Entry,
		"--host", cfg.Server.Host,
		"--port", strconv.Itoa(cfg.Server.Port),
	}

	if cfg.Server.Workers > 1 {
		args = append(args, "--workers", strconv.Itoa(cfg.Server.Workers))
	}

	if cfg.Server.KeepAliveTimeout > 0 {
		seconds := int(cfg.Server.KeepAliveTimeout.Seconds())
		args = append(args, "--timeout-keep-alive", strconv.Itoa(seconds))
	}

	return Command{
		Program: cfg.App.Runner,
		Args:    args,
	}
}
